package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/logger"
	"wallet-guard/pkg/monitor"
)

// VerdictClient 向 relay 请求裁决, transport.Client 实现了它
type VerdictClient interface {
	Simulate(ctx context.Context, args model.RequestArgs) (model.Verdict, error)
}

// Guard 创建 GuardedProvider 并安装到 Slot
type Guard struct {
	client  VerdictClient
	timeout time.Duration // 0 表示一直等待裁决
	log     *zap.Logger
}

func NewGuard(client VerdictClient, verdictTimeout time.Duration) *Guard {
	return &Guard{
		client:  client,
		timeout: verdictTimeout,
		log:     logger.Named("interceptor"),
	}
}

// Wrap 返回包装后的 provider, 已包装的直接返回
func (g *Guard) Wrap(p Provider) Provider {
	if p == nil || IsGuarded(p) {
		return p
	}
	return &GuardedProvider{inner: p, guard: g}
}

// Install 包装 slot 中的 provider 及其子 provider, 返回顶层是否已处于保护中
func (g *Guard) Install(slot Slot) bool {
	p := slot.Load()
	if p == nil {
		return false
	}

	guarded := IsGuarded(p)
	if !guarded {
		if slot.Writable() {
			slot.Store(g.Wrap(p))
			guarded = true
			g.log.Info("[Interceptor] provider 已包装")
		} else {
			g.log.Warn("[Interceptor] provider 只读, 跳过")
		}
	}

	// 子 provider 各自独立包装, 顶层失败不影响
	if agg, ok := p.(Aggregator); ok {
		for _, sub := range agg.SubProviders() {
			sp := sub.Load()
			if sp == nil || IsGuarded(sp) {
				continue
			}
			if !sub.Writable() {
				g.log.Warn("[Interceptor] 子 provider 只读, 跳过")
				continue
			}
			sub.Store(g.Wrap(sp))
		}
	}
	return guarded
}

// gate 为一次受监控的调用请求裁决. 返回 nil 表示可以转发.
func (g *Guard) gate(ctx context.Context, inner Provider, method string, params json.RawMessage, opts model.Options, session *Session) error {
	args := model.RequestArgs{
		Method:  model.Method(method),
		Params:  params,
		Options: opts,
	}

	// 1. 读取链 ID 和账户 (WebSocket 场景由会话提供)
	if session != nil {
		args.ChainID = session.ChainID
		if len(session.Accounts) > 0 {
			args.Signer = session.Accounts[0]
		}
	} else {
		chainID, signer, err := readContext(ctx, inner)
		if err != nil {
			return err
		}
		args.ChainID = chainID
		args.Signer = signer
	}

	monitor.Business.GatedCallsTotal.WithLabelValues(method).Inc()

	// 2. 等待裁决
	waitCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	verdict, err := g.client.Simulate(waitCtx, args)
	if err != nil {
		// 调用方放弃了调用, 不再转发
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// transport 失败或超时: 放行, 不能因为守卫故障阻塞钱包
		if errors.Is(err, context.DeadlineExceeded) {
			g.log.Warn("[Interceptor] 等待裁决超时, 放行", zap.String("method", method), zap.Duration("timeout", g.timeout))
		} else {
			g.log.Warn("[Interceptor] 请求裁决失败, 放行", zap.String("method", method), zap.Error(err))
		}
		return nil
	}

	// 3. 按裁决处理
	if verdict == model.VerdictReject {
		g.log.Info("[Interceptor] 用户拒绝", zap.String("method", method))
		if args.Method == model.MethodSendTransaction {
			return errno.ErrUserRejectedTx
		}
		return errno.ErrUserRejected
	}
	return nil
}

// readContext 从未包装的 provider 读取 eth_chainId 与 eth_accounts[0]
func readContext(ctx context.Context, p Provider) (string, string, error) {
	rawChain, err := p.Request(ctx, RPCRequest{Method: "eth_chainId"})
	if err != nil {
		return "", "", fmt.Errorf("eth_chainId: %w", err)
	}
	var chainID string
	if err := json.Unmarshal(rawChain, &chainID); err != nil {
		return "", "", fmt.Errorf("eth_chainId: %w", err)
	}

	rawAccounts, err := p.Request(ctx, RPCRequest{Method: "eth_accounts"})
	if err != nil {
		return "", "", fmt.Errorf("eth_accounts: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(rawAccounts, &accounts); err != nil {
		return "", "", fmt.Errorf("eth_accounts: %w", err)
	}

	signer := ""
	if len(accounts) > 0 {
		signer = accounts[0]
	}
	return chainID, signer, nil
}

// GuardedProvider 拦截受监控方法的 provider 装饰器
type GuardedProvider struct {
	inner Provider
	guard *Guard
}

func (p *GuardedProvider) Guarded() bool { return true }

// SubProviders 透传聚合 provider 的子 provider
func (p *GuardedProvider) SubProviders() []Slot {
	if agg, ok := p.inner.(Aggregator); ok {
		return agg.SubProviders()
	}
	return nil
}

func (p *GuardedProvider) Request(ctx context.Context, req RPCRequest) (json.RawMessage, error) {
	if !model.IsWatched(req.Method) {
		return p.inner.Request(ctx, req)
	}
	if err := p.guard.gate(ctx, p.inner, req.Method, req.Params, model.Options{}, nil); err != nil {
		return nil, err
	}
	return p.inner.Request(ctx, req)
}

// Send send(method, params) 按 request 处理
func (p *GuardedProvider) Send(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return p.Request(ctx, RPCRequest{Method: method, Params: params})
}

// SendAsync 受监控的方法经 Request 处理后通过回调返回 JSON-RPC 响应
func (p *GuardedProvider) SendAsync(ctx context.Context, req RPCRequest, cb Callback) {
	if !model.IsWatched(req.Method) {
		p.inner.SendAsync(ctx, req, cb)
		return
	}

	go func() {
		result, err := p.Request(ctx, RPCRequest{Method: req.Method, Params: req.Params})
		resp := RPCResponse{ID: req.ID, JSONRPC: "2.0", Method: req.Method}
		if err != nil {
			resp.Error = toRPCError(err)
			cb(err, resp)
			return
		}
		resp.Result = result
		cb(nil, resp)
	}()
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var e errno.Errno
	if errors.As(err, &e) {
		return &RPCError{Code: e.Code, Message: e.Message}
	}
	return &RPCError{Code: errno.ErrInternalRPC.Code, Message: err.Error()}
}
