// Package relay 是页面与 coordinator 之间的桥 (content script).
//
// 它在本地执行跳过策略, 把需要弹窗的请求转发给 coordinator,
// 然后监听存储, 在自己发出的请求完成时把裁决交还给页面.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/internal/service/mq"
	"wallet-guard/internal/statestore"
	"wallet-guard/internal/transport"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/logger"
	"wallet-guard/pkg/monitor"
)

// ErrTrackingExpired 等待超过跟踪期限, 请求被放弃
var ErrTrackingExpired = errors.New("relay: request tracking expired")

// Options relay 参数
type Options struct {
	Hostname          string
	Topic             string // 运行时消息 topic
	SupportedChains   []string
	KnownMarketplaces []string
	TrackTTL          time.Duration
}

// waiter 一个等待裁决的请求, 只结算一次
type waiter struct {
	once sync.Once
	done chan struct{}

	verdict model.Verdict
	err     error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) settle(verdict model.Verdict, err error) {
	w.once.Do(func() {
		w.verdict = verdict
		w.err = err
		close(w.done)
	})
}

// Relay 一个页面 (hostname) 的 content script
type Relay struct {
	hostname string
	topic    string
	policy   *Policy
	bus      bus.Bus
	state    *statestore.StateStore
	producer mq.Producer
	log      *zap.Logger

	// 本 relay 发出且尚未完成的请求 id -> *waiter
	tracked *gocache.Cache

	bypass *bypassObserver

	mu       sync.Mutex
	closers  []func()
	receiver *transport.Receiver
	injected *transport.Sender
}

// New 创建 relay, 调用 Start 后开始工作
func New(b bus.Bus, state *statestore.StateStore, producer mq.Producer, opts Options) *Relay {
	ttl := opts.TrackTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cleanup := ttl / 2
	if cleanup > time.Minute {
		cleanup = time.Minute
	}

	r := &Relay{
		hostname: opts.Hostname,
		topic:    opts.Topic,
		policy:   NewPolicy(opts.SupportedChains, opts.KnownMarketplaces),
		bus:      b,
		state:    state,
		producer: producer,
		log:      logger.Named("relay").With(zap.String("hostname", opts.Hostname)),
		tracked:  gocache.New(ttl, cleanup),
	}
	// 过期 (或删除) 时唤醒等待方; 已结算的 waiter 不受影响
	r.tracked.OnEvicted(func(id string, v interface{}) {
		if w, ok := v.(*waiter); ok {
			w.settle("", ErrTrackingExpired)
		}
	})
	r.bypass = newBypassObserver(r)
	return r
}

// Start 订阅存储变更, 注册 transport 路由并开始观察绕过行为
func (r *Relay) Start() error {
	unsubscribeStore, err := r.state.SubscribeRequest(r.onRequestChange)
	if err != nil {
		return fmt.Errorf("subscribe request store: %w", err)
	}

	receiver, err := transport.NewReceiver(r.bus, transport.ToContent,
		transport.Handle(transport.Simulate, r.Simulate),
		transport.Handle(transport.ReportError, func(ctx context.Context, report model.ErrorReport) (transport.Ack, error) {
			if err := r.ReportError(ctx, report); err != nil {
				return transport.Ack{}, err
			}
			return transport.Ack{OK: true}, nil
		}),
		transport.Handle(transport.Health, func(_ context.Context, name string) (string, error) {
			return fmt.Sprintf("hello %s from content", name), nil
		}),
	)
	if err != nil {
		unsubscribeStore()
		return err
	}

	injected, err := transport.NewSender(r.bus, transport.ToInjected)
	if err != nil {
		unsubscribeStore()
		receiver.Close()
		return err
	}

	unsubscribeBypass, err := r.bypass.start()
	if err != nil {
		unsubscribeStore()
		receiver.Close()
		injected.Close()
		return err
	}

	r.mu.Lock()
	r.receiver = receiver
	r.injected = injected
	r.closers = append(r.closers, unsubscribeStore, unsubscribeBypass)
	r.mu.Unlock()

	r.log.Info("[Relay] 已启动")
	return nil
}

// Close 停止订阅. 仍在等待的请求以 ErrTrackingExpired 结束, 页面侧据此放行.
func (r *Relay) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	receiver, injected := r.receiver, r.injected
	r.receiver, r.injected = nil, nil
	r.mu.Unlock()

	for _, c := range closers {
		c()
	}
	if receiver != nil {
		receiver.Close()
	}
	if injected != nil {
		injected.Close()
	}
	for _, item := range r.tracked.Items() {
		if w, ok := item.Object.(*waiter); ok {
			w.settle("", ErrTrackingExpired)
		}
	}
	r.tracked.Flush()
}

// Simulate 为一次调用取得裁决: 跳过直接继续, 否则转发给 coordinator 并等待记录完成
func (r *Relay) Simulate(ctx context.Context, args model.RequestArgs) (model.Verdict, error) {
	// 1. 本地跳过策略
	skip, reason, err := r.ShouldSkip(ctx, args)
	if err != nil {
		r.log.Warn("[Relay] 读取设置失败, 按需要弹窗处理", zap.Error(err))
	}
	if skip {
		r.log.Debug("[Relay] 跳过请求", zap.String("reason", reason), zap.String("method", string(args.Method)))
		monitor.Business.SkippedCallsTotal.WithLabelValues(reason).Inc()
		return model.VerdictContinue, nil
	}

	// 2. 登记 id, 必须早于发布, 否则可能错过很快完成的记录
	id := uuid.NewString()
	w := newWaiter()
	r.tracked.SetDefault(id, w)

	// 3. 载荷只在这里解析一次
	cmd := model.RequestCommand{
		ID:       id,
		Hostname: r.hostname,
		Args:     args,
		Payload:  model.ResolvePayload(args),
	}
	if err := r.publish(ctx, model.CommandRequest, cmd); err != nil {
		r.tracked.Delete(id)
		return "", err
	}
	r.log.Info("[Relay] 请求已转发", zap.String("id", id), zap.String("method", string(args.Method)))

	// 4. 等待裁决
	select {
	case <-ctx.Done():
		r.tracked.Delete(id)
		return "", ctx.Err()
	case <-w.done:
		if w.err != nil {
			return "", w.err
		}
		monitor.Business.VerdictsTotal.WithLabelValues(string(w.verdict)).Inc()
		return w.verdict, nil
	}
}

// onRequestChange 只处理本 relay 发出的请求, 重复通知是无害的
func (r *Relay) onRequestChange(c statestore.RequestChange) {
	rec := c.New
	if rec == nil || !rec.IsTerminal() {
		return
	}
	v, ok := r.tracked.Get(rec.ID)
	if !ok {
		return
	}
	w := v.(*waiter)

	verdict := model.VerdictReject
	if rec.Action == model.ActionResolve {
		verdict = model.VerdictContinue
	}
	w.settle(verdict, nil)
	r.tracked.Delete(rec.ID)

	r.log.Info("[Relay] 请求完成", zap.String("id", rec.ID), zap.String("verdict", string(verdict)))
}

// ReportError 把页面上报的错误转发给 coordinator
func (r *Relay) ReportError(ctx context.Context, report model.ErrorReport) error {
	return r.publish(ctx, model.CommandReportError, model.ReportErrorCommand{
		Hostname:    r.hostname,
		ErrorReport: report,
	})
}

// PingInjected 检查注入脚本是否在线
func (r *Relay) PingInjected(ctx context.Context) (string, error) {
	r.mu.Lock()
	injected := r.injected
	r.mu.Unlock()
	if injected == nil {
		return "", errno.ErrTransport.WithMessage("relay not started")
	}
	return transport.Call(ctx, injected, transport.Health, "content")
}

// Tracked 等待中的请求数量
func (r *Relay) Tracked() int {
	return r.tracked.ItemCount()
}

func (r *Relay) publish(ctx context.Context, cmd model.Command, data any) error {
	payload, err := model.NewEnvelope(cmd, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd, err)
	}
	if err := r.producer.Publish(ctx, r.topic, r.hostname, payload); err != nil {
		return errno.ErrTransport.WithMessage("publish %s: %v", cmd, err)
	}
	return nil
}
