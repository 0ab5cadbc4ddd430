package relay

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
)

// PostMessageTopic 页面 window.postMessage 在总线上的 topic
const PostMessageTopic = "window.message"

const (
	walletStreamName   = "metamask-provider"
	targetContent      = "metamask-contentscript"
	targetInpage       = "metamask-inpage"
	chainChangedMethod = "chainChanged"
)

// PostMessage window.postMessage 的数据: {target, data: {name, data: {method, params}}}
type PostMessage struct {
	Target string       `json:"target"`
	Data   *StreamFrame `json:"data,omitempty"`
}

// StreamFrame 钱包通信流上的一帧
type StreamFrame struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

type streamPayload struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// bypassObserver 观察页面绕过 provider 直接发给钱包的消息
type bypassObserver struct {
	relay *Relay

	mu      sync.RWMutex
	chainID string
}

func newBypassObserver(r *Relay) *bypassObserver {
	return &bypassObserver{relay: r, chainID: "0x1"}
}

func (o *bypassObserver) start() (func(), error) {
	return o.relay.bus.Subscribe(PostMessageTopic, o.onMessage)
}

// ChainID 最近一次 chainChanged 通知的链 ID
func (o *bypassObserver) ChainID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.chainID
}

func (o *bypassObserver) onMessage(data []byte) {
	var msg PostMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Data == nil {
		return
	}
	if msg.Data.Name != walletStreamName || len(msg.Data.Data) == 0 {
		return
	}
	var payload streamPayload
	if err := json.Unmarshal(msg.Data.Data, &payload); err != nil {
		return
	}

	switch {
	case msg.Target == targetContent && model.IsWatched(payload.Method):
		o.check(context.Background(), payload)
	case msg.Target == targetInpage && strings.Contains(payload.Method, chainChangedMethod):
		o.trackChain(payload.Params)
	}
}

// check 页面直接向钱包发出了受监控的调用
func (o *bypassObserver) check(ctx context.Context, payload streamPayload) {
	r := o.relay
	args := model.RequestArgs{
		ChainID: o.ChainID(),
		Signer:  model.ZeroAddress.Hex(),
		Method:  model.Method(payload.Method),
		Params:  payload.Params,
	}

	if skip, reason, err := r.ShouldSkip(ctx, args); err == nil && skip {
		r.log.Debug("[Relay] 绕过检查被跳过", zap.String("reason", reason))
		return
	}

	// 已批准的同一调用: 钱包正在消费它, 通知 coordinator 清除记录防止重放
	fingerprint, err := model.Fingerprint(args)
	if err != nil {
		r.log.Warn("[Relay] 计算指纹失败", zap.Error(err))
		return
	}
	current, err := r.state.Current(ctx)
	if err != nil {
		r.log.Warn("[Relay] 读取当前记录失败", zap.Error(err))
	}
	if current != nil && current.IsTerminal() && current.Action == model.ActionResolve {
		if fp, err := current.Fingerprint(); err == nil && fp == fingerprint {
			if err := r.publish(ctx, model.CommandConsume, model.ConsumeCommand{ID: current.ID, Fingerprint: fingerprint}); err != nil {
				r.log.Warn("[Relay] 发送 consume 失败", zap.Error(err))
			}
			return
		}
	}

	r.log.Info("[Relay] 检测到绕过调用", zap.String("method", payload.Method), zap.String("chainId", args.ChainID))
	if err := r.publish(ctx, model.CommandBypassCheck, model.BypassCommand{Hostname: r.hostname, Request: args}); err != nil {
		r.log.Warn("[Relay] 发送 bypassCheck 失败", zap.Error(err))
	}
}

// trackChain params.chainId 可能是数字或十进制 / 十六进制字符串
func (o *bypassObserver) trackChain(params json.RawMessage) {
	var p struct {
		ChainID json.RawMessage `json:"chainId"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p.ChainID) == 0 {
		return
	}
	id, ok := parseChainID(p.ChainID)
	if !ok {
		return
	}

	o.mu.Lock()
	o.chainID = id
	o.mu.Unlock()
	o.relay.log.Debug("[Relay] 链已切换", zap.String("chainId", id))
}

func parseChainID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// 数字
		s = string(raw)
	}
	s = strings.TrimSpace(s)

	n := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := n.SetString(s[2:], 16); !ok {
			return "", false
		}
	} else if _, ok := n.SetString(s, 10); !ok {
		return "", false
	}
	if n.Sign() < 0 {
		return "", false
	}
	return hexutil.EncodeBig(n), true
}
