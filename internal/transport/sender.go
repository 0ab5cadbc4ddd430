package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/logger"
)

// Sender 向某个 channel 发请求并等待响应.
// 不排队, 不限制并发, 也不设超时: 调用方通过 ctx 控制等待时间.
type Sender struct {
	bus     bus.Bus
	channel Channel
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]chan DispatchResponse

	unsubscribe func()
}

// NewSender 订阅 channel 的响应 topic
func NewSender(b bus.Bus, ch Channel) (*Sender, error) {
	s := &Sender{
		bus:     b,
		channel: ch,
		log:     logger.Named("transport.sender").With(zap.String("channel", string(ch))),
		pending: make(map[string]chan DispatchResponse),
	}

	unsubscribe, err := b.Subscribe(ResponseTopic(ch), s.onResponse)
	if err != nil {
		return nil, fmt.Errorf("subscribe responses: %w", err)
	}
	s.unsubscribe = unsubscribe
	return s, nil
}

// Send 发送一次调用. Resolve 返回结果原文, Reject 返回 *RemoteError
func (s *Sender) Send(ctx context.Context, operation string, args any) (json.RawMessage, error) {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	// 1. 登记等待表
	id := uuid.NewString()
	wait := make(chan DispatchResponse, 1)
	s.mu.Lock()
	s.pending[id] = wait
	s.mu.Unlock()
	defer s.forget(id)

	// 2. 发出请求
	frame, err := json.Marshal(DispatchRequest{
		ID:          id,
		ChannelName: s.channel,
		Operation:   operation,
		Args:        rawArgs,
	})
	if err != nil {
		return nil, err
	}
	if err := s.bus.Publish(ctx, RequestTopic(s.channel), frame); err != nil {
		return nil, fmt.Errorf("publish request: %w", err)
	}
	s.log.Debug("请求已发出", zap.String("id", id), zap.String("operation", operation))

	// 3. 等待响应
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-wait:
		if resp.Action == model.ActionReject {
			remote := &RemoteError{Code: -1, Message: "rejected"}
			if len(resp.Result) > 0 {
				_ = json.Unmarshal(resp.Result, remote)
			}
			return nil, remote
		}
		return resp.Result, nil
	}
}

// Pending 当前等待中的调用数
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sender) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Sender) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Sender) onResponse(data []byte) {
	var resp DispatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.log.Debug("无法解析响应帧", zap.Error(err))
		return
	}

	// 取出并删除, 保证每个 id 只被结算一次
	s.mu.Lock()
	wait, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("忽略未知 id 的响应", zap.String("id", resp.ID))
		return
	}
	wait <- resp
}
