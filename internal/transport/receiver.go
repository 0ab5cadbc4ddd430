package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/logger"
)

// HandlerFunc 处理一次调用, 返回值会被 JSON 编码后回传
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Route 操作名到 handler 的绑定
type Route struct {
	Operation string
	Handler   HandlerFunc
}

// Receiver 处理发往某个 channel 的请求, 每个请求在独立 goroutine 中执行
type Receiver struct {
	bus      bus.Bus
	channel  Channel
	handlers map[string]HandlerFunc
	log      *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewReceiver(b bus.Bus, ch Channel, routes ...Route) (*Receiver, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver{
		bus:      b,
		channel:  ch,
		handlers: make(map[string]HandlerFunc, len(routes)),
		log:      logger.Named("transport.receiver").With(zap.String("channel", string(ch))),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, route := range routes {
		r.handlers[route.Operation] = route.Handler
	}

	unsubscribe, err := b.Subscribe(RequestTopic(ch), r.onRequest)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe requests: %w", err)
	}
	r.unsubscribe = unsubscribe
	return r, nil
}

func (r *Receiver) Close() {
	r.cancel()
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r *Receiver) onRequest(data []byte) {
	var req DispatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// 页面可以伪造任意帧, 解析失败直接丢弃
		r.log.Debug("无法解析请求帧", zap.Error(err))
		return
	}
	if req.ID == "" {
		return
	}
	go r.handle(req)
}

func (r *Receiver) handle(req DispatchRequest) {
	r.log.Info("收到请求", zap.String("id", req.ID), zap.String("operation", req.Operation))

	result, err := r.invoke(req)

	resp := DispatchResponse{
		ID:          req.ID,
		ChannelName: req.ChannelName,
		Operation:   req.Operation,
		Action:      model.ActionResolve,
	}
	if err != nil {
		resp.Action = model.ActionReject
		code, msg := errno.Decode(err)
		result = &RemoteError{Code: code, Message: msg}
		r.log.Warn("请求处理失败", zap.String("id", req.ID), zap.String("operation", req.Operation), zap.Error(err))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Action = model.ActionReject
		raw, _ = json.Marshal(&RemoteError{Code: errno.InternalServerError.Code, Message: err.Error()})
	}
	resp.Result = raw

	frame, err := json.Marshal(resp)
	if err != nil {
		r.log.Error("编码响应失败", zap.Error(err))
		return
	}
	// 响应发往请求方声明的 channel
	replyTo := req.ChannelName
	if replyTo == "" {
		replyTo = r.channel
	}
	if err := r.bus.Publish(r.ctx, ResponseTopic(replyTo), frame); err != nil {
		r.log.Error("发送响应失败", zap.String("id", req.ID), zap.Error(err))
	}
}

// invoke 调用 handler, panic 视为 reject
func (r *Receiver) invoke(req DispatchRequest) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errno.InternalServerError.WithMessage("handler panic: %v", p)
		}
	}()

	handler, ok := r.handlers[req.Operation]
	if !ok {
		return nil, errno.ErrUnknownOperation.WithMessage("unknown operation %q", req.Operation)
	}
	return handler(r.ctx, req.Args)
}
