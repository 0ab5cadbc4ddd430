// Package interceptor 包装页面的以太坊 provider, 在转发危险调用前等待裁决.
package interceptor

import (
	"context"
	"encoding/json"
)

// RPCRequest EIP-1193 request 参数, 也是 sendAsync 的 JSON-RPC 载荷
type RPCRequest struct {
	ID      json.RawMessage `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError JSON-RPC 错误对象
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// RPCResponse sendAsync 回调收到的响应
type RPCResponse struct {
	ID      json.RawMessage `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Callback sendAsync 的回调, 与 web3 约定一致: (error, response)
type Callback func(err error, resp RPCResponse)

// Provider 页面可见的 provider 调用面
type Provider interface {
	// Request EIP-1193 request({method, params})
	Request(ctx context.Context, req RPCRequest) (json.RawMessage, error)
	// Send 旧版 send(method, params)
	Send(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	// SendAsync 旧版 sendAsync(payload, callback)
	SendAsync(ctx context.Context, req RPCRequest, cb Callback)
}

// Guarded 已包装的 provider 实现该标记接口
type Guarded interface {
	Guarded() bool
}

// Aggregator 聚合多个钱包的 provider (例如同时安装了多个钱包时的 providers 数组)
type Aggregator interface {
	SubProviders() []Slot
}

// IsGuarded 判断 provider 是否已被包装
func IsGuarded(p Provider) bool {
	g, ok := p.(Guarded)
	return ok && g.Guarded()
}
