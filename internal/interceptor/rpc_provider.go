package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Caller *rpc.Client 的调用面
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCProvider 直接转发给节点 (或钱包) JSON-RPC 端点的 provider, CLI 与测试把它当作被包装的钱包
type RPCProvider struct {
	client Caller
}

func NewRPCProvider(client Caller) *RPCProvider {
	return &RPCProvider{client: client}
}

// DialRPCProvider 连接 http(s) / ws(s) / ipc 端点
func DialRPCProvider(ctx context.Context, rawurl string) (*RPCProvider, func(), error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rawurl, err)
	}
	return NewRPCProvider(client), client.Close, nil
}

func (p *RPCProvider) Request(ctx context.Context, req RPCRequest) (json.RawMessage, error) {
	args, err := positionalParams(req.Params)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, req.Method, args...); err != nil {
		return nil, fromRPCError(err)
	}
	return result, nil
}

func (p *RPCProvider) Send(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return p.Request(ctx, RPCRequest{Method: method, Params: params})
}

func (p *RPCProvider) SendAsync(ctx context.Context, req RPCRequest, cb Callback) {
	go func() {
		result, err := p.Request(ctx, req)
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

// positionalParams 数组形式的 params 原样逐个传递, 对象形式作为单个参数
func positionalParams(params json.RawMessage) ([]interface{}, error) {
	if len(params) == 0 || string(params) == "null" {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(params, &list); err == nil {
		args := make([]interface{}, len(list))
		for i, p := range list {
			args[i] = p
		}
		return args, nil
	}
	if !json.Valid(params) {
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	}
	return []interface{}{params}, nil
}

// fromRPCError 保留节点返回的错误码
func fromRPCError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}
