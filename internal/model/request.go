package model

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Method 被拦截的 RPC 方法
type Method string

const (
	MethodSendTransaction Method = "eth_sendTransaction"
	MethodPersonalSign    Method = "personal_sign"
	MethodEthSign         Method = "eth_sign"
	MethodSignTypedData   Method = "eth_signTypedData"
	MethodSignTypedDataV3 Method = "eth_signTypedData_v3"
	MethodSignTypedDataV4 Method = "eth_signTypedData_v4"
)

// ServerMethods 可以提交给模拟服务的方法集合
var ServerMethods = map[Method]struct{}{
	MethodSendTransaction: {},
	MethodPersonalSign:    {},
	MethodEthSign:         {},
	MethodSignTypedData:   {},
	MethodSignTypedDataV3: {},
	MethodSignTypedDataV4: {},
}

// WatchedMethods provider 上需要拦截的方法
var WatchedMethods = map[Method]struct{}{
	MethodSendTransaction: {},
	MethodPersonalSign:    {},
	MethodEthSign:         {},
	MethodSignTypedDataV3: {},
	MethodSignTypedDataV4: {},
}

func IsWatched(method string) bool {
	_, ok := WatchedMethods[Method(method)]
	return ok
}

func IsServerMethod(method string) bool {
	_, ok := ServerMethods[Method(method)]
	return ok
}

// ZeroAddress bypass 检测时无法得知签名者, 使用零地址占位
var ZeroAddress = common.Address{}

// Options 请求来源
type Options struct {
	// 通过 WebSocket (WalletConnect 之类) 发出, 否则来自注入的 provider
	ViaWebsocket bool `json:"websocket"`
}

// RequestArgs 被拦截调用的参数
type RequestArgs struct {
	ChainID string          `json:"chainId"`
	Signer  string          `json:"signer"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Options Options         `json:"options"`
}

// NormalizedChainID 小写的 0x 十六进制链 ID
func (a RequestArgs) NormalizedChainID() string {
	return strings.ToLower(strings.TrimSpace(a.ChainID))
}

// ParamList 把 params 解析为数组; 对象形式的 params 返回 nil
func (a RequestArgs) ParamList() []json.RawMessage {
	if len(a.Params) == 0 {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(a.Params, &list); err != nil {
		return nil
	}
	return list
}

// Verdict relay 给 interceptor 的裁决
type Verdict string

const (
	VerdictContinue Verdict = "continue"
	VerdictReject   Verdict = "reject"
)

// ErrorReport 页面上报的错误 (替代崩溃上报)
type ErrorReport struct {
	Message string `json:"message" binding:"required"`
	Error   string `json:"error,omitempty"`
}
