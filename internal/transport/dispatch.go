// Package transport 在页面事件总线上实现请求/响应关联.
//
// 总线本身只有广播: Sender 为每次调用分配 uuid 并登记等待表,
// Receiver 处理后按同一 id 回发响应. 迟到, 重复, 未知 id 的响应直接忽略.
package transport

import (
	"encoding/json"
	"fmt"

	"wallet-guard/internal/model"
)

// Channel 请求的处理方
type Channel string

const (
	// ToContent 注入脚本 -> content script (relay)
	ToContent Channel = "to_content"
	// ToInjected content script -> 注入脚本
	ToInjected Channel = "to_injected"
)

func RequestTopic(ch Channel) string {
	return "guard.dispatch.request." + string(ch)
}

func ResponseTopic(ch Channel) string {
	return "guard.dispatch.response." + string(ch)
}

// DispatchRequest 请求帧
type DispatchRequest struct {
	ID          string          `json:"id"`
	ChannelName Channel         `json:"channelName"`
	Operation   string          `json:"operation"`
	Args        json.RawMessage `json:"args,omitempty"`
}

// DispatchResponse 响应帧, Action 为 reject 时 Result 是 RemoteError
type DispatchResponse struct {
	ID          string          `json:"id"`
	ChannelName Channel         `json:"channelName"`
	Operation   string          `json:"operation"`
	Action      model.Action    `json:"action"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// RemoteError 对端 handler 返回的错误
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
