package model

import (
	"encoding/json"
	"time"

	"wallet-guard/pkg/errno"
)

// StateKind 请求记录的状态
type StateKind string

const (
	// StatePending 等待模拟结果
	StatePending StateKind = "pending"
	// StateActionRequired 模拟完成 (成功或失败), 等待用户操作
	StateActionRequired StateKind = "action_required"
	// StateCompleted 终态: 用户继续 / 拒绝, 或被强制拒绝
	StateCompleted StateKind = "completed"
)

// Action Completed 记录上的裁决
type Action string

const (
	ActionResolve Action = "resolve"
	ActionReject  Action = "reject"
)

// ErrorKind 模拟失败的分类
type ErrorKind string

const (
	// ErrorNetwork 请求未能送达模拟服务
	ErrorNetwork ErrorKind = "network_error"
	// ErrorUnknown 服务返回错误, 或参数无法解析
	ErrorUnknown ErrorKind = "unknown_error"
	// ErrorReverted 服务报告交易将会 revert
	ErrorReverted ErrorKind = "reverted"
)

// RequestError ActionRequired 的失败结果
type RequestError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

// Response ActionRequired 的结果, Success 与 Error 只有一个非空
type Response struct {
	Success *Simulation   `json:"success,omitempty"`
	Error   *RequestError `json:"error,omitempty"`
}

// Request 存储中唯一的当前请求记录
type Request struct {
	ID       string      `json:"id"`
	Hostname string      `json:"hostname"`
	Args     RequestArgs `json:"request"`
	Payload  Payload     `json:"payload"`
	Date     time.Time   `json:"date"`
	State    StateKind   `json:"state"`

	// ActionRequired
	Response *Response `json:"response,omitempty"`

	// Completed
	Action Action       `json:"action,omitempty"`
	Result *errno.Errno `json:"result,omitempty"`
	// 完成时间, janitor 据此清理
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewPending 构造一条 Pending 记录
func NewPending(id, hostname string, args RequestArgs, payload Payload, now time.Time) Request {
	return Request{
		ID:       id,
		Hostname: hostname,
		Args:     args,
		Payload:  payload,
		Date:     now,
		State:    StatePending,
	}
}

// IsTerminal 是否已完成
func (r Request) IsTerminal() bool {
	return r.State == StateCompleted
}

// NeedsAction 是否需要弹窗: 非终态的记录都需要
func (r Request) NeedsAction() bool {
	return r.State == StatePending || r.State == StateActionRequired
}

// WithResponse Pending -> ActionRequired
func (r Request) WithResponse(resp Response) Request {
	r.State = StateActionRequired
	r.Response = &resp
	return r
}

// Complete 任意非终态 -> Completed. result 为 nil 表示透传
func (r Request) Complete(action Action, result *errno.Errno, now time.Time) Request {
	r.State = StateCompleted
	r.Action = action
	r.Result = result
	r.CompletedAt = &now
	return r
}

// Fingerprint 参数指纹, 忽略签名者
func (r Request) Fingerprint() (string, error) {
	return Fingerprint(r.Args)
}

// DecodeRequest 解析存储中的记录; raw 为空返回 nil
func DecodeRequest(raw json.RawMessage) (*Request, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
