package model

import "encoding/json"

// Command relay -> coordinator 运行时消息的命令名
type Command string

const (
	CommandRequest     Command = "request"
	CommandBypassCheck Command = "bypassCheck"
	CommandConsume     Command = "consume"
	CommandReportError Command = "reportError"
)

// Envelope 运行时消息外层结构
type Envelope struct {
	Command Command         `json:"command"`
	Data    json.RawMessage `json:"data"`
}

func NewEnvelope(cmd Command, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Command: cmd, Data: raw})
}

// RequestCommand 需要弹窗的请求, ID 由 relay 分配
type RequestCommand struct {
	ID       string      `json:"id"`
	Hostname string      `json:"hostname"`
	Args     RequestArgs `json:"args"`
	Payload  Payload     `json:"payload"`
}

// BypassCommand 页面绕过拦截直接发给钱包的调用
type BypassCommand struct {
	Hostname string      `json:"hostname"`
	Request  RequestArgs `json:"request"`
}

// ConsumeCommand 已批准的记录被钱包消费, 需要清除以防重放
type ConsumeCommand struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
}

// ReportErrorCommand 页面上报的错误, 附带来源 hostname
type ReportErrorCommand struct {
	Hostname string `json:"hostname"`
	ErrorReport
}
