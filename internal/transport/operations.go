package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
)

// Operation 带类型的操作, 参数和返回值类型在编译期确定
type Operation[Req, Resp any] struct {
	Name string
}

// 操作目录
var (
	// Simulate 注入脚本请求对一次调用做出裁决
	Simulate = Operation[model.RequestArgs, model.Verdict]{Name: "simulateRequest"}
	// ReportError 注入脚本上报错误
	ReportError = Operation[model.ErrorReport, Ack]{Name: "reportError"}
	// Health 连通性检查
	Health = Operation[string, string]{Name: "health"}
)

// Ack 无返回值操作的确认
type Ack struct {
	OK bool `json:"ok"`
}

// Call 通过 Sender 调用 op
func Call[Req, Resp any](ctx context.Context, s *Sender, op Operation[Req, Resp], req Req) (Resp, error) {
	var resp Resp
	raw, err := s.Send(ctx, op.Name, req)
	if err != nil {
		return resp, err
	}
	if len(raw) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("decode %s result: %w", op.Name, err)
	}
	return resp, nil
}

// Handle 把类型化的处理函数绑定为 Route
func Handle[Req, Resp any](op Operation[Req, Resp], fn func(ctx context.Context, req Req) (Resp, error)) Route {
	return Route{
		Operation: op.Name,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var req Req
			if len(args) > 0 {
				if err := json.Unmarshal(args, &req); err != nil {
					return nil, errno.ErrBind.WithMessage("decode %s args: %v", op.Name, err)
				}
			}
			return fn(ctx, req)
		},
	}
}

// Client 注入脚本一侧的类型化客户端
type Client struct {
	sender *Sender
}

func NewClient(s *Sender) *Client {
	return &Client{sender: s}
}

func (c *Client) Simulate(ctx context.Context, args model.RequestArgs) (model.Verdict, error) {
	return Call(ctx, c.sender, Simulate, args)
}

func (c *Client) ReportError(ctx context.Context, report model.ErrorReport) error {
	_, err := Call(ctx, c.sender, ReportError, report)
	return err
}

func (c *Client) Health(ctx context.Context, name string) (string, error) {
	return Call(ctx, c.sender, Health, name)
}
