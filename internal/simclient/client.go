// Package simclient 是远程模拟服务的 HTTP 客户端.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/logger"
)

// ClientIDSource 提供持久化的客户端 ID
type ClientIDSource interface {
	ClientID(ctx context.Context) (string, error)
}

// Client 模拟服务客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	ids        ClientIDSource
	log        *zap.Logger
}

// NewClient creates a new simulation service client
func NewClient(baseURL string, timeout time.Duration, ids ClientIDSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		ids: ids,
		log: logger.Named("simclient"),
	}
}

// simulateRequest POST /simulate
type simulateRequest struct {
	ClientID    string            `json:"clientId"`
	ID          string            `json:"id"`
	Signer      string            `json:"signer"`
	ChainID     string            `json:"chainId"`
	Transaction model.Transaction `json:"transaction"`
}

// signatureRequest POST /signature, 只填充与载荷类型对应的字段
type signatureRequest struct {
	ClientID    string          `json:"clientId"`
	ID          string          `json:"id"`
	Signer      string          `json:"signer"`
	ChainID     string          `json:"chainId"`
	Domain      json.RawMessage `json:"domain,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	Hash        string          `json:"hash,omitempty"`
	SignMessage *string         `json:"signMessage,omitempty"`
}

// simulationResponse 200 时的响应体
type simulationResponse struct {
	Success    bool              `json:"success"`
	Simulation *model.Simulation `json:"simulation"`
	Error      json.RawMessage   `json:"error"`
}

// Simulate 为请求记录调用模拟服务, 结果总是映射为 Response, 不返回 error
func (c *Client) Simulate(ctx context.Context, req model.Request) model.Response {
	path, body, ok := c.buildSimulation(ctx, req)
	if !ok {
		c.log.Warn("[SimClient] 请求参数无法解析",
			zap.String("id", req.ID),
			zap.String("method", string(req.Args.Method)),
			zap.String("reason", req.Payload.Reason))
		return model.Response{Error: &model.RequestError{
			Kind:    model.ErrorUnknown,
			Message: errno.ErrInvalidArgs.Message,
		}}
	}

	status, respBody, err := c.post(ctx, path, body)
	if err != nil {
		c.log.Warn("[SimClient] 请求失败", zap.String("id", req.ID), zap.String("path", path), zap.Error(err))
		return model.Response{Error: &model.RequestError{Kind: model.ErrorNetwork, Message: err.Error()}}
	}

	if status != http.StatusOK {
		msg := serverMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("Code: %d Message: %s", status, http.StatusText(status))
		}
		c.log.Warn("[SimClient] 服务返回错误", zap.String("id", req.ID), zap.Int("status", status), zap.String("message", msg))
		return model.Response{Error: &model.RequestError{Kind: model.ErrorUnknown, Message: msg}}
	}

	var result simulationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return model.Response{Error: &model.RequestError{
			Kind:    model.ErrorNetwork,
			Message: fmt.Sprintf("invalid response body: %v", err),
		}}
	}
	if !result.Success {
		return model.Response{Error: &model.RequestError{Kind: model.ErrorReverted, Message: rawMessage(result.Error)}}
	}
	if result.Simulation == nil {
		result.Simulation = &model.Simulation{}
	}
	return model.Response{Success: result.Simulation}
}

// buildSimulation 根据载荷类型选择接口, Invalid 返回 ok=false
func (c *Client) buildSimulation(ctx context.Context, req model.Request) (string, any, bool) {
	clientID := c.clientID(ctx)
	chainID := req.Args.NormalizedChainID()

	switch req.Payload.Kind {
	case model.PayloadTransaction:
		if req.Payload.Transaction == nil {
			return "", nil, false
		}
		return "/simulate", simulateRequest{
			ClientID:    clientID,
			ID:          req.ID,
			Signer:      req.Args.Signer,
			ChainID:     chainID,
			Transaction: *req.Payload.Transaction,
		}, true
	case model.PayloadTypedData:
		if req.Payload.TypedData == nil {
			return "", nil, false
		}
		return "/signature", signatureRequest{
			ClientID: clientID,
			ID:       req.ID,
			Signer:   req.Args.Signer,
			ChainID:  chainID,
			Domain:   nonEmpty(req.Payload.TypedData.Domain),
			Message:  nonEmpty(req.Payload.TypedData.Message),
		}, true
	case model.PayloadHash:
		return "/signature", signatureRequest{
			ClientID: clientID,
			ID:       req.ID,
			Signer:   req.Args.Signer,
			ChainID:  chainID,
			Hash:     req.Payload.Hash,
		}, true
	case model.PayloadPersonalMessage:
		message := req.Payload.Message
		return "/signature", signatureRequest{
			ClientID:    clientID,
			ID:          req.ID,
			Signer:      req.Args.Signer,
			ChainID:     chainID,
			SignMessage: &message,
		}, true
	default:
		return "", nil, false
	}
}

// BypassRequest POST /bypass
type BypassRequest struct {
	Request       model.RequestArgs `json:"request"`
	Hostname      string            `json:"hostname"`
	ChainID       string            `json:"chainId"`
	ValidRequests []model.Request   `json:"validRequests"`
}

// CheckBypass 询问服务这次绕过是否需要提示用户.
// 200 且响应体为 true 或 {"bypass": true} 视为确认.
func (c *Client) CheckBypass(ctx context.Context, req BypassRequest) (bool, error) {
	if req.ValidRequests == nil {
		req.ValidRequests = []model.Request{}
	}
	body := struct {
		ClientID string `json:"clientId"`
		BypassRequest
	}{ClientID: c.clientID(ctx), BypassRequest: req}

	status, respBody, err := c.post(ctx, "/bypass", body)
	if err != nil {
		return false, fmt.Errorf("bypass request: %w", err)
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("bypass request: unexpected status %d", status)
	}

	var flag bool
	if err := json.Unmarshal(respBody, &flag); err == nil {
		return flag, nil
	}
	var verdict struct {
		Bypass bool `json:"bypass"`
	}
	if err := json.Unmarshal(respBody, &verdict); err != nil {
		return false, fmt.Errorf("decode bypass response: %w", err)
	}
	return verdict.Bypass, nil
}

// Update 更新提示
type Update struct {
	Message string `json:"message"`
	Link    string `json:"link"`
}

// FetchUpdate POST /updates
func (c *Client) FetchUpdate(ctx context.Context, manifestVersion string) (*Update, error) {
	body := map[string]string{
		"clientId":        c.clientID(ctx),
		"manifestVersion": manifestVersion,
	}
	status, respBody, err := c.post(ctx, "/updates", body)
	if err != nil {
		return nil, fmt.Errorf("fetch update: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch update: unexpected status %d", status)
	}

	var update Update
	if err := json.Unmarshal(respBody, &update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return &update, nil
}

func (c *Client) clientID(ctx context.Context) string {
	if c.ids == nil {
		return ""
	}
	id, err := c.ids.ClientID(ctx)
	if err != nil {
		c.log.Warn("[SimClient] 读取 clientId 失败", zap.Error(err))
		return ""
	}
	return id
}

func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// serverMessage 从错误响应中取 message 或 error 字段
func serverMessage(body []byte) string {
	var parsed struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if msg := rawMessage(parsed.Message); msg != "" {
		return msg
	}
	return rawMessage(parsed.Error)
}

// rawMessage 字符串直接返回, 其他 JSON 保留原文
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
