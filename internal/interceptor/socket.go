package interceptor

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
)

// Session 远程钱包会话 (WalletConnect 之类) 的链与账户
type Session struct {
	ChainID  string   `json:"chainId"`
	Accounts []string `json:"accounts"`
}

// SessionSource 返回当前会话, 未连接时 ok 为 false
type SessionSource interface {
	Session() (Session, bool)
}

// SocketGuard 检查经 WebSocket 发给远程钱包的 JSON-RPC 帧.
// 任何解析失败都直接放行, 不能影响页面正常工作.
type SocketGuard struct {
	guard   *Guard
	session SessionSource
}

func NewSocketGuard(guard *Guard, session SessionSource) *SocketGuard {
	return &SocketGuard{guard: guard, session: session}
}

// Outgoing 处理一个待发送的帧.
// forward 为 true 时原样发送; 否则把 reply 作为钱包的响应交给页面的消息监听者.
func (s *SocketGuard) Outgoing(ctx context.Context, frame []byte) (forward bool, reply []byte) {
	session, ok := s.session.Session()
	if !ok || session.ChainID == "" || len(session.Accounts) == 0 {
		return true, nil
	}

	var req RPCRequest
	if err := json.Unmarshal(frame, &req); err != nil || len(req.ID) == 0 || req.Method == "" {
		return true, nil
	}
	if !model.IsServerMethod(req.Method) {
		return true, nil
	}

	session.ChainID = normalizeChainID(session.ChainID)
	err := s.guard.gate(ctx, nil, req.Method, req.Params, model.Options{ViaWebsocket: true}, &session)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, nil
	}

	s.guard.log.Debug("[Interceptor] WebSocket 请求被拒绝", zap.String("method", req.Method))
	reply, mErr := json.Marshal(RPCResponse{
		ID:      req.ID,
		JSONRPC: "2.0",
		Error:   &RPCError{Code: errno.ErrRejectedBySocket.Code, Message: errno.ErrRejectedBySocket.Message},
	})
	if mErr != nil {
		return true, nil
	}
	return false, reply
}

// normalizeChainID 会话里的链 ID 可能是十进制, 统一为 0x 十六进制
func normalizeChainID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		return strings.ToLower(id)
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return id
	}
	return hexutil.EncodeUint64(n)
}
