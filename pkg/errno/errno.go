package errno

import (
	"errors"
	"fmt"
)

// Errno defines the error code logic
type Errno struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 复制一份错误并替换 Message, Code 不变
func (e Errno) WithMessage(format string, args ...any) Errno {
	return Errno{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Is 只比较 Code, 因此 errors.Is(err, ErrUserRejected) 对 WithMessage 的副本同样成立
func (e Errno) Is(target error) bool {
	var t Errno
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrStore            = Errno{Code: 10004, Message: "Store error"}
	ErrTransport        = Errno{Code: 10005, Message: "Transport error"}
)

// Provider errors (EIP-1193 / EIP-1474), 返回给页面
var (
	ErrUserRejected      = Errno{Code: 4001, Message: "User rejected the request."}
	ErrUserRejectedTx    = Errno{Code: 4001, Message: "Tx Signature: User denied transaction signature."}
	ErrUserRejectedPopup = Errno{Code: 4001, Message: "User denied request."}
	ErrInternalRPC       = Errno{Code: -32603, Message: "Internal JSON-RPC error."}
	ErrRejectedBySocket  = Errno{Code: -32000, Message: "Rejected in wallet guard"}
)

// Business Errors (20000+)
var (
	ErrRequestNotFound  = Errno{Code: 20101, Message: "Request not found"}
	ErrStaleRequest     = Errno{Code: 20102, Message: "Request is stale"}
	ErrAlreadyCompleted = Errno{Code: 20103, Message: "Request already completed"}
	ErrInvalidArgs      = Errno{Code: 20104, Message: "Failed to parse request args"}
	ErrUnknownOperation = Errno{Code: 20201, Message: "Unknown operation"}
	ErrWindowNotFound   = Errno{Code: 20301, Message: "Window not found"}
	ErrRateLimited      = Errno{Code: 20401, Message: "Too many bypass checks"}
)
