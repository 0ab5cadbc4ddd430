package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PayloadKind 请求载荷的类型标签
type PayloadKind string

const (
	PayloadTransaction     PayloadKind = "transaction"
	PayloadTypedData       PayloadKind = "typed_data"
	PayloadHash            PayloadKind = "hash"
	PayloadPersonalMessage PayloadKind = "personal_message"
	PayloadInvalid         PayloadKind = "invalid"
)

// Transaction eth_sendTransaction 的交易参数
type Transaction struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// TypedData EIP-712 结构化数据
type TypedData struct {
	Domain      json.RawMessage `json:"domain,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	PrimaryType string          `json:"primaryType,omitempty"`
	Types       json.RawMessage `json:"types,omitempty"`
}

// Payload 解析后的请求载荷, 由 relay 解析一次后随记录保存, 之后不再推断
type Payload struct {
	Kind        PayloadKind  `json:"kind"`
	Transaction *Transaction `json:"transaction,omitempty"`
	TypedData   *TypedData   `json:"typedData,omitempty"`
	Hash        string       `json:"hash,omitempty"`
	Message     string       `json:"message,omitempty"`
	// Invalid 时的原因
	Reason string `json:"reason,omitempty"`
}

func invalidPayload(format string, args ...any) Payload {
	return Payload{Kind: PayloadInvalid, Reason: fmt.Sprintf(format, args...)}
}

// ResolvePayload 根据方法解析 params
func ResolvePayload(args RequestArgs) Payload {
	params := args.ParamList()

	switch args.Method {
	case MethodSendTransaction:
		return resolveTransaction(params)
	case MethodPersonalSign:
		return resolvePersonalMessage(params)
	case MethodEthSign:
		return resolveHash(params)
	case MethodSignTypedData, MethodSignTypedDataV3, MethodSignTypedDataV4:
		return resolveTypedData(params)
	default:
		return invalidPayload("unsupported method %q", args.Method)
	}
}

func resolveTransaction(params []json.RawMessage) Payload {
	if len(params) == 0 {
		return invalidPayload("eth_sendTransaction: missing transaction")
	}

	var raw struct {
		From  *string `json:"from"`
		To    *string `json:"to"`
		Data  *string `json:"data"`
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return invalidPayload("eth_sendTransaction: %v", err)
	}
	if raw.From == nil || !common.IsHexAddress(*raw.From) {
		return invalidPayload("eth_sendTransaction: invalid from")
	}
	if raw.To != nil && *raw.To != "" && !common.IsHexAddress(*raw.To) {
		return invalidPayload("eth_sendTransaction: invalid to")
	}

	// null 或缺省字段使用默认值
	tx := Transaction{From: *raw.From, Data: "0x", Value: "0x0"}
	if raw.To != nil {
		tx.To = *raw.To
	}
	if raw.Data != nil && *raw.Data != "" {
		tx.Data = *raw.Data
	}
	if raw.Value != nil && *raw.Value != "" {
		tx.Value = *raw.Value
	}
	return Payload{Kind: PayloadTransaction, Transaction: &tx}
}

// isAddressParam 去掉 0x 后正好 40 个字符即视为地址
func isAddressParam(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return len(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")) == 40
}

func resolvePersonalMessage(params []json.RawMessage) Payload {
	if len(params) == 0 {
		return invalidPayload("personal_sign: missing message")
	}

	// 不同钱包的参数顺序可能是 [message, address] 或 [address, message]
	msgParam := params[0]
	if isAddressParam(params[0]) && len(params) > 1 {
		msgParam = params[1]
	}

	var message string
	if err := json.Unmarshal(msgParam, &message); err != nil {
		return invalidPayload("personal_sign: message is not a string")
	}
	return Payload{Kind: PayloadPersonalMessage, Message: message}
}

func resolveHash(params []json.RawMessage) Payload {
	if len(params) < 2 {
		return invalidPayload("eth_sign: expected [address, hash]")
	}
	var hash string
	if err := json.Unmarshal(params[1], &hash); err != nil {
		return invalidPayload("eth_sign: hash is not a string")
	}
	return Payload{Kind: PayloadHash, Hash: hash}
}

func resolveTypedData(params []json.RawMessage) Payload {
	var dataParam json.RawMessage
	for _, p := range params {
		if !isAddressParam(p) {
			dataParam = p
			break
		}
	}
	if dataParam == nil {
		return invalidPayload("eth_signTypedData: missing typed data")
	}

	// v3 / v4 通常以 JSON 字符串传递
	var encoded string
	if err := json.Unmarshal(dataParam, &encoded); err == nil {
		dataParam = json.RawMessage(encoded)
	}

	trimmed := strings.TrimSpace(string(dataParam))
	if strings.HasPrefix(trimmed, "[") {
		// v1: 字段数组, 整体作为 message
		if !json.Valid(dataParam) {
			return invalidPayload("eth_signTypedData: malformed data")
		}
		return Payload{Kind: PayloadTypedData, TypedData: &TypedData{Message: dataParam}}
	}

	var typed TypedData
	if err := json.Unmarshal(dataParam, &typed); err != nil {
		return invalidPayload("eth_signTypedData: %v", err)
	}
	return Payload{Kind: PayloadTypedData, TypedData: &typed}
}
