package model

import (
	"encoding/json"

	"wallet-guard/pkg/crypto_util"
)

type fingerprintInput struct {
	ChainID string          `json:"chainId"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Options Options         `json:"options"`
}

// Fingerprint 判断两次调用是否相同.
// 只包含链, 方法, 参数和来源; 签名者不参与 (bypass 检测时拿不到签名者).
func Fingerprint(args RequestArgs) (string, error) {
	params := args.Params
	if len(params) == 0 {
		params = json.RawMessage("null")
	}
	return crypto_util.HashJSON(fingerprintInput{
		ChainID: args.NormalizedChainID(),
		Method:  args.Method,
		Params:  params,
		Options: args.Options,
	})
}
