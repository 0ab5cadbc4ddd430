package crypto_util

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// Keccak256 以太坊使用的哈希算法, 多段输入按顺序拼接
func Keccak256(data ...[]byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hash.Write(d)
	}
	return hash.Sum(nil)
}

// CalculateKeccak256 返回 0x 前缀的 hex
func CalculateKeccak256(data []byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data))
}

// CanonicalJSON 把任意可 JSON 编码的值转换为规范形式:
// 对象 key 排序, 无多余空白, 数字保持原始文本 (不经过 float64).
// 同一逻辑值无论经过多少次编解码, 结果字节相同.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HashJSON 规范化后计算 Keccak256
func HashJSON(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return CalculateKeccak256(canonical), nil
}
