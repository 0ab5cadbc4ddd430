package crypto_util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashes(t *testing.T) {
	input := []byte("hello world")

	// keccak256("") 是以太坊里常见的常量
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", CalculateKeccak256(nil))

	keccakHash := CalculateKeccak256(input)
	if len(keccakHash) != 66 {
		t.Errorf("Keccak256 哈希长度不匹配: 得到 %d, 期望 66", len(keccakHash))
	}
	assert.Equal(t, Keccak256([]byte("hello "), []byte("world")), Keccak256(input))
}

func TestCanonicalJSON(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", map[string]any{"z": true, "y": nil}}}
	out, err := CanonicalJSON(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",{"y":null,"z":true}],"b":1}`, string(out))

	// 大整数不能经过 float64 丢失精度
	raw := json.RawMessage(`{"value":123456789012345678901234567890}`)
	out, err = CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"value":123456789012345678901234567890}`, string(out))
}

func TestHashJSONStableAcrossRoundTrips(t *testing.T) {
	v := map[string]any{"method": "personal_sign", "params": []any{"0xdead", "0xbeef"}, "n": 1.5}
	h1, err := HashJSON(v)
	require.NoError(t, err)

	raw, _ := json.Marshal(v)
	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	h2, err := HashJSON(back)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}
