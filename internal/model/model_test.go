package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/pkg/errno"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func args(method Method, params string) RequestArgs {
	return RequestArgs{ChainID: "0x1", Signer: alice, Method: method, Params: json.RawMessage(params)}
}

func TestResolvePayloadTransaction(t *testing.T) {
	p := ResolvePayload(args(MethodSendTransaction, `[{"from":"`+alice+`","to":"`+bob+`","value":null}]`))
	require.Equal(t, PayloadTransaction, p.Kind)
	assert.Equal(t, "0x0", p.Transaction.Value)
	assert.Equal(t, "0x", p.Transaction.Data)
	assert.Equal(t, bob, p.Transaction.To)

	p = ResolvePayload(args(MethodSendTransaction, `[{"from":"nope"}]`))
	assert.Equal(t, PayloadInvalid, p.Kind)
	assert.NotEmpty(t, p.Reason)

	p = ResolvePayload(args(MethodSendTransaction, `[]`))
	assert.Equal(t, PayloadInvalid, p.Kind)
}

func TestResolvePayloadPersonalSignEitherOrder(t *testing.T) {
	p := ResolvePayload(args(MethodPersonalSign, `["0x68656c6c6f","`+alice+`"]`))
	require.Equal(t, PayloadPersonalMessage, p.Kind)
	assert.Equal(t, "0x68656c6c6f", p.Message)

	p = ResolvePayload(args(MethodPersonalSign, `["`+alice+`","hello"]`))
	require.Equal(t, PayloadPersonalMessage, p.Kind)
	assert.Equal(t, "hello", p.Message)
}

func TestResolvePayloadHash(t *testing.T) {
	p := ResolvePayload(args(MethodEthSign, `["`+alice+`","0xabc"]`))
	require.Equal(t, PayloadHash, p.Kind)
	assert.Equal(t, "0xabc", p.Hash)

	p = ResolvePayload(args(MethodEthSign, `["`+alice+`"]`))
	assert.Equal(t, PayloadInvalid, p.Kind)
}

func TestResolvePayloadTypedData(t *testing.T) {
	typed := `{"domain":{"name":"Seaport","chainId":1},"message":{"offerer":"` + alice + `"},"primaryType":"OrderComponents"}`
	encoded, _ := json.Marshal(typed)

	p := ResolvePayload(args(MethodSignTypedDataV4, `["`+alice+`",`+string(encoded)+`]`))
	require.Equal(t, PayloadTypedData, p.Kind)
	assert.Equal(t, "OrderComponents", p.TypedData.PrimaryType)
	assert.JSONEq(t, `{"name":"Seaport","chainId":1}`, string(p.TypedData.Domain))

	// v3 以对象形式传入
	p = ResolvePayload(args(MethodSignTypedDataV3, `["`+alice+`",`+typed+`]`))
	require.Equal(t, PayloadTypedData, p.Kind)
	assert.Equal(t, "OrderComponents", p.TypedData.PrimaryType)

	// v1: [array, address]
	p = ResolvePayload(args(MethodSignTypedData, `[[{"type":"string","name":"a","value":"b"}],"`+alice+`"]`))
	require.Equal(t, PayloadTypedData, p.Kind)
	assert.JSONEq(t, `[{"type":"string","name":"a","value":"b"}]`, string(p.TypedData.Message))

	p = ResolvePayload(args(MethodSignTypedDataV4, `["`+alice+`","{not json"]`))
	assert.Equal(t, PayloadInvalid, p.Kind)
}

func TestFingerprint(t *testing.T) {
	a := args(MethodPersonalSign, `["hello", "`+alice+`"]`)
	b := a
	b.Signer = ZeroAddress.Hex()
	b.ChainID = "0X1"
	b.Params = json.RawMessage(`["hello","` + alice + `"]`)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb, "签名者与空白不影响指纹")

	// 对象 key 顺序不影响
	c := args(MethodSendTransaction, `[{"to":"`+bob+`","from":"`+alice+`"}]`)
	d := args(MethodSendTransaction, `[{"from":"`+alice+`","to":"`+bob+`"}]`)
	fc, _ := Fingerprint(c)
	fd, _ := Fingerprint(d)
	assert.Equal(t, fc, fd)

	// 来源不同, 指纹不同
	e := a
	e.Options.ViaWebsocket = true
	fe, _ := Fingerprint(e)
	assert.NotEqual(t, fa, fe)

	// 存储往返后不变
	raw, err := json.Marshal(NewPending("id", "example.com", a, ResolvePayload(a), time.Now()))
	require.NoError(t, err)
	rec, err := DecodeRequest(raw)
	require.NoError(t, err)
	fr, err := rec.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fr)
}

func TestRequestTransitions(t *testing.T) {
	now := time.Now()
	a := args(MethodEthSign, `["`+alice+`","0xabc"]`)
	r := NewPending("id-1", "example.com", a, ResolvePayload(a), now)
	assert.True(t, r.NeedsAction())
	assert.False(t, r.IsTerminal())

	r = r.WithResponse(Response{Error: &RequestError{Kind: ErrorNetwork, Message: "offline"}})
	assert.Equal(t, StateActionRequired, r.State)
	assert.True(t, r.NeedsAction())

	rejected := errno.ErrUserRejectedPopup
	r = r.Complete(ActionReject, &rejected, now)
	assert.True(t, r.IsTerminal())
	assert.False(t, r.NeedsAction())
	assert.Equal(t, 4001, r.Result.Code)
	require.NotNil(t, r.CompletedAt)

	rec, err := DecodeRequest(nil)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEnvelope(t *testing.T) {
	raw, err := NewEnvelope(CommandConsume, ConsumeCommand{ID: "x", Fingerprint: "0x01"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, CommandConsume, env.Command)
	assert.JSONEq(t, `{"id":"x","fingerprint":"0x01"}`, string(env.Data))
}
