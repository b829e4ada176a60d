package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/traderclient/errs"
)

func jsonResult(body string) *Result {
	return &Result{Kind: PayloadJSON, Status: 200, Body: []byte(body), Command: "info"}
}

func TestParseWireMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]WireMode{"": WireAuto, "auto": WireAuto, "Direct": WireDirect, " envelope ": WireEnvelope} {
		got, err := ParseWireMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWireMode("soap")
	assert.Error(t, err)
}

func TestUnwrapEnvelope(t *testing.T) {
	t.Parallel()

	data, mode, err := Unwrap(jsonResult(`{"status":0,"msg":"ok","data":{"available":100}}`), WireEnvelope)
	require.NoError(t, err)
	assert.Equal(t, WireEnvelope, mode)
	assert.JSONEq(t, `{"available":100}`, string(data))

	data, _, err = Unwrap(jsonResult(`{"status":0,"msg":"ok"}`), WireEnvelope)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	_, _, err = Unwrap(jsonResult(`{"status":4001,"msg":"up limit\ndetail","data":"more\ninfo"}`), WireEnvelope)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindBuyLimit, e.Kind)
	assert.Equal(t, 4001, e.Code)
	assert.Equal(t, "up limit: more", e.Message)
	assert.True(t, errors.Is(err, errs.ErrTrade))

	_, _, err = Unwrap(jsonResult(`[1,2,3]`), WireEnvelope)
	assert.True(t, errors.Is(err, errs.ErrDecode))
}

func TestUnwrapAutoDetect(t *testing.T) {
	t.Parallel()

	data, mode, err := Unwrap(jsonResult(`{"status":0,"msg":"ok","data":[1]}`), WireAuto)
	require.NoError(t, err)
	assert.Equal(t, WireEnvelope, mode)
	assert.Equal(t, "[1]", string(data))

	// Fill records carry a status but no msg.
	data, mode, err = Unwrap(jsonResult(`{"status":3,"security":"X"}`), WireAuto)
	require.NoError(t, err)
	assert.Equal(t, WireDirect, mode)
	assert.JSONEq(t, `{"status":3,"security":"X"}`, string(data))

	data, mode, err = Unwrap(jsonResult(`[{"a":1}]`), WireAuto)
	require.NoError(t, err)
	assert.Equal(t, WireAuto, mode)
	assert.Equal(t, `[{"a":1}]`, string(data))

	data, mode, err = Unwrap(&Result{Kind: PayloadText, Body: []byte("hello")}, WireEnvelope)
	require.NoError(t, err)
	assert.Equal(t, WireEnvelope, mode)
	assert.Equal(t, "hello", string(data))
}

func TestDataField(t *testing.T) {
	t.Parallel()

	assert.JSONEq(t, `{"sharpe":1}`, string(DataField([]byte(`{"status":0,"data":{"sharpe":1}}`))))
	assert.JSONEq(t, `{"sharpe":1}`, string(DataField([]byte(`{"sharpe":1}`))))
	assert.Equal(t, `[1]`, string(DataField([]byte(`[1]`))))
}
