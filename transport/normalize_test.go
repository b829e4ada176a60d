package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/traderclient/errs"
)

func response(status int, contentType, body string) *http.Response {
	req, _ := http.NewRequest(http.MethodPost, "http://trader.local/api/v1/sell", nil)
	req.Header.Set(HeaderRequestID, "abc123")
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func TestNormalizeSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		kind        PayloadKind
	}{
		{"json object", 200, "application/json", `{"a":1}`, PayloadJSON},
		{"json with charset", 201, "application/json; charset=utf-8", `[1,2]`, PayloadJSON},
		{"text", 200, "text/plain", "ok", PayloadText},
		{"html", 200, "text/html; charset=utf-8", "<p>ok</p>", PayloadText},
		{"binary", 200, "application/octet-stream", "\x00\x01", PayloadBinary},
		{"no content", 204, "application/json", "", PayloadEmpty},
		{"empty unknown", 200, "", "", PayloadEmpty},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var n Normalizer
			res, err := n.Normalize(response(tt.status, tt.contentType, tt.body), "")
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, "sell", res.Command)
			assert.Equal(t, "abc123", res.RequestID)
			if tt.kind != PayloadEmpty {
				assert.Equal(t, tt.body, res.Text())
			}
		})
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "{not json", "[1,"} {
		var n Normalizer
		_, err := n.Normalize(response(200, "application/json", body), "info")
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, errs.ErrDecode), body)
		assert.False(t, errors.Is(err, errs.ErrTransport), body)
	}
}

func TestNormalizeTradeErrorJSON(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	n := Normalizer{Logger: zap.New(core)}

	body := `{"error_code": 4004, "msg": "cannot sell X, reason\nstack trace"}`
	_, err := n.Normalize(response(499, "application/json", body), "sell")
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindTrade, e.Kind)
	assert.Equal(t, 4004, e.Code)
	assert.Equal(t, "cannot sell X, reason", e.Message)
	assert.Equal(t, 499, e.HTTPStatus)
	assert.Equal(t, "abc123", e.RequestID)
	assert.True(t, errors.Is(err, errs.ErrTrade))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "abc123", fields["request_id"])
	assert.Equal(t, "sell", fields["command"])
	assert.Equal(t, "sell", fields["label"])
	assert.EqualValues(t, 4004, fields["code"])
}

func TestNormalizeLogsCommandLabel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	n := Normalizer{Logger: zap.New(core)}

	_, err := n.Normalize(response(502, "text/plain", "bad gateway"), CmdTradesInRange)
	require.Error(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "get trades in range", logs.All()[0].ContextMap()["label"])
}

func TestNormalizeRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	n := Normalizer{MaxBody: 8}
	for _, tt := range []struct {
		contentType string
		body        string
	}{
		{"text/plain", "0123456789"},
		{"application/octet-stream", "\x00\x01\x02\x03\x04\x05\x06\x07\x08"},
		{"application/json", `{"a":12345}`},
	} {
		_, err := n.Normalize(response(200, tt.contentType, tt.body), "bills")
		require.Error(t, err, tt.contentType)
		assert.True(t, errors.Is(err, errs.ErrTransport), tt.contentType)
		assert.Contains(t, err.Error(), "exceeds 8 bytes")
	}

	res, err := n.Normalize(response(200, "text/plain", "01234567"), "bills")
	require.NoError(t, err)
	assert.Equal(t, "01234567", res.Text())
}

func TestNormalizeTradeErrorVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
		msg         string
		kind        errs.Kind
	}{
		{
			name:        "text body verbatim",
			contentType: "text/plain",
			body:        "cannot sell X, reason",
			code:        499,
			msg:         "cannot sell X, reason",
			kind:        errs.KindTrade,
		},
		{
			name:        "text keeps newlines",
			contentType: "text/plain; charset=utf-8",
			body:        "line one\nline two",
			code:        499,
			msg:         "line one\nline two",
			kind:        errs.KindTrade,
		},
		{
			name:        "code field",
			contentType: "application/json",
			body:        `{"code": 4001, "msg": "price above up-limit"}`,
			code:        4001,
			msg:         "price above up-limit",
			kind:        errs.KindBuyLimit,
		},
		{
			name:        "sell limit",
			contentType: "application/json",
			body:        `{"error_code": 4002, "msg": "price below down-limit"}`,
			code:        4002,
			msg:         "price below down-limit",
			kind:        errs.KindSellLimit,
		},
		{
			name:        "stack appended",
			contentType: "application/json",
			body:        `{"error_code": 4005, "msg": "bad order", "stack": "ValueError: volume\n  at line 3"}`,
			code:        4005,
			msg:         "bad order: ValueError: volume",
			kind:        errs.KindTrade,
		},
		{
			name:        "no code falls back to status",
			contentType: "application/json",
			body:        `{"msg": "rejected"}`,
			code:        499,
			msg:         "rejected",
			kind:        errs.KindTrade,
		},
		{
			name:        "declared json but not json",
			contentType: "application/json",
			body:        "plain reason",
			code:        499,
			msg:         "plain reason",
			kind:        errs.KindTrade,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var n Normalizer
			_, err := n.Normalize(response(499, tt.contentType, tt.body), "")

			var e *errs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.msg, e.Message)
			assert.True(t, errors.Is(err, errs.ErrTrade))
		})
	}
}

func TestNormalizeTransportError(t *testing.T) {
	t.Parallel()

	for _, status := range []int{400, 404, 500, 502} {
		var n Normalizer
		_, err := n.Normalize(response(status, "text/plain", "nope"), "")

		var e *errs.Error
		require.True(t, errors.As(err, &e), status)
		assert.Equal(t, errs.KindTransport, e.Kind, status)
		assert.Equal(t, status, e.HTTPStatus)
		assert.Equal(t, "nope", e.Body)
		assert.False(t, errors.Is(err, errs.ErrTrade))
		_, hasCode := errs.CodeOf(err)
		assert.False(t, hasCode)
	}
}

func TestNormalizeAcceptPolicy(t *testing.T) {
	t.Parallel()

	var strict Normalizer
	_, err := strict.Normalize(response(202, "application/json", `{}`), "")
	assert.True(t, errors.Is(err, errs.ErrTransport))

	loose := Normalizer{Accept: Any2xx}
	res, err := loose.Normalize(response(202, "application/json", `{}`), "")
	require.NoError(t, err)
	assert.True(t, res.IsJSON())
}

func TestResultDecode(t *testing.T) {
	t.Parallel()

	var n Normalizer
	res, err := n.Normalize(response(200, "application/json", `{"a":1}`), "")
	require.NoError(t, err)

	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, 1, v.A)

	var wrong struct {
		A string `json:"a"`
	}
	assert.True(t, errors.Is(res.Decode(&wrong), errs.ErrDecode))

	text, err := n.Normalize(response(200, "text/plain", "hi"), "")
	require.NoError(t, err)
	assert.True(t, errors.Is(text.Decode(&v), errs.ErrDecode))

	empty, err := n.Normalize(response(204, "", ""), "")
	require.NoError(t, err)
	assert.NoError(t, empty.Decode(&v))
}

func TestCommandFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "buy", CommandFromPath("/trade/api/v1/buy"))
	assert.Equal(t, "info", CommandFromPath("/info/"))
	assert.Equal(t, "metrics", CommandFromPath("metrics"))
	assert.Equal(t, "buy", Label(CmdBuy))
	assert.Equal(t, "unknown command", Label("nope"))
}
