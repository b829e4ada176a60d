package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/traderclient/errs"
)

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "localhost:7080", "://x"} {
		_, err := New(raw)
		assert.True(t, errors.Is(err, errs.ErrConstruction), raw)
	}

	c, err := New("http://localhost:7080/trade/api/v1/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7080/trade/api/v1", c.BaseURL())
	assert.Equal(t, "http://localhost:7080/trade/api/v1/buy", c.URL("buy"))
}

func TestClientHeadersAndBody(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		ids []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/buy", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get(HeaderAuthorization))
		assert.Equal(t, "acct", r.Header.Get(HeaderAccount))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		mu.Lock()
		ids = append(ids, r.Header.Get(HeaderRequestID))
		mu.Unlock()

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "002537.XSHE", body["security"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"filled":500}`))
	}))
	defer server.Close()

	c, err := New(server.URL+"/api", WithHeader(HeaderAuthorization, "tok"), WithHeader(HeaderAccount, "acct"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := c.PostJSON(context.Background(), CmdBuy, map[string]any{"security": "002537.XSHE"}, time.Second)
		require.NoError(t, err)
		assert.True(t, res.IsJSON())
		assert.Equal(t, "buy", res.Command)
		assert.Len(t, res.RequestID, 32)
	}

	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
	assert.Regexp(t, `^[0-9a-f]{32}$`, ids[0])
}

func TestClientQueryAndPerRequestHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "alice", r.URL.Query().Get("name"))
		assert.Equal(t, "admin", r.Header.Get(HeaderAuthorization))
		assert.Empty(t, r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.Empty(t, b)

		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("1"))
	}))
	defer server.Close()

	c, err := New(server.URL, WithHeader(HeaderAuthorization, "tok"))
	require.NoError(t, err)

	res, err := c.Do(context.Background(), Request{
		Method:  http.MethodDelete,
		Command: CmdAccounts,
		Query:   url.Values{"name": {"alice"}},
		Header:  http.Header{HeaderAuthorization: {"admin"}},
	})
	require.NoError(t, err)
	assert.Equal(t, PayloadText, res.Kind)
	assert.Equal(t, "1", res.Text())
}

func TestClientTradeErrorCarriesRequestID(t *testing.T) {
	t.Parallel()

	sent := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent <- r.Header.Get(HeaderRequestID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(StatusTradeError)
		w.Write([]byte(`{"error_code":4002,"msg":"below down limit"}`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.PostJSON(context.Background(), CmdSell, map[string]any{}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSellLimit))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, <-sent, e.RequestID)
	assert.Equal(t, "sell", e.Command)
}

func TestClientConnectionFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	c, err := New(base)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), CmdInfo, nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.False(t, errs.IsTimeout(err))
}

func TestClientTimeoutOverride(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	env := func(key string) (string, bool) {
		if key == EnvTimeout {
			return "0.05", true
		}
		return "", false
	}
	c, err := New(server.URL, withLookupEnv(env))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Get(context.Background(), CmdInfo, nil, time.Hour)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	none := func(string) (string, bool) { return "", false }
	set := func(v string) func(string) (string, bool) {
		return func(string) (string, bool) { return v, true }
	}

	tests := []struct {
		name      string
		requested time.Duration
		lookup    func(string) (string, bool)
		want      time.Duration
	}{
		{"floor applies to short timeouts", 500 * time.Millisecond, none, MinTimeout},
		{"zero uses floor", 0, none, MinTimeout},
		{"longer request wins", time.Minute, none, time.Minute},
		{"env wins over longer", time.Minute, set("5"), 5 * time.Second},
		{"env wins over floor", 0, set("2"), 2 * time.Second},
		{"bad env ignored", 0, set("soon"), MinTimeout},
		{"negative env ignored", 0, set("-1"), MinTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, resolveTimeout(tt.requested, tt.lookup))
		})
	}
}
