package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/errs"
	"github.com/rustyeddy/traderclient/pkg/id"
)

// Header names sent with every call.
const (
	HeaderRequestID     = "Request-ID"
	HeaderAuthorization = "Authorization"
	HeaderAccount       = "Account"
)

// Request describes one round trip. Command is joined to the base URL as a
// path segment.
type Request struct {
	Method  string
	Command string
	Query   url.Values
	Body    any
	Header  http.Header
	// Timeout is the caller's budget for the call. The effective deadline is
	// resolved with ResolveTimeout.
	Timeout time.Duration
}

// Client issues requests against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	normalizer *Normalizer
	logger     *zap.Logger
	lookupEnv  func(string) (string, bool)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for requests and error classification.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithAcceptAny2xx treats every 2xx status as success instead of only 200/201/204.
func WithAcceptAny2xx() Option {
	return func(c *Client) { c.normalizer.Accept = Any2xx }
}

func withLookupEnv(fn func(string) (string, bool)) Option {
	return func(c *Client) { c.lookupEnv = fn }
}

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.New(errs.KindConstruction,
			errs.WithMessage("invalid server url "+baseURL),
			errs.WithCause(err))
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{},
		header:     http.Header{},
		normalizer: &Normalizer{},
		logger:     zap.NewNop(),
		lookupEnv:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.normalizer.Logger = c.logger
	return c, nil
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// URL returns the endpoint for cmd.
func (c *Client) URL(cmd string) string {
	return c.baseURL + "/" + strings.TrimLeft(cmd, "/")
}

// Get issues a GET for cmd.
func (c *Client) Get(ctx context.Context, cmd string, query url.Values, timeout time.Duration) (*Result, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Command: cmd, Query: query, Timeout: timeout})
}

// PostJSON issues a POST with body encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, cmd string, body any, timeout time.Duration) (*Result, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Command: cmd, Body: body, Timeout: timeout})
}

// Delete issues a DELETE for cmd.
func (c *Client) Delete(ctx context.Context, cmd string, query url.Values, timeout time.Duration) (*Result, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Command: cmd, Query: query, Timeout: timeout})
}

// Do performs req and normalizes the response. Every call carries a fresh
// Request-ID. No retries are made.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	requestID := id.Request()
	cmd := CommandFromPath(req.Command)

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errs.New(errs.KindPrecondition,
				errs.WithCommand(cmd),
				errs.WithRequestID(requestID),
				errs.WithMessage("encode request body"),
				errs.WithCause(err))
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.URL(req.Command)
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	timeout := resolveTimeout(req.Timeout, c.lookupEnv)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, errs.New(errs.KindTransport,
			errs.WithCommand(cmd),
			errs.WithRequestID(requestID),
			errs.WithMessage("create request"),
			errs.WithCause(err))
	}

	for k, vals := range c.header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vals := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(HeaderRequestID, requestID)

	c.logger.Debug("request",
		zap.String("method", req.Method),
		zap.String("command", cmd),
		zap.String("request_id", requestID),
		zap.Duration("timeout", timeout),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("command", cmd),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, errs.New(errs.KindTransport,
			errs.WithCommand(cmd),
			errs.WithRequestID(requestID),
			errs.WithMessage("execute request"),
			errs.WithCause(err))
	}
	return c.normalizer.Normalize(resp, cmd)
}
