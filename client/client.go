// Package client is the trading facade: one Client per account session,
// one method per server operation.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/errs"
	"github.com/rustyeddy/traderclient/transport"
)

// Backtest defaults.
var (
	DefaultPrincipal  = decimal.NewFromInt(1_000_000)
	DefaultCommission = 1.5e-4
)

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateActive
	// StateFrozen follows stop_backtest. Calls are still forwarded.
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFrozen:
		return "frozen"
	default:
		return "uninitialized"
	}
}

// BacktestParams configures the account created for a backtest session.
// Start and End are required unless Attach is set, in which case the account
// is assumed to exist and nothing is created.
type BacktestParams struct {
	Principal  decimal.Decimal
	Commission float64
	Start      time.Time
	End        time.Time
	Attach     bool
}

// Recorder receives every fill returned by a successful order call.
type Recorder interface {
	RecordFill(ctx context.Context, account string, f broker.Fill) error
}

// Client is bound to one account. It is safe for concurrent use, but the
// server ledger is the only authority on ordering between calls.
type Client struct {
	account  string
	token    string
	backtest *BacktestParams

	tr       *transport.Client
	logger   *zap.Logger
	recorder Recorder

	mu        sync.Mutex
	wire      transport.WireMode
	state     State
	dirty     bool
	cached    bool
	mutations uint64
	available decimal.Decimal
	principal decimal.Decimal
}

var _ broker.Broker = (*Client)(nil)

type options struct {
	httpClient *http.Client
	logger     *zap.Logger
	wire       transport.WireMode
	backtest   *BacktestParams
	recorder   Recorder
	any2xx     bool
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the http.Client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWireMode pins the response layout instead of detecting it.
func WithWireMode(m transport.WireMode) Option {
	return func(o *options) { o.wire = m }
}

// WithBacktest makes the session a backtest session. New creates the account
// on the server unless p.Attach is set.
func WithBacktest(p BacktestParams) Option {
	return func(o *options) { o.backtest = &p }
}

// WithRecorder hands fills to r. Recording failures are logged only.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithAcceptAny2xx treats every 2xx status as success.
func WithAcceptAny2xx() Option {
	return func(o *options) { o.any2xx = true }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func newTransport(baseURL string, o options, headers map[string]string) (*transport.Client, error) {
	topts := []transport.Option{
		transport.WithHTTPClient(o.httpClient),
		transport.WithLogger(o.logger),
	}
	if o.any2xx {
		topts = append(topts, transport.WithAcceptAny2xx())
	}
	for k, v := range headers {
		topts = append(topts, transport.WithHeader(k, v))
	}
	return transport.New(baseURL, topts...)
}

// New connects a session for account. With WithBacktest it synchronously
// creates the backtest account, unless attaching, and fails with a
// construction error if the server does not accept it.
func New(ctx context.Context, baseURL, account, token string, opts ...Option) (*Client, error) {
	account = strings.TrimSpace(account)
	token = strings.TrimSpace(token)
	if account == "" || token == "" {
		return nil, errs.Precondition("account and token are required")
	}

	o := buildOptions(opts)
	tr, err := newTransport(baseURL, o, map[string]string{
		transport.HeaderAuthorization: token,
		transport.HeaderAccount:       account,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		account:  account,
		token:    token,
		tr:       tr,
		logger:   o.logger.With(zap.String("account", account)),
		recorder: o.recorder,
		wire:     o.wire,
		state:    StateUninitialized,
	}

	if o.backtest != nil {
		p := *o.backtest
		if p.Principal.IsZero() {
			p.Principal = DefaultPrincipal
		}
		if p.Commission == 0 {
			p.Commission = DefaultCommission
		}
		c.backtest = &p
		if !p.Attach {
			if err := c.startBacktest(ctx); err != nil {
				return nil, err
			}
		}
	}

	c.state = StateActive
	return c, nil
}

func (c *Client) startBacktest(ctx context.Context) error {
	p := c.backtest
	if p.Start.IsZero() || p.End.IsZero() {
		return errs.New(errs.KindConstruction,
			errs.WithCommand(transport.CmdStartBacktest),
			errs.WithMessage("backtest requires start and end dates"))
	}
	if p.Start.After(p.End) {
		return errs.New(errs.KindConstruction,
			errs.WithCommand(transport.CmdStartBacktest),
			errs.WithMessage("backtest start is after end"))
	}

	body := map[string]any{
		"name":       c.account,
		"token":      c.token,
		"principal":  p.Principal.InexactFloat64(),
		"commission": p.Commission,
		"start":      broker.FormatDate(p.Start),
		"end":        broker.FormatDate(p.End),
	}
	if _, _, err := c.roundTrip(ctx, transport.Request{
		Method:  http.MethodPost,
		Command: transport.CmdStartBacktest,
		Body:    body,
	}); err != nil {
		c.logger.Error("failed to create backtest account", zap.Error(err))
		return errs.New(errs.KindConstruction,
			errs.WithCommand(transport.CmdStartBacktest),
			errs.WithMessage("failed to create backtest account"),
			errs.WithCause(err))
	}

	c.logger.Info("backtest account created",
		zap.String("start", broker.FormatDate(p.Start)),
		zap.String("end", broker.FormatDate(p.End)),
		zap.String("principal", p.Principal.String()),
	)
	return nil
}

// Account returns the account name.
func (c *Client) Account() string { return c.account }

// IsBacktest reports whether the session runs against a backtest account.
func (c *Client) IsBacktest() bool { return c.backtest != nil }

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WireMode returns the response layout in use. It is WireAuto until the
// first JSON object has been received.
func (c *Client) WireMode() transport.WireMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wire
}

// roundTrip performs req and returns the unwrapped payload.
func (c *Client) roundTrip(ctx context.Context, req transport.Request) (*transport.Result, []byte, error) {
	res, err := c.tr.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	mode := c.wire
	c.mu.Unlock()

	payload, detected, err := transport.Unwrap(res, mode)
	if mode == transport.WireAuto && detected != transport.WireAuto {
		c.mu.Lock()
		if c.wire == transport.WireAuto {
			c.wire = detected
			c.logger.Debug("wire mode detected", zap.Stringer("wire", detected))
		}
		c.mu.Unlock()
	}
	if err != nil {
		code, _ := errs.CodeOf(err)
		c.logger.Warn("request rejected",
			zap.String("request_id", res.RequestID),
			zap.String("command", res.Command),
			zap.Int("code", code),
			zap.Error(err),
		)
		return res, nil, err
	}
	return res, payload, nil
}

// call performs req and decodes the payload into out when out is not nil.
func (c *Client) call(ctx context.Context, req transport.Request, out any) error {
	res, payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || res.Kind == transport.PayloadEmpty {
		return nil
	}
	if res.Kind != transport.PayloadJSON {
		return errs.New(errs.KindDecode,
			errs.WithCommand(res.Command),
			errs.WithRequestID(res.RequestID),
			errs.WithMessage("expected json payload, got "+res.Kind.String()))
	}
	return transport.DecodeJSON(payload, out, res.Command, res.RequestID)
}

func (c *Client) get(ctx context.Context, cmd string, query map[string]string, out any) error {
	return c.call(ctx, transport.Request{Method: http.MethodGet, Command: cmd, Query: toValues(query)}, out)
}

func (c *Client) post(ctx context.Context, cmd string, body map[string]any, timeout time.Duration, out any) error {
	req := transport.Request{Method: http.MethodPost, Command: cmd, Timeout: timeout}
	if body != nil {
		req.Body = body
	}
	return c.call(ctx, req, out)
}

// toValues drops empty parameters.
func toValues(m map[string]string) url.Values {
	if len(m) == 0 {
		return nil
	}
	v := url.Values{}
	for k, val := range m {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// markDirty invalidates every cached value after a mutating call.
func (c *Client) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mutations++
	c.mu.Unlock()
}

func (c *Client) record(ctx context.Context, fills ...broker.Fill) {
	if c.recorder == nil {
		return
	}
	for _, f := range fills {
		if err := c.recorder.RecordFill(ctx, c.account, f); err != nil {
			c.logger.Error("failed to record fill",
				zap.String("security", f.Security),
				zap.Error(err),
			)
		}
	}
}
