// Package testserver runs a scripted trading server for package tests.
package testserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/traderclient/broker"
)

// DefaultAdminToken guards the account listing.
const DefaultAdminToken = "admin-token"

// Captured is a request as the server saw it.
type Captured struct {
	Method string
	Header http.Header
	Query  url.Values
	Body   map[string]any
	Raw    []byte
}

// Account is an entry created by start_backtest.
type Account struct {
	Name      string
	Token     string
	Principal float64
	Start     time.Time
	End       time.Time
}

// Server is an httptest server backed by a Sim. Every command can be
// overridden with Handle.
type Server struct {
	*httptest.Server

	Sim        *Sim
	AdminToken string

	mu        sync.Mutex
	envelope  bool
	calls     map[string]int
	captured  map[string][]Captured
	overrides map[string]http.HandlerFunc
	accounts  map[string]Account
}

// Option configures a Server.
type Option func(*Server)

// Enveloped wraps every reply in {"status","msg","data"} and reports
// rejections through a nonzero status with HTTP 200.
func Enveloped() Option {
	return func(s *Server) { s.envelope = true }
}

// Live makes the ledger answer like a live broker: entrust records with
// created_at/recv_at and single-object sell results.
func Live() Option {
	return func(s *Server) { s.Sim.live = true }
}

// WithPrice sets a bar price.
func WithPrice(security string, price float64) Option {
	return func(s *Server) { s.Sim.prices[security] = decimal.NewFromFloat(price) }
}

// New starts a server that is closed when t finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		Sim:        NewSim(),
		AdminToken: DefaultAdminToken,
		calls:      map[string]int{},
		captured:   map[string][]Captured{},
		overrides:  map[string]http.HandlerFunc{},
		accounts:   map[string]Account{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle replaces the handler of cmd.
func (s *Server) Handle(cmd string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[cmd] = h
}

// Calls returns how many requests cmd received.
func (s *Server) Calls(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cmd]
}

// TotalCalls returns the number of requests received for any command.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Last returns the most recent request for cmd.
func (s *Server) Last(cmd string) (Captured, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.captured[cmd]
	if len(reqs) == 0 {
		return Captured{}, false
	}
	return reqs[len(reqs)-1], true
}

// Requests returns every request received for cmd.
func (s *Server) Requests(cmd string) []Captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Captured(nil), s.captured[cmd]...)
}

// AddAccount registers an account for the administrative endpoints.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Name] = a
}

// HasAccount reports whether name is registered.
func (s *Server) HasAccount(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[name]
	return ok
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	cmd := r.URL.Path
	if i := strings.LastIndex(cmd, "/"); i >= 0 {
		cmd = cmd[i+1:]
	}

	raw, _ := io.ReadAll(r.Body)
	c := Captured{Method: r.Method, Header: r.Header.Clone(), Query: r.URL.Query(), Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Body); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	s.calls[cmd]++
	s.captured[cmd] = append(s.captured[cmd], c)
	h := s.overrides[cmd]
	s.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}
	s.dispatch(w, cmd, c)
}

func (s *Server) dispatch(w http.ResponseWriter, cmd string, c Captured) {
	switch cmd {
	case "start_backtest":
		s.startBacktest(w, c)
	case "stop_backtest":
		s.Sim.freeze()
		s.reply(w, map[string]any{"name": s.Sim.name, "frozen": true})
	case "accounts":
		s.accountsEndpoint(w, c)
	case "info":
		s.reply(w, s.Sim.info())
	case "balance":
		s.reply(w, s.Sim.balance())
	case "available_money":
		s.reply(w, s.Sim.info()["available"])
	case "positions":
		date, _ := parseOptional(c.Query.Get("date"))
		s.reply(w, s.Sim.positions(date))
	case "buy", "market_buy":
		s.buy(w, cmd, c)
	case "sell", "market_sell":
		s.sell(w, cmd, c)
	case "sell_percent":
		s.sellPercent(w, c)
	case "sell_all":
		s.sellAll(w, c)
	case "cancel_entrust":
		s.reply(w, map[string]any{"cid": c.Body["cid"], "order_status": int(broker.StatusCancelledAll)})
	case "cancel_all_entrusts":
		s.reply(w, []any{})
	case "today_entrusts", "today_trades":
		s.reply(w, s.Sim.trades(time.Time{}, time.Time{}))
	case "get_trades_in_range", "get_entrusts_in_range":
		start, _ := parseOptional(str(c.Body["start"]))
		end, _ := parseOptional(str(c.Body["end"]))
		s.reply(w, s.Sim.trades(start, end))
	case "metrics":
		s.reply(w, s.Sim.metrics(c.Query.Get("baseline")))
	case "bills":
		s.reply(w, s.Sim.bills())
	case "get_assets":
		start, _ := parseOptional(c.Query.Get("start"))
		end, _ := parseOptional(c.Query.Get("end"))
		s.reply(w, s.Sim.assetCurve(start, end))
	default:
		http.NotFound(w, nil)
	}
}

func (s *Server) startBacktest(w http.ResponseWriter, c Captured) {
	name, token := str(c.Body["name"]), str(c.Body["token"])
	start, err1 := parseOptional(str(c.Body["start"]))
	end, err2 := parseOptional(str(c.Body["end"]))
	if name == "" || token == "" || err1 != nil || err2 != nil || start.IsZero() || end.IsZero() {
		s.fail(w, reject(CodeBadRequest, "name, token, start and end are required"))
		return
	}
	principal, _ := num(c.Body["principal"])
	commission, _ := num(c.Body["commission"])
	s.Sim.startAccount(name, token, principal, commission, start, end)
	s.AddAccount(Account{Name: name, Token: token, Principal: principal, Start: start, End: end})
	s.reply(w, map[string]any{
		"account_name": name,
		"token":        token,
		"principal":    principal,
		"start":        broker.FormatDate(start),
		"end":          broker.FormatDate(end),
	})
}

func (s *Server) accountsEndpoint(w http.ResponseWriter, c Captured) {
	switch c.Method {
	case http.MethodGet:
		if c.Header.Get("Authorization") != s.AdminToken {
			http.Error(w, "admin token required", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		list := make([]map[string]any, 0, len(s.accounts))
		for _, a := range s.accounts {
			list = append(list, map[string]any{
				"account_name": a.Name,
				"token":        a.Token,
				"principal":    a.Principal,
				"start":        formatOrNil(a.Start),
				"end":          formatOrNil(a.End),
			})
		}
		s.mu.Unlock()
		s.reply(w, list)
	case http.MethodDelete:
		name := c.Query.Get("name")
		s.mu.Lock()
		a, ok := s.accounts[name]
		if ok && a.Token == c.Header.Get("Authorization") {
			delete(s.accounts, name)
		}
		s.mu.Unlock()
		if !ok {
			s.fail(w, reject(CodeBadRequest, "account %s not found", name))
			return
		}
		if a.Token != c.Header.Get("Authorization") {
			http.Error(w, "token does not own account", http.StatusForbidden)
			return
		}
		s.reply(w, 1)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) orderTime(c Captured) (time.Time, *SimError) {
	t, err := parseOptional(str(c.Body["order_time"]))
	if err != nil {
		return time.Time{}, reject(CodeBadRequest, "bad order_time: %v", err)
	}
	return t, nil
}

func (s *Server) limit(cmd string, c Captured) *decimal.Decimal {
	key := "price"
	if strings.HasPrefix(cmd, "market_") {
		key = "limit_price"
	}
	p, ok := num(c.Body[key])
	if !ok || p == 0 {
		return nil
	}
	d := decimal.NewFromFloat(p)
	return &d
}

func (s *Server) buy(w http.ResponseWriter, cmd string, c Captured) {
	at, serr := s.orderTime(c)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	volume, _ := num(c.Body["volume"])
	rec, serr := s.Sim.buy(str(c.Body["security"]), s.limit(cmd, c), int(volume), at)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	s.reply(w, s.Sim.encode(rec))
}

func (s *Server) sell(w http.ResponseWriter, cmd string, c Captured) {
	at, serr := s.orderTime(c)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	volume, _ := num(c.Body["volume"])
	recs, serr := s.Sim.sell(str(c.Body["security"]), s.limit(cmd, c), int(volume), at)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	s.replySell(w, recs)
}

func (s *Server) replySell(w http.ResponseWriter, recs []record) {
	if s.Sim.live && len(recs) > 0 {
		// A live broker reports one entrust for the whole order.
		e := recs[0]
		for _, r := range recs[1:] {
			e.filled += r.filled
			e.fees = e.fees.Add(r.fees)
		}
		s.reply(w, s.Sim.encode(e))
		return
	}
	s.reply(w, s.Sim.encodeAll(recs))
}

func (s *Server) sellPercent(w http.ResponseWriter, c Captured) {
	at, serr := s.orderTime(c)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	security := str(c.Body["security"])
	percent, _ := num(c.Body["percent"])
	sellable := s.Sim.sellable(security, s.Sim.stampFor(at))
	volume := int(float64(sellable) * percent)
	recs, serr := s.Sim.sell(security, s.limit("sell", c), volume, at)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	s.replySell(w, recs)
}

func (s *Server) sellAll(w http.ResponseWriter, c Captured) {
	at, serr := s.orderTime(c)
	if serr != nil {
		s.fail(w, serr)
		return
	}
	percent, _ := num(c.Body["percent"])

	s.Sim.mu.Lock()
	secs := s.Sim.securities()
	s.Sim.mu.Unlock()

	var out []record
	for _, sec := range secs {
		volume := int(float64(s.Sim.sellable(sec, s.Sim.stampFor(at))) * percent)
		if volume == 0 {
			continue
		}
		recs, serr := s.Sim.sell(sec, nil, volume, at)
		if serr != nil {
			s.fail(w, serr)
			return
		}
		out = append(out, recs...)
	}
	s.reply(w, s.Sim.encodeAll(out))
}

func (s *Server) reply(w http.ResponseWriter, v any) {
	if s.envelope {
		v = map[string]any{"status": 0, "msg": "OK", "data": v}
	}
	WriteJSON(w, http.StatusOK, v)
}

func (s *Server) fail(w http.ResponseWriter, e *SimError) {
	if s.envelope {
		WriteJSON(w, http.StatusOK, map[string]any{"status": e.Code, "msg": e.Msg})
		return
	}
	WriteTradeError(w, e.Code, e.Msg)
}

// WriteJSON writes v with an application/json content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// WriteTradeError writes a 499 rejection with a JSON body.
func WriteTradeError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, 499, map[string]any{"error_code": code, "msg": msg})
}

// WriteText writes body as text/plain.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseOptional(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return broker.ParseTime(s)
}
