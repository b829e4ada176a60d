package testserver

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/traderclient/broker"
)

// Error codes produced by the simulated ledger.
const (
	CodeInsufficientMoney = 4000
	CodeBuyLimit          = 4001
	CodeSellLimit         = 4002
	CodeNoDeal            = 4003
	CodeNotSellable       = 4004
	CodeNoQuote           = 4010
	CodeBadRequest        = 4020
)

// DefaultPrices is the bar price table used unless a test overrides it.
var DefaultPrices = map[string]float64{
	"002537.XSHE": 9.52,
	"600000.XSHG": 7.01,
	"000001.XSHE": 13.3,
}

var limitBand = decimal.RequireFromString("0.1")

// SimError is an application-level rejection.
type SimError struct {
	Code int
	Msg  string
}

func (e *SimError) Error() string { return fmt.Sprintf("%d: %s", e.Code, e.Msg) }

func reject(code int, format string, args ...any) *SimError {
	return &SimError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

type lot struct {
	shares int
	price  decimal.Decimal
	bought time.Time
}

// record is a ledger entry. Backtest sessions expose it as a trade, live
// sessions as an entrust.
type record struct {
	tid      string
	eid      string
	security string
	side     broker.Side
	price    decimal.Decimal
	volume   int
	filled   int
	fees     decimal.Decimal
	at       time.Time
	recvAt   time.Time
	status   broker.OrderStatus
}

// Sim is a single-account ledger. It fills at the configured bar price,
// rejects orders outside the daily limit band and settles T+1.
type Sim struct {
	mu sync.Mutex

	live       bool
	name       string
	token      string
	principal  decimal.Decimal
	cash       decimal.Decimal
	commission decimal.Decimal
	start      time.Time
	end        time.Time
	now        time.Time
	frozen     bool

	prices map[string]decimal.Decimal
	lots   map[string][]lot
	ledger []record
	assets map[string]decimal.Decimal
	nextID int
	clock  func() time.Time
}

// NewSim returns a ledger with DefaultPrices and one million of cash.
func NewSim() *Sim {
	s := &Sim{
		principal:  decimal.NewFromInt(1_000_000),
		cash:       decimal.NewFromInt(1_000_000),
		commission: decimal.RequireFromString("0.00015"),
		prices:     map[string]decimal.Decimal{},
		lots:       map[string][]lot{},
		assets:     map[string]decimal.Decimal{},
		clock:      time.Now,
	}
	for sec, p := range DefaultPrices {
		s.prices[sec] = decimal.NewFromFloat(p)
	}
	return s
}

// SetPrice sets the bar price of a security.
func (s *Sim) SetPrice(security string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[security] = decimal.NewFromFloat(price)
}

// Frozen reports whether stop_backtest was received.
func (s *Sim) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Seed adds a settled holding without touching cash.
func (s *Sim) Seed(security string, shares int, price float64, bought time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[security] = append(s.lots[security], lot{shares: shares, price: decimal.NewFromFloat(price), bought: bought})
}

func (s *Sim) startAccount(name, token string, principal, commission float64, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = name
	s.token = token
	if principal > 0 {
		s.principal = decimal.NewFromFloat(principal)
	}
	if commission > 0 {
		s.commission = decimal.NewFromFloat(commission)
	}
	s.cash = s.principal
	s.start = start
	s.end = end
	s.now = start
	s.lots = map[string][]lot{}
	s.ledger = nil
	s.assets = map[string]decimal.Decimal{}
}

func (s *Sim) stamp(orderTime time.Time) (time.Time, time.Time) {
	if s.live || orderTime.IsZero() {
		now := s.clock()
		return now, now.Add(time.Second)
	}
	if orderTime.After(s.now) {
		s.now = orderTime
	}
	return orderTime, time.Time{}
}

func (s *Sim) quote(security string) (decimal.Decimal, *SimError) {
	p, ok := s.prices[security]
	if !ok {
		return decimal.Zero, reject(CodeNoQuote, "no quote for %s", security)
	}
	return p, nil
}

func upLimit(p decimal.Decimal) decimal.Decimal {
	return p.Mul(decimal.NewFromInt(1).Add(limitBand)).Round(2)
}

func downLimit(p decimal.Decimal) decimal.Decimal {
	return p.Mul(decimal.NewFromInt(1).Sub(limitBand)).Round(2)
}

func (s *Sim) id(prefix string) string {
	s.nextID++
	return prefix + strconv.Itoa(s.nextID)
}

// buy fills a whole order at the bar price. A nil limit is a market order.
func (s *Sim) buy(security string, limit *decimal.Decimal, volume int, orderTime time.Time) (record, *SimError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if volume <= 0 || volume%broker.LotSize != 0 {
		return record{}, reject(CodeBadRequest, "volume %d is not a multiple of %d", volume, broker.LotSize)
	}
	p, err := s.quote(security)
	if err != nil {
		return record{}, err
	}
	if limit != nil {
		if limit.GreaterThanOrEqual(upLimit(p)) {
			return record{}, reject(CodeBuyLimit, "buy price %s reaches up-limit of %s", limit, security)
		}
		if limit.LessThan(p) {
			return record{}, reject(CodeNoDeal, "buy price %s below market price %s", limit, p)
		}
	}

	amount := p.Mul(decimal.NewFromInt(int64(volume)))
	fees := amount.Mul(s.commission).Round(2)
	if amount.Add(fees).GreaterThan(s.cash) {
		return record{}, reject(CodeInsufficientMoney, "insufficient money for %d of %s", volume, security)
	}

	at, recv := s.stamp(orderTime)
	s.cash = s.cash.Sub(amount).Sub(fees)
	s.lots[security] = append(s.lots[security], lot{shares: volume, price: p, bought: at})

	rec := record{
		tid:      s.id("t"),
		eid:      s.id("e"),
		security: security,
		side:     broker.SideBuy,
		price:    p,
		volume:   volume,
		filled:   volume,
		fees:     fees,
		at:       at,
		recvAt:   recv,
		status:   broker.StatusFilled,
	}
	s.ledger = append(s.ledger, rec)
	s.snapshotLocked(at)
	return rec, nil
}

// sell disposes shares FIFO across settled lots; each consumed lot yields one
// ledger entry.
func (s *Sim) sell(security string, limit *decimal.Decimal, volume int, orderTime time.Time) ([]record, *SimError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if volume <= 0 {
		return nil, reject(CodeBadRequest, "volume %d must be positive", volume)
	}
	p, err := s.quote(security)
	if err != nil {
		return nil, err
	}
	if limit != nil {
		if limit.LessThanOrEqual(downLimit(p)) {
			return nil, reject(CodeSellLimit, "sell price %s reaches down-limit of %s", limit, security)
		}
		if limit.GreaterThan(p) {
			return nil, reject(CodeNoDeal, "sell price %s above market price %s", limit, p)
		}
	}

	at, recv := s.stamp(orderTime)
	if sellable := s.sellableLocked(security, at); volume > sellable {
		return nil, reject(CodeNotSellable, "cannot sell %s, only %d sellable\ncheck T+1 settlement", security, sellable)
	}

	eid := s.id("e")
	var out []record
	remaining := volume
	kept := s.lots[security][:0]
	for _, l := range s.lots[security] {
		if remaining == 0 || !settled(l, at) {
			kept = append(kept, l)
			continue
		}
		n := l.shares
		if n > remaining {
			n = remaining
		}
		amount := p.Mul(decimal.NewFromInt(int64(n)))
		fees := amount.Mul(s.commission).Round(2)
		s.cash = s.cash.Add(amount).Sub(fees)
		out = append(out, record{
			tid:      s.id("t"),
			eid:      eid,
			security: security,
			side:     broker.SideSell,
			price:    p,
			volume:   volume,
			filled:   n,
			fees:     fees,
			at:       at,
			recvAt:   recv,
			status:   broker.StatusFilled,
		})
		remaining -= n
		if l.shares > n {
			l.shares -= n
			kept = append(kept, l)
		}
	}
	s.lots[security] = kept
	if len(kept) == 0 {
		delete(s.lots, security)
	}
	s.ledger = append(s.ledger, out...)
	s.snapshotLocked(at)
	return out, nil
}

func settled(l lot, at time.Time) bool {
	return broker.FormatDate(l.bought) < broker.FormatDate(at) || l.bought.IsZero()
}

func (s *Sim) sellableLocked(security string, at time.Time) int {
	n := 0
	for _, l := range s.lots[security] {
		if settled(l, at) {
			n += l.shares
		}
	}
	return n
}

func (s *Sim) sellable(security string, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sellableLocked(security, at)
}

func (s *Sim) marketValueLocked() decimal.Decimal {
	mv := decimal.Zero
	for sec, lots := range s.lots {
		for _, l := range lots {
			mv = mv.Add(s.prices[sec].Mul(decimal.NewFromInt(int64(l.shares))))
		}
	}
	return mv
}

func (s *Sim) snapshotLocked(at time.Time) {
	s.assets[broker.FormatDate(at)] = s.cash.Add(s.marketValueLocked()).Round(2)
}

func (s *Sim) securities() []string {
	out := make([]string, 0, len(s.lots))
	for sec := range s.lots {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

func (s *Sim) positionsLocked(at time.Time) []map[string]any {
	var rows []map[string]any
	for _, sec := range s.securities() {
		shares := 0
		cost := decimal.Zero
		for _, l := range s.lots[sec] {
			shares += l.shares
			cost = cost.Add(l.price.Mul(decimal.NewFromInt(int64(l.shares))))
		}
		if shares == 0 {
			continue
		}
		rows = append(rows, map[string]any{
			"security": sec,
			"shares":   shares,
			"sellable": s.sellableLocked(sec, at),
			"price":    cost.Div(decimal.NewFromInt(int64(shares))).Round(4).InexactFloat64(),
		})
	}
	return rows
}

func (s *Sim) asOf() time.Time {
	if s.live || s.now.IsZero() {
		return s.clock()
	}
	return s.now
}

func (s *Sim) info() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv := s.marketValueLocked()
	assets := s.cash.Add(mv)
	pnl := assets.Sub(s.principal)
	return map[string]any{
		"name":         s.name,
		"principal":    s.principal.InexactFloat64(),
		"capital":      s.cash.InexactFloat64(),
		"assets":       assets.InexactFloat64(),
		"available":    s.cash.InexactFloat64(),
		"market_value": mv.InexactFloat64(),
		"pnl":          pnl.InexactFloat64(),
		"ppnl":         pnl.Div(s.principal).InexactFloat64(),
		"trades":       len(s.ledger),
		"start":        formatOrNil(s.start),
		"last_trade":   formatOrNil(s.now),
		"positions":    s.positionsLocked(s.asOf()),
	}
}

func (s *Sim) balance() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv := s.marketValueLocked()
	total := s.cash.Add(mv)
	return map[string]any{
		"account":      s.name,
		"pnl":          total.Sub(s.principal).InexactFloat64(),
		"available":    s.cash.InexactFloat64(),
		"market_value": mv.InexactFloat64(),
		"total":        total.InexactFloat64(),
		"ppnl":         total.Sub(s.principal).Div(s.principal).InexactFloat64(),
	}
}

func (s *Sim) positions(date time.Time) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.asOf()
	if !date.IsZero() && !s.live {
		at = date
	}
	return s.positionsLocked(at)
}

func (s *Sim) encode(r record) map[string]any {
	if s.live {
		return map[string]any{
			"cid":           r.tid,
			"entrust_id":    r.eid,
			"code":          r.security,
			"order_side":    int(r.side),
			"order_status":  int(r.status),
			"avg_price":     r.price.InexactFloat64(),
			"volume":        r.volume,
			"filled_vol":    r.filled,
			"filled_amount": r.price.Mul(decimal.NewFromInt(int64(r.filled))).InexactFloat64(),
			"commission":    r.fees.InexactFloat64(),
			"created_at":    broker.FormatTime(r.at),
			"recv_at":       broker.FormatTime(r.recvAt),
		}
	}
	return map[string]any{
		"tid":        r.tid,
		"eid":        r.eid,
		"security":   r.security,
		"order_side": int(r.side),
		"price":      r.price.InexactFloat64(),
		"volume":     r.volume,
		"filled":     r.filled,
		"trade_fees": r.fees.InexactFloat64(),
		"time":       broker.FormatTime(r.at),
	}
}

func (s *Sim) encodeAll(rs []record) []map[string]any {
	out := make([]map[string]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, s.encode(r))
	}
	return out
}

// trades returns ledger entries within [start, end]. Zero bounds are open.
func (s *Sim) trades(start, end time.Time) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []record
	for _, r := range s.ledger {
		if !start.IsZero() && r.at.Before(start) {
			continue
		}
		if !end.IsZero() && r.at.After(end) {
			continue
		}
		out = append(out, r)
	}
	return s.encodeAll(out)
}

func (s *Sim) assetCurve(start, end time.Time) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.assets))
	for d := range s.assets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out [][]any
	for _, d := range dates {
		if !start.IsZero() && d < broker.FormatDate(start) {
			continue
		}
		if !end.IsZero() && d > broker.FormatDate(end) {
			continue
		}
		out = append(out, []any{d, s.assets[d].InexactFloat64()})
	}
	return out
}

func (s *Sim) metrics(baseline string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets := s.cash.Add(s.marketValueLocked())
	profit := assets.Sub(s.principal)
	sells := 0
	for _, r := range s.ledger {
		if r.side == broker.SideSell {
			sells++
		}
	}
	m := map[string]any{
		"start":             formatOrNil(s.start),
		"end":               formatOrNil(s.end),
		"window":            int(s.end.Sub(s.start).Hours()/24) + 1,
		"total_tx":          sells,
		"total_profit":      profit.InexactFloat64(),
		"total_profit_rate": profit.Div(s.principal).InexactFloat64(),
		"win_rate":          0.0,
		"mean_return":       0.0,
		"sharpe":            0.0,
		"sortino":           0.0,
		"calmar":            0.0,
		"max_drawdown":      0.0,
		"annual_return":     0.0,
		"volatility":        0.0,
	}
	if baseline != "" {
		m["baseline"] = map[string]any{"code": baseline, "sharpe": 0.0, "win_rate": 0.0}
	}
	return m
}

func (s *Sim) bills() map[string]any {
	s.mu.Lock()
	trades := s.encodeAll(s.ledger)
	positions := s.positionsLocked(s.asOf())
	s.mu.Unlock()

	return map[string]any{
		"tx":        []any{},
		"trades":    trades,
		"positions": positions,
		"assets":    s.assetCurve(time.Time{}, time.Time{}),
	}
}

func (s *Sim) freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

func formatOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return broker.FormatTime(t)
}

// stampFor is the settlement date an order placed at orderTime is checked against.
func (s *Sim) stampFor(orderTime time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live || orderTime.IsZero() {
		return s.asOf()
	}
	return orderTime
}
