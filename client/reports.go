package client

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/errs"
	"github.com/rustyeddy/traderclient/transport"
)

// Metrics returns the server-computed performance report. Zero bounds and an
// empty baseline are omitted.
func (c *Client) Metrics(ctx context.Context, q broker.MetricsQuery) (*broker.Metrics, error) {
	query := map[string]string{"baseline": q.Baseline}
	if !q.Start.IsZero() {
		query["start"] = broker.FormatDate(q.Start.Time)
	}
	if !q.End.IsZero() {
		query["end"] = broker.FormatDate(q.End.Time)
	}

	res, payload, err := c.roundTrip(ctx, transport.Request{
		Method:  http.MethodGet,
		Command: transport.CmdMetrics,
		Query:   toValues(query),
	})
	if err != nil {
		return nil, err
	}

	var m broker.Metrics
	if res.Kind == transport.PayloadEmpty {
		return &m, nil
	}
	if err := transport.DecodeJSON(transport.DataField(payload), &m, res.Command, res.RequestID); err != nil {
		return nil, err
	}
	return &m, nil
}

// Bills returns transactions, trades, positions and assets as the server
// bundles them.
func (c *Client) Bills(ctx context.Context) (*broker.Bills, error) {
	var b broker.Bills
	if err := c.get(ctx, transport.CmdBills, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Assets returns the daily asset curve in server order.
func (c *Client) Assets(ctx context.Context, start, end time.Time) ([]broker.AssetSnapshot, error) {
	query := map[string]string{}
	if !start.IsZero() {
		query["start"] = broker.FormatDate(start)
	}
	if !end.IsZero() {
		query["end"] = broker.FormatDate(end)
	}

	var curve []broker.AssetSnapshot
	if err := c.get(ctx, transport.CmdAssets, query, &curve); err != nil {
		return nil, err
	}
	return curve, nil
}

// TodayEntrusts returns every entrust of the day, failed ones included.
func (c *Client) TodayEntrusts(ctx context.Context) ([]broker.Fill, error) {
	var out []broker.Fill
	if err := c.get(ctx, transport.CmdTodayEntrusts, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TodayTrades returns the day's filled entrusts.
func (c *Client) TodayTrades(ctx context.Context) ([]broker.Fill, error) {
	var out []broker.Fill
	if err := c.get(ctx, transport.CmdTodayTrades, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TradesInRange returns trades between start and end. Both bounds or neither
// must be given; otherwise, or when start is after end, it returns nil without
// calling the server.
func (c *Client) TradesInRange(ctx context.Context, start, end time.Time) ([]broker.Fill, error) {
	return c.inRange(ctx, transport.CmdTradesInRange, start, end)
}

// EntrustsInRange is TradesInRange for entrusts.
func (c *Client) EntrustsInRange(ctx context.Context, start, end time.Time) ([]broker.Fill, error) {
	return c.inRange(ctx, transport.CmdEntrustsInRange, start, end)
}

func (c *Client) inRange(ctx context.Context, cmd string, start, end time.Time) ([]broker.Fill, error) {
	if start.IsZero() != end.IsZero() {
		c.logger.Error(cmd+": start and end must be given together",
			zap.Time("start", start), zap.Time("end", end))
		return nil, nil
	}
	if start.After(end) {
		c.logger.Error(cmd+": end is earlier than start",
			zap.Time("start", start), zap.Time("end", end))
		return nil, nil
	}

	body := map[string]any{}
	if !start.IsZero() {
		body["start"] = broker.FormatOrderTime(start)
		body["end"] = broker.FormatOrderTime(end)
	}

	var out []broker.Fill
	if err := c.post(ctx, cmd, body, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StopBacktest tells the server no further orders will follow, which lets it
// serve metrics from a frozen ledger. Later calls are still forwarded.
func (c *Client) StopBacktest(ctx context.Context) error {
	if !c.IsBacktest() {
		err := errs.Precondition("stop_backtest is only valid in backtest mode")
		err.Command = transport.CmdStopBacktest
		return err
	}
	if err := c.post(ctx, transport.CmdStopBacktest, nil, 0, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateFrozen
	c.mu.Unlock()
	c.logger.Info("backtest stopped")
	return nil
}
