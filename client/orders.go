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

// Buy places a limit buy. The volume is rounded down to a whole lot; in
// backtest sessions OrderTime is required.
func (c *Client) Buy(ctx context.Context, req broker.OrderRequest) (*broker.Fill, error) {
	body, err := c.orderBody(transport.CmdBuy, req.Extra, req.OrderTime, req.Timeout)
	if err != nil {
		return nil, err
	}
	body["security"] = req.Security
	body["price"] = req.Price.InexactFloat64()
	body["volume"] = c.roundVolume(transport.CmdBuy, req.Volume)

	return c.placeBuy(ctx, transport.CmdBuy, body, req.Timeout)
}

// MarketBuy places a market buy. Price is sent as 0 unless LimitPrice is set
// for the remainder-to-limit style.
func (c *Client) MarketBuy(ctx context.Context, req broker.MarketOrderRequest) (*broker.Fill, error) {
	body, err := c.marketBody(transport.CmdMarketBuy, req)
	if err != nil {
		return nil, err
	}
	body["volume"] = c.roundVolume(transport.CmdMarketBuy, req.Volume)

	return c.placeBuy(ctx, transport.CmdMarketBuy, body, req.Timeout)
}

// Sell places a limit sell. The volume is sent as given so odd lots can be
// disposed of. Backtest sessions return every ledger entry the sell produced;
// live sessions return the entrust.
func (c *Client) Sell(ctx context.Context, req broker.OrderRequest) (*broker.SellResult, error) {
	body, err := c.orderBody(transport.CmdSell, req.Extra, req.OrderTime, req.Timeout)
	if err != nil {
		return nil, err
	}
	body["security"] = req.Security
	body["price"] = req.Price.InexactFloat64()
	body["volume"] = req.Volume

	return c.placeSell(ctx, transport.CmdSell, body, req.Timeout)
}

// MarketSell places a market sell. The volume is not rounded.
func (c *Client) MarketSell(ctx context.Context, req broker.MarketOrderRequest) (*broker.SellResult, error) {
	body, err := c.marketBody(transport.CmdMarketSell, req)
	if err != nil {
		return nil, err
	}
	body["volume"] = req.Volume

	return c.placeSell(ctx, transport.CmdMarketSell, body, req.Timeout)
}

// SellPercent sells a fraction of the sellable shares of one security. It
// returns nil without calling the server when Percent is outside (0, 1] or
// the security code is malformed.
func (c *Client) SellPercent(ctx context.Context, req broker.PercentSellRequest) (*broker.SellResult, error) {
	if !validPercent(req.Percent) {
		c.logger.Warn("sell_percent ignored: percent must be in (0, 1]", zap.Float64("percent", req.Percent))
		return nil, nil
	}
	if len(req.Security) < minSecurityLen {
		c.logger.Warn("sell_percent ignored: malformed security", zap.String("security", req.Security))
		return nil, nil
	}

	body := map[string]any{
		"security": req.Security,
		"price":    req.Price.InexactFloat64(),
		"percent":  req.Percent,
		"timeout":  broker.TimeoutOrDefault(req.Timeout).Seconds(),
	}
	if c.IsBacktest() && !req.OrderTime.IsZero() {
		body["order_time"] = broker.FormatOrderTime(req.OrderTime)
	}
	return c.placeSell(ctx, transport.CmdSellPercent, body, req.Timeout)
}

// SellAll reduces every holding by percent. It returns nil without calling the
// server when percent is outside (0, 1].
func (c *Client) SellAll(ctx context.Context, percent float64, orderTime time.Time, timeout time.Duration) (*broker.SellResult, error) {
	if !validPercent(percent) {
		c.logger.Warn("sell_all ignored: percent must be in (0, 1]", zap.Float64("percent", percent))
		return nil, nil
	}

	body := map[string]any{
		"percent": percent,
		"timeout": broker.TimeoutOrDefault(timeout).Seconds(),
	}
	if c.IsBacktest() && !orderTime.IsZero() {
		body["order_time"] = broker.FormatOrderTime(orderTime)
	}
	return c.placeSell(ctx, transport.CmdSellAll, body, timeout)
}

// CancelEntrust cancels one open entrust by its contract id.
func (c *Client) CancelEntrust(ctx context.Context, cid string) (*broker.Fill, error) {
	if cid == "" {
		return nil, errs.Precondition("contract id is required")
	}
	var f broker.Fill
	if err := c.post(ctx, transport.CmdCancelEntrust, map[string]any{"cid": cid}, 0, &f); err != nil {
		return nil, err
	}
	c.markDirty()
	return &f, nil
}

// CancelAllEntrusts cancels every unfinished entrust, including partially
// filled ones, and returns them.
func (c *Client) CancelAllEntrusts(ctx context.Context) ([]broker.Fill, error) {
	res, payload, err := c.roundTrip(ctx, transport.Request{
		Method:  http.MethodPost,
		Command: transport.CmdCancelAllEntrusts,
	})
	if err != nil {
		return nil, err
	}
	c.markDirty()

	sr, err := c.decodeSell(res, payload)
	if err != nil {
		return nil, err
	}
	return sr.All(), nil
}

const minSecurityLen = 6

func validPercent(p float64) bool {
	return p > 0 && p <= 1
}

// roundVolume rounds buy volumes down to a whole lot and warns when that
// changes the order.
func (c *Client) roundVolume(cmd string, volume int) int {
	rounded := broker.RoundLot(volume)
	if rounded != volume {
		c.logger.Warn("volume rounded down to a multiple of the lot size",
			zap.String("command", cmd),
			zap.Int("requested", volume),
			zap.Int("volume", rounded),
		)
	}
	return rounded
}

// orderBody starts a request body: extra parameters first, then the fill
// timeout and, for backtests, the mandatory order time.
func (c *Client) orderBody(cmd string, extra map[string]any, orderTime time.Time, timeout time.Duration) (map[string]any, error) {
	body := make(map[string]any, len(extra)+6)
	for k, v := range extra {
		body[k] = v
	}
	delete(body, "order_time")

	if c.IsBacktest() {
		if orderTime.IsZero() {
			err := errs.Precondition("order_time is required in backtest mode")
			err.Command = cmd
			return nil, err
		}
		body["order_time"] = broker.FormatOrderTime(orderTime)
	}
	body["timeout"] = broker.TimeoutOrDefault(timeout).Seconds()
	return body, nil
}

func (c *Client) marketBody(cmd string, req broker.MarketOrderRequest) (map[string]any, error) {
	body, err := c.orderBody(cmd, req.Extra, req.OrderTime, req.Timeout)
	if err != nil {
		return nil, err
	}
	orderType := req.OrderType
	if orderType == 0 {
		orderType = broker.OrderTypeMarket
	}
	body["security"] = req.Security
	body["price"] = 0
	body["order_type"] = int(orderType)
	if req.LimitPrice != nil {
		body["limit_price"] = req.LimitPrice.InexactFloat64()
	}
	return body, nil
}

func (c *Client) placeBuy(ctx context.Context, cmd string, body map[string]any, timeout time.Duration) (*broker.Fill, error) {
	var f broker.Fill
	if err := c.post(ctx, cmd, body, broker.TimeoutOrDefault(timeout), &f); err != nil {
		return nil, err
	}
	c.markDirty()
	c.record(ctx, f)
	return &f, nil
}

func (c *Client) placeSell(ctx context.Context, cmd string, body map[string]any, timeout time.Duration) (*broker.SellResult, error) {
	res, payload, err := c.roundTrip(ctx, transport.Request{
		Method:  http.MethodPost,
		Command: cmd,
		Body:    body,
		Timeout: broker.TimeoutOrDefault(timeout),
	})
	if err != nil {
		return nil, err
	}
	c.markDirty()

	sr, err := c.decodeSell(res, payload)
	if err != nil {
		return nil, err
	}
	c.record(ctx, sr.All()...)
	return sr, nil
}

func (c *Client) decodeSell(res *transport.Result, payload []byte) (*broker.SellResult, error) {
	if res.Kind == transport.PayloadEmpty {
		return &broker.SellResult{}, nil
	}
	if res.Kind != transport.PayloadJSON {
		return nil, errs.New(errs.KindDecode,
			errs.WithCommand(res.Command),
			errs.WithRequestID(res.RequestID),
			errs.WithMessage("expected json payload, got "+res.Kind.String()))
	}
	sr, err := broker.DecodeSellResult(payload)
	if err != nil {
		return nil, errs.New(errs.KindDecode,
			errs.WithCommand(res.Command),
			errs.WithRequestID(res.RequestID),
			errs.WithCause(err))
	}
	return sr, nil
}
