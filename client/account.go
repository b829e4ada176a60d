package client

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/transport"
)

// Info returns the account snapshot and refreshes the cached money values.
// A snapshot requested before a mutation that completed while it was in
// flight is returned but not cached. In backtest sessions LastTrade is the
// simulated current date.
func (c *Client) Info(ctx context.Context) (*broker.AccountInfo, error) {
	c.mu.Lock()
	gen := c.mutations
	c.mu.Unlock()

	var info broker.AccountInfo
	if err := c.get(ctx, transport.CmdInfo, nil, &info); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.mutations == gen {
		c.available = info.Available
		c.principal = info.Principal
		c.cached = true
		c.dirty = false
	}
	c.mu.Unlock()

	return &info, nil
}

// Balance returns the balance summary.
func (c *Client) Balance(ctx context.Context) (*broker.Balance, error) {
	var b broker.Balance
	if err := c.get(ctx, transport.CmdBalance, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// AvailableMoney returns the cash available for trading. The value is fetched
// once and reused until a mutating call succeeds.
func (c *Client) AvailableMoney(ctx context.Context) (decimal.Decimal, error) {
	if v, ok := c.cachedValue(func(c *Client) decimal.Decimal { return c.available }); ok {
		return v, nil
	}
	info, err := c.Info(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Available, nil
}

// Principal returns the account principal, cached like AvailableMoney.
func (c *Client) Principal(ctx context.Context) (decimal.Decimal, error) {
	if v, ok := c.cachedValue(func(c *Client) decimal.Decimal { return c.principal }); ok {
		return v, nil
	}
	info, err := c.Info(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Principal, nil
}

func (c *Client) cachedValue(pick func(*Client) decimal.Decimal) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cached || c.dirty {
		return decimal.Zero, false
	}
	return pick(c), true
}

// Positions returns the position table. asOf selects a historical date in
// backtest sessions and is ignored otherwise.
func (c *Client) Positions(ctx context.Context, asOf time.Time) ([]broker.Position, error) {
	var query map[string]string
	if c.IsBacktest() && !asOf.IsZero() {
		query = map[string]string{"date": broker.FormatDate(asOf)}
	}

	var rows []broker.Position
	if err := c.get(ctx, transport.CmdPositions, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AvailableShares returns the sellable shares of security, or 0 when it is not
// held. More than one matching row is logged and the first row is used.
func (c *Client) AvailableShares(ctx context.Context, security string, asOf time.Time) (int, error) {
	rows, err := c.Positions(ctx, asOf)
	if err != nil {
		return 0, err
	}

	var matches []broker.Position
	for _, p := range rows {
		if p.Security == security {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return 0, nil
	case 1:
		return int(matches[0].Sellable), nil
	default:
		sellable := make([]int, 0, len(matches))
		for _, m := range matches {
			sellable = append(sellable, int(m.Sellable))
		}
		c.logger.Error("duplicate position rows",
			zap.String("security", security),
			zap.Int("rows", len(matches)),
			zap.Ints("sellable", sellable),
		)
		return int(matches[0].Sellable), nil
	}
}
