package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LotSize is the minimum tradable multiple for buy orders.
const LotSize = 100

// DefaultOrderTimeout is how long the server waits for a fill unless told otherwise.
const DefaultOrderTimeout = 500 * time.Millisecond

// Broker is the trading surface implemented by client.Client.
type Broker interface {
	Info(ctx context.Context) (*AccountInfo, error)
	Balance(ctx context.Context) (*Balance, error)
	AvailableMoney(ctx context.Context) (decimal.Decimal, error)
	Positions(ctx context.Context, asOf time.Time) ([]Position, error)
	AvailableShares(ctx context.Context, security string, asOf time.Time) (int, error)
	Buy(ctx context.Context, req OrderRequest) (*Fill, error)
	MarketBuy(ctx context.Context, req MarketOrderRequest) (*Fill, error)
	Sell(ctx context.Context, req OrderRequest) (*SellResult, error)
	MarketSell(ctx context.Context, req MarketOrderRequest) (*SellResult, error)
}

// OrderRequest is a limit order.
type OrderRequest struct {
	Security string
	Price    decimal.Decimal
	Volume   int
	// OrderTime is required in backtest mode and ignored in live mode.
	OrderTime time.Time
	// Timeout is the fill wait forwarded to the server; zero means DefaultOrderTimeout.
	Timeout time.Duration
	// Extra is merged into the request body as-is.
	Extra map[string]any
}

// MarketOrderRequest is a market order. LimitPrice is only set for the
// "remainder converts to limit" execution style.
type MarketOrderRequest struct {
	Security   string
	Volume     int
	OrderType  OrderType
	LimitPrice *decimal.Decimal
	OrderTime  time.Time
	Timeout    time.Duration
	Extra      map[string]any
}

// PercentSellRequest sells a fraction of the sellable shares of one security.
type PercentSellRequest struct {
	Security  string
	Price     decimal.Decimal
	Percent   float64
	OrderTime time.Time
	Timeout   time.Duration
}

// RoundLot rounds v down to a multiple of LotSize.
func RoundLot(v int) int {
	if v < 0 {
		return -RoundLot(-v)
	}
	return v / LotSize * LotSize
}

// TimeoutOrDefault returns d, or DefaultOrderTimeout when d is not positive.
func TimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultOrderTimeout
	}
	return d
}
