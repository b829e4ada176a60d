package broker

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Ratios are the performance ratios shared by a report and its baseline.
type Ratios struct {
	TotalProfitRate float64 `json:"total_profit_rate"`
	WinRate         float64 `json:"win_rate"`
	MeanReturn      float64 `json:"mean_return"`
	Sharpe          float64 `json:"sharpe"`
	Sortino         float64 `json:"sortino"`
	Calmar          float64 `json:"calmar"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	AnnualReturn    float64 `json:"annual_return"`
	Volatility      float64 `json:"volatility"`
}

// Metrics is the server-computed performance report for a window.
type Metrics struct {
	Start       Time            `json:"start"`
	End         Time            `json:"end"`
	Window      Count           `json:"window"`
	TotalTx     Count           `json:"total_tx"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	Ratios
	Baseline *Baseline `json:"baseline,omitempty"`
}

// Baseline holds the same ratios computed for a reference security.
type Baseline struct {
	Code string `json:"code"`
	Ratios
}

// MetricsQuery bounds a metrics request. Zero values are omitted.
type MetricsQuery struct {
	Start    Time
	End      Time
	Baseline string
}

// Transaction is a round trip: an entry and the exit that closed it.
type Transaction struct {
	Security   string          `json:"security"`
	EntryTime  Time            `json:"entry_time"`
	ExitTime   Time            `json:"exit_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Shares     Shares          `json:"shares"`
	Fee        decimal.Decimal `json:"fee"`
	Profit     decimal.Decimal `json:"profit"`
	PProfit    float64         `json:"pprofit"`
}

// Bills bundles the account ledger as returned by the server.
type Bills struct {
	Transactions []Transaction   `json:"transactions"`
	Trades       []Fill          `json:"trades"`
	Positions    []Position      `json:"positions"`
	Assets       []AssetSnapshot `json:"assets"`
}

// UnmarshalJSON also accepts the short "tx" key used by some server versions.
func (b *Bills) UnmarshalJSON(data []byte) error {
	var w struct {
		Transactions []Transaction   `json:"transactions"`
		Tx           []Transaction   `json:"tx"`
		Trades       []Fill          `json:"trades"`
		Positions    []Position      `json:"positions"`
		Assets       []AssetSnapshot `json:"assets"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = Bills{
		Transactions: w.Transactions,
		Trades:       w.Trades,
		Positions:    w.Positions,
		Assets:       w.Assets,
	}
	if len(b.Transactions) == 0 {
		b.Transactions = w.Tx
	}
	return nil
}
