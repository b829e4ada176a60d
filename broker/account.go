package broker

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// AccountInfo is the account snapshot returned by info. In backtest mode
// LastTrade is the simulated current date.
type AccountInfo struct {
	Name        string          `json:"name"`
	Principal   decimal.Decimal `json:"principal"`
	Capital     decimal.Decimal `json:"capital"`
	Assets      decimal.Decimal `json:"assets"`
	Available   decimal.Decimal `json:"available"`
	MarketValue decimal.Decimal `json:"market_value"`
	PnL         decimal.Decimal `json:"pnl"`
	PPnL        float64         `json:"ppnl"`
	Trades      Count           `json:"trades"`
	Start       Time            `json:"start"`
	LastTrade   Time            `json:"last_trade"`
	Positions   []Position      `json:"positions"`
}

// Balance is the account balance summary.
type Balance struct {
	Account     string          `json:"account"`
	PnL         decimal.Decimal `json:"pnl"`
	Available   decimal.Decimal `json:"available"`
	MarketValue decimal.Decimal `json:"market_value"`
	Total       decimal.Decimal `json:"total"`
	PPnL        float64         `json:"ppnl"`
}

// Position is one row of the position table. Sellable is computed by the
// server (T+1 settlement) and is never adjusted locally.
type Position struct {
	Date     Time            `json:"date"`
	Security string          `json:"security"`
	Name     string          `json:"name,omitempty"`
	Shares   Shares          `json:"shares"`
	Sellable Shares          `json:"sellable"`
	Price    decimal.Decimal `json:"price"`
}

type positionWire struct {
	Date     Time            `json:"date"`
	Security string          `json:"security"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Alias    string          `json:"alias"`
	Shares   Shares          `json:"shares"`
	Sellable Shares          `json:"sellable"`
	Price    decimal.Decimal `json:"price"`
}

// UnmarshalJSON accepts an object record or a positional array:
//
//	[security, shares, sellable, price]
//	[security, alias, shares, sellable, price]
//	[date, security, alias, shares, sellable, price]
func (p *Position) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return p.decodeRow(trimmed)
	}
	var w positionWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return err
	}
	*p = Position{
		Date:     w.Date,
		Security: firstString(w.Security, w.Code),
		Name:     firstString(w.Name, w.Alias),
		Shares:   w.Shares,
		Sellable: w.Sellable,
		Price:    w.Price,
	}
	return nil
}

func (p *Position) decodeRow(b []byte) error {
	var cols []json.RawMessage
	if err := json.Unmarshal(b, &cols); err != nil {
		return err
	}
	var targets []any
	out := Position{}
	switch len(cols) {
	case 4:
		targets = []any{&out.Security, &out.Shares, &out.Sellable, &out.Price}
	case 5:
		targets = []any{&out.Security, &out.Name, &out.Shares, &out.Sellable, &out.Price}
	case 6:
		targets = []any{&out.Date, &out.Security, &out.Name, &out.Shares, &out.Sellable, &out.Price}
	default:
		return fmt.Errorf("position row has %d columns", len(cols))
	}
	for i, target := range targets {
		if err := json.Unmarshal(cols[i], target); err != nil {
			return fmt.Errorf("position column %d: %w", i, err)
		}
	}
	*p = out
	return nil
}

// AssetSnapshot is one point of the daily asset curve.
type AssetSnapshot struct {
	Date   Time            `json:"date"`
	Assets decimal.Decimal `json:"assets"`
}

// UnmarshalJSON accepts {"date":..,"assets":..} or [date, assets].
func (a *AssetSnapshot) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var cols []json.RawMessage
		if err := json.Unmarshal(trimmed, &cols); err != nil {
			return err
		}
		if len(cols) != 2 {
			return fmt.Errorf("asset row has %d columns", len(cols))
		}
		var out AssetSnapshot
		if err := json.Unmarshal(cols[0], &out.Date); err != nil {
			return err
		}
		if err := json.Unmarshal(cols[1], &out.Assets); err != nil {
			return err
		}
		*a = out
		return nil
	}
	type plain AssetSnapshot
	var out plain
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return err
	}
	*a = AssetSnapshot(out)
	return nil
}

// AccountSummary is one entry of the administrative account listing.
type AccountSummary struct {
	Name      string          `json:"account_name"`
	Token     string          `json:"token,omitempty"`
	Principal decimal.Decimal `json:"principal"`
	Assets    decimal.Decimal `json:"assets"`
	Start     Time            `json:"start"`
	End       Time            `json:"end"`
	LastTrade Time            `json:"last_trade"`
}

// UnmarshalJSON accepts the account name as account_name, name or account.
func (s *AccountSummary) UnmarshalJSON(b []byte) error {
	var w struct {
		AccountName string          `json:"account_name"`
		Name        string          `json:"name"`
		Account     string          `json:"account"`
		Token       string          `json:"token"`
		Principal   decimal.Decimal `json:"principal"`
		Assets      decimal.Decimal `json:"assets"`
		Start       Time            `json:"start"`
		End         Time            `json:"end"`
		LastTrade   Time            `json:"last_trade"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = AccountSummary{
		Name:      firstString(w.AccountName, w.Name, w.Account),
		Token:     w.Token,
		Principal: w.Principal,
		Assets:    w.Assets,
		Start:     w.Start,
		End:       w.End,
		LastTrade: w.LastTrade,
	}
	return nil
}
