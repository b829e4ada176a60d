package broker

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// UnmarshalJSON accepts 1/-1 as well as textual sides, including the
// server's localized labels.
func (s *Side) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = 0
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "buy", "买入":
			*s = SideBuy
		case "-1", "sell", "卖出":
			*s = SideSell
		default:
			return fmt.Errorf("unknown order side %q", t)
		}
		return nil
	default:
		switch f := toFloat64(t); {
		case f > 0:
			*s = SideBuy
		case f < 0:
			*s = SideSell
		default:
			*s = 0
		}
		return nil
	}
}

// OrderType is the bid type of an order.
type OrderType int

const (
	OrderTypeLimit  OrderType = 1
	OrderTypeMarket OrderType = 2
)

// OrderStatus is the server-side state of an entrust.
type OrderStatus int

const (
	StatusError         OrderStatus = -1
	StatusNoDeal        OrderStatus = 1
	StatusPartialFilled OrderStatus = 2
	StatusFilled        OrderStatus = 3
	StatusCancelledAll  OrderStatus = 4
)

// Fill is a trade or entrust record returned by buy/sell operations.
// Live entrusts carry CreatedAt and RecvAt; backtest trades carry Time,
// echoing the request's order time.
type Fill struct {
	TradeID      string          `json:"tid,omitempty"`
	ContractID   string          `json:"cid,omitempty"`
	EntrustID    string          `json:"eid,omitempty"`
	Security     string          `json:"security"`
	Name         string          `json:"name,omitempty"`
	Side         Side            `json:"order_side"`
	OrderType    OrderType       `json:"bid_type,omitempty"`
	Status       OrderStatus     `json:"status,omitempty"`
	Price        decimal.Decimal `json:"price"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	Volume       Shares          `json:"volume"`
	Filled       Shares          `json:"filled"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	Fees         decimal.Decimal `json:"trade_fees"`
	Time         Time            `json:"time"`
	CreatedAt    Time            `json:"created_at"`
	RecvAt       Time            `json:"recv_at"`
}

// fillWire lists every key spelling the server versions use.
type fillWire struct {
	TID          ID              `json:"tid"`
	CID          ID              `json:"cid"`
	EID          ID              `json:"eid"`
	EntrustID    ID              `json:"entrust_id"`
	Security     string          `json:"security"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Alias        string          `json:"alias"`
	Side         Side            `json:"order_side"`
	BidType      OrderType       `json:"bid_type"`
	OrderType    OrderType       `json:"order_type"`
	Status       OrderStatus     `json:"status"`
	OrderStatus  OrderStatus     `json:"order_status"`
	Price        decimal.Decimal `json:"price"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	Volume       Shares          `json:"volume"`
	Filled       Shares          `json:"filled"`
	FilledVol    Shares          `json:"filled_vol"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	TradeFees    decimal.Decimal `json:"trade_fees"`
	Fees         decimal.Decimal `json:"fees"`
	Commission   decimal.Decimal `json:"commission"`
	Time         Time            `json:"time"`
	CreatedAt    Time            `json:"created_at"`
	RecvAt       Time            `json:"recv_at"`
}

// UnmarshalJSON decodes any server version of a trade/entrust record.
func (f *Fill) UnmarshalJSON(b []byte) error {
	var w fillWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*f = Fill{
		TradeID:      string(w.TID),
		ContractID:   string(w.CID),
		EntrustID:    firstString(string(w.EID), string(w.EntrustID)),
		Security:     firstString(w.Security, w.Code),
		Name:         firstString(w.Name, w.Alias),
		Side:         w.Side,
		OrderType:    w.BidType,
		Status:       w.Status,
		Price:        w.Price,
		AvgPrice:     w.AvgPrice,
		Volume:       w.Volume,
		Filled:       w.Filled,
		FilledAmount: w.FilledAmount,
		Fees:         firstDecimal(w.TradeFees, w.Fees, w.Commission),
		Time:         w.Time,
		CreatedAt:    w.CreatedAt,
		RecvAt:       w.RecvAt,
	}
	if f.OrderType == 0 {
		f.OrderType = w.OrderType
	}
	if f.Status == 0 {
		f.Status = w.OrderStatus
	}
	if f.Filled == 0 {
		f.Filled = w.FilledVol
	}
	return nil
}

// FillPrice is the average fill price when reported, else the record price.
func (f Fill) FillPrice() decimal.Decimal {
	if !f.AvgPrice.IsZero() {
		return f.AvgPrice
	}
	return f.Price
}

// SellResult preserves the two sell response shapes: a backtest sell returns
// the ordered ledger entries it produced, a live sell returns one entrust.
type SellResult struct {
	Fills   []Fill `json:"fills,omitempty"`
	Entrust *Fill  `json:"entrust,omitempty"`
}

// All returns the records of either shape as a slice.
func (r *SellResult) All() []Fill {
	if r == nil {
		return nil
	}
	if r.Entrust != nil {
		return []Fill{*r.Entrust}
	}
	return r.Fills
}

// DecodeSellResult decodes a JSON array into Fills and an object into Entrust.
func DecodeSellResult(b []byte) (*SellResult, error) {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return &SellResult{}, nil
	case trimmed[0] == '[':
		var fills []Fill
		if err := json.Unmarshal(trimmed, &fills); err != nil {
			return nil, err
		}
		return &SellResult{Fills: fills}, nil
	case trimmed[0] == '{':
		var fill Fill
		if err := json.Unmarshal(trimmed, &fill); err != nil {
			return nil, err
		}
		return &SellResult{Entrust: &fill}, nil
	default:
		return nil, fmt.Errorf("sell result must be an object or an array")
	}
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstDecimal(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if !v.IsZero() {
			return v
		}
	}
	return decimal.Zero
}
