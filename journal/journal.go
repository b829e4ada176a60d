// Package journal keeps a local record of the fills and daily assets a
// session produced.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/pkg/id"
)

// FillRecord is one journaled fill.
type FillRecord struct {
	ID         string
	Account    string
	TradeID    string
	EntrustID  string
	ContractID string
	Security   string
	Side       broker.Side
	Price      decimal.Decimal
	Volume     int
	Filled     int
	Fees       decimal.Decimal
	Time       time.Time
}

// Amount is the traded value of the filled shares.
func (r FillRecord) Amount() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(int64(r.Filled)))
}

// AssetRecord is the total assets of an account on one date.
type AssetRecord struct {
	Account string
	Date    time.Time
	Assets  decimal.Decimal
}

// Journal stores fills and asset curves. It satisfies client.Recorder.
type Journal interface {
	RecordFill(ctx context.Context, account string, f broker.Fill) error
	RecordAssets(ctx context.Context, account string, curve []broker.AssetSnapshot) error
	Close() error
}

// FromFill converts a server record. The trade, entrust or contract id becomes
// the row id; records without one get a fresh ULID.
func FromFill(account string, f broker.Fill) FillRecord {
	at := f.Time.Time
	if at.IsZero() {
		at = f.CreatedAt.Time
	}
	if at.IsZero() {
		at = time.Now()
	}

	rowID := f.TradeID
	if rowID == "" {
		rowID = f.EntrustID
	}
	if rowID == "" {
		rowID = f.ContractID
	}
	if rowID == "" {
		rowID = id.Record()
	}

	return FillRecord{
		ID:         rowID,
		Account:    account,
		TradeID:    f.TradeID,
		EntrustID:  f.EntrustID,
		ContractID: f.ContractID,
		Security:   f.Security,
		Side:       f.Side,
		Price:      f.FillPrice(),
		Volume:     int(f.Volume),
		Filled:     int(f.Filled),
		Fees:       f.Fees,
		Time:       at,
	}
}

// Open returns the journal configured by kind: "sqlite" uses dbPath, "csv"
// uses fillsPath and assetsPath. "none" and "" return a nil Journal.
func Open(kind, dbPath, fillsPath, assetsPath string) (Journal, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLite(dbPath)
	case "csv":
		return NewCSV(fillsPath, assetsPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", kind)
	}
}
