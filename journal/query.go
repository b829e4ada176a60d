package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/traderclient/broker"
)

const fillColumns = `id, account, trade_id, entrust_id, contract_id, security, side, price, volume, filled, fees, time`

type scanner interface {
	Scan(dest ...any) error
}

func scanFill(s scanner) (FillRecord, error) {
	var (
		rec  FillRecord
		side int
		at   string
	)
	if err := s.Scan(
		&rec.ID,
		&rec.Account,
		&rec.TradeID,
		&rec.EntrustID,
		&rec.ContractID,
		&rec.Security,
		&side,
		&rec.Price,
		&rec.Volume,
		&rec.Filled,
		&rec.Fees,
		&at,
	); err != nil {
		return FillRecord{}, err
	}
	rec.Side = broker.Side(side)
	t, err := broker.ParseTime(at)
	if err != nil {
		return FillRecord{}, err
	}
	rec.Time = t
	return rec, nil
}

// GetFill returns a single fill by row id.
func (j *SQLite) GetFill(ctx context.Context, id string) (FillRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+fillColumns+` FROM fills WHERE id = ?`, id)
	rec, err := scanFill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FillRecord{}, fmt.Errorf("fill %q not found", id)
	}
	return rec, err
}

// ListFills returns the fills of account with time in [start, end), oldest
// first. Zero bounds are open.
func (j *SQLite) ListFills(ctx context.Context, account string, start, end time.Time) ([]FillRecord, error) {
	q := `SELECT ` + fillColumns + ` FROM fills WHERE account = ?`
	args := []any{account}
	if !start.IsZero() {
		q += ` AND time >= ?`
		args = append(args, broker.FormatTime(start))
	}
	if !end.IsZero() {
		q += ` AND time < ?`
		args = append(args, broker.FormatTime(end))
	}
	q += ` ORDER BY time ASC, id ASC`

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		rec, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAssets returns the stored asset curve of account in date order.
func (j *SQLite) ListAssets(ctx context.Context, account string) ([]AssetRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT account, date, assets FROM assets
		WHERE account = ?
		ORDER BY date ASC`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssetRecord
	for rows.Next() {
		var (
			rec  AssetRecord
			date string
		)
		if err := rows.Scan(&rec.Account, &date, &rec.Assets); err != nil {
			return nil, err
		}
		if rec.Date, err = broker.ParseTime(date); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Position is the net shares and cash flow of one security.
type Position struct {
	Security string
	Shares   int
	Cash     decimal.Decimal
	Fees     decimal.Decimal
}

// Positions nets the journaled fills of account per security. Cash is
// negative for net buyers.
func (j *SQLite) Positions(ctx context.Context, account string) ([]Position, error) {
	fills, err := j.ListFills(ctx, account, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	var out []Position
	for _, f := range fills {
		i, ok := idx[f.Security]
		if !ok {
			i = len(out)
			idx[f.Security] = i
			out = append(out, Position{Security: f.Security})
		}
		p := &out[i]
		switch f.Side {
		case broker.SideBuy:
			p.Shares += f.Filled
			p.Cash = p.Cash.Sub(f.Amount())
		case broker.SideSell:
			p.Shares -= f.Filled
			p.Cash = p.Cash.Add(f.Amount())
		}
		p.Fees = p.Fees.Add(f.Fees)
	}
	return out, nil
}
