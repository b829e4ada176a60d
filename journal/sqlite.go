package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/traderclient/broker"
)

// SQLite is a Journal backed by a single sqlite3 file.
type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite journal: path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite journal: create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordFill stores f. A fill recorded twice under the same id replaces the
// earlier row, so partial fills converge on the final state.
func (j *SQLite) RecordFill(ctx context.Context, account string, f broker.Fill) error {
	return j.InsertFill(ctx, FromFill(account, f))
}

func (j *SQLite) InsertFill(ctx context.Context, r FillRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fills
		(id, account, trade_id, entrust_id, contract_id, security, side, price, volume, filled, fees, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Account, r.TradeID, r.EntrustID, r.ContractID, r.Security,
		int(r.Side), r.Price, r.Volume, r.Filled, r.Fees, broker.FormatTime(r.Time),
	)
	return err
}

// RecordAssets upserts one row per date of curve.
func (j *SQLite) RecordAssets(ctx context.Context, account string, curve []broker.AssetSnapshot) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (account, date, assets) VALUES (?, ?, ?)
		ON CONFLICT(account, date) DO UPDATE SET assets = excluded.assets`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range curve {
		if _, err := stmt.ExecContext(ctx, account, broker.FormatDate(s.Date.Time), s.Assets); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
