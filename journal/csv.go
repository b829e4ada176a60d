package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/rustyeddy/traderclient/broker"
)

var (
	fillsHeader  = []string{"id", "account", "trade_id", "entrust_id", "contract_id", "security", "side", "price", "volume", "filled", "fees", "time"}
	assetsHeader = []string{"account", "date", "assets"}
)

// CSV appends fills and asset snapshots to two files.
type CSV struct {
	mu     sync.Mutex
	fills  *csv.Writer
	assets *csv.Writer
	ff, af *os.File
}

var _ Journal = (*CSV)(nil)

// NewCSV creates both files and writes their headers.
func NewCSV(fillsPath, assetsPath string) (*CSV, error) {
	ff, err := os.Create(fillsPath)
	if err != nil {
		return nil, err
	}
	af, err := os.Create(assetsPath)
	if err != nil {
		ff.Close()
		return nil, err
	}

	j := &CSV{fills: csv.NewWriter(ff), assets: csv.NewWriter(af), ff: ff, af: af}
	if err := j.write(j.fills, fillsHeader); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.write(j.assets, assetsHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) RecordFill(ctx context.Context, account string, f broker.Fill) error {
	r := FromFill(account, f)

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.fills, []string{
		r.ID,
		r.Account,
		r.TradeID,
		r.EntrustID,
		r.ContractID,
		r.Security,
		r.Side.String(),
		r.Price.String(),
		strconv.Itoa(r.Volume),
		strconv.Itoa(r.Filled),
		r.Fees.String(),
		broker.FormatTime(r.Time),
	})
}

func (j *CSV) RecordAssets(ctx context.Context, account string, curve []broker.AssetSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, s := range curve {
		if err := j.assets.Write([]string{account, broker.FormatDate(s.Date.Time), s.Assets.String()}); err != nil {
			return err
		}
	}
	j.assets.Flush()
	return j.assets.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.assets.Flush()
	if err := j.assets.Error(); err != nil {
		return err
	}

	if err := j.ff.Close(); err != nil {
		return err
	}
	return j.af.Close()
}
