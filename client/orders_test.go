package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/errs"
	"github.com/rustyeddy/traderclient/internal/testserver"
	"github.com/rustyeddy/traderclient/transport"
)

func TestBuyRoundsVolumeToLot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		requested int
		wire      float64
		warned    bool
	}{
		{500, 500, false},
		{550, 500, true},
		{199, 100, true},
		{1000, 1000, false},
	}

	for _, tt := range tests {
		logger, logs := observed(zapcore.WarnLevel)
		srv := testserver.New(t)
		c := newBacktest(t, srv, WithLogger(logger))

		_, err := c.Buy(context.Background(), broker.OrderRequest{
			Security:  "002537.XSHE",
			Price:     decimal.NewFromInt(10),
			Volume:    tt.requested,
			OrderTime: at(1, 10, 4),
		})
		require.NoError(t, err, tt.requested)

		req, _ := srv.Last(transport.CmdBuy)
		assert.Equal(t, tt.wire, req.Body["volume"], tt.requested)

		warnings := logs.FilterMessage("volume rounded down to a multiple of the lot size").All()
		if tt.warned {
			require.Len(t, warnings, 1, tt.requested)
			fields := warnings[0].ContextMap()
			assert.EqualValues(t, tt.requested, fields["requested"])
			assert.EqualValues(t, tt.wire, fields["volume"])
		} else {
			assert.Empty(t, warnings, tt.requested)
		}
	}
}

func TestMarketBuyRoundsAndSendsZeroPrice(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t)
	c := newBacktest(t, srv)

	fill, err := c.MarketBuy(context.Background(), broker.MarketOrderRequest{
		Security:  "002537.XSHE",
		Volume:    333,
		OrderTime: at(1, 9, 35),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 300, fill.Filled)

	req, _ := srv.Last(transport.CmdMarketBuy)
	assert.Equal(t, 300.0, req.Body["volume"])
	assert.Equal(t, 0.0, req.Body["price"])
	assert.Equal(t, float64(broker.OrderTypeMarket), req.Body["order_type"])
	assert.NotContains(t, req.Body, "limit_price")

	limit := decimal.RequireFromString("9.9")
	_, err = c.MarketBuy(context.Background(), broker.MarketOrderRequest{
		Security:   "002537.XSHE",
		Volume:     100,
		OrderType:  broker.OrderTypeLimit,
		LimitPrice: &limit,
		OrderTime:  at(1, 9, 36),
	})
	require.NoError(t, err)

	req, _ = srv.Last(transport.CmdMarketBuy)
	assert.Equal(t, 9.9, req.Body["limit_price"])
	assert.Equal(t, float64(broker.OrderTypeLimit), req.Body["order_type"])
}

func TestSellVolumeIsNotRounded(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t)
	c := newBacktest(t, srv)
	ctx := context.Background()

	_, err := c.Buy(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 200, OrderTime: at(1, 10, 0)})
	require.NoError(t, err)

	for i, v := range []int{37, 50} {
		_, err := c.Sell(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.RequireFromString("9.5"), Volume: v, OrderTime: at(2, 10, i)})
		require.NoError(t, err)
		req, _ := srv.Last(transport.CmdSell)
		assert.Equal(t, float64(v), req.Body["volume"])
	}

	sr, err := c.MarketSell(ctx, broker.MarketOrderRequest{Security: "002537.XSHE", Volume: 13, OrderTime: at(2, 11, 0)})
	require.NoError(t, err)
	require.Len(t, sr.Fills, 1)
	assert.EqualValues(t, 13, sr.Fills[0].Filled)

	req, _ := srv.Last(transport.CmdMarketSell)
	assert.Equal(t, 13.0, req.Body["volume"])
	assert.Equal(t, 0.0, req.Body["price"])
}

func TestBacktestOrdersRequireOrderTime(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t)
	c := newBacktest(t, srv)
	ctx := context.Background()
	before := srv.TotalCalls()

	calls := map[string]func() error{
		transport.CmdBuy: func() error {
			_, err := c.Buy(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 100})
			return err
		},
		transport.CmdSell: func() error {
			_, err := c.Sell(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 100})
			return err
		},
		transport.CmdMarketBuy: func() error {
			_, err := c.MarketBuy(ctx, broker.MarketOrderRequest{Security: "002537.XSHE", Volume: 100})
			return err
		},
		transport.CmdMarketSell: func() error {
			_, err := c.MarketSell(ctx, broker.MarketOrderRequest{Security: "002537.XSHE", Volume: 100})
			return err
		},
	}

	for cmd, call := range calls {
		err := call()
		require.Error(t, err, cmd)
		assert.True(t, errors.Is(err, errs.ErrPrecondition), cmd)

		var e *errs.Error
		require.True(t, errors.As(err, &e), cmd)
		assert.Equal(t, cmd, e.Command)
	}
	assert.Equal(t, before, srv.TotalCalls())
}

func TestLiveOrdersOmitOrderTime(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t, testserver.Live())
	srv.Sim.Seed("600000.XSHG", 1000, 6.8, time.Time{})
	c := newLive(t, srv)
	ctx := context.Background()

	fill, err := c.Buy(ctx, broker.OrderRequest{
		Security:  "002537.XSHE",
		Price:     decimal.NewFromInt(10),
		Volume:    100,
		OrderTime: at(1, 10, 0),
		Extra:     map[string]any{"order_time": "2022-03-01 10:00:00", "strategy": "ema"},
	})
	require.NoError(t, err)
	assert.False(t, fill.CreatedAt.IsZero())
	assert.False(t, fill.RecvAt.IsZero())
	assert.True(t, fill.Time.IsZero())
	assert.Equal(t, broker.StatusFilled, fill.Status)

	req, _ := srv.Last(transport.CmdBuy)
	assert.NotContains(t, req.Body, "order_time")
	assert.Equal(t, "ema", req.Body["strategy"])

	sr, err := c.Sell(ctx, broker.OrderRequest{Security: "600000.XSHG", Price: decimal.RequireFromString("7"), Volume: 600})
	require.NoError(t, err)
	require.NotNil(t, sr.Entrust)
	assert.Empty(t, sr.Fills)
	assert.EqualValues(t, 600, sr.Entrust.Filled)
	assert.False(t, sr.Entrust.CreatedAt.IsZero())
	assert.False(t, sr.Entrust.RecvAt.IsZero())
	assert.Equal(t, "600000.XSHG", sr.Entrust.Security)
}

func TestSellPercent(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t)
	c := newBacktest(t, srv)
	ctx := context.Background()

	_, err := c.Buy(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 500, OrderTime: at(1, 10, 0)})
	require.NoError(t, err)
	before := srv.TotalCalls()

	for _, p := range []float64{0, -0.5, 1.01, 2} {
		sr, err := c.SellPercent(ctx, broker.PercentSellRequest{Security: "002537.XSHE", Percent: p, OrderTime: at(2, 10, 0)})
		assert.NoError(t, err, p)
		assert.Nil(t, sr, p)
	}
	sr, err := c.SellPercent(ctx, broker.PercentSellRequest{Security: "00253", Percent: 0.5, OrderTime: at(2, 10, 0)})
	assert.NoError(t, err)
	assert.Nil(t, sr)
	assert.Equal(t, before, srv.TotalCalls())

	sr, err = c.SellPercent(ctx, broker.PercentSellRequest{Security: "002537.XSHE", Percent: 0.5, OrderTime: at(2, 10, 0)})
	require.NoError(t, err)
	require.NotNil(t, sr)
	require.Len(t, sr.Fills, 1)
	assert.EqualValues(t, 250, sr.Fills[0].Filled)

	req, _ := srv.Last(transport.CmdSellPercent)
	assert.Equal(t, 0.5, req.Body["percent"])
	assert.Equal(t, "2022-03-02 10:00:00", req.Body["order_time"])
}

func TestSellAll(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t)
	c := newBacktest(t, srv)
	ctx := context.Background()

	for sec, limit := range map[string]string{"002537.XSHE": "10", "600000.XSHG": "7.2"} {
		_, err := c.Buy(ctx, broker.OrderRequest{Security: sec, Price: decimal.RequireFromString(limit), Volume: 400, OrderTime: at(1, 10, 0)})
		require.NoError(t, err)
	}
	before := srv.TotalCalls()

	for _, p := range []float64{0, -1, 1.5} {
		sr, err := c.SellAll(ctx, p, at(2, 10, 0), 0)
		assert.NoError(t, err)
		assert.Nil(t, sr)
	}
	assert.Equal(t, before, srv.TotalCalls())

	sr, err := c.SellAll(ctx, 1, at(2, 10, 0), time.Second)
	require.NoError(t, err)
	require.Len(t, sr.Fills, 2)
	for _, f := range sr.Fills {
		assert.EqualValues(t, 400, f.Filled)
	}

	req, _ := srv.Last(transport.CmdSellAll)
	assert.Equal(t, 1.0, req.Body["percent"])
	assert.Equal(t, 1.0, req.Body["timeout"])
}

func TestCancelEntrusts(t *testing.T) {
	t.Parallel()

	srv := testserver.New(t, testserver.Live())
	c := newLive(t, srv)
	ctx := context.Background()

	_, err := c.CancelEntrust(ctx, "")
	assert.True(t, errors.Is(err, errs.ErrPrecondition))

	f, err := c.CancelEntrust(ctx, "c-42")
	require.NoError(t, err)
	assert.Equal(t, "c-42", f.ContractID)
	assert.Equal(t, broker.StatusCancelledAll, f.Status)

	srv.Handle(transport.CmdCancelAllEntrusts, func(w http.ResponseWriter, r *http.Request) {
		testserver.WriteJSON(w, http.StatusOK, []map[string]any{
			{"cid": "c-1", "order_status": 4},
			{"cid": "c-2", "order_status": 4},
		})
	})
	all, err := c.CancelAllEntrusts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c-2", all[1].ContractID)
}

type memRecorder struct {
	mu    sync.Mutex
	fills []broker.Fill
	err   error
}

func (m *memRecorder) RecordFill(ctx context.Context, account string, f broker.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.fills = append(m.fills, f)
	return nil
}

func TestRecorderReceivesFills(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	srv := testserver.New(t)
	c := newBacktest(t, srv, WithRecorder(rec))
	ctx := context.Background()

	_, err := c.Buy(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 200, OrderTime: at(1, 10, 0)})
	require.NoError(t, err)
	_, err = c.Sell(ctx, broker.OrderRequest{Security: "002537.XSHE", Price: decimal.RequireFromString("9.5"), Volume: 200, OrderTime: at(2, 10, 0)})
	require.NoError(t, err)

	require.Len(t, rec.fills, 2)
	assert.Equal(t, broker.SideBuy, rec.fills[0].Side)
	assert.Equal(t, broker.SideSell, rec.fills[1].Side)
}

func TestRecorderFailureIsOnlyLogged(t *testing.T) {
	t.Parallel()

	logger, logs := observed(zapcore.ErrorLevel)
	rec := &memRecorder{err: errors.New("disk full")}
	srv := testserver.New(t)
	c := newBacktest(t, srv, WithRecorder(rec), WithLogger(logger))

	_, err := c.Buy(context.Background(), broker.OrderRequest{Security: "002537.XSHE", Price: decimal.NewFromInt(10), Volume: 100, OrderTime: at(1, 10, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("failed to record fill").Len())
}
