package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/journal"
)

// orderFlags are shared by every order command.
type orderFlags struct {
	security   string
	price      string
	limitPrice string
	volume     int
	percent    float64
	at         string
	timeout    time.Duration
}

func (f *orderFlags) register(fs *pflag.FlagSet, priced bool) {
	fs.StringVarP(&f.security, "security", "s", "", "Security code, e.g. 600000.XSHG")
	fs.StringVar(&f.at, "at", "", "Order time YYYY-MM-DD HH:MM:SS (required in backtest)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Fill timeout (default from config)")
	if priced {
		fs.StringVarP(&f.price, "price", "p", "", "Limit price")
	}
}

func (f *orderFlags) orderTime() (time.Time, error) {
	return parseOptionalTime("at", f.at)
}

func (f *orderFlags) fillTimeout(rc *RootConfig) time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return rc.cfg.OrderTimeout()
}

func (f *orderFlags) limit() (decimal.Decimal, error) {
	if f.price == "" {
		return decimal.Zero, fmt.Errorf("--price is required")
	}
	d, err := decimal.NewFromString(f.price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad --price: %w", err)
	}
	return d, nil
}

func (f *orderFlags) orderRequest(rc *RootConfig) (broker.OrderRequest, error) {
	if f.security == "" {
		return broker.OrderRequest{}, fmt.Errorf("--security is required")
	}
	price, err := f.limit()
	if err != nil {
		return broker.OrderRequest{}, err
	}
	at, err := f.orderTime()
	if err != nil {
		return broker.OrderRequest{}, err
	}
	return broker.OrderRequest{
		Security:  f.security,
		Price:     price,
		Volume:    f.volume,
		OrderTime: at,
		Timeout:   f.fillTimeout(rc),
	}, nil
}

func (f *orderFlags) marketRequest(rc *RootConfig) (broker.MarketOrderRequest, error) {
	if f.security == "" {
		return broker.MarketOrderRequest{}, fmt.Errorf("--security is required")
	}
	at, err := f.orderTime()
	if err != nil {
		return broker.MarketOrderRequest{}, err
	}
	req := broker.MarketOrderRequest{
		Security:  f.security,
		Volume:    f.volume,
		OrderTime: at,
		Timeout:   f.fillTimeout(rc),
	}
	if f.limitPrice != "" {
		lp, err := decimal.NewFromString(f.limitPrice)
		if err != nil {
			return req, fmt.Errorf("bad --limit-price: %w", err)
		}
		req.LimitPrice = &lp
		req.OrderType = broker.OrderTypeLimit
	}
	return req, nil
}

func newOrderCmds(rc *RootConfig) []*cobra.Command {
	return []*cobra.Command{
		newLimitOrderCmd(rc, "buy", "Place a limit buy", func(ctx context.Context, c *client.Client, req broker.OrderRequest) (any, error) {
			return c.Buy(ctx, req)
		}),
		newLimitOrderCmd(rc, "sell", "Place a limit sell", func(ctx context.Context, c *client.Client, req broker.OrderRequest) (any, error) {
			return c.Sell(ctx, req)
		}),
		newMarketOrderCmd(rc, "market-buy", "Place a market buy", func(ctx context.Context, c *client.Client, req broker.MarketOrderRequest) (any, error) {
			return c.MarketBuy(ctx, req)
		}),
		newMarketOrderCmd(rc, "market-sell", "Place a market sell", func(ctx context.Context, c *client.Client, req broker.MarketOrderRequest) (any, error) {
			return c.MarketSell(ctx, req)
		}),
		newSellPercentCmd(rc),
		newSellAllCmd(rc),
	}
}

func newLimitOrderCmd(rc *RootConfig, use, short string, place func(context.Context, *client.Client, broker.OrderRequest) (any, error)) *cobra.Command {
	f := &orderFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.orderRequest(rc)
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				out, err := place(ctx, c, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	f.register(cmd.Flags(), true)
	cmd.Flags().IntVarP(&f.volume, "volume", "v", 0, "Shares")
	return cmd
}

func newMarketOrderCmd(rc *RootConfig, use, short string, place func(context.Context, *client.Client, broker.MarketOrderRequest) (any, error)) *cobra.Command {
	f := &orderFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.marketRequest(rc)
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				out, err := place(ctx, c, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	f.register(cmd.Flags(), false)
	cmd.Flags().IntVarP(&f.volume, "volume", "v", 0, "Shares")
	cmd.Flags().StringVar(&f.limitPrice, "limit-price", "", "Fill the remainder as a limit order at this price")
	return cmd
}

func newSellPercentCmd(rc *RootConfig) *cobra.Command {
	f := &orderFlags{}
	cmd := &cobra.Command{
		Use:   "sell-percent",
		Short: "Sell a fraction of one holding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := f.orderTime()
			if err != nil {
				return err
			}
			var price decimal.Decimal
			if f.price != "" {
				if price, err = f.limit(); err != nil {
					return err
				}
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				sr, err := c.SellPercent(ctx, broker.PercentSellRequest{
					Security:  f.security,
					Price:     price,
					Percent:   f.percent,
					OrderTime: at,
					Timeout:   f.fillTimeout(rc),
				})
				if err != nil {
					return err
				}
				if sr == nil {
					return fmt.Errorf("sell-percent ignored: check --security and --percent")
				}
				return printJSON(cmd, sr)
			})
		},
	}
	f.register(cmd.Flags(), true)
	cmd.Flags().Float64Var(&f.percent, "percent", 0, "Fraction of the sellable shares in (0, 1]")
	return cmd
}

func newSellAllCmd(rc *RootConfig) *cobra.Command {
	f := &orderFlags{}
	cmd := &cobra.Command{
		Use:   "sell-all",
		Short: "Reduce every holding by a fraction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := f.orderTime()
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				sr, err := c.SellAll(ctx, f.percent, at, f.fillTimeout(rc))
				if err != nil {
					return err
				}
				if sr == nil {
					return fmt.Errorf("sell-all ignored: --percent must be in (0, 1]")
				}
				return printJSON(cmd, sr)
			})
		},
	}
	cmd.Flags().StringVar(&f.at, "at", "", "Order time YYYY-MM-DD HH:MM:SS (backtest)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Fill timeout (default from config)")
	cmd.Flags().Float64Var(&f.percent, "percent", 1, "Fraction of every holding in (0, 1]")
	return cmd
}
