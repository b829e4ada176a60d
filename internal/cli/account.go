package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/journal"
)

func newAccountCmds(rc *RootConfig) []*cobra.Command {
	info := &cobra.Command{
		Use:   "info",
		Short: "Show the account snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				info, err := c.Info(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}

	balance := &cobra.Command{
		Use:   "balance",
		Short: "Show the balance summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				b, err := c.Balance(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	}

	var date string
	positions := &cobra.Command{
		Use:   "positions",
		Short: "List positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseOptionalTime("date", date)
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				rows, err := c.Positions(ctx, asOf)
				if err != nil {
					return err
				}
				return printJSON(cmd, rows)
			})
		},
	}
	positions.Flags().StringVar(&date, "date", "", "Historical date YYYY-MM-DD (backtest only)")

	var principal bool
	money := &cobra.Command{
		Use:   "money",
		Short: "Show available money, or the principal with --principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				get := c.AvailableMoney
				if principal {
					get = c.Principal
				}
				v, err := get(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v.StringFixed(2))
				return err
			})
		},
	}
	money.Flags().BoolVar(&principal, "principal", false, "Show the principal instead")

	return []*cobra.Command{info, balance, positions, money}
}

// parseOptionalTime parses a flag value in any of the server's time forms.
func parseOptionalTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := broker.ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --%s: %w", name, err)
	}
	return t, nil
}
