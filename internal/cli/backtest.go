package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/journal"
)

func newBacktestCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Create or stop the configured backtest account",
	}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := rc.load(cmd); err != nil {
			return err
		}
		if !rc.cfg.Backtest.Enabled {
			return fmt.Errorf("%s requires backtest.enabled in the config", cmd.CommandPath())
		}
		return nil
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Create the backtest account on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.run(cmd, true, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "backtest account %s created (%s to %s)\n",
					c.Account(), rc.cfg.Backtest.Start, rc.cfg.Backtest.End)
				return err
			})
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the backtest so the server freezes the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				if err := c.StopBacktest(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "backtest stopped")
				return err
			})
		},
	}

	cmd.AddCommand(start, stop)
	return cmd
}
