package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/journal"
)

func newReportCmds(rc *RootConfig) []*cobra.Command {
	return []*cobra.Command{
		newMetricsCmd(rc),
		newBillsCmd(rc),
		newAssetsCmd(rc),
		newRecordsCmd(rc, "trades", "List trades", (*client.Client).TodayTrades, (*client.Client).TradesInRange),
		newRecordsCmd(rc, "entrusts", "List entrusts", (*client.Client).TodayEntrusts, (*client.Client).EntrustsInRange),
		newCancelCmd(rc),
	}
}

func newMetricsCmd(rc *RootConfig) *cobra.Command {
	var (
		baseline string
		start    string
		end      string
		orgPath  string
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the performance report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseOptionalTime("start", start)
			if err != nil {
				return err
			}
			e, err := parseOptionalTime("end", end)
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, j journal.Journal) error {
				m, err := c.Metrics(ctx, broker.MetricsQuery{Start: broker.NewTime(s), End: broker.NewTime(e), Baseline: baseline})
				if err != nil {
					return err
				}
				if orgPath == "" {
					return printJSON(cmd, m)
				}
				return writeReport(ctx, rc, c, j, m, orgPath)
			})
		},
	}
	cmd.Flags().StringVar(&baseline, "baseline", "", "Reference security for baseline ratios")
	cmd.Flags().StringVar(&start, "start", "", "Window start YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Window end YYYY-MM-DD")
	cmd.Flags().StringVar(&orgPath, "org", "", "Write an Org report to this path instead of printing JSON")
	return cmd
}

func writeReport(ctx context.Context, rc *RootConfig, c *client.Client, j journal.Journal, m *broker.Metrics, path string) error {
	curve, err := c.Assets(ctx, m.Start.Time, m.End.Time)
	if err != nil {
		return err
	}
	principal, err := c.Principal(ctx)
	if err != nil {
		return err
	}

	r := &journal.Report{
		Account:   c.Account(),
		Created:   time.Now(),
		Start:     m.Start.Time,
		End:       m.End.Time,
		Principal: principal,
		Metrics:   *m,
		Curve:     curve,
	}
	if db, ok := j.(*journal.SQLite); ok {
		if r.Fills, err = db.ListFills(ctx, c.Account(), time.Time{}, time.Time{}); err != nil {
			return err
		}
	}
	if err := r.WriteOrgFile(path); err != nil {
		return err
	}
	rc.logger.Info("report written", zap.String("path", path))
	return nil
}

func newBillsCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "bills",
		Short: "Show transactions, trades, positions and assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				b, err := c.Bills(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	}
}

func newAssetsCmd(rc *RootConfig) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Show the daily asset curve and journal it when a journal is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseOptionalTime("start", start)
			if err != nil {
				return err
			}
			e, err := parseOptionalTime("end", end)
			if err != nil {
				return err
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, j journal.Journal) error {
				curve, err := c.Assets(ctx, s, e)
				if err != nil {
					return err
				}
				if j != nil {
					if err := j.RecordAssets(ctx, c.Account(), curve); err != nil {
						rc.logger.Error("failed to journal assets", zap.Error(err))
					}
				}
				return printJSON(cmd, curve)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Last date YYYY-MM-DD")
	return cmd
}

type (
	todayFunc func(*client.Client, context.Context) ([]broker.Fill, error)
	rangeFunc func(*client.Client, context.Context, time.Time, time.Time) ([]broker.Fill, error)
)

// newRecordsCmd lists today's records, or a range when --start and --end are given.
func newRecordsCmd(rc *RootConfig, use, short string, today todayFunc, inRange rangeFunc) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseOptionalTime("start", start)
			if err != nil {
				return err
			}
			e, err := parseOptionalTime("end", end)
			if err != nil {
				return err
			}
			if s.IsZero() != e.IsZero() {
				return errors.New("--start and --end must be given together")
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				var out []broker.Fill
				if s.IsZero() {
					out, err = today(c, ctx)
				} else {
					out, err = inRange(c, ctx, s, e)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Range start YYYY-MM-DD HH:MM:SS")
	cmd.Flags().StringVar(&end, "end", "", "Range end YYYY-MM-DD HH:MM:SS")
	return cmd
}

func newCancelCmd(rc *RootConfig) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cancel [cid]",
		Short: "Cancel an open entrust, or every open entrust with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either a contract id or --all")
			}
			return rc.withSession(cmd, func(ctx context.Context, c *client.Client, _ journal.Journal) error {
				if all {
					out, err := c.CancelAllEntrusts(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, out)
				}
				f, err := c.CancelEntrust(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, f)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every unfinished entrust")
	return cmd
}
