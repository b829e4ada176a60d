package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/traderclient/journal"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the local SQLite fill journal",
		Long: `Query journaled fills.

Examples:
  traderclient journal fills
  traderclient journal fills --day 2022-03-01
  traderclient journal fill <id>
  traderclient journal positions`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite journal path (default from config)")

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			path = rc.cfg.Journal.DBPath
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	var day string
	fills := &cobra.Command{
		Use:   "fills",
		Short: "List journaled fills of the account as Org entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end time.Time
			if day != "" {
				var err error
				if start, end, err = dayBounds(time.Local, day); err != nil {
					return fmt.Errorf("date: %w", err)
				}
			}
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListFills(cmd.Context(), rc.cfg.Account, start, end)
			if err != nil {
				return fmt.Errorf("query fills: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), journal.FormatFillsOrg(recs))
			return nil
		},
	}
	fills.Flags().StringVar(&day, "day", "", "Only fills of this day (YYYY-MM-DD)")

	fill := &cobra.Command{
		Use:   "fill <id>",
		Short: "Show one journaled fill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			rec, err := j.GetFill(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get fill: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), journal.FormatFillOrg(rec))
			return nil
		},
	}

	positions := &cobra.Command{
		Use:   "positions",
		Short: "Net the journaled fills per security",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			ps, err := j.Positions(cmd.Context(), rc.cfg.Account)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), journal.FormatPositionsOrg(ps))
			return nil
		},
	}

	cmd.AddCommand(fills, fill, positions)
	return cmd
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
