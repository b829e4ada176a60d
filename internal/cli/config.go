package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/traderclient/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage traderclient configuration files.

Examples:
  traderclient config init -o traderclient.yaml
  traderclient config validate -f traderclient.yaml`,
		// The config file may not exist yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created default configuration: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "traderclient.yaml", "output config file path")

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %s\n", path)
			fmt.Fprintf(out, "  server:  %s (%s wire)\n", cfg.URL, cfg.Wire)
			fmt.Fprintf(out, "  account: %s\n", cfg.Account)
			if cfg.Backtest.Enabled {
				fmt.Fprintf(out, "  backtest: %s to %s, principal %.2f\n", cfg.Backtest.Start, cfg.Backtest.End, cfg.Backtest.Principal)
			}
			fmt.Fprintf(out, "  journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validate.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validate.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validate)
	return cmd
}
