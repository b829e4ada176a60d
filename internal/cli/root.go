// Package cli holds the traderclient cobra commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/config"
	"github.com/rustyeddy/traderclient/journal"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// RootConfig holds the persistent flags and what PersistentPreRunE derives
// from them.
type RootConfig struct {
	ConfigPath string
	URL        string
	Account    string
	Token      string
	LogLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "traderclient",
		Short:         "Client for a remote trading and backtest server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.URL, "url", "", "Server base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&rc.Account, "account", "", "Account name (overrides config)")
	cmd.PersistentFlags().StringVar(&rc.Token, "token", "", "Account token (overrides config)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rc.load(cmd)
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if rc.logger != nil {
			_ = rc.logger.Sync()
		}
	}

	cmd.AddCommand(newAccountCmds(rc)...)
	cmd.AddCommand(newOrderCmds(rc)...)
	cmd.AddCommand(newReportCmds(rc)...)
	cmd.AddCommand(
		newAccountsCmd(rc),
		newBacktestCmd(rc),
		newConfigCmd(rc),
		newJournalCmd(rc),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "traderclient %s\n", Version)
		},
	}
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads the config file and applies flag overrides.
func (rc *RootConfig) load(cmd *cobra.Command) error {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = rc.URL
	}
	if flags.Changed("account") {
		cfg.Account = rc.Account
	}
	if flags.Changed("token") {
		cfg.Token = rc.Token
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = rc.LogLevel
	}

	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rc.cfg = cfg
	rc.logger = logger
	return nil
}

// newLogger builds a console logger writing to w.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// session opens the configured journal and connects the facade. Backtest
// sessions attach to the existing account unless create is set. The caller
// closes the returned journal when it is not nil.
func (rc *RootConfig) session(ctx context.Context, create bool) (*client.Client, journal.Journal, error) {
	if err := rc.cfg.RequireSession(); err != nil {
		return nil, nil, err
	}
	opts, err := rc.cfg.ClientOptions(!create)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, client.WithLogger(rc.logger))

	jc := rc.cfg.Journal
	j, err := journal.Open(jc.Type, jc.DBPath, jc.FillsFile, jc.AssetsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		opts = append(opts, client.WithRecorder(j))
	}

	c, err := client.New(ctx, rc.cfg.URL, rc.cfg.Account, rc.cfg.Token, opts...)
	if err != nil {
		if j != nil {
			j.Close()
		}
		return nil, nil, err
	}
	return c, j, nil
}

type sessionFunc func(ctx context.Context, c *client.Client, j journal.Journal) error

// withSession runs fn with a connected facade and closes the journal after.
func (rc *RootConfig) withSession(cmd *cobra.Command, fn sessionFunc) error {
	return rc.run(cmd, false, fn)
}

func (rc *RootConfig) run(cmd *cobra.Command, create bool, fn sessionFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, j, err := rc.session(ctx, create)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}
	return fn(ctx, c, j)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
