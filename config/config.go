package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/traderclient/broker"
	"github.com/rustyeddy/traderclient/client"
	"github.com/rustyeddy/traderclient/transport"
)

// EnvPrefix prefixes every environment override, e.g. TRADER_ACCOUNT or
// TRADER_BACKTEST_PRINCIPAL.
const EnvPrefix = "TRADER"

// Config is the client configuration file.
type Config struct {
	URL            string         `mapstructure:"url" json:"url" yaml:"url"`
	Account        string         `mapstructure:"account" json:"account" yaml:"account"`
	Token          string         `mapstructure:"token" json:"token" yaml:"token"`
	AdminToken     string         `mapstructure:"admin_token" json:"admin_token,omitempty" yaml:"admin_token,omitempty"`
	Wire           string         `mapstructure:"wire" json:"wire" yaml:"wire"`
	TimeoutSeconds float64        `mapstructure:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	AcceptAny2xx   bool           `mapstructure:"accept_any_2xx" json:"accept_any_2xx" yaml:"accept_any_2xx"`
	LogLevel       string         `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	Backtest       BacktestConfig `mapstructure:"backtest" json:"backtest" yaml:"backtest"`
	Journal        JournalConfig  `mapstructure:"journal" json:"journal" yaml:"journal"`
}

// BacktestConfig creates a backtest account when Enabled. Dates are YYYY-MM-DD.
type BacktestConfig struct {
	Enabled    bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Principal  float64 `mapstructure:"principal" json:"principal" yaml:"principal"`
	Commission float64 `mapstructure:"commission" json:"commission" yaml:"commission"`
	Start      string  `mapstructure:"start" json:"start" yaml:"start"`
	End        string  `mapstructure:"end" json:"end" yaml:"end"`
}

// JournalConfig selects the local fill journal.
type JournalConfig struct {
	Type       string `mapstructure:"type" json:"type" yaml:"type"` // "none", "sqlite" or "csv"
	DBPath     string `mapstructure:"db_path" json:"db_path,omitempty" yaml:"db_path,omitempty"`
	FillsFile  string `mapstructure:"fills_file" json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	AssetsFile string `mapstructure:"assets_file" json:"assets_file,omitempty" yaml:"assets_file,omitempty"`
}

// Default returns a live configuration against a local server.
func Default() *Config {
	return &Config{
		URL:            "http://localhost:7080/",
		Wire:           "auto",
		TimeoutSeconds: broker.DefaultOrderTimeout.Seconds(),
		LogLevel:       "info",
		Backtest: BacktestConfig{
			Principal:  client.DefaultPrincipal.InexactFloat64(),
			Commission: client.DefaultCommission,
		},
		Journal: JournalConfig{Type: "none"},
	}
}

// Load reads path (YAML or JSON by extension) over the defaults and applies
// TRADER_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("url", d.URL)
	v.SetDefault("account", d.Account)
	v.SetDefault("token", d.Token)
	v.SetDefault("admin_token", d.AdminToken)
	v.SetDefault("wire", d.Wire)
	v.SetDefault("timeout_seconds", d.TimeoutSeconds)
	v.SetDefault("accept_any_2xx", d.AcceptAny2xx)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("backtest.enabled", d.Backtest.Enabled)
	v.SetDefault("backtest.principal", d.Backtest.Principal)
	v.SetDefault("backtest.commission", d.Backtest.Commission)
	v.SetDefault("backtest.start", d.Backtest.Start)
	v.SetDefault("backtest.end", d.Backtest.End)
	v.SetDefault("journal.type", d.Journal.Type)
	v.SetDefault("journal.db_path", d.Journal.DBPath)
	v.SetDefault("journal.fills_file", d.Journal.FillsFile)
	v.SetDefault("journal.assets_file", d.Journal.AssetsFile)
}

// SaveToFile writes the configuration as YAML for .yaml/.yml paths and as
// JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the fields a session needs. Account and token are checked
// by RequireSession since admin commands run without them.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := transport.ParseWireMode(c.Wire); err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if c.Backtest.Enabled {
		if c.Backtest.Principal < 0 {
			return fmt.Errorf("backtest.principal must not be negative")
		}
		if c.Backtest.Commission < 0 {
			return fmt.Errorf("backtest.commission must not be negative")
		}
		start, end, err := c.Backtest.Window()
		if err != nil {
			return err
		}
		if start.After(end) {
			return fmt.Errorf("backtest.start must not be after backtest.end")
		}
	}

	switch c.Journal.Type {
	case "", "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	case "csv":
		if c.Journal.FillsFile == "" || c.Journal.AssetsFile == "" {
			return fmt.Errorf("journal fills_file and assets_file required for csv type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'sqlite' or 'csv'")
	}
	return nil
}

// RequireSession reports whether account and token are set.
func (c *Config) RequireSession() error {
	if strings.TrimSpace(c.Account) == "" {
		return fmt.Errorf("account is required")
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// Window parses the backtest start and end dates.
func (b BacktestConfig) Window() (time.Time, time.Time, error) {
	if b.Start == "" || b.End == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start and backtest.end are required")
	}
	start, err := broker.ParseTime(b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start: %w", err)
	}
	end, err := broker.ParseTime(b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end: %w", err)
	}
	return start, end, nil
}

// OrderTimeout is the fill timeout sent with orders.
func (c *Config) OrderTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return broker.DefaultOrderTimeout
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ClientOptions translates the file into facade options. With attach a
// backtest session reuses the server account instead of creating it. Logger
// and recorder are appended by the caller.
func (c *Config) ClientOptions(attach bool) ([]client.Option, error) {
	mode, err := transport.ParseWireMode(c.Wire)
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithWireMode(mode)}
	if c.AcceptAny2xx {
		opts = append(opts, client.WithAcceptAny2xx())
	}

	if c.Backtest.Enabled {
		start, end, err := c.Backtest.Window()
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithBacktest(client.BacktestParams{
			Principal:  decimal.NewFromFloat(c.Backtest.Principal),
			Commission: c.Backtest.Commission,
			Start:      start,
			End:        end,
			Attach:     attach,
		}))
	}
	return opts, nil
}
