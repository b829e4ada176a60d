package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/traderclient/client"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "auto", cfg.Wire)
	assert.Equal(t, 0.5, cfg.TimeoutSeconds)
	assert.Equal(t, 1_000_000.0, cfg.Backtest.Principal)
	assert.Equal(t, client.DefaultCommission, cfg.Backtest.Commission)
	assert.Equal(t, "none", cfg.Journal.Type)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.RequireSession())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.URL = " " }, "url is required"},
		{"unknown wire", func(c *Config) { c.Wire = "xml" }, "wire"},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"backtest without dates", func(c *Config) { c.Backtest.Enabled = true }, "backtest.start and backtest.end are required"},
		{"backtest bad date", func(c *Config) {
			c.Backtest = BacktestConfig{Enabled: true, Start: "March 1", End: "2022-03-14"}
		}, "backtest.start"},
		{"backtest reversed", func(c *Config) {
			c.Backtest = BacktestConfig{Enabled: true, Start: "2022-03-14", End: "2022-03-01"}
		}, "must not be after"},
		{"backtest ok", func(c *Config) {
			c.Backtest = BacktestConfig{Enabled: true, Start: "2022-03-01", End: "2022-03-14"}
		}, ""},
		{"sqlite without path", func(c *Config) { c.Journal.Type = "sqlite" }, "db_path"},
		{"csv without files", func(c *Config) { c.Journal = JournalConfig{Type: "csv", FillsFile: "f.csv"} }, "assets_file"},
		{"unknown journal", func(c *Config) { c.Journal.Type = "kafka" }, "journal.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	for _, ext := range []string{".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			cfg := Default()
			cfg.Account = "acct"
			cfg.Token = "secret"
			cfg.Wire = "envelope"
			cfg.Backtest = BacktestConfig{Enabled: true, Principal: 50_000, Commission: 1e-4, Start: "2022-03-01", End: "2022-03-14"}
			cfg.Journal = JournalConfig{Type: "sqlite", DBPath: filepath.Join(tmpDir, "j.db")}
			path := filepath.Join(tmpDir, "traderclient"+ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
			assert.NoError(t, loaded.RequireSession())
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: from-file\ntoken: tok\n"), 0o600))

	t.Setenv("TRADER_ACCOUNT", "from-env")
	t.Setenv("TRADER_BACKTEST_PRINCIPAL", "250000")
	t.Setenv("TRADER_WIRE", "direct")
	t.Setenv("TRADER_ACCEPT_ANY_2XX", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 250_000.0, cfg.Backtest.Principal)
	assert.Equal(t, "direct", cfg.Wire)
	assert.True(t, cfg.AcceptAny2xx)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().URL, cfg.URL)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("wire: xml\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestOrderTimeout(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 500*time.Millisecond, cfg.OrderTimeout())
	cfg.TimeoutSeconds = 2.5
	assert.Equal(t, 2500*time.Millisecond, cfg.OrderTimeout())
	cfg.TimeoutSeconds = 0
	assert.Equal(t, 500*time.Millisecond, cfg.OrderTimeout())
}

func TestClientOptions(t *testing.T) {
	cfg := Default()
	opts, err := cfg.ClientOptions(false)
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	cfg.Backtest = BacktestConfig{Enabled: true, Start: "2022-03-01", End: "2022-03-14"}
	opts, err = cfg.ClientOptions(false)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	cfg.AcceptAny2xx = true
	opts, err = cfg.ClientOptions(false)
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	cfg.Wire = "bogus"
	_, err = cfg.ClientOptions(false)
	assert.Error(t, err)
}
