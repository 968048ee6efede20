package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Trading.DryRun)
	assert.Equal(t, 60*time.Second, cfg.Trading.PollInterval.Duration)
	assert.Equal(t, 20*time.Second, cfg.Trading.IterationTimeout.Duration)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Trading.MinTradeSize = -1
	cfg.Ledger.HistoryPath = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "min_trade_size")
	assert.Contains(t, err.Error(), "history_path")
}

func TestValidateRealModeRequiresSigningKey(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Gateway.PrivateKey = "deadbeef"
	assert.NoError(t, cfg.Validate())
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.DryRun = false
	cfg.Gateway.EncryptedKeyPath = "key.json"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Trading.PollInterval, cfg.Trading.PollInterval)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "once"
log_level = "debug"

[trading]
dry_run = true
min_trade_size = 2.5
poll_interval = "30s"

[ledger]
positions_path = "/tmp/pos.json"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.Trading.MinTradeSize)
	assert.Equal(t, 30*time.Second, cfg.Trading.PollInterval.Duration)
	assert.Equal(t, "/tmp/pos.json", cfg.Ledger.PositionsPath)
	// untouched fields keep their defaults
	assert.Equal(t, "trade_history.csv", cfg.Ledger.HistoryPath)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[trading]
min_trade_size = 2.0
`), 0o644))

	t.Setenv("POLYTRADER_TRADING_MIN_TRADE_SIZE", "7.5")
	t.Setenv("POLYTRADER_TRADING_POLL_INTERVAL", "90s")
	t.Setenv("POLYTRADER_MODE", "once")
	t.Setenv("POLYTRADER_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7.5, cfg.Trading.MinTradeSize)
	assert.Equal(t, 90*time.Second, cfg.Trading.PollInterval.Duration)
	assert.Equal(t, "once", cfg.Mode)
	assert.True(t, cfg.Redis.Enabled)
}

func TestMalformedEnvValueIsIgnored(t *testing.T) {
	t.Setenv("POLYTRADER_TRADING_MIN_TRADE_SIZE", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Trading.MinTradeSize, cfg.Trading.MinTradeSize)
}
