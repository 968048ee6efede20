package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYTRADER_* environment variable overrides,
// and returns the final Config. A missing file is not an error: defaults
// plus environment variables are enough to run in dry-run mode. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Gateway ──
	setStr(&cfg.Gateway.ClobHost, "POLYTRADER_GATEWAY_CLOB_HOST")
	setStr(&cfg.Gateway.GammaHost, "POLYTRADER_GATEWAY_GAMMA_HOST")
	setStr(&cfg.Gateway.WsHost, "POLYTRADER_GATEWAY_WS_HOST")
	setStr(&cfg.Gateway.ApiKey, "POLYTRADER_GATEWAY_API_KEY")
	setStr(&cfg.Gateway.ApiSecret, "POLYTRADER_GATEWAY_API_SECRET")
	setStr(&cfg.Gateway.ApiPassphrase, "POLYTRADER_GATEWAY_API_PASSPHRASE")
	setStr(&cfg.Gateway.Address, "POLYTRADER_GATEWAY_ADDRESS")
	setStr(&cfg.Gateway.PrivateKey, "POLYTRADER_GATEWAY_PRIVATE_KEY")
	setStr(&cfg.Gateway.EncryptedKeyPath, "POLYTRADER_GATEWAY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Gateway.KeyPassword, "POLYTRADER_GATEWAY_KEY_PASSWORD")
	setDuration(&cfg.Gateway.RequestTimeout, "POLYTRADER_GATEWAY_REQUEST_TIMEOUT")

	// ── Trading ──
	setBool(&cfg.Trading.DryRun, "POLYTRADER_TRADING_DRY_RUN")
	setFloat64(&cfg.Trading.MinTradeSize, "POLYTRADER_TRADING_MIN_TRADE_SIZE")
	setFloat64(&cfg.Trading.MaxPositionSize, "POLYTRADER_TRADING_MAX_POSITION_SIZE")
	setFloat64(&cfg.Trading.MaxTotalExposure, "POLYTRADER_TRADING_MAX_TOTAL_EXPOSURE")
	setDuration(&cfg.Trading.PollInterval, "POLYTRADER_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.IterationTimeout, "POLYTRADER_TRADING_ITERATION_TIMEOUT")
	setDuration(&cfg.Trading.PriceTimeout, "POLYTRADER_TRADING_PRICE_TIMEOUT")
	setInt(&cfg.Trading.MarketLimit, "POLYTRADER_TRADING_MARKET_LIMIT")
	setInt64(&cfg.Trading.SlippageSeed, "POLYTRADER_TRADING_SLIPPAGE_SEED")
	setStr(&cfg.Trading.Strategy, "POLYTRADER_TRADING_STRATEGY")

	// ── Ledger ──
	setStr(&cfg.Ledger.PositionsPath, "POLYTRADER_LEDGER_POSITIONS_PATH")
	setStr(&cfg.Ledger.HistoryPath, "POLYTRADER_LEDGER_HISTORY_PATH")
	setStr(&cfg.Ledger.PostgresDSN, "POLYTRADER_LEDGER_POSTGRES_DSN")
	setInt(&cfg.Ledger.PoolMaxConns, "POLYTRADER_LEDGER_POOL_MAX_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYTRADER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYTRADER_REDIS_POOL_SIZE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYTRADER_S3_FORCE_PATH_STYLE")

	// ── Settlement ──
	setDuration(&cfg.Settlement.CacheTTL, "POLYTRADER_SETTLEMENT_CACHE_TTL")
	setFloat64(&cfg.Settlement.LookupsPerSec, "POLYTRADER_SETTLEMENT_LOOKUPS_PER_SEC")
	setInt(&cfg.Settlement.LookupBurst, "POLYTRADER_SETTLEMENT_LOOKUP_BURST")
	setDuration(&cfg.Settlement.RequestTimeout, "POLYTRADER_SETTLEMENT_REQUEST_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYTRADER_MODE")
	setStr(&cfg.LogLevel, "POLYTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
