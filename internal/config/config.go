// Package config defines the top-level configuration for polytrader and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYTRADER_* environment
// variables.
type Config struct {
	Gateway    GatewayConfig    `toml:"gateway"`
	Trading    TradingConfig    `toml:"trading"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Settlement SettlementConfig `toml:"settlement"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// GatewayConfig holds exchange API endpoints and credentials.
type GatewayConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
	Address       string `toml:"address"`
	// PrivateKey is the hex-encoded signing credential. Alternatively an
	// encrypted key file plus password may be supplied.
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	RequestTimeout   duration `toml:"request_timeout"`
}

// TradingConfig holds risk limits and loop pacing.
type TradingConfig struct {
	DryRun           bool     `toml:"dry_run"`
	MinTradeSize     float64  `toml:"min_trade_size"`
	MaxPositionSize  float64  `toml:"max_position_size"`
	MaxTotalExposure float64  `toml:"max_total_exposure"`
	PollInterval     duration `toml:"poll_interval"`
	IterationTimeout duration `toml:"iteration_timeout"`
	// PriceTimeout bounds each per-position price lookup during
	// enrichment so one unreachable market cannot stall the rest.
	PriceTimeout duration `toml:"price_timeout"`
	MarketLimit  int      `toml:"market_limit"`
	// SlippageSeed seeds the simulated-slippage generator when non-zero;
	// zero means a time-based seed.
	SlippageSeed int64  `toml:"slippage_seed"`
	Strategy     string `toml:"strategy"`
}

// LedgerConfig selects and parameterizes the virtual ledger backing store.
type LedgerConfig struct {
	PositionsPath string `toml:"positions_path"`
	HistoryPath   string `toml:"history_path"`
	// PostgresDSN switches the ledger store from the JSON file to
	// Postgres when non-empty.
	PostgresDSN  string `toml:"postgres_dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
}

// RedisConfig holds the optional price-cache connection parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// S3Config holds the optional trade-history archive target.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SettlementConfig bounds the per-token settlement-status lookups performed
// while auto-closing resolved markets.
type SettlementConfig struct {
	CacheTTL       duration `toml:"cache_ttl"`
	LookupsPerSec  float64  `toml:"lookups_per_sec"`
	LookupBurst    int      `toml:"lookup_burst"`
	RequestTimeout duration `toml:"request_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			ClobHost:       "https://clob.polymarket.com",
			GammaHost:      "https://gamma-api.polymarket.com",
			WsHost:         "wss://ws-subscriptions-clob.polymarket.com",
			RequestTimeout: duration{10 * time.Second},
		},
		Trading: TradingConfig{
			DryRun:           true,
			MinTradeSize:     1.0,
			MaxPositionSize:  100.0,
			MaxTotalExposure: 1000.0,
			PollInterval:     duration{60 * time.Second},
			IterationTimeout: duration{20 * time.Second},
			PriceTimeout:     duration{1 * time.Second},
			MarketLimit:      20,
			Strategy:         "momentum",
		},
		Ledger: LedgerConfig{
			PositionsPath: "virtual_positions.json",
			HistoryPath:   "trade_history.csv",
			PoolMaxConns:  4,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "polytrader-history",
			ForcePathStyle: true,
		},
		Settlement: SettlementConfig{
			CacheTTL:       duration{5 * time.Minute},
			LookupsPerSec:  5,
			LookupBurst:    5,
			RequestTimeout: duration{10 * time.Second},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":  true,
	"once": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Validation failure is the
// only fatal error path: once the polling loop has started nothing is
// allowed to terminate the process.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Gateway.ClobHost == "" {
		errs = append(errs, "gateway: clob_host must not be empty")
	}
	if c.Gateway.GammaHost == "" {
		errs = append(errs, "gateway: gamma_host must not be empty")
	}
	if c.Gateway.RequestTimeout.Duration <= 0 {
		errs = append(errs, "gateway: request_timeout must be positive")
	}

	// Real trading needs a signing credential; dry-run does not.
	if !c.Trading.DryRun {
		if c.Gateway.PrivateKey == "" && c.Gateway.EncryptedKeyPath == "" {
			errs = append(errs, "gateway: either private_key or encrypted_key_path must be set when dry_run is false")
		}
		if c.Gateway.EncryptedKeyPath != "" && c.Gateway.KeyPassword == "" {
			errs = append(errs, "gateway: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Trading.MinTradeSize <= 0 {
		errs = append(errs, "trading: min_trade_size must be > 0")
	}
	if c.Trading.MaxPositionSize < c.Trading.MinTradeSize {
		errs = append(errs, "trading: max_position_size must be >= min_trade_size")
	}
	if c.Trading.MaxTotalExposure < c.Trading.MaxPositionSize {
		errs = append(errs, "trading: max_total_exposure must be >= max_position_size")
	}
	if c.Trading.PollInterval.Duration < time.Second {
		errs = append(errs, "trading: poll_interval must be at least 1s")
	}
	if c.Trading.IterationTimeout.Duration <= 0 {
		errs = append(errs, "trading: iteration_timeout must be positive")
	}
	if c.Trading.PriceTimeout.Duration <= 0 {
		errs = append(errs, "trading: price_timeout must be positive")
	}
	if c.Trading.MarketLimit < 1 {
		errs = append(errs, "trading: market_limit must be >= 1")
	}

	if c.Ledger.PostgresDSN == "" && c.Ledger.PositionsPath == "" {
		errs = append(errs, "ledger: positions_path must not be empty (or set postgres_dsn)")
	}
	if c.Ledger.HistoryPath == "" {
		errs = append(errs, "ledger: history_path must not be empty")
	}
	if c.Ledger.PoolMaxConns < 1 {
		errs = append(errs, "ledger: pool_max_conns must be >= 1")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Settlement.CacheTTL.Duration <= 0 {
		errs = append(errs, "settlement: cache_ttl must be positive")
	}
	if c.Settlement.LookupsPerSec <= 0 {
		errs = append(errs, "settlement: lookups_per_sec must be > 0")
	}
	if c.Settlement.LookupBurst < 1 {
		errs = append(errs, "settlement: lookup_burst must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
