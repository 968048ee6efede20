package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polytrader/internal/bot"
	"github.com/alanyoungcy/polytrader/internal/cache/redis"
	"github.com/alanyoungcy/polytrader/internal/config"
	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/ledger"
	"github.com/alanyoungcy/polytrader/internal/platform/polymarket"
	"github.com/alanyoungcy/polytrader/internal/position"
	"github.com/alanyoungcy/polytrader/internal/store/file"
	"github.com/alanyoungcy/polytrader/internal/store/postgres"
	"github.com/alanyoungcy/polytrader/internal/strategy"

	s3blob "github.com/alanyoungcy/polytrader/internal/blob/s3"
)

// Dependencies bundles every wired component handed to the operating modes.
type Dependencies struct {
	Gateway  *polymarket.ClobClient
	Markets  *polymarket.GammaClient
	Ledger   *ledger.Ledger
	History  *ledger.CSVHistory
	Merger   *position.Merger
	Executor *executor.Executor
	Bot      *bot.Bot

	// Prices is nil when Redis is not enabled.
	Prices domain.PriceCache
	// Archiver is nil when S3 is not enabled.
	Archiver *s3blob.HistoryArchiver
}

// Wire constructs the full dependency graph from configuration. The returned
// cleanup function tears down connections in reverse construction order and
// is safe to call exactly once.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	var hmac *crypto.HMACAuth
	if cfg.Gateway.ApiKey != "" {
		hmac = &crypto.HMACAuth{
			Key:        cfg.Gateway.ApiKey,
			Secret:     cfg.Gateway.ApiSecret,
			Passphrase: cfg.Gateway.ApiPassphrase,
		}
	}

	// Real trading needs the signing credential resolvable up front, before
	// the loop starts and fatal errors stop being allowed.
	if !cfg.Trading.DryRun {
		if _, err := crypto.ResolveKey(crypto.KeySource{
			Raw:           cfg.Gateway.PrivateKey,
			EncryptedPath: cfg.Gateway.EncryptedKeyPath,
			Password:      cfg.Gateway.KeyPassword,
		}); err != nil {
			return fail(fmt.Errorf("wire: resolve signing key: %w", err))
		}
	}

	gateway := polymarket.NewClobClient(
		cfg.Gateway.ClobHost,
		cfg.Gateway.Address,
		hmac,
		cfg.Gateway.RequestTimeout.Duration,
		logger,
	)
	markets := polymarket.NewGammaClient(cfg.Gateway.GammaHost, cfg.Gateway.RequestTimeout.Duration)

	var store domain.LedgerStore
	if cfg.Ledger.PostgresDSN != "" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Ledger.PostgresDSN,
			MaxConns: cfg.Ledger.PoolMaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		store = postgres.NewLedgerStore(pg.Pool())
		logger.Info("ledger store: postgres")
	} else {
		fs, err := file.New(cfg.Ledger.PositionsPath)
		if err != nil {
			return fail(fmt.Errorf("wire: position file: %w", err))
		}
		store = fs
		logger.Info("ledger store: file", slog.String("path", cfg.Ledger.PositionsPath))
	}

	history, err := ledger.NewCSVHistory(cfg.Ledger.HistoryPath)
	if err != nil {
		return fail(fmt.Errorf("wire: trade history: %w", err))
	}

	settlements := polymarket.NewCachedSettlements(
		gateway,
		cfg.Settlement.CacheTTL.Duration,
		cfg.Settlement.LookupsPerSec,
		cfg.Settlement.LookupBurst,
		cfg.Settlement.RequestTimeout.Duration,
	)

	lgr := ledger.New(store, history, settlements, logger)

	var prices domain.PriceCache
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		prices = redis.NewPriceCache(rc, cfg.Settlement.CacheTTL.Duration)
		logger.Info("price cache: redis", slog.String("addr", cfg.Redis.Addr))
	}

	merger := position.New(gateway, lgr, prices, cfg.Trading.PriceTimeout.Duration, logger)

	exec := executor.New(executor.Options{
		DryRun:           cfg.Trading.DryRun,
		MinTradeSize:     cfg.Trading.MinTradeSize,
		MaxPositionSize:  cfg.Trading.MaxPositionSize,
		MaxTotalExposure: cfg.Trading.MaxTotalExposure,
		PriceTimeout:     cfg.Trading.PriceTimeout.Duration,
		SlippageSeed:     cfg.Trading.SlippageSeed,
	}, gateway, lgr, prices, merger, logger)

	strat, err := buildStrategy(cfg, logger)
	if err != nil {
		return fail(err)
	}

	b := bot.New(bot.Options{
		PollInterval:     cfg.Trading.PollInterval.Duration,
		IterationTimeout: cfg.Trading.IterationTimeout.Duration,
		MarketLimit:      cfg.Trading.MarketLimit,
	}, markets, gateway, merger, lgr, strat, exec, logger)

	var archiver *s3blob.HistoryArchiver
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		archiver = s3blob.NewHistoryArchiver(sc, history.Path(), logger)
	}

	return &Dependencies{
		Gateway:  gateway,
		Markets:  markets,
		Ledger:   lgr,
		History:  history,
		Merger:   merger,
		Executor: exec,
		Bot:      b,
		Prices:   prices,
		Archiver: archiver,
	}, cleanup, nil
}

// buildStrategy registers the built-in strategies and resolves the
// configured one.
func buildStrategy(cfg *config.Config, logger *slog.Logger) (strategy.Strategy, error) {
	registry := strategy.NewRegistry()
	registry.Register(strategy.NewMomentum(strategy.Config{
		TradeSize:    cfg.Trading.MinTradeSize,
		Threshold:    0.02,
		TakeProfit:   0.20,
		StopLoss:     0.10,
		MaxPositions: 10,
	}, logger))

	strat, err := registry.Get(cfg.Trading.Strategy)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return strat, nil
}
