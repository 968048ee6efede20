// Package app provides the top-level application lifecycle: it wires the
// dependency graph, starts the goroutines for the configured operating mode,
// and tears everything down in order on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polytrader/internal/config"
	"github.com/alanyoungcy/polytrader/internal/platform/polymarket"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, runs the configured mode until ctx is
// cancelled, and performs the shutdown sequence. It returns nil on a clean
// shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	switch strings.ToLower(a.cfg.Mode) {
	case "run":
		err = a.runMode(ctx, deps)
	case "once":
		err = deps.Bot.RunOnce(ctx)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	if err != nil {
		return err
	}

	a.shutdownSequence(deps)
	return nil
}

// runMode runs the polling loop alongside the optional websocket price feed
// and stops the bot when ctx is cancelled.
func (a *App) runMode(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)

	if deps.Prices != nil {
		if feed := a.buildPriceFeed(gctx, deps); feed != nil {
			g.Go(func() error {
				if err := feed.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Warn("price feed stopped", slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		deps.Bot.Stop()
		return nil
	})
	g.Go(func() error {
		return deps.Bot.Run(gctx)
	})

	return g.Wait()
}

// buildPriceFeed subscribes the websocket feed to the tokens of the
// currently active markets. A failed market fetch skips the feed; the cache
// then fills from fallback midpoint lookups instead.
func (a *App) buildPriceFeed(ctx context.Context, deps *Dependencies) *polymarket.PriceFeed {
	markets, err := deps.Markets.Markets(ctx, a.cfg.Trading.MarketLimit)
	if err != nil {
		a.logger.Warn("price feed disabled, market fetch failed",
			slog.String("error", err.Error()),
		)
		return nil
	}

	var tokenIDs []string
	for _, m := range markets {
		for _, t := range m.Tokens {
			if t.TokenID != "" {
				tokenIDs = append(tokenIDs, t.TokenID)
			}
		}
	}
	if len(tokenIDs) == 0 {
		return nil
	}

	a.logger.Info("starting price feed", slog.Int("tokens", len(tokenIDs)))
	return polymarket.NewPriceFeed(a.cfg.Gateway.WsHost, tokenIDs, deps.Prices, a.logger)
}

// shutdownSequence runs after the loop has stopped: cancel resting orders in
// real mode, then archive the trade history when S3 is wired. Both steps use
// a fresh context because the run context is already cancelled.
func (a *App) shutdownSequence(deps *Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !a.cfg.Trading.DryRun {
		if _, err := deps.Executor.CancelAllOrders(ctx); err != nil {
			a.logger.Warn("shutdown order cancellation failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.Archiver != nil {
		if _, err := deps.Archiver.Archive(ctx); err != nil {
			a.logger.Warn("history archive failed", slog.String("error", err.Error()))
		}
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
