// Package bot runs the polling orchestrator: it drives market fetch,
// position merge, settlement auto-close, strategy evaluation, and execution
// on a fixed interval, and shuts down cleanly on request.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/ledger"
	"github.com/alanyoungcy/polytrader/internal/position"
	"github.com/alanyoungcy/polytrader/internal/strategy"
)

// State is the bot lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// sleepSlice is the granularity at which the inter-cycle sleep checks for a
// stop request.
const sleepSlice = time.Second

// Options holds the loop pacing parameters.
type Options struct {
	PollInterval     time.Duration
	IterationTimeout time.Duration
	MarketLimit      int
}

// Bot is the polling orchestrator. A Bot runs at most once; Run returns an
// error when called on a bot that is already running or has finished.
type Bot struct {
	opts     Options
	markets  domain.MarketSource
	gateway  domain.Gateway
	merger   *position.Merger
	ledger   *ledger.Ledger
	strategy strategy.Strategy
	executor *executor.Executor
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	stop  chan struct{}
}

// New creates a Bot in StateIdle.
func New(opts Options, markets domain.MarketSource, gateway domain.Gateway, merger *position.Merger, lgr *ledger.Ledger, strat strategy.Strategy, exec *executor.Executor, logger *slog.Logger) *Bot {
	return &Bot{
		opts:     opts,
		markets:  markets,
		gateway:  gateway,
		merger:   merger,
		ledger:   lgr,
		strategy: strat,
		executor: exec,
		logger:   logger.With(slog.String("component", "bot")),
		state:    StateIdle,
		stop:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stop requests a graceful shutdown: a running iteration is allowed its full
// timeout, the inter-cycle sleep is cut short, and Run returns after the
// final summary. Stop is idempotent.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateRunning:
		b.state = StateStopping
		close(b.stop)
	case StateIdle:
		b.state = StateStopped
		close(b.stop)
	}
}

// Run executes the polling loop until Stop is called or ctx is cancelled.
// Iteration failures never terminate the loop; the only error Run returns is
// a lifecycle misuse.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateIdle {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bot: cannot run in state %s", state)
	}
	b.state = StateRunning
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "polling loop started",
		slog.String("strategy", b.strategy.Name()),
		slog.Duration("poll_interval", b.opts.PollInterval),
		slog.Duration("iteration_timeout", b.opts.IterationTimeout),
	)

	cycle := 0
	for !b.stopRequested(ctx) {
		cycle++
		b.runBoundedIteration(ctx, cycle)
		b.sleep(ctx)
	}

	b.finish(ctx)
	return nil
}

// RunOnce executes a single iteration without the deadline wrapper, prints
// the summary, and stops.
func (b *Bot) RunOnce(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateIdle {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bot: cannot run in state %s", state)
	}
	b.state = StateRunning
	b.mu.Unlock()

	b.iterate(ctx, 1)
	b.finish(ctx)
	return nil
}

// runBoundedIteration runs one iteration on its own goroutine and waits for
// it up to the iteration timeout. A worker that overruns is abandoned: its
// late effects on the ledger are still durable, but the loop moves on.
func (b *Bot) runBoundedIteration(ctx context.Context, cycle int) {
	iterCtx, cancel := context.WithTimeout(ctx, b.opts.IterationTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.iterate(iterCtx, cycle)
	}()

	select {
	case <-done:
	case <-time.After(b.opts.IterationTimeout):
		b.logger.WarnContext(ctx, "iteration exceeded timeout, abandoning",
			slog.Int("cycle", cycle),
			slog.Duration("timeout", b.opts.IterationTimeout),
		)
	}
}

// iterate performs one full polling cycle. Every step degrades on failure so
// a flaky upstream can never kill the loop.
func (b *Bot) iterate(ctx context.Context, cycle int) {
	started := time.Now()
	b.logger.DebugContext(ctx, "cycle started", slog.Int("cycle", cycle))

	markets, err := b.markets.Markets(ctx, b.opts.MarketLimit)
	if err != nil {
		b.logger.WarnContext(ctx, "market fetch failed",
			slog.Int("cycle", cycle),
			slog.String("error", err.Error()),
		)
		markets = nil
	}

	positions, err := b.merger.Positions(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "position merge failed",
			slog.Int("cycle", cycle),
			slog.String("error", err.Error()),
		)
		positions = nil
	}

	balance, err := b.gateway.Balance(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "balance fetch failed",
			slog.Int("cycle", cycle),
			slog.String("error", err.Error()),
		)
		balance = 0
	} else {
		b.merger.CaptureInitialBalance(balance)
	}

	settled := b.sweepSettled(ctx, cycle)
	if closer, ok := b.strategy.(strategy.SettlementCloser); ok {
		settled += b.closeRealSettled(ctx, cycle, closer, positions)
	}
	if settled > 0 {
		if refreshed, err := b.merger.Positions(ctx); err == nil {
			positions = refreshed
		} else {
			b.logger.WarnContext(ctx, "position refresh failed",
				slog.Int("cycle", cycle),
				slog.String("error", err.Error()),
			)
		}
	}

	signals, err := b.strategy.Evaluate(ctx, strategy.Snapshot{
		Markets:   markets,
		Positions: positions,
		Balance:   balance,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "strategy evaluation failed",
			slog.Int("cycle", cycle),
			slog.String("strategy", b.strategy.Name()),
			slog.String("error", err.Error()),
		)
		return
	}

	executed := 0
	if len(signals) > 0 {
		for _, res := range b.executor.Execute(ctx, signals) {
			if res.Status != domain.OrderStatusFailed {
				executed++
			}
		}
	}

	b.logger.InfoContext(ctx, "cycle finished",
		slog.Int("cycle", cycle),
		slog.Int("markets", len(markets)),
		slog.Int("positions", len(positions)),
		slog.Int("signals", len(signals)),
		slog.Int("executed", executed),
		slog.Duration("elapsed", time.Since(started)),
	)
}

// sweepSettled closes virtual positions whose markets have resolved and
// returns how many were closed.
func (b *Bot) sweepSettled(ctx context.Context, cycle int) int {
	closed, err := b.ledger.CloseSettled(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "settlement sweep failed",
			slog.Int("cycle", cycle),
			slog.String("error", err.Error()),
		)
		return 0
	}
	for _, cp := range closed {
		b.logger.InfoContext(ctx, "settled position closed",
			slog.String("token", cp.Position.TokenID),
			slog.Float64("exit_price", cp.ExitPrice),
			slog.Float64("pnl", cp.PnL),
		)
	}
	return len(closed)
}

// closeRealSettled lets a strategy that opts in close exchange-held positions
// in resolved markets. Virtual positions are already handled by the ledger
// sweep, so only real-origin entries are offered. Returns how many closes
// went through.
func (b *Bot) closeRealSettled(ctx context.Context, cycle int, closer strategy.SettlementCloser, positions []domain.Position) int {
	var real []domain.Position
	for _, p := range positions {
		if p.Origin == domain.PositionOriginReal {
			real = append(real, p)
		}
	}
	if len(real) == 0 {
		return 0
	}

	signals, err := closer.CloseSettled(ctx, real)
	if err != nil {
		b.logger.WarnContext(ctx, "settlement close hook failed",
			slog.Int("cycle", cycle),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(signals) == 0 {
		return 0
	}

	closed := 0
	for _, res := range b.executor.Execute(ctx, signals) {
		if res.Status != domain.OrderStatusFailed {
			closed++
		}
	}
	b.logger.InfoContext(ctx, "settled real positions closed",
		slog.Int("cycle", cycle),
		slog.Int("requested", len(signals)),
		slog.Int("closed", closed),
	)
	return closed
}

// sleep waits out the poll interval in one-second slices so a stop request
// is honoured within about a second.
func (b *Bot) sleep(ctx context.Context) {
	deadline := time.Now().Add(b.opts.PollInterval)
	for time.Now().Before(deadline) {
		if b.stopRequested(ctx) {
			return
		}
		remaining := time.Until(deadline)
		if remaining > sleepSlice {
			remaining = sleepSlice
		}
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-time.After(remaining):
		}
	}
}

func (b *Bot) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-b.stop:
		return true
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateRunning
}

// finish logs the final P&L summary and moves the bot to StateStopped. The
// summary uses a fresh context so it still runs after ctx cancellation.
func (b *Bot) finish(ctx context.Context) {
	summaryCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	balance, err := b.gateway.Balance(summaryCtx)
	if err != nil {
		b.logger.WarnContext(summaryCtx, "final balance fetch failed",
			slog.String("error", err.Error()),
		)
	}

	if summary, err := b.merger.Summary(summaryCtx, balance); err == nil {
		b.logger.InfoContext(summaryCtx, "final summary",
			slog.Float64("initial_balance", summary.InitialBalance),
			slog.Float64("current_balance", summary.CurrentBalance),
			slog.Float64("unrealized_pnl", summary.UnrealizedPnL),
			slog.Float64("total_pnl", summary.TotalPnL),
			slog.Float64("total_pnl_pct", summary.TotalPnLPct),
		)
	}

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()
	b.logger.InfoContext(ctx, "polling loop stopped")
}
