// Package executor validates strategy signals against risk limits and turns
// them into fills: simulated ledger mutations in dry-run mode, exchange
// orders in real mode.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/ledger"
)

// slippageMax bounds simulated slippage: the applied fraction is drawn
// uniformly from [0, slippageMax).
const slippageMax = 0.01

// fallbackPrice is used when no limit price, cached price, or live midpoint
// is available for a token.
const fallbackPrice = 0.5

// PositionSource supplies the current merged position view used for the
// exposure check.
type PositionSource interface {
	Positions(ctx context.Context) ([]domain.Position, error)
}

// Options holds the executor's risk limits and mode.
type Options struct {
	DryRun           bool
	MinTradeSize     float64
	MaxPositionSize  float64
	MaxTotalExposure float64
	// PriceTimeout bounds the live midpoint lookup when resolving a
	// reference price.
	PriceTimeout time.Duration
	// SlippageSeed seeds the slippage generator; zero means time-based.
	SlippageSeed int64
}

// Executor applies risk checks to signals and executes the ones that pass.
// One failed signal never aborts the batch: every signal yields an
// ExecutedOrder describing what happened to it.
type Executor struct {
	opts      Options
	gateway   domain.Gateway
	ledger    *ledger.Ledger
	prices    domain.PriceCache
	positions PositionSource
	logger    *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Executor. prices may be nil when no price cache is wired.
func New(opts Options, gateway domain.Gateway, lgr *ledger.Ledger, prices domain.PriceCache, positions PositionSource, logger *slog.Logger) *Executor {
	seed := opts.SlippageSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Executor{
		opts:      opts,
		gateway:   gateway,
		ledger:    lgr,
		prices:    prices,
		positions: positions,
		logger:    logger.With(slog.String("component", "executor")),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Execute processes signals in order and returns one ExecutedOrder per
// signal. Rejected and failed signals come back with OrderStatusFailed and a
// reason; nothing about them is persisted.
func (e *Executor) Execute(ctx context.Context, signals []domain.Signal) []domain.ExecutedOrder {
	results := make([]domain.ExecutedOrder, 0, len(signals))
	for _, sig := range signals {
		if err := ctx.Err(); err != nil {
			results = append(results, e.failed(sig, fmt.Sprintf("context done: %v", err)))
			continue
		}
		results = append(results, e.executeOne(ctx, sig))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, sig domain.Signal) domain.ExecutedOrder {
	if reason, ok := e.validate(ctx, sig); !ok {
		e.logger.WarnContext(ctx, "signal rejected",
			slog.String("token", sig.TokenID),
			slog.String("side", string(sig.Side)),
			slog.Float64("size", sig.Size),
			slog.String("reason", reason),
		)
		return e.failed(sig, reason)
	}

	refPrice := e.referencePrice(ctx, sig)
	if e.opts.DryRun {
		return e.executeSimulated(ctx, sig, refPrice)
	}
	return e.executeReal(ctx, sig, refPrice)
}

// validate applies the risk checks. It returns a rejection reason and false
// when the signal must not execute. Signal sizes and the exposure limit are
// both denominated in quote currency, so sizes are compared directly.
func (e *Executor) validate(ctx context.Context, sig domain.Signal) (string, bool) {
	if sig.TokenID == "" {
		return "missing token id", false
	}
	if sig.Side != domain.OrderSideBuy && sig.Side != domain.OrderSideSell {
		return fmt.Sprintf("unknown side %q", sig.Side), false
	}
	if sig.Size < e.opts.MinTradeSize {
		return fmt.Sprintf("size %.4f below minimum %.4f", sig.Size, e.opts.MinTradeSize), false
	}
	if sig.Size > e.opts.MaxPositionSize {
		return fmt.Sprintf("size %.4f above maximum %.4f", sig.Size, e.opts.MaxPositionSize), false
	}

	if sig.Side == domain.OrderSideBuy {
		exposure, err := e.currentExposure(ctx)
		if err != nil {
			return fmt.Sprintf("exposure check failed: %v", err), false
		}
		if exposure+sig.Size > e.opts.MaxTotalExposure {
			return fmt.Sprintf("exposure %.2f + %.2f exceeds limit %.2f", exposure, sig.Size, e.opts.MaxTotalExposure), false
		}

		if !e.opts.DryRun {
			balance, err := e.gateway.Balance(ctx)
			if err != nil {
				return fmt.Sprintf("balance check failed: %v", err), false
			}
			if balance < sig.Size {
				return fmt.Sprintf("balance %.2f below required %.2f: %v", balance, sig.Size, domain.ErrInsufficientBalance), false
			}
		}
	}
	return "", true
}

// currentExposure sums size * average price across the merged position view.
func (e *Executor) currentExposure(ctx context.Context) (float64, error) {
	positions, err := e.positions.Positions(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		total += p.Notional()
	}
	return total, nil
}

// executeSimulated fills the signal against the virtual ledger at the
// reference price worsened by random slippage.
func (e *Executor) executeSimulated(ctx context.Context, sig domain.Signal, refPrice float64) domain.ExecutedOrder {
	slippage := e.drawSlippage()

	fillPrice := refPrice * (1 + slippage)
	if sig.Side == domain.OrderSideSell {
		fillPrice = refPrice * (1 - slippage)
	}
	fillPrice = clampPrice(fillPrice)

	switch sig.Side {
	case domain.OrderSideBuy:
		if err := e.ledger.Add(ctx, sig.TokenID, sig.Size, fillPrice); err != nil {
			return e.failed(sig, fmt.Sprintf("ledger add: %v", err))
		}
	case domain.OrderSideSell:
		if _, err := e.ledger.Remove(ctx, sig.TokenID, sig.Size, fillPrice, slippage, false); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return e.failed(sig, "no virtual position to sell")
			}
			return e.failed(sig, fmt.Sprintf("ledger remove: %v", err))
		}
	}

	e.logger.InfoContext(ctx, "simulated fill",
		slog.String("token", sig.TokenID),
		slog.String("side", string(sig.Side)),
		slog.Float64("size", sig.Size),
		slog.Float64("ref_price", refPrice),
		slog.Float64("fill_price", fillPrice),
		slog.Float64("slippage", slippage),
		slog.String("reason", sig.Reason),
	)

	return domain.ExecutedOrder{
		ID:        uuid.NewString(),
		TokenID:   sig.TokenID,
		Side:      sig.Side,
		Size:      sig.Size,
		Price:     fillPrice,
		RefPrice:  refPrice,
		Slippage:  slippage,
		Simulated: true,
		Status:    domain.OrderStatusMatched,
		Reason:    sig.Reason,
		PlacedAt:  time.Now().UTC(),
	}
}

// executeReal submits the signal to the exchange.
func (e *Executor) executeReal(ctx context.Context, sig domain.Signal, refPrice float64) domain.ExecutedOrder {
	var (
		result domain.OrderResult
		err    error
	)
	if limit, ok := sig.LimitPrice(); ok && !sig.MarketOrder {
		result, err = e.gateway.CreateLimitOrder(ctx, sig.TokenID, sig.Side, sig.Size, limit)
	} else {
		result, err = e.gateway.CreateMarketOrder(ctx, sig.TokenID, sig.Side, sig.Size)
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "order submission failed",
			slog.String("token", sig.TokenID),
			slog.String("side", string(sig.Side)),
			slog.String("error", err.Error()),
		)
		return e.failed(sig, fmt.Sprintf("submit: %v", err))
	}
	if !result.Success {
		return e.failed(sig, fmt.Sprintf("exchange rejected order: %s", result.Message))
	}

	e.logger.InfoContext(ctx, "order placed",
		slog.String("token", sig.TokenID),
		slog.String("side", string(sig.Side)),
		slog.Float64("size", sig.Size),
		slog.String("order_id", result.OrderID),
		slog.String("status", string(result.Status)),
	)

	return domain.ExecutedOrder{
		ID:       uuid.NewString(),
		TokenID:  sig.TokenID,
		Side:     sig.Side,
		Size:     sig.Size,
		Price:    refPrice,
		OrderID:  result.OrderID,
		Status:   result.Status,
		Reason:   sig.Reason,
		PlacedAt: time.Now().UTC(),
	}
}

// referencePrice resolves the price a simulated fill is anchored on: the
// signal's limit price, then the cache, then a time-bounded live midpoint,
// then the constant fallback.
func (e *Executor) referencePrice(ctx context.Context, sig domain.Signal) float64 {
	if limit, ok := sig.LimitPrice(); ok && limit > 0 {
		return limit
	}

	if e.prices != nil {
		if price, _, err := e.prices.GetPrice(ctx, sig.TokenID); err == nil && price > 0 {
			return price
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.PriceTimeout)
	defer cancel()
	if price, err := e.gateway.MidpointPrice(lookupCtx, sig.TokenID); err == nil && price > 0 {
		return price
	} else if err != nil && !errors.Is(err, domain.ErrNoPrice) {
		e.logger.DebugContext(ctx, "midpoint lookup failed",
			slog.String("token", sig.TokenID),
			slog.String("error", err.Error()),
		)
	}

	return fallbackPrice
}

// CancelAllOrders cancels every resting order on the exchange and returns
// the number cancelled. Individual cancel failures are logged and skipped.
func (e *Executor) CancelAllOrders(ctx context.Context) (int, error) {
	orders, err := e.gateway.OpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: list open orders: %w", err)
	}

	cancelled := 0
	for _, order := range orders {
		if err := e.gateway.CancelOrder(ctx, order.ID); err != nil {
			e.logger.WarnContext(ctx, "cancel failed",
				slog.String("order_id", order.ID),
				slog.String("token", order.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		cancelled++
	}

	e.logger.InfoContext(ctx, "open orders cancelled",
		slog.Int("cancelled", cancelled),
		slog.Int("total", len(orders)),
	)
	return cancelled, nil
}

func (e *Executor) drawSlippage() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() * slippageMax
}

func (e *Executor) failed(sig domain.Signal, reason string) domain.ExecutedOrder {
	return domain.ExecutedOrder{
		ID:       uuid.NewString(),
		TokenID:  sig.TokenID,
		Side:     sig.Side,
		Size:     sig.Size,
		Status:   domain.OrderStatusFailed,
		Reason:   reason,
		PlacedAt: time.Now().UTC(),
	}
}

// clampPrice bounds a slippage-adjusted price to the valid (0, 1] range for
// binary outcome tokens.
func clampPrice(p float64) float64 {
	if p > 1 {
		return 1
	}
	if p < 0.001 {
		return 0.001
	}
	return p
}
