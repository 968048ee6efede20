// Package position merges exchange-reported and virtual positions into one
// enriched view with current prices and unrealized P&L.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/ledger"
)

// Merger combines the two position sources. Real and virtual positions for
// the same token stay separate entries; they are owned by different systems
// and are never folded together.
type Merger struct {
	gateway      domain.Gateway
	ledger       *ledger.Ledger
	prices       domain.PriceCache
	priceTimeout time.Duration
	logger       *slog.Logger

	mu             sync.Mutex
	initialBalance float64
	initialSet     bool
}

// New creates a Merger. prices may be nil when no price cache is wired;
// enrichment then always goes to the live midpoint lookup.
func New(gateway domain.Gateway, lgr *ledger.Ledger, prices domain.PriceCache, priceTimeout time.Duration, logger *slog.Logger) *Merger {
	return &Merger{
		gateway:      gateway,
		ledger:       lgr,
		prices:       prices,
		priceTimeout: priceTimeout,
		logger:       logger.With(slog.String("component", "position")),
	}
}

// Positions returns the merged, price-enriched position view. Either source
// failing degrades to the other instead of failing the call; a position
// whose price lookup misses its budget comes back unpriced.
func (m *Merger) Positions(ctx context.Context) ([]domain.Position, error) {
	var merged []domain.Position

	real, err := m.gateway.Positions(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "exchange position fetch failed",
			slog.String("error", err.Error()),
		)
	} else {
		merged = append(merged, real...)
	}

	virtual, err := m.ledger.Positions(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "ledger position fetch failed",
			slog.String("error", err.Error()),
		)
	} else {
		merged = append(merged, virtual...)
	}

	for i := range merged {
		m.enrich(ctx, &merged[i])
	}
	return merged, nil
}

// enrich attaches a current price and unrealized P&L to the position when a
// lookup completes within the per-position budget.
func (m *Merger) enrich(ctx context.Context, p *domain.Position) {
	price, ok := m.lookupPrice(ctx, p.TokenID)
	if !ok {
		return
	}
	p.CurrentPrice = &price
	p.UnrealizedPnL = (price - p.AvgPrice) * p.Size
}

// lookupPrice consults the cache, then races a live midpoint lookup against
// the price budget. A lookup that finishes after the budget is abandoned and
// its result discarded.
func (m *Merger) lookupPrice(ctx context.Context, tokenID string) (float64, bool) {
	if m.prices != nil {
		if price, _, err := m.prices.GetPrice(ctx, tokenID); err == nil && price > 0 {
			return price, true
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.priceTimeout)
	defer cancel()

	type result struct {
		price float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		price, err := m.gateway.MidpointPrice(lookupCtx, tokenID)
		ch <- result{price: price, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil || res.price <= 0 {
			return 0, false
		}
		return res.price, true
	case <-lookupCtx.Done():
		m.logger.DebugContext(ctx, "price lookup exceeded budget",
			slog.String("token", tokenID),
		)
		return 0, false
	}
}

// CaptureInitialBalance records the starting balance the first time it is
// called. Later calls are ignored.
func (m *Merger) CaptureInitialBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialSet {
		return
	}
	m.initialBalance = balance
	m.initialSet = true
}

// Summary computes the P&L summary over the merged view given the current
// quote balance.
func (m *Merger) Summary(ctx context.Context, currentBalance float64) (domain.PnLSummary, error) {
	positions, err := m.Positions(ctx)
	if err != nil {
		return domain.PnLSummary{}, err
	}

	var unrealized float64
	for _, p := range positions {
		unrealized += p.UnrealizedPnL
	}

	m.mu.Lock()
	initial := m.initialBalance
	initialSet := m.initialSet
	m.mu.Unlock()
	if !initialSet {
		initial = currentBalance
	}

	summary := domain.PnLSummary{
		InitialBalance: initial,
		CurrentBalance: currentBalance,
		UnrealizedPnL:  unrealized,
		TotalPnL:       (currentBalance - initial) + unrealized,
	}
	if initial > 0 {
		summary.TotalPnLPct = summary.TotalPnL / initial * 100
	}
	return summary, nil
}
