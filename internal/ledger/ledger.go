// Package ledger implements the durable virtual position ledger used in
// dry-run mode: simulated fills mutate a persistent store and every open and
// close is logged to the append-only trade history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// SettlementChecker reports whether the market holding a token has resolved.
type SettlementChecker interface {
	CheckSettlement(ctx context.Context, tokenID string) (domain.Settlement, error)
}

// ClosedPosition describes one ledger entry that was removed or reduced.
type ClosedPosition struct {
	Position  domain.Position
	TradeSize float64
	ExitPrice float64
	PnL       float64
	PnLPct    float64
	Settled   bool
}

// Ledger owns the virtual position store and trade history. Every mutation
// is load -> mutate -> persist and durable before the call returns. The
// ledger assumes a single writing process.
type Ledger struct {
	store       domain.LedgerStore
	history     domain.HistorySink
	settlements SettlementChecker
	logger      *slog.Logger

	// now is injectable for deterministic holding-time tests.
	now func() time.Time
}

// New creates a Ledger over the given store and history sink. settlements
// may be nil when settlement auto-closing is not wired (CloseSettled then
// closes nothing).
func New(store domain.LedgerStore, history domain.HistorySink, settlements SettlementChecker, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:       store,
		history:     history,
		settlements: settlements,
		logger:      logger.With(slog.String("component", "ledger")),
		now:         time.Now,
	}
}

// SetNow overrides the ledger's clock. For tests.
func (l *Ledger) SetNow(now func() time.Time) {
	l.now = now
}

// Add records a simulated BUY fill: it opens a new entry or folds the fill
// into an existing one at the size-weighted average price, then appends an
// "open" history row.
func (l *Ledger) Add(ctx context.Context, tokenID string, size, price float64) error {
	if size <= 0 {
		return fmt.Errorf("ledger: add %s: size must be positive, got %v", tokenID, size)
	}

	now := l.now().UTC()

	pos, err := l.store.Get(ctx, tokenID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			TokenID:   tokenID,
			Size:      size,
			AvgPrice:  price,
			EntryTime: now,
			UpdatedAt: now,
			Origin:    domain.PositionOriginVirtual,
		}
	case err != nil:
		return fmt.Errorf("ledger: add %s: load: %w", tokenID, err)
	default:
		newSize := pos.Size + size
		pos.AvgPrice = (pos.Size*pos.AvgPrice + size*price) / newSize
		pos.Size = newSize
		pos.UpdatedAt = now
	}

	if err := l.store.Put(ctx, pos); err != nil {
		l.logger.ErrorContext(ctx, "ledger persist failed",
			slog.String("token", tokenID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ledger: add %s: persist: %w", tokenID, err)
	}

	l.logger.InfoContext(ctx, "virtual position added",
		slog.String("token", tokenID),
		slog.Float64("size", size),
		slog.Float64("price", price),
		slog.Float64("total_size", pos.Size),
		slog.Float64("avg_price", pos.AvgPrice),
	)

	l.appendHistory(ctx, domain.TradeRecord{
		Timestamp:  now,
		TokenID:    tokenID,
		Side:       domain.OrderSideBuy,
		EntryPrice: price,
		Size:       size,
	})
	return nil
}

// Remove records a simulated SELL or settlement close. size <= 0 closes the
// whole entry. The realized P&L is (exit - entry) * traded size; the entry
// is deleted when the traded size covers it, otherwise reduced in place.
// When settlement is true the exit price is the deterministic settlement
// price and slippage is forced to zero.
func (l *Ledger) Remove(ctx context.Context, tokenID string, size, exitPrice, slippage float64, settlement bool) (ClosedPosition, error) {
	pos, err := l.store.Get(ctx, tokenID)
	if errors.Is(err, domain.ErrNotFound) {
		return ClosedPosition{}, fmt.Errorf("ledger: remove %s: %w", tokenID, domain.ErrNotFound)
	}
	if err != nil {
		return ClosedPosition{}, fmt.Errorf("ledger: remove %s: load: %w", tokenID, err)
	}

	now := l.now().UTC()

	tradeSize := size
	if tradeSize <= 0 || tradeSize >= pos.Size {
		tradeSize = pos.Size
	}

	actualExit := exitPrice
	actualSlippage := slippage
	if settlement {
		actualSlippage = 0
	} else if actualExit <= 0 {
		actualExit = pos.AvgPrice
	}

	holding := now.Sub(pos.EntryTime).Seconds()
	if holding < 0 {
		holding = 0
	}
	pnl := (actualExit - pos.AvgPrice) * tradeSize
	pnlPct := 0.0
	if pos.AvgPrice > 0 {
		pnlPct = (actualExit - pos.AvgPrice) / pos.AvgPrice
	}

	l.appendHistory(ctx, domain.TradeRecord{
		Timestamp:      now,
		TokenID:        tokenID,
		Side:           domain.OrderSideSell,
		EntryPrice:     pos.AvgPrice,
		ExitPrice:      actualExit,
		Size:           tradeSize,
		HoldingSeconds: holding,
		PnL:            pnl,
		PnLPct:         pnlPct,
		Slippage:       actualSlippage,
	})

	if tradeSize >= pos.Size {
		if err := l.store.Delete(ctx, tokenID); err != nil {
			l.logger.ErrorContext(ctx, "ledger persist failed",
				slog.String("token", tokenID),
				slog.String("error", err.Error()),
			)
			return ClosedPosition{}, fmt.Errorf("ledger: remove %s: delete: %w", tokenID, err)
		}
	} else {
		remaining := pos
		remaining.Size -= tradeSize
		remaining.UpdatedAt = now
		if err := l.store.Put(ctx, remaining); err != nil {
			l.logger.ErrorContext(ctx, "ledger persist failed",
				slog.String("token", tokenID),
				slog.String("error", err.Error()),
			)
			return ClosedPosition{}, fmt.Errorf("ledger: remove %s: persist: %w", tokenID, err)
		}
	}

	l.logger.InfoContext(ctx, "virtual position removed",
		slog.String("token", tokenID),
		slog.Float64("size", tradeSize),
		slog.Float64("exit_price", actualExit),
		slog.Float64("pnl", pnl),
		slog.Bool("settlement", settlement),
	)

	return ClosedPosition{
		Position:  pos,
		TradeSize: tradeSize,
		ExitPrice: actualExit,
		PnL:       pnl,
		PnLPct:    pnlPct,
		Settled:   settlement,
	}, nil
}

// CloseSettled walks all open entries, queries settlement status per token,
// and fully closes every entry whose market has resolved, at the
// deterministic settlement price with zero slippage. Lookup failures skip
// that token until the next poll.
func (l *Ledger) CloseSettled(ctx context.Context) ([]ClosedPosition, error) {
	if l.settlements == nil {
		return nil, nil
	}

	positions, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: close settled: list: %w", err)
	}

	var closed []ClosedPosition
	for _, pos := range positions {
		settlement, err := l.settlements.CheckSettlement(ctx, pos.TokenID)
		if err != nil {
			l.logger.WarnContext(ctx, "settlement lookup failed",
				slog.String("token", pos.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !settlement.Resolved {
			continue
		}

		cp, err := l.Remove(ctx, pos.TokenID, 0, settlement.Price, 0, true)
		if err != nil {
			l.logger.ErrorContext(ctx, "settlement close failed",
				slog.String("token", pos.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed = append(closed, cp)
	}

	if len(closed) > 0 {
		l.logger.InfoContext(ctx, "auto-closed settled positions", slog.Int("count", len(closed)))
	}
	return closed, nil
}

// Positions returns all open virtual positions.
func (l *Ledger) Positions(ctx context.Context) ([]domain.Position, error) {
	positions, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list positions: %w", err)
	}
	for i := range positions {
		positions[i].Origin = domain.PositionOriginVirtual
	}
	return positions, nil
}

// appendHistory logs a history write failure without failing the mutation:
// the ledger store is authoritative, the history log is an audit trail.
func (l *Ledger) appendHistory(ctx context.Context, rec domain.TradeRecord) {
	if l.history == nil {
		return
	}
	if err := l.history.Append(ctx, rec); err != nil {
		l.logger.ErrorContext(ctx, "trade history append failed",
			slog.String("token", rec.TokenID),
			slog.String("error", err.Error()),
		)
	}
}
