// Package strategy defines the poll-cycle strategy contract and the built-in
// strategies that produce trade signals from market snapshots.
package strategy

import (
	"context"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Snapshot is the per-cycle input handed to a strategy: the active markets,
// the merged position view, and the available quote balance.
type Snapshot struct {
	Markets   []domain.Market
	Positions []domain.Position
	Balance   float64
}

// Strategy defines the contract for polling strategies. Evaluate is called
// once per cycle with a fresh snapshot and returns zero or more signals.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, snap Snapshot) ([]domain.Signal, error)
}

// SettlementCloser is an optional interface a strategy implements when it
// wants exchange-held positions in resolved markets closed automatically.
// The returned signals are routed through the executor like any others.
type SettlementCloser interface {
	CloseSettled(ctx context.Context, positions []domain.Position) ([]domain.Signal, error)
}

// Config holds strategy tuning parameters.
type Config struct {
	// TradeSize is the share quantity each generated signal requests.
	TradeSize float64
	// Threshold is the fractional price move that triggers a signal.
	Threshold float64
	// TakeProfit closes a held position when its unrealized gain fraction
	// reaches this value. Zero disables.
	TakeProfit float64
	// StopLoss closes a held position when its unrealized loss fraction
	// reaches this value. Zero disables.
	StopLoss float64
	// MaxPositions caps the number of distinct tokens held at once.
	MaxPositions int
}
