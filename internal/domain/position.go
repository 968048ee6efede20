package domain

import "time"

// PositionOrigin distinguishes exchange-reported positions from entries in
// the virtual ledger.
type PositionOrigin string

const (
	PositionOriginReal    PositionOrigin = "real"
	PositionOriginVirtual PositionOrigin = "virtual"
)

// Position is a holding in one market token. Real positions are owned by the
// exchange; virtual positions are owned by the ledger. Size is strictly
// positive while the position is open: a fully closed position is deleted
// from its store, never zeroed in place.
type Position struct {
	TokenID   string    `json:"token_id"`
	Size      float64   `json:"size"`
	AvgPrice  float64   `json:"average_price"`
	EntryTime time.Time `json:"entry_time"`
	UpdatedAt time.Time `json:"last_update"`

	Origin PositionOrigin `json:"origin"`

	// CurrentPrice is set by the position merger when a live price lookup
	// completes within budget. Nil means "no current price yet".
	CurrentPrice *float64 `json:"current_price,omitempty"`
	// UnrealizedPnL is (current - average) * size when priced, else 0.
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Virtual reports whether the position came from the virtual ledger.
func (p Position) Virtual() bool {
	return p.Origin == PositionOriginVirtual
}

// Notional returns the position's exposure at its average entry price.
func (p Position) Notional() float64 {
	return p.Size * p.AvgPrice
}

// PnLSummary aggregates balance and profit figures across all positions.
type PnLSummary struct {
	InitialBalance float64
	CurrentBalance float64
	UnrealizedPnL  float64
	TotalPnL       float64
	TotalPnLPct    float64
}
