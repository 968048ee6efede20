package domain

// Signal is emitted by a strategy to request order execution. Signals are
// produced fresh each polling cycle, treated as immutable, and never
// persisted.
type Signal struct {
	TokenID string
	Side    OrderSide
	// Size is the positive trade amount in quote currency, the same unit
	// the exposure and balance limits are denominated in.
	Size float64
	// Price is the limit price. Nil means the executor resolves a
	// reference price itself (live midpoint, then fallback).
	Price *float64
	// Reason is a human-readable explanation for logging.
	Reason string
	// MarketOrder selects the gateway's market-order primitive instead of
	// a limit order in real mode.
	MarketOrder bool
}

// LimitPrice returns the signal's price and whether one was supplied.
func (s Signal) LimitPrice() (float64, bool) {
	if s.Price == nil {
		return 0, false
	}
	return *s.Price, true
}
