package domain

import (
	"context"
	"time"
)

// Gateway is the exchange collaborator. Every call carries a client-side
// timeout; callers treat failures as transient and fall back to safe
// defaults rather than aborting the polling loop.
type Gateway interface {
	// CreateMarketOrder submits a marketable order for amount quote
	// currency of the given token.
	CreateMarketOrder(ctx context.Context, tokenID string, side OrderSide, amount float64) (OrderResult, error)
	// CreateLimitOrder submits a resting order at the given price.
	CreateLimitOrder(ctx context.Context, tokenID string, side OrderSide, amount, price float64) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
	// Positions reports exchange-held positions, tagged PositionOriginReal.
	Positions(ctx context.Context) ([]Position, error)
	// Balance returns available quote-currency balance.
	Balance(ctx context.Context) (float64, error)
	// MidpointPrice returns the live mid price for a token.
	MidpointPrice(ctx context.Context, tokenID string) (float64, error)
	// CheckSettlement reports whether the market holding tokenID has
	// resolved, and if so the deterministic settlement price of that token.
	CheckSettlement(ctx context.Context, tokenID string) (Settlement, error)
}

// MarketSource is the market-data collaborator.
type MarketSource interface {
	Markets(ctx context.Context, limit int) ([]Market, error)
}

// PriceCache provides fast access to recently observed prices. The merger
// and executor consult it before reaching for a live lookup.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
}
