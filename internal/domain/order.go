package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle as reported by the exchange.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderResult wraps the exchange response after order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  OrderStatus
	Message string
}

// OpenOrder is a resting order as reported by the exchange.
type OpenOrder struct {
	ID        string
	TokenID   string
	Side      OrderSide
	Price     float64
	Size      float64
	CreatedAt time.Time
}

// ExecutedOrder is the executor's record of one acted-upon signal. Simulated
// fills carry the reference price and the slippage that was applied; real
// fills carry the exchange order ID and status instead.
type ExecutedOrder struct {
	ID        string
	TokenID   string
	Side      OrderSide
	Size      float64
	Price     float64 // fill price (slippage-adjusted when simulated)
	RefPrice  float64 // reference price before slippage, simulated only
	Slippage  float64 // fraction in [0, 0.01), simulated only
	Simulated bool
	OrderID   string // exchange order ID, real mode only
	Status    OrderStatus
	Reason    string
	PlacedAt  time.Time
}
