package domain

import "time"

// MarketToken is one tradable outcome token within a market.
type MarketToken struct {
	TokenID string
	Outcome string
	Price   float64
	Winner  bool
}

// Market is a prediction-market descriptor as returned by the market-data
// collaborator.
type Market struct {
	ID              string
	Question        string
	ConditionID     string
	Closed          bool
	AcceptingOrders bool
	Tokens          []MarketToken
	EndDate         *time.Time
}

// Settlement describes the resolution state of the market holding one token.
// When Resolved is true, Price is the deterministic settlement value of that
// token: 1.0 if its outcome won, else 0.0.
type Settlement struct {
	Resolved bool
	Price    float64
	Outcome  string
}
