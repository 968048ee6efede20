// Package polymarket contains the REST and WebSocket clients for the
// Polymarket CLOB and Gamma APIs. These are the concrete exchange-gateway
// and market-data collaborators used by the trading runtime.
package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma API.
type APIMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	ConditionID     string   `json:"conditionId"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	AcceptingOrders bool     `json:"acceptingOrders"`
	Outcomes        string   `json:"outcomes"`      // JSON-encoded, e.g. "[\"Yes\",\"No\"]"
	OutcomePrices   string   `json:"outcomePrices"` // JSON-encoded, e.g. "[\"0.5\",\"0.5\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"`  // JSON-encoded, e.g. "[\"123\",\"456\"]"
	EndDateISO      string   `json:"endDateIso"`
}

// ToDomainMarket converts an APIMarket to a domain.Market, pairing each
// outcome with its token ID and current price.
func (m *APIMarket) ToDomainMarket() domain.Market {
	market := domain.Market{
		ID:              m.ID,
		Question:        m.Question,
		ConditionID:     m.ConditionID,
		Closed:          m.Closed,
		AcceptingOrders: m.AcceptingOrders,
	}

	var outcomes, prices, tokenIDs []string
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs)

	for i, id := range tokenIDs {
		tok := domain.MarketToken{TokenID: id}
		if i < len(outcomes) {
			tok.Outcome = outcomes[i]
		}
		if i < len(prices) {
			if p, err := strconv.ParseFloat(prices[i], 64); err == nil {
				tok.Price = p
			}
		}
		market.Tokens = append(market.Tokens, tok)
	}

	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		market.EndDate = &t
	}
	return market
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ToDomainOrderResult maps the API response to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	status := domain.OrderStatus(r.Status)
	if r.Status == "" {
		if r.Success {
			status = domain.OrderStatusOpen
		} else {
			status = domain.OrderStatusFailed
		}
	}
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Status:  status,
		Message: r.ErrorMsg,
	}
}

// APIOpenOrder is a resting order as returned by GET /orders.
type APIOpenOrder struct {
	ID        string `json:"id"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"` // "BUY" or "SELL"
	Price     string `json:"price"`
	Size      string `json:"original_size"`
	CreatedAt int64  `json:"created_at"`
}

// ToDomainOpenOrder converts an APIOpenOrder to a domain.OpenOrder.
func (o *APIOpenOrder) ToDomainOpenOrder() domain.OpenOrder {
	order := domain.OpenOrder{
		ID:      o.ID,
		TokenID: o.AssetID,
		Side:    domain.OrderSide(strings.ToLower(o.Side)),
	}
	if p, err := strconv.ParseFloat(o.Price, 64); err == nil {
		order.Price = p
	}
	if s, err := strconv.ParseFloat(o.Size, 64); err == nil {
		order.Size = s
	}
	if o.CreatedAt > 0 {
		order.CreatedAt = time.Unix(o.CreatedAt, 0).UTC()
	}
	return order
}

// APIPosition is an exchange-held position as returned by the data API.
type APIPosition struct {
	AssetID  string  `json:"asset"`
	Size     float64 `json:"size"`
	AvgPrice float64 `json:"avgPrice"`
}

// APITokenMarket is the market blob returned by GET /markets/tokens/{id},
// including the resolution state used for settlement detection.
type APITokenMarket struct {
	ConditionID string `json:"condition_id"`
	Resolution  string `json:"resolution"`
	Tokens      []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
		Winner  bool   `json:"winner"`
	} `json:"tokens"`
}

// Settlement derives the settlement state of tokenID from the market blob.
// The settlement price is deterministic: 1.0 when the held token's outcome
// matches the resolution, else 0.0.
func (m *APITokenMarket) Settlement(tokenID string) domain.Settlement {
	resolution := strings.ToLower(strings.TrimSpace(m.Resolution))
	if resolution == "" || resolution == "null" {
		return domain.Settlement{}
	}

	for _, tok := range m.Tokens {
		if tok.TokenID != tokenID {
			continue
		}
		price := 0.0
		if strings.EqualFold(tok.Outcome, resolution) || tok.Winner {
			price = 1.0
		}
		return domain.Settlement{Resolved: true, Price: price, Outcome: m.Resolution}
	}

	// Token not listed in the blob: fall back to interpreting the
	// resolution string itself.
	price := 0.0
	switch resolution {
	case "yes", "true", "1", "correct", "won":
		price = 1.0
	}
	return domain.Settlement{Resolved: true, Price: price, Outcome: m.Resolution}
}
