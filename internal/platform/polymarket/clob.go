package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

const (
	// balanceAttempts is how often a balance fetch is retried before the
	// caller receives a zero default.
	balanceAttempts = 3
	balanceBackoff  = 1 * time.Second
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. It implements domain.Gateway: order placement and
// cancellation, balance, positions, price and settlement queries. Every
// request carries the configured client-side timeout.
type ClobClient struct {
	baseURL    string
	address    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
	logger     *slog.Logger
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// hmac carries the API credentials for authenticated endpoints.
func NewClobClient(baseURL, address string, hmac *crypto.HMACAuth, timeout time.Duration, logger *slog.Logger) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		address: address,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		hmacAuth: hmac,
		logger:   logger.With(slog.String("component", "clob_client")),
	}
}

// CreateMarketOrder submits a marketable order for amount quote currency of
// the given token.
func (c *ClobClient) CreateMarketOrder(ctx context.Context, tokenID string, side domain.OrderSide, amount float64) (domain.OrderResult, error) {
	body := map[string]any{
		"tokenID":   tokenID,
		"side":      string(side),
		"amount":    strconv.FormatFloat(amount, 'f', -1, 64),
		"orderType": "FOK",
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: market order: %w", err)
	}
	return decodeOrderResult(respBody)
}

// CreateLimitOrder submits a resting order at the given price.
func (c *ClobClient) CreateLimitOrder(ctx context.Context, tokenID string, side domain.OrderSide, amount, price float64) (domain.OrderResult, error) {
	body := map[string]any{
		"tokenID":   tokenID,
		"side":      string(side),
		"amount":    strconv.FormatFloat(amount, 'f', -1, 64),
		"price":     strconv.FormatFloat(price, 'f', -1, 64),
		"orderType": "GTC",
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: limit order: %w", err)
	}
	return decodeOrderResult(respBody)
}

func decodeOrderResult(respBody []byte) (domain.OrderResult, error) {
	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return apiResult.ToDomainOrderResult(), nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}
	return nil
}

// OpenOrders returns all resting orders for the authenticated wallet.
func (c *ClobClient) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: open orders: %w", err)
	}

	var apiOrders []APIOpenOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode open orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].ToDomainOpenOrder())
	}
	return orders, nil
}

// Positions reports exchange-held positions, tagged real.
func (c *ClobClient) Positions(ctx context.Context) ([]domain.Position, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: positions: %w", err)
	}

	var apiPositions []APIPosition
	if err := json.Unmarshal(respBody, &apiPositions); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode positions: %w", err)
	}

	now := time.Now().UTC()
	positions := make([]domain.Position, 0, len(apiPositions))
	for _, p := range apiPositions {
		if p.Size <= 0 {
			continue
		}
		positions = append(positions, domain.Position{
			TokenID:   p.AssetID,
			Size:      p.Size,
			AvgPrice:  p.AvgPrice,
			UpdatedAt: now,
			Origin:    domain.PositionOriginReal,
		})
	}
	return positions, nil
}

// Balance returns the available quote-currency balance. The fetch is retried
// up to balanceAttempts times with a fixed backoff; exhausting the retries
// returns the last error so the caller can substitute its default.
func (c *ClobClient) Balance(ctx context.Context) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < balanceAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(balanceBackoff):
			}
		}

		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
		if err != nil {
			lastErr = err
			c.logger.DebugContext(ctx, "balance fetch failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		var result struct {
			Balance string `json:"balance"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			lastErr = fmt.Errorf("decode balance: %w", err)
			continue
		}
		raw, err := strconv.ParseFloat(result.Balance, 64)
		if err != nil {
			lastErr = fmt.Errorf("parse balance %q: %w", result.Balance, err)
			continue
		}
		// Collateral balances are reported in USDC base units (1e6).
		return raw / 1e6, nil
	}
	return 0, fmt.Errorf("polymarket/clob: balance after %d attempts: %w", balanceAttempts, lastErr)
}

// MidpointPrice returns the live mid price for a token.
func (c *ClobClient) MidpointPrice(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	respBody, err := c.doGet(ctx, "/midpoint?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: midpoint %s: %w", tokenID, err)
	}

	var result struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	mid, err := strconv.ParseFloat(result.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", result.Mid, err)
	}
	if mid <= 0 {
		return 0, domain.ErrNoPrice
	}
	return mid, nil
}

// CheckSettlement reports whether the market holding tokenID has resolved
// and the deterministic settlement price of that token.
func (c *ClobClient) CheckSettlement(ctx context.Context, tokenID string) (domain.Settlement, error) {
	respBody, err := c.doGet(ctx, "/markets/tokens/"+url.PathEscape(tokenID))
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("polymarket/clob: settlement %s: %w", tokenID, err)
	}

	var market APITokenMarket
	if err := json.Unmarshal(respBody, &market); err != nil {
		return domain.Settlement{}, fmt.Errorf("polymarket/clob: decode token market: %w", err)
	}
	return market.Settlement(tokenID), nil
}

// --------------------------------------------------------------------------
// HTTP plumbing
// --------------------------------------------------------------------------

func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.hmacAuth != nil && c.hmacAuth.Configured() {
		for k, v := range c.hmacAuth.Headers(c.address, method, path, string(bodyBytes)) {
			req.Header.Set(k, v)
		}
	}

	return c.do(req)
}

func (c *ClobClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrUnauthorized, resp.StatusCode, trimBody(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, trimBody(body))
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.Gateway = (*ClobClient)(nil)
