package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

const (
	wsReadLimit      = 1 << 20
	wsPingInterval   = 10 * time.Second
	wsReconnectDelay = 2 * time.Second
)

// PriceFeed subscribes to the CLOB WebSocket market channel for a set of
// tokens and writes every observed price into the price cache, keeping it
// warm for the merger and executor. The feed is best-effort: losing it only
// means enrichment falls back to REST lookups.
type PriceFeed struct {
	wsURL    string
	tokenIDs []string
	cache    domain.PriceCache
	logger   *slog.Logger
}

// NewPriceFeed creates a feed for the given token IDs.
func NewPriceFeed(wsURL string, tokenIDs []string, cache domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:    wsURL,
		tokenIDs: tokenIDs,
		cache:    cache,
		logger:   logger.With(slog.String("component", "price_feed")),
	}
}

// Run connects, subscribes, and pumps messages until ctx is cancelled,
// reconnecting with a fixed delay on disconnect.
func (f *PriceFeed) Run(ctx context.Context) error {
	if len(f.tokenIDs) == 0 {
		f.logger.Info("no tokens to subscribe, price feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("price feed disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (f *PriceFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL+"/ws/market", nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	sub := map[string]any{
		"type":       "market",
		"assets_ids": f.tokenIDs,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("price feed subscribed", slog.Int("tokens", len(f.tokenIDs)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go f.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(ctx, data)
	}
}

func (f *PriceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

// wsPriceChange is the price_change event payload.
type wsPriceChange struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Changes   []struct {
		Price string `json:"price"`
	} `json:"changes"`
	Price string `json:"price"` // last_trade_price events carry a flat price
}

func (f *PriceFeed) handleMessage(ctx context.Context, data []byte) {
	// The market channel multiplexes event types; anything that is not a
	// price event is ignored.
	var events []wsPriceChange
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsPriceChange
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		events = []wsPriceChange{single}
	}

	now := time.Now().UTC()
	for _, evt := range events {
		if evt.AssetID == "" {
			continue
		}

		var priceStr string
		switch evt.EventType {
		case "price_change":
			if len(evt.Changes) > 0 {
				priceStr = evt.Changes[len(evt.Changes)-1].Price
			}
		case "last_trade_price":
			priceStr = evt.Price
		default:
			continue
		}

		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			continue
		}
		if err := f.cache.SetPrice(ctx, evt.AssetID, price, now); err != nil {
			f.logger.Debug("price cache write failed",
				slog.String("token", evt.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}
}
