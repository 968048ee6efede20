package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Momentum buys tokens whose price has risen above their sliding-window
// average by the configured threshold, and exits held positions on
// take-profit or stop-loss.
type Momentum struct {
	cfg     Config
	tracker *PriceTracker
	logger  *slog.Logger
}

// NewMomentum creates a Momentum strategy with a 30 minute price window.
func NewMomentum(cfg Config, logger *slog.Logger) *Momentum {
	return &Momentum{
		cfg:     cfg,
		tracker: NewPriceTracker(30 * time.Minute),
		logger:  logger.With(slog.String("strategy", "momentum")),
	}
}

// Name returns the strategy identifier.
func (m *Momentum) Name() string { return "momentum" }

// Evaluate records current market prices, then emits exit signals for held
// positions that hit take-profit or stop-loss and entry signals for tokens
// trading above their window average.
func (m *Momentum) Evaluate(ctx context.Context, snap Snapshot) ([]domain.Signal, error) {
	now := time.Now().UTC()

	current := make(map[string]float64)
	for _, market := range snap.Markets {
		if market.Closed || !market.AcceptingOrders {
			continue
		}
		for _, token := range market.Tokens {
			if token.Price <= 0 {
				continue
			}
			current[token.TokenID] = token.Price
			m.tracker.Track(token.TokenID, token.Price, now)
		}
	}

	held := make(map[string]bool, len(snap.Positions))
	var signals []domain.Signal

	for _, pos := range snap.Positions {
		held[pos.TokenID] = true
		if !pos.Virtual() || pos.CurrentPrice == nil || pos.AvgPrice <= 0 {
			continue
		}
		change := (*pos.CurrentPrice - pos.AvgPrice) / pos.AvgPrice
		switch {
		case m.cfg.TakeProfit > 0 && change >= m.cfg.TakeProfit:
			signals = append(signals, m.exit(pos, "take profit"))
		case m.cfg.StopLoss > 0 && change <= -m.cfg.StopLoss:
			signals = append(signals, m.exit(pos, "stop loss"))
		}
	}

	openSlots := m.cfg.MaxPositions - len(snap.Positions)
	for tokenID, price := range current {
		if openSlots <= 0 {
			break
		}
		if held[tokenID] {
			continue
		}
		if m.tracker.Count(tokenID) < 2 {
			continue
		}
		avg := m.tracker.Average(tokenID)
		if avg <= 0 || (price-avg)/avg < m.cfg.Threshold {
			continue
		}

		m.logger.DebugContext(ctx, "momentum entry",
			slog.String("token", tokenID),
			slog.Float64("price", price),
			slog.Float64("window_avg", avg),
		)
		p := price
		signals = append(signals, domain.Signal{
			TokenID: tokenID,
			Side:    domain.OrderSideBuy,
			Size:    m.cfg.TradeSize,
			Price:   &p,
			Reason:  "momentum entry",
		})
		openSlots--
	}

	return signals, nil
}

func (m *Momentum) exit(pos domain.Position, reason string) domain.Signal {
	p := *pos.CurrentPrice
	return domain.Signal{
		TokenID: pos.TokenID,
		Side:    domain.OrderSideSell,
		Size:    pos.Size,
		Price:   &p,
		Reason:  reason,
	}
}
