package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		TradeSize:    10,
		Threshold:    0.02,
		TakeProfit:   0.20,
		StopLoss:     0.10,
		MaxPositions: 5,
	}
}

func marketAt(tokenID string, price float64) domain.Market {
	return domain.Market{
		ID:              "mkt-" + tokenID,
		AcceptingOrders: true,
		Tokens: []domain.MarketToken{
			{TokenID: tokenID, Outcome: "Yes", Price: price},
		},
	}
}

func TestTrackerAverageAndTrim(t *testing.T) {
	pt := NewPriceTracker(time.Minute)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	pt.Track("tok-1", 0.40, base.Add(-2*time.Minute)) // outside window once trimmed
	pt.Track("tok-1", 0.40, base)
	pt.Track("tok-1", 0.60, base.Add(10*time.Second))

	assert.Equal(t, 2, pt.Count("tok-1"))
	assert.InDelta(t, 0.50, pt.Average("tok-1"), 1e-9)
	assert.Equal(t, 0, pt.Count("other"))
	assert.Equal(t, 0.0, pt.Average("other"))
}

func TestMomentumEmitsEntryOnRisingPrice(t *testing.T) {
	m := NewMomentum(testConfig(), testLogger())
	ctx := context.Background()

	// first cycle only seeds the tracker
	signals, err := m.Evaluate(ctx, Snapshot{Markets: []domain.Market{marketAt("tok-1", 0.40)}})
	require.NoError(t, err)
	assert.Empty(t, signals)

	// second cycle: price 10% above the window average
	signals, err = m.Evaluate(ctx, Snapshot{Markets: []domain.Market{marketAt("tok-1", 0.44)}})
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "tok-1", sig.TokenID)
	assert.Equal(t, domain.OrderSideBuy, sig.Side)
	assert.Equal(t, 10.0, sig.Size)
	require.NotNil(t, sig.Price)
	assert.Equal(t, 0.44, *sig.Price)
}

func TestMomentumIgnoresFlatPrices(t *testing.T) {
	m := NewMomentum(testConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		signals, err := m.Evaluate(ctx, Snapshot{Markets: []domain.Market{marketAt("tok-1", 0.40)}})
		require.NoError(t, err)
		assert.Empty(t, signals)
	}
}

func TestMomentumSkipsHeldTokens(t *testing.T) {
	m := NewMomentum(testConfig(), testLogger())
	ctx := context.Background()

	_, err := m.Evaluate(ctx, Snapshot{Markets: []domain.Market{marketAt("tok-1", 0.40)}})
	require.NoError(t, err)

	signals, err := m.Evaluate(ctx, Snapshot{
		Markets: []domain.Market{marketAt("tok-1", 0.44)},
		Positions: []domain.Position{
			{TokenID: "tok-1", Size: 10, AvgPrice: 0.40, Origin: domain.PositionOriginVirtual},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentumTakeProfitExit(t *testing.T) {
	m := NewMomentum(testConfig(), testLogger())
	price := 0.50

	signals, err := m.Evaluate(context.Background(), Snapshot{
		Positions: []domain.Position{
			{
				TokenID:      "tok-1",
				Size:         10,
				AvgPrice:     0.40,
				Origin:       domain.PositionOriginVirtual,
				CurrentPrice: &price, // +25%, above the 20% take profit
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.OrderSideSell, signals[0].Side)
	assert.Equal(t, "take profit", signals[0].Reason)
	assert.Equal(t, 10.0, signals[0].Size)
}

func TestMomentumStopLossExit(t *testing.T) {
	m := NewMomentum(testConfig(), testLogger())
	price := 0.34

	signals, err := m.Evaluate(context.Background(), Snapshot{
		Positions: []domain.Position{
			{
				TokenID:      "tok-1",
				Size:         10,
				AvgPrice:     0.40,
				Origin:       domain.PositionOriginVirtual,
				CurrentPrice: &price, // -15%, past the 10% stop loss
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.OrderSideSell, signals[0].Side)
	assert.Equal(t, "stop loss", signals[0].Reason)
}

func TestMomentumRespectsMaxPositions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 1
	m := NewMomentum(cfg, testLogger())
	ctx := context.Background()

	_, err := m.Evaluate(ctx, Snapshot{Markets: []domain.Market{marketAt("tok-1", 0.40)}})
	require.NoError(t, err)

	signals, err := m.Evaluate(ctx, Snapshot{
		Markets: []domain.Market{marketAt("tok-1", 0.44)},
		Positions: []domain.Position{
			{TokenID: "other", Size: 10, AvgPrice: 0.50, Origin: domain.PositionOriginVirtual},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	m := NewMomentum(testConfig(), testLogger())
	r.Register(m)

	got, err := r.Get("momentum")
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = r.Get("nonesuch")
	assert.Error(t, err)
	assert.Equal(t, []string{"momentum"}, r.List())
}
