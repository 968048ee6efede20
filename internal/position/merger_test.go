package position

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/ledger"
)

type memStore struct {
	positions map[string]domain.Position
}

func newMemStore() *memStore {
	return &memStore{positions: map[string]domain.Position{}}
}

func (m *memStore) Get(_ context.Context, tokenID string) (domain.Position, error) {
	pos, ok := m.positions[tokenID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (m *memStore) Put(_ context.Context, pos domain.Position) error {
	m.positions[pos.TokenID] = pos
	return nil
}

func (m *memStore) Delete(_ context.Context, tokenID string) error {
	delete(m.positions, tokenID)
	return nil
}

func (m *memStore) List(_ context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	return out, nil
}

// fakeGateway serves exchange positions and midpoint prices, optionally with
// an artificial delay.
type fakeGateway struct {
	positions []domain.Position
	midpoints map[string]float64
	delay     time.Duration
}

func (g *fakeGateway) CreateMarketOrder(_ context.Context, _ string, _ domain.OrderSide, _ float64) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}

func (g *fakeGateway) CreateLimitOrder(_ context.Context, _ string, _ domain.OrderSide, _, _ float64) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _ string) error { return nil }

func (g *fakeGateway) OpenOrders(_ context.Context) ([]domain.OpenOrder, error) { return nil, nil }

func (g *fakeGateway) Positions(_ context.Context) ([]domain.Position, error) {
	return g.positions, nil
}

func (g *fakeGateway) Balance(_ context.Context) (float64, error) { return 0, nil }

func (g *fakeGateway) MidpointPrice(ctx context.Context, tokenID string) (float64, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	price, ok := g.midpoints[tokenID]
	if !ok {
		return 0, domain.ErrNoPrice
	}
	return price, nil
}

func (g *fakeGateway) CheckSettlement(_ context.Context, _ string) (domain.Settlement, error) {
	return domain.Settlement{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMerger(t *testing.T, gateway *fakeGateway, timeout time.Duration) (*Merger, *ledger.Ledger) {
	t.Helper()
	lgr := ledger.New(newMemStore(), nil, nil, testLogger())
	return New(gateway, lgr, nil, timeout, testLogger()), lgr
}

func TestMergeKeepsRealAndVirtualDistinct(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		positions: []domain.Position{
			{TokenID: "tok-1", Size: 5, AvgPrice: 0.30, Origin: domain.PositionOriginReal},
		},
		midpoints: map[string]float64{"tok-1": 0.45},
	}
	merger, lgr := newTestMerger(t, gateway, time.Second)
	require.NoError(t, lgr.Add(ctx, "tok-1", 10, 0.40))

	merged, err := merger.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	origins := map[domain.PositionOrigin]bool{}
	for _, p := range merged {
		assert.Equal(t, "tok-1", p.TokenID)
		origins[p.Origin] = true
	}
	assert.True(t, origins[domain.PositionOriginReal])
	assert.True(t, origins[domain.PositionOriginVirtual])
}

func TestEnrichmentSetsCurrentPriceAndPnL(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{midpoints: map[string]float64{"tok-1": 0.50}}
	merger, lgr := newTestMerger(t, gateway, time.Second)
	require.NoError(t, lgr.Add(ctx, "tok-1", 10, 0.40))

	merged, err := merger.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)

	require.NotNil(t, merged[0].CurrentPrice)
	assert.InDelta(t, 0.50, *merged[0].CurrentPrice, 1e-9)
	assert.InDelta(t, 1.0, merged[0].UnrealizedPnL, 1e-9)
}

func TestSlowPriceLookupLeavesPositionUnpriced(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		midpoints: map[string]float64{"tok-1": 0.50},
		delay:     300 * time.Millisecond,
	}
	merger, lgr := newTestMerger(t, gateway, 30*time.Millisecond)
	require.NoError(t, lgr.Add(ctx, "tok-1", 10, 0.40))

	merged, err := merger.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)

	assert.Nil(t, merged[0].CurrentPrice)
	assert.Equal(t, 0.0, merged[0].UnrealizedPnL)
}

func TestSummaryMath(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{midpoints: map[string]float64{"tok-1": 0.50}}
	merger, lgr := newTestMerger(t, gateway, time.Second)
	require.NoError(t, lgr.Add(ctx, "tok-1", 10, 0.40))

	merger.CaptureInitialBalance(100)
	// capture is first-write-wins
	merger.CaptureInitialBalance(500)

	summary, err := merger.Summary(ctx, 96)
	require.NoError(t, err)

	assert.Equal(t, 100.0, summary.InitialBalance)
	assert.Equal(t, 96.0, summary.CurrentBalance)
	assert.InDelta(t, 1.0, summary.UnrealizedPnL, 1e-9)
	assert.InDelta(t, -3.0, summary.TotalPnL, 1e-9)
	assert.InDelta(t, -3.0, summary.TotalPnLPct, 1e-9)
}

func TestSummaryWithoutCapturedBalanceUsesCurrent(t *testing.T) {
	gateway := &fakeGateway{}
	merger, _ := newTestMerger(t, gateway, time.Second)

	summary, err := merger.Summary(context.Background(), 250)
	require.NoError(t, err)
	assert.Equal(t, 250.0, summary.InitialBalance)
	assert.Equal(t, 0.0, summary.TotalPnL)
}
