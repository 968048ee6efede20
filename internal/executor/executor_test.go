package executor

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

type memHistory struct {
	records []domain.TradeRecord
}

func (m *memHistory) Append(_ context.Context, rec domain.TradeRecord) error {
	m.records = append(m.records, rec)
	return nil
}

// fakeGateway is a scripted domain.Gateway.
type fakeGateway struct {
	midpoints   map[string]float64
	balance     float64
	balanceErr  error
	orderResult domain.OrderResult
	orderErr    error
	placed      []string
	openOrders  []domain.OpenOrder
	cancelled   []string
}

func (g *fakeGateway) CreateMarketOrder(_ context.Context, tokenID string, side domain.OrderSide, _ float64) (domain.OrderResult, error) {
	g.placed = append(g.placed, "market:"+string(side)+":"+tokenID)
	return g.orderResult, g.orderErr
}

func (g *fakeGateway) CreateLimitOrder(_ context.Context, tokenID string, side domain.OrderSide, _, _ float64) (domain.OrderResult, error) {
	g.placed = append(g.placed, "limit:"+string(side)+":"+tokenID)
	return g.orderResult, g.orderErr
}

func (g *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) OpenOrders(_ context.Context) ([]domain.OpenOrder, error) {
	return g.openOrders, nil
}

func (g *fakeGateway) Positions(_ context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (g *fakeGateway) Balance(_ context.Context) (float64, error) {
	return g.balance, g.balanceErr
}

func (g *fakeGateway) MidpointPrice(_ context.Context, tokenID string) (float64, error) {
	price, ok := g.midpoints[tokenID]
	if !ok {
		return 0, domain.ErrNoPrice
	}
	return price, nil
}

func (g *fakeGateway) CheckSettlement(_ context.Context, _ string) (domain.Settlement, error) {
	return domain.Settlement{}, nil
}

// staticPositions is a fixed PositionSource.
type staticPositions struct {
	positions []domain.Position
}

func (s *staticPositions) Positions(_ context.Context) ([]domain.Position, error) {
	return s.positions, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultOpts() Options {
	return Options{
		DryRun:           true,
		MinTradeSize:     1.0,
		MaxPositionSize:  100.0,
		MaxTotalExposure: 1000.0,
		PriceTimeout:     time.Second,
		SlippageSeed:     42,
	}
}

func newTestExecutor(t *testing.T, opts Options, gateway *fakeGateway, positions *staticPositions) (*Executor, *memStore, *memHistory) {
	t.Helper()
	store := newMemStore()
	history := &memHistory{}
	lgr := ledger.New(store, history, nil, testLogger())
	return New(opts, gateway, lgr, nil, positions, testLogger()), store, history
}

func ptr(v float64) *float64 { return &v }

func TestSimulatedBuyOpensVirtualPosition(t *testing.T) {
	gateway := &fakeGateway{midpoints: map[string]float64{"tok-1": 0.40}}
	exec, store, history := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10},
	})

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, domain.OrderStatusMatched, res.Status)
	assert.True(t, res.Simulated)
	assert.Equal(t, 0.40, res.RefPrice)
	assert.GreaterOrEqual(t, res.Slippage, 0.0)
	assert.Less(t, res.Slippage, 0.01)
	// buys fill at or above the reference price
	assert.GreaterOrEqual(t, res.Price, res.RefPrice)
	assert.Less(t, res.Price, res.RefPrice*1.01)

	pos, err := store.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Size)
	assert.Equal(t, res.Price, pos.AvgPrice)
	require.Len(t, history.records, 1)
	// real exchange untouched in dry-run
	assert.Empty(t, gateway.placed)
}

func TestSimulatedSellWorsensPriceDownward(t *testing.T) {
	gateway := &fakeGateway{}
	exec, store, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	require.NoError(t, exec.ledger.Add(context.Background(), "tok-1", 10, 0.50))

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideSell, Size: 10, Price: ptr(0.60)},
	})

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, domain.OrderStatusMatched, res.Status)
	assert.LessOrEqual(t, res.Price, 0.60)
	assert.Greater(t, res.Price, 0.60*0.99)

	_, err := store.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSlippageIsDeterministicForSeed(t *testing.T) {
	mk := func() domain.ExecutedOrder {
		gateway := &fakeGateway{}
		exec, _, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})
		res := exec.Execute(context.Background(), []domain.Signal{
			{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
		})
		return res[0]
	}

	first, second := mk(), mk()
	assert.Equal(t, first.Slippage, second.Slippage)
	assert.Equal(t, first.Price, second.Price)
}

func TestRejectsBelowMinimumSizeWithoutMutation(t *testing.T) {
	gateway := &fakeGateway{}
	exec, store, history := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 0.5, Price: ptr(0.40)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "below minimum")
	assert.Empty(t, store.positions)
	assert.Empty(t, history.records)
}

func TestRejectsAboveMaximumSize(t *testing.T) {
	gateway := &fakeGateway{}
	exec, _, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 500, Price: ptr(0.40)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
}

func TestBuyRejectedWhenExposureLimitExceeded(t *testing.T) {
	held := &staticPositions{positions: []domain.Position{
		{TokenID: "held", Size: 2000, AvgPrice: 0.50}, // notional 1000
	}}
	gateway := &fakeGateway{}
	exec, store, _ := newTestExecutor(t, defaultOpts(), gateway, held)

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "exposure")
	assert.Empty(t, store.positions)
}

func TestBuyRejectedWhenSizeAloneExceedsExposureLimit(t *testing.T) {
	opts := defaultOpts()
	opts.MaxTotalExposure = 50
	opts.MaxPositionSize = 100
	gateway := &fakeGateway{}
	exec, store, history := newTestExecutor(t, opts, gateway, &staticPositions{})

	// size is compared in quote currency, not discounted by the fill price
	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 60, Price: ptr(0.50)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "exposure")
	assert.Empty(t, store.positions)
	assert.Empty(t, history.records)
}

func TestSellWithoutPositionFails(t *testing.T) {
	gateway := &fakeGateway{}
	exec, _, history := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideSell, Size: 10, Price: ptr(0.50)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "no virtual position")
	assert.Empty(t, history.records)
}

func TestOneFailedSignalDoesNotAbortBatch(t *testing.T) {
	gateway := &fakeGateway{}
	exec, store, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
		{TokenID: "tok-2", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
	})

	require.Len(t, results, 2)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Equal(t, domain.OrderStatusMatched, results[1].Status)

	_, err := store.Get(context.Background(), "tok-2")
	assert.NoError(t, err)
}

func TestFallbackPriceWhenNoSourceAvailable(t *testing.T) {
	gateway := &fakeGateway{} // no midpoints
	exec, _, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10},
	})

	require.Len(t, results, 1)
	assert.Equal(t, 0.5, results[0].RefPrice)
}

func TestRealModeDelegatesToGateway(t *testing.T) {
	opts := defaultOpts()
	opts.DryRun = false
	gateway := &fakeGateway{
		balance:     100,
		orderResult: domain.OrderResult{Success: true, OrderID: "ord-1", Status: domain.OrderStatusOpen},
	}
	exec, store, _ := newTestExecutor(t, opts, gateway, &staticPositions{})

	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
		{TokenID: "tok-2", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40), MarketOrder: true},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "ord-1", results[0].OrderID)
	assert.False(t, results[0].Simulated)
	assert.Equal(t, []string{"limit:buy:tok-1", "market:buy:tok-2"}, gateway.placed)
	// real fills never touch the virtual ledger
	assert.Empty(t, store.positions)
}

func TestRealModeBuyRejectedOnInsufficientBalance(t *testing.T) {
	opts := defaultOpts()
	opts.DryRun = false
	gateway := &fakeGateway{balance: 5}
	exec, _, _ := newTestExecutor(t, opts, gateway, &staticPositions{})

	// balance covers the notional at the limit price but not the full size
	results := exec.Execute(context.Background(), []domain.Signal{
		{TokenID: "tok-1", Side: domain.OrderSideBuy, Size: 10, Price: ptr(0.40)},
	})

	require.Len(t, results, 1)
	assert.Equal(t, domain.OrderStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "balance")
	assert.Empty(t, gateway.placed)
}

func TestCancelAllOrders(t *testing.T) {
	gateway := &fakeGateway{openOrders: []domain.OpenOrder{
		{ID: "a", TokenID: "tok-1"},
		{ID: "b", TokenID: "tok-2"},
	}}
	exec, _, _ := newTestExecutor(t, defaultOpts(), gateway, &staticPositions{})

	n, err := exec.CancelAllOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, gateway.cancelled)
}
