package polymarket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// countingChecker records how many lookups reach the network.
type countingChecker struct {
	calls  atomic.Int64
	answer domain.Settlement
	err    error
}

func (c *countingChecker) CheckSettlement(_ context.Context, _ string) (domain.Settlement, error) {
	c.calls.Add(1)
	return c.answer, c.err
}

func TestCachedSettlementsCachesUnresolvedForTTL(t *testing.T) {
	inner := &countingChecker{answer: domain.Settlement{Resolved: false}}
	cached := NewCachedSettlements(inner, time.Minute, 100, 100, 0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s, err := cached.CheckSettlement(ctx, "tok-1")
		require.NoError(t, err)
		assert.False(t, s.Resolved)
	}

	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedSettlementsSeparateTokens(t *testing.T) {
	inner := &countingChecker{answer: domain.Settlement{Resolved: false}}
	cached := NewCachedSettlements(inner, time.Minute, 100, 100, 0)

	ctx := context.Background()
	_, err := cached.CheckSettlement(ctx, "tok-1")
	require.NoError(t, err)
	_, err = cached.CheckSettlement(ctx, "tok-2")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedSettlementsResolvedCachedForever(t *testing.T) {
	inner := &countingChecker{answer: domain.Settlement{Resolved: true, Price: 1.0}}
	// tiny TTL: a resolved answer must survive it
	cached := NewCachedSettlements(inner, 10*time.Millisecond, 100, 100, 0)

	ctx := context.Background()
	_, err := cached.CheckSettlement(ctx, "tok-1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	s, err := cached.CheckSettlement(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, s.Resolved)
	assert.Equal(t, int64(1), inner.calls.Load())
}

// slowChecker blocks until its context is cancelled.
type slowChecker struct{}

func (slowChecker) CheckSettlement(ctx context.Context, _ string) (domain.Settlement, error) {
	<-ctx.Done()
	return domain.Settlement{}, ctx.Err()
}

func TestCachedSettlementsBoundsLookupByRequestTimeout(t *testing.T) {
	cached := NewCachedSettlements(slowChecker{}, time.Minute, 100, 100, 20*time.Millisecond)

	start := time.Now()
	_, err := cached.CheckSettlement(context.Background(), "tok-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCachedSettlementsDoesNotCacheErrors(t *testing.T) {
	inner := &countingChecker{err: assert.AnError}
	cached := NewCachedSettlements(inner, time.Minute, 100, 100, 0)

	ctx := context.Background()
	_, err := cached.CheckSettlement(ctx, "tok-1")
	require.Error(t, err)
	_, err = cached.CheckSettlement(ctx, "tok-1")
	require.Error(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}
