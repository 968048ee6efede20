package polymarket

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// SettlementChecker is the narrow surface the ledger needs to detect
// resolved markets.
type SettlementChecker interface {
	CheckSettlement(ctx context.Context, tokenID string) (domain.Settlement, error)
}

// CachedSettlements wraps a SettlementChecker with an in-process TTL cache
// and a client-side rate limiter. Without it the ledger would issue one
// network call per open position on every poll; unresolved answers are
// cached for the TTL and resolved answers forever (settlement is
// irreversible).
type CachedSettlements struct {
	inner          SettlementChecker
	cache          *gocache.Cache
	limiter        *rate.Limiter
	requestTimeout time.Duration
}

// NewCachedSettlements creates a caching, rate-limited settlement checker.
// ttl bounds how long an "unresolved" answer is reused; lookupsPerSec and
// burst bound how quickly cache misses may reach the network; requestTimeout
// bounds each network lookup (zero means no extra bound).
func NewCachedSettlements(inner SettlementChecker, ttl time.Duration, lookupsPerSec float64, burst int, requestTimeout time.Duration) *CachedSettlements {
	return &CachedSettlements{
		inner:          inner,
		cache:          gocache.New(ttl, 2*ttl),
		limiter:        rate.NewLimiter(rate.Limit(lookupsPerSec), burst),
		requestTimeout: requestTimeout,
	}
}

// CheckSettlement returns the cached settlement state for tokenID, reaching
// the network only on a cache miss and within the rate limit.
func (c *CachedSettlements) CheckSettlement(ctx context.Context, tokenID string) (domain.Settlement, error) {
	if v, ok := c.cache.Get(tokenID); ok {
		return v.(domain.Settlement), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Settlement{}, fmt.Errorf("polymarket: settlement rate wait: %w", err)
	}

	lookupCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	settlement, err := c.inner.CheckSettlement(lookupCtx, tokenID)
	if err != nil {
		return domain.Settlement{}, err
	}

	if settlement.Resolved {
		c.cache.Set(tokenID, settlement, gocache.NoExpiration)
	} else {
		c.cache.Set(tokenID, settlement, gocache.DefaultExpiration)
	}
	return settlement, nil
}

// Compile-time interface check.
var _ SettlementChecker = (*CachedSettlements)(nil)
