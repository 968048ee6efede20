package strategy

import (
	"sync"
	"time"
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// PriceTracker maintains a sliding window of recent prices per token and
// exposes the statistics strategies rely on.
type PriceTracker struct {
	history    map[string][]PricePoint
	windowSize time.Duration
	mu         sync.RWMutex
}

// NewPriceTracker creates a PriceTracker. windowSize controls how far back
// the in-memory history extends; older points are discarded on every Track.
func NewPriceTracker(windowSize time.Duration) *PriceTracker {
	return &PriceTracker{
		history:    make(map[string][]PricePoint),
		windowSize: windowSize,
	}
}

// Track records a new price observation for the given token and trims points
// that have fallen outside the sliding window.
func (pt *PriceTracker) Track(tokenID string, price float64, ts time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.history[tokenID] = append(pt.history[tokenID], PricePoint{
		Price: price,
		Time:  ts,
	})

	cutoff := ts.Add(-pt.windowSize)
	pts := pt.history[tokenID]
	keep := 0
	for keep < len(pts) && pts[keep].Time.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		pt.history[tokenID] = append([]PricePoint(nil), pts[keep:]...)
	}
}

// Count returns the number of points in the window for the given token.
func (pt *PriceTracker) Count(tokenID string) int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.history[tokenID])
}

// Average returns the arithmetic mean of all prices in the sliding window,
// or 0 when there are no recorded points.
func (pt *PriceTracker) Average(tokenID string) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	pts := pt.history[tokenID]
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	return sum / float64(len(pts))
}
