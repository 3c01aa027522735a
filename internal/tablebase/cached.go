package tablebase

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedProber wraps another prober with a bounded cache keyed by
// position hash. Only successful probes are cached; errors always reach
// the inner prober again.
type CachedProber struct {
	inner Prober
	cache *ristretto.Cache[uint64, Result]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedProber creates a cached prober holding up to size results.
func NewCachedProber(inner Prober, size int64) (*CachedProber, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, Result]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create probe cache: %w", err)
	}
	return &CachedProber{inner: inner, cache: cache}, nil
}

// NewCachedLichessProber creates a cached Lichess prober with default cache size.
func NewCachedLichessProber() (*CachedProber, error) {
	return NewCachedProber(NewLichessProber(), 100_000)
}

func (cp *CachedProber) ProbeWDL(q Query) (Result, error) {
	if r, ok := cp.cache.Get(q.Key); ok {
		cp.hits.Add(1)
		return r, nil
	}
	cp.misses.Add(1)

	r, err := cp.inner.ProbeWDL(q)
	if err != nil {
		return Result{}, err
	}
	cp.cache.Set(q.Key, r, 1)
	return r, nil
}

func (cp *CachedProber) MaxPieces() int  { return cp.inner.MaxPieces() }
func (cp *CachedProber) Available() bool { return cp.inner.Available() }

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// Wait blocks until buffered writes are visible to Get.
func (cp *CachedProber) Wait() { cp.cache.Wait() }

// Clear drops every cached result and resets the counters.
func (cp *CachedProber) Clear() {
	cp.cache.Clear()
	cp.hits.Store(0)
	cp.misses.Store(0)
}

// Close releases the cache's background goroutines.
func (cp *CachedProber) Close() { cp.cache.Close() }
