package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"portfolio-optimizer/internal/logger"
)

// PriceCache is a persistent L2 cache for price series, keyed by the
// provider's source name and the asset id.
type PriceCache interface {
	GetPriceSeries(source, assetID string, maxAge time.Duration) ([]float64, bool)
	SetPriceSeries(source, assetID string, prices []float64) error
}

type memEntry struct {
	prices  []float64
	fetched time.Time
}

// CachedProvider wraps another provider with an in-memory L1 cache, an
// optional persistent L2 cache and a singleflight.Group so concurrent requests
// for the same asset share one upstream fetch.
type CachedProvider struct {
	inner  PriceSeriesProvider
	store  PriceCache
	source string
	ttl    time.Duration

	mem   sync.Map // key -> memEntry
	group singleflight.Group
	now   func() time.Time
}

// NewCachedProvider wraps inner. store may be nil for a memory-only cache.
// Entries older than ttl are refetched.
func NewCachedProvider(inner PriceSeriesProvider, store PriceCache, ttl time.Duration) *CachedProvider {
	source := "default"
	if n, ok := inner.(interface{ Name() string }); ok {
		source = n.Name()
	}
	return &CachedProvider{
		inner:  inner,
		store:  store,
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *CachedProvider) Name() string { return c.source }

// FetchPriceSeries returns a copy of the cached series, fetching on miss.
// Coalesced callers share the first caller's context.
func (c *CachedProvider) FetchPriceSeries(ctx context.Context, assetID string) ([]float64, error) {
	key := c.source + ":" + assetID
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, key, assetID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("Cache", fmt.Sprintf("coalesced fetch for %s", assetID))
	}
	prices := v.([]float64)
	out := make([]float64, len(prices))
	copy(out, prices)
	return out, nil
}

func (c *CachedProvider) fetch(ctx context.Context, key, assetID string) ([]float64, error) {
	// L1: memory
	if v, ok := c.mem.Load(key); ok {
		e := v.(memEntry)
		if c.now().Sub(e.fetched) < c.ttl {
			return e.prices, nil
		}
	}
	// L2: persistent store
	if c.store != nil {
		if prices, ok := c.store.GetPriceSeries(c.source, assetID, c.ttl); ok && len(prices) > 0 {
			logger.Debug("Cache", fmt.Sprintf("HIT %s (%d prices)", assetID, len(prices)))
			c.mem.Store(key, memEntry{prices: prices, fetched: c.now()})
			return prices, nil
		}
	}
	// L3: upstream
	prices, err := c.inner.FetchPriceSeries(ctx, assetID)
	if err != nil {
		return nil, err
	}
	c.mem.Store(key, memEntry{prices: prices, fetched: c.now()})
	if c.store != nil {
		if err := c.store.SetPriceSeries(c.source, assetID, prices); err != nil {
			logger.Warn("Cache", fmt.Sprintf("store %s: %v", assetID, err))
		}
	}
	logger.Debug("Cache", fmt.Sprintf("MISS %s (%d prices)", assetID, len(prices)))
	return prices, nil
}

// Invalidate drops assetID from the memory cache.
func (c *CachedProvider) Invalidate(assetID string) {
	c.mem.Delete(c.source + ":" + assetID)
}
