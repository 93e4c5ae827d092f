package market

import (
	"context"
	"fmt"
	"sync"
)

// StaticProvider serves fixed series from memory. Used for offline runs and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	series map[string][]float64
	calls  map[string]int
}

// NewStaticProvider copies series into a new provider.
func NewStaticProvider(series map[string][]float64) *StaticProvider {
	p := &StaticProvider{
		series: make(map[string][]float64, len(series)),
		calls:  make(map[string]int),
	}
	for id, prices := range series {
		p.Set(id, prices)
	}
	return p
}

// Set replaces the series for id.
func (p *StaticProvider) Set(id string, prices []float64) {
	cp := make([]float64, len(prices))
	copy(cp, prices)
	p.mu.Lock()
	p.series[id] = cp
	p.mu.Unlock()
}

func (p *StaticProvider) FetchPriceSeries(ctx context.Context, assetID string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[assetID]++
	prices, ok := p.series[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", assetID, ErrNoData)
	}
	cp := make([]float64, len(prices))
	copy(cp, prices)
	return cp, nil
}

// Calls reports how many times assetID was requested.
func (p *StaticProvider) Calls(assetID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[assetID]
}
