package market

import (
	"context"
	"errors"
	"fmt"

	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/engine"
	"portfolio-optimizer/internal/logger"
)

// ErrNoData is returned when a provider has no prices for an asset.
var ErrNoData = errors.New("no price data")

// PriceSeriesProvider returns the price history of one asset, oldest first.
type PriceSeriesProvider interface {
	FetchPriceSeries(ctx context.Context, assetID string) ([]float64, error)
}

// FetchError ties a provider failure to the asset being fetched.
type FetchError struct {
	AssetID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.AssetID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchAll fetches every asset in registry order, one request at a time, and
// labels each series with the asset ID. Differing lengths are logged; the
// engine truncates to the shortest.
func FetchAll(ctx context.Context, p PriceSeriesProvider, assets []config.Asset) ([]engine.AssetSeries, error) {
	out := make([]engine.AssetSeries, 0, len(assets))
	minLen, maxLen := -1, 0
	for _, a := range assets {
		prices, err := p.FetchPriceSeries(ctx, a.Symbol)
		if err != nil {
			return nil, &FetchError{AssetID: a.ID, Err: err}
		}
		if len(prices) == 0 {
			return nil, &FetchError{AssetID: a.ID, Err: ErrNoData}
		}
		logger.Debug("Market", fmt.Sprintf("%s (%s): %d prices", a.ID, a.Symbol, len(prices)))
		out = append(out, engine.AssetSeries{ID: a.ID, Prices: prices})
		if minLen < 0 || len(prices) < minLen {
			minLen = len(prices)
		}
		maxLen = max(maxLen, len(prices))
	}
	if minLen >= 0 && minLen != maxLen {
		logger.Warn("Market", fmt.Sprintf("series lengths differ (%d..%d); keeping the earliest %d points of each", minLen, maxLen, minLen))
	}
	return out, nil
}
