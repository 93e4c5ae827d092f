package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"portfolio-optimizer/internal/config"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// marketChartResp is the subset of /coins/{id}/market_chart we use.
// Each entry of Prices is [unix_ms, price].
type marketChartResp struct {
	Prices [][]float64 `json:"prices"`
}

// CoinGeckoProvider fetches daily price history from the CoinGecko API.
type CoinGeckoProvider struct {
	client     *resty.Client
	vsCurrency string
	days       int
}

// NewCoinGeckoProvider builds a client that retries on 429 and 5xx with
// resty's exponential backoff.
func NewCoinGeckoProvider(cfg config.ProviderConfig) *CoinGeckoProvider {
	base := cfg.BaseURL
	if base == "" {
		base = defaultCoinGeckoURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	wait := time.Duration(cfg.RetryWaitMillis) * time.Millisecond

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(base, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "portfolio-optimizer/1.0")
	client.SetRetryCount(max(cfg.MaxRetries, 0))
	client.SetRetryWaitTime(wait)
	client.SetRetryMaxWaitTime(max(wait*8, time.Second))
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil || r == nil {
			return false
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	vs := cfg.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	days := cfg.Days
	if days <= 0 {
		days = 90
	}
	return &CoinGeckoProvider{client: client, vsCurrency: vs, days: days}
}

// Name identifies the provider in cache keys.
func (p *CoinGeckoProvider) Name() string {
	return "coingecko:" + p.vsCurrency + ":" + strconv.Itoa(p.days)
}

// FetchPriceSeries returns the price column of market_chart for assetID.
// CoinGecko ids are lowercase, so assetID is lowercased first.
func (p *CoinGeckoProvider) FetchPriceSeries(ctx context.Context, assetID string) ([]float64, error) {
	id := strings.ToLower(strings.TrimSpace(assetID))
	if id == "" {
		return nil, fmt.Errorf("empty asset id")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParams(map[string]string{
			"vs_currency": p.vsCurrency,
			"days":        strconv.Itoa(p.days),
		}).
		Get("/coins/{id}/market_chart")
	if err != nil {
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coingecko %s: HTTP %d", id, resp.StatusCode())
	}

	var chart marketChartResp
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("coingecko %s: decode: %w", id, err)
	}
	if len(chart.Prices) == 0 {
		return nil, fmt.Errorf("coingecko %s: %w", id, ErrNoData)
	}

	prices := make([]float64, len(chart.Prices))
	for i, point := range chart.Prices {
		if len(point) < 2 {
			return nil, fmt.Errorf("coingecko %s: malformed price point %d", id, i)
		}
		prices[i] = point[1]
	}
	return prices, nil
}
