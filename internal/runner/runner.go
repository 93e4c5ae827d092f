package runner

import (
	"context"
	"fmt"
	"time"

	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/engine"
	"portfolio-optimizer/internal/logger"
	"portfolio-optimizer/internal/market"
)

// RunStore persists finished runs.
type RunStore interface {
	InsertRun(res *engine.OptimizationResult, source string, duration time.Duration) (string, error)
}

// Request overrides the configured run parameters. Zero values fall back to
// the Config passed to New.
type Request struct {
	Assets         []config.Asset `json:"assets,omitempty"`
	NumSamples     int            `json:"num_samples,omitempty"`
	Seed           *uint64        `json:"seed,omitempty"`
	Workers        int            `json:"workers,omitempty"`
	ZeroVolatility string         `json:"zero_volatility,omitempty"`
}

// Run is one finished optimization. ID is empty when no store is configured
// or the insert failed.
type Run struct {
	ID       string                     `json:"id,omitempty"`
	Result   *engine.OptimizationResult `json:"result"`
	Duration time.Duration              `json:"-"`
}

// Service fetches prices, optimizes and records the outcome. It is shared by
// the CLI and the HTTP API.
type Service struct {
	cfg      *config.Config
	provider market.PriceSeriesProvider
	store    RunStore
	source   string
}

// New builds a Service. store may be nil.
func New(cfg *config.Config, provider market.PriceSeriesProvider, store RunStore) *Service {
	source := "default"
	if n, ok := provider.(interface{ Name() string }); ok {
		source = n.Name()
	}
	return &Service{cfg: cfg, provider: provider, store: store, source: source}
}

// SamplerConfig merges req over the service config.
func (s *Service) SamplerConfig(req Request) (engine.SamplerConfig, error) {
	sc := engine.SamplerConfig{
		NumSamples: s.cfg.NumSamples,
		Seed:       s.cfg.RandomSeed,
		Workers:    s.cfg.Workers,
	}
	if req.NumSamples != 0 {
		sc.NumSamples = req.NumSamples
	}
	if req.Seed != nil {
		sc.Seed = req.Seed
	}
	if req.Workers != 0 {
		sc.Workers = req.Workers
	}
	if sc.NumSamples <= 0 {
		return sc, fmt.Errorf("%w: num_samples must be positive, got %d", engine.ErrEmptyPopulation, sc.NumSamples)
	}
	if s.cfg.MaxSamples > 0 && sc.NumSamples > s.cfg.MaxSamples {
		return sc, fmt.Errorf("%w: num_samples %d exceeds limit %d", engine.ErrMalformedInput, sc.NumSamples, s.cfg.MaxSamples)
	}
	if sc.Workers < 0 {
		return sc, fmt.Errorf("%w: workers must be >= 0, got %d", engine.ErrMalformedInput, sc.Workers)
	}
	if s.cfg.MaxWorkers > 0 && sc.Workers > s.cfg.MaxWorkers {
		return sc, fmt.Errorf("%w: workers %d exceeds limit %d", engine.ErrMalformedInput, sc.Workers, s.cfg.MaxWorkers)
	}

	policy := s.cfg.ZeroVolatility
	if req.ZeroVolatility != "" {
		policy = req.ZeroVolatility
	}
	p, err := engine.ParseZeroVolatilityPolicy(policy)
	if err != nil {
		return sc, fmt.Errorf("%w: %v", engine.ErrMalformedInput, err)
	}
	sc.ZeroVolatility = p
	return sc, nil
}

// Run executes one optimization end to end.
func (s *Service) Run(ctx context.Context, req Request) (*Run, error) {
	sc, err := s.SamplerConfig(req)
	if err != nil {
		return nil, err
	}
	assets := req.Assets
	if len(assets) == 0 {
		assets = s.cfg.Assets
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets configured", engine.ErrInsufficientData)
	}
	if err := config.ValidateAssets(assets); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrMalformedInput, err)
	}

	start := time.Now()
	series, err := market.FetchAll(ctx, s.provider, assets)
	if err != nil {
		return nil, err
	}
	fetched := time.Since(start)

	res, err := engine.OptimizeSeries(ctx, series, sc)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	elapsed := time.Since(start)
	logger.Info("Optimizer", fmt.Sprintf("%d samples over %d assets in %s (fetch %s), sharpe %.4f",
		res.NumSamples, len(assets), elapsed.Round(time.Millisecond), fetched.Round(time.Millisecond), res.Best.Sharpe))

	run := &Run{Result: res, Duration: elapsed}
	if s.store != nil {
		id, err := s.store.InsertRun(res, s.source, elapsed)
		if err != nil {
			logger.Warn("Optimizer", fmt.Sprintf("record run: %v", err))
		} else {
			run.ID = id
		}
	}
	return run, nil
}
