package engine

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// DefaultNumSamples is the population size used when none is configured.
const DefaultNumSamples = 100000

// cancelCheckEvery is how many candidates a worker scores between context checks.
const cancelCheckEvery = 4096

// SamplerConfig controls one Monte Carlo run.
type SamplerConfig struct {
	NumSamples     int
	Seed           *uint64 // nil draws a fresh seed, reported in the result
	Workers        int     // <1 means 1; capped at NumSamples
	ZeroVolatility ZeroVolatilityPolicy
}

// DefaultSamplerConfig returns a single-worker, unseeded config.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{NumSamples: DefaultNumSamples, Workers: 1}
}

type options struct {
	src rand.Source
}

// Option tweaks a single Optimize call.
type Option func(*options)

// WithSource makes the run draw every weight from src. Sampling then runs on
// one worker and SamplerConfig.Seed is ignored.
func WithSource(src rand.Source) Option {
	return func(o *options) { o.src = src }
}

// Optimize samples cfg.NumSamples long-only portfolios, scores each one and
// returns the max-Sharpe candidate.
//
// Workers each own a PCG stream seeded from (seed, worker index) and fill a
// contiguous slice of the population, so the population is in generation
// order and a fixed (seed, workers) pair always gives the same result.
func Optimize(ctx context.Context, returns ReturnsMatrix, cov CovarianceMatrix, cfg SamplerConfig, opts ...Option) (*OptimizationResult, error) {
	if cfg.NumSamples <= 0 {
		return nil, fmt.Errorf("%w: %d samples requested", ErrEmptyPopulation, cfg.NumSamples)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ev, err := NewEvaluator(returns, cov, cfg.ZeroVolatility)
	if err != nil {
		return nil, err
	}

	var seed uint64
	if cfg.Seed != nil {
		seed = *cfg.Seed
	} else {
		seed = rand.Uint64()
	}

	workers := cfg.Workers
	if workers < 1 || o.src != nil {
		workers = 1
	}
	if workers > cfg.NumSamples {
		workers = cfg.NumSamples
	}

	pop := make([]PortfolioStat, cfg.NumSamples)
	chunk := (cfg.NumSamples + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for k := 0; k < workers; k++ {
		lo := k * chunk
		hi := min(lo+chunk, cfg.NumSamples)
		if lo >= hi {
			break
		}
		src := o.src
		if src == nil {
			src = rand.NewPCG(seed, uint64(k))
		}
		g.Go(func() error {
			s, err := NewSampler(ev.Dim(), src)
			if err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				if (i-lo)%cancelCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				w, err := s.Next()
				if err != nil {
					return fmt.Errorf("sample %d: %w", i, err)
				}
				st, err := ev.Evaluate(w)
				if err != nil {
					return fmt.Errorf("sample %d: %w", i, err)
				}
				pop[i] = st
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best, err := SelectOptimal(pop)
	if err != nil {
		return nil, err
	}
	return &OptimizationResult{
		Best:       best,
		NumSamples: cfg.NumSamples,
		Seed:       seed,
		Workers:    workers,
	}, nil
}

// OptimizeSeries runs the whole pipeline on raw price series: alignment,
// returns, covariance, then Optimize. Result weights follow series order.
func OptimizeSeries(ctx context.Context, series []AssetSeries, cfg SamplerConfig, opts ...Option) (*OptimizationResult, error) {
	aligned, err := AlignSeries(series)
	if err != nil {
		return nil, err
	}
	returns, err := ComputeReturns(aligned)
	if err != nil {
		return nil, err
	}
	cov, err := Covariance(returns)
	if err != nil {
		return nil, err
	}
	res, err := Optimize(ctx, returns, cov, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res.Assets = make([]string, len(series))
	for i, s := range series {
		res.Assets[i] = s.ID
	}
	return res, nil
}
