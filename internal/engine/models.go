package engine

import (
	"encoding/json"
	"fmt"
	"math"
)

// AssetSeries is the price history of one asset, oldest first.
type AssetSeries struct {
	ID     string    `json:"id"`
	Prices []float64 `json:"prices"`
}

// ReturnsMatrix holds per-period arithmetic returns, one row per asset in
// input order. All rows have the same length.
type ReturnsMatrix [][]float64

// CovarianceMatrix is the N×N sample covariance of a ReturnsMatrix.
type CovarianceMatrix [][]float64

// WeightVector is one candidate allocation: non-negative, summing to 1.
type WeightVector []float64

// PortfolioStat is a scored candidate.
type PortfolioStat struct {
	Weights            WeightVector `json:"weights"`
	ExpectedReturn     float64      `json:"expected_return"`
	ExpectedVolatility float64      `json:"expected_volatility"`
	Sharpe             float64      `json:"sharpe"`
}

// MarshalJSON writes an infinite Sharpe as the string "+Inf" or "-Inf";
// plain JSON has no encoding for infinities.
func (s PortfolioStat) MarshalJSON() ([]byte, error) {
	type plain PortfolioStat
	out := struct {
		plain
		Sharpe any `json:"sharpe"`
	}{plain: plain(s), Sharpe: s.Sharpe}
	if math.IsInf(s.Sharpe, 1) {
		out.Sharpe = "+Inf"
	} else if math.IsInf(s.Sharpe, -1) {
		out.Sharpe = "-Inf"
	}
	return json.Marshal(out)
}

func (s *PortfolioStat) UnmarshalJSON(b []byte) error {
	type plain PortfolioStat
	var aux struct {
		plain
		Sharpe json.RawMessage `json:"sharpe"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = PortfolioStat(aux.plain)
	switch string(aux.Sharpe) {
	case "", "null":
		s.Sharpe = 0
	case `"+Inf"`:
		s.Sharpe = math.Inf(1)
	case `"-Inf"`:
		s.Sharpe = math.Inf(-1)
	default:
		if err := json.Unmarshal(aux.Sharpe, &s.Sharpe); err != nil {
			return fmt.Errorf("sharpe: %w", err)
		}
	}
	return nil
}

// OptimizationResult is the max-Sharpe candidate of one run together with the
// parameters needed to reproduce it.
type OptimizationResult struct {
	Assets     []string      `json:"assets,omitempty"`
	Best       PortfolioStat `json:"best"`
	NumSamples int           `json:"num_samples"`
	Seed       uint64        `json:"seed"`
	Workers    int           `json:"workers"`
}

// FirstWeightPct is the first asset's weight as a percentage.
func (r *OptimizationResult) FirstWeightPct() float64 {
	if r == nil || len(r.Best.Weights) == 0 {
		return 0
	}
	return r.Best.Weights[0] * 100
}

// WeightsByAsset maps asset IDs to weights. Nil when the result carries no IDs.
func (r *OptimizationResult) WeightsByAsset() map[string]float64 {
	if r == nil || len(r.Assets) != len(r.Best.Weights) {
		return nil
	}
	out := make(map[string]float64, len(r.Assets))
	for i, id := range r.Assets {
		out[id] = r.Best.Weights[i]
	}
	return out
}
