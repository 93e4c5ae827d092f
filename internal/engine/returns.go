package engine

import (
	"fmt"
	"math"
)

// AlignSeries truncates every series to the length of the shortest one,
// keeping the earliest entries. The returned rows are copies.
//
// Keeping the head rather than the tail means newer data is dropped when the
// provider returns series of different lengths.
func AlignSeries(series []AssetSeries) ([][]float64, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInsufficientData)
	}

	minLen := len(series[0].Prices)
	shortest := series[0].ID
	for _, s := range series[1:] {
		if len(s.Prices) < minLen {
			minLen = len(s.Prices)
			shortest = s.ID
		}
	}
	if minLen < 2 {
		return nil, fmt.Errorf("%w: asset %s has %d price points, need at least 2", ErrInsufficientData, shortest, minLen)
	}

	aligned := make([][]float64, len(series))
	for i, s := range series {
		row := make([]float64, minLen)
		copy(row, s.Prices[:minLen])
		aligned[i] = row
	}
	return aligned, nil
}

// ComputeReturns converts aligned price rows into arithmetic returns:
// r[t-1] = (p[t] - p[t-1]) / p[t-1].
func ComputeReturns(prices [][]float64) (ReturnsMatrix, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInsufficientData)
	}
	L := len(prices[0])
	for i, row := range prices {
		if len(row) != L {
			return nil, fmt.Errorf("%w: asset %d has %d prices, expected %d", ErrMalformedInput, i, len(row), L)
		}
	}
	if L < 2 {
		return nil, fmt.Errorf("%w: %d price points, need at least 2", ErrInsufficientData, L)
	}

	returns := make(ReturnsMatrix, len(prices))
	for i, row := range prices {
		for t, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: asset %d price %d is %v", ErrNonFinite, i, t, p)
			}
		}
		r := make([]float64, L-1)
		for t := 1; t < L; t++ {
			prev := row[t-1]
			if prev == 0 {
				return nil, fmt.Errorf("%w: asset %d has zero price at period %d", ErrDivisionByZero, i, t-1)
			}
			r[t-1] = (row[t] - prev) / prev
		}
		returns[i] = r
	}
	return returns, nil
}
