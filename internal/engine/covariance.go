package engine

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Covariance computes the sample covariance matrix (Bessel's correction,
// 1/(T-1)) of the return rows. Only the upper triangle is estimated; the
// lower triangle is mirrored, so the result is exactly symmetric.
func Covariance(returns ReturnsMatrix) (CovarianceMatrix, error) {
	n := len(returns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInsufficientData)
	}
	T := len(returns[0])
	for i, row := range returns {
		if len(row) != T {
			return nil, fmt.Errorf("%w: asset %d has %d returns, expected %d", ErrMalformedInput, i, len(row), T)
		}
	}
	if T < 2 {
		return nil, fmt.Errorf("%w: %d return periods, covariance needs at least 2", ErrInsufficientData, T)
	}

	cov := make(CovarianceMatrix, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returns[i], returns[j], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}
	return cov, nil
}
