package engine

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ZeroVolatilityPolicy decides what a candidate with zero volatility scores.
type ZeroVolatilityPolicy int

const (
	// ZeroVolReject fails the run with ErrDivisionByZero.
	ZeroVolReject ZeroVolatilityPolicy = iota
	// ZeroVolInfinity scores the candidate +Inf or -Inf by the sign of its
	// return. A zero return is still rejected.
	ZeroVolInfinity
)

func (p ZeroVolatilityPolicy) String() string {
	switch p {
	case ZeroVolReject:
		return "reject"
	case ZeroVolInfinity:
		return "infinity"
	}
	return fmt.Sprintf("ZeroVolatilityPolicy(%d)", int(p))
}

// ParseZeroVolatilityPolicy accepts "reject" (or "") and "infinity".
func ParseZeroVolatilityPolicy(s string) (ZeroVolatilityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return ZeroVolReject, nil
	case "infinity", "inf":
		return ZeroVolInfinity, nil
	}
	return ZeroVolReject, fmt.Errorf("unknown zero volatility policy %q", s)
}

// Evaluator scores weight vectors against a fixed returns matrix and
// covariance. It only reads its inputs, so one Evaluator may be shared by
// any number of goroutines.
type Evaluator struct {
	n       int
	returns ReturnsMatrix
	cov     *mat.SymDense
	policy  ZeroVolatilityPolicy
}

// NewEvaluator validates that returns has N rows and cov is N×N and finite.
func NewEvaluator(returns ReturnsMatrix, cov CovarianceMatrix, policy ZeroVolatilityPolicy) (*Evaluator, error) {
	n := len(returns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInsufficientData)
	}
	if len(cov) != n {
		return nil, fmt.Errorf("%w: covariance has %d rows for %d assets", ErrMalformedInput, len(cov), n)
	}
	T := len(returns[0])
	for i, row := range returns {
		if len(row) != T {
			return nil, fmt.Errorf("%w: asset %d has %d returns, expected %d", ErrMalformedInput, i, len(row), T)
		}
		for t, r := range row {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, fmt.Errorf("%w: return %d of asset %d is %v", ErrNonFinite, t, i, r)
			}
		}
	}

	data := make([]float64, 0, n*n)
	for i, row := range cov {
		if len(row) != n {
			return nil, fmt.Errorf("%w: covariance row %d has %d columns, expected %d", ErrMalformedInput, i, len(row), n)
		}
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("%w: covariance[%d][%d] is %v", ErrNonFinite, i, j, c)
			}
		}
		data = append(data, row...)
	}

	return &Evaluator{
		n:       n,
		returns: returns,
		cov:     mat.NewSymDense(n, data),
		policy:  policy,
	}, nil
}

// Dim is the number of assets.
func (e *Evaluator) Dim() int { return e.n }

// ExpectedReturn is Σ_i Σ_t R[i][t]·w[i]: the weighted total return over the
// whole window, not a per-period mean.
func (e *Evaluator) ExpectedReturn(w WeightVector) float64 {
	ret := 0.0
	for i, row := range e.returns {
		for _, r := range row {
			ret += r * w[i]
		}
	}
	return ret
}

// ExpectedVolatility is sqrt(wᵀCw). Round-off can push the quadratic form
// slightly below zero; it is clamped so the result is never NaN.
func (e *Evaluator) ExpectedVolatility(w WeightVector) float64 {
	v := mat.NewVecDense(e.n, w)
	q := mat.Inner(v, e.cov, v)
	if q < 0 {
		q = 0
	}
	return math.Sqrt(q)
}

// Evaluate scores w. The returned stat keeps a reference to w.
func (e *Evaluator) Evaluate(w WeightVector) (PortfolioStat, error) {
	if len(w) != e.n {
		return PortfolioStat{}, fmt.Errorf("%w: weight vector has %d entries for %d assets", ErrMalformedInput, len(w), e.n)
	}
	ret := e.ExpectedReturn(w)
	vol := e.ExpectedVolatility(w)
	if math.IsNaN(ret) || math.IsInf(ret, 0) || math.IsNaN(vol) || math.IsInf(vol, 0) {
		return PortfolioStat{}, fmt.Errorf("%w: return %v volatility %v", ErrNonFinite, ret, vol)
	}

	stat := PortfolioStat{Weights: w, ExpectedReturn: ret, ExpectedVolatility: vol}
	if vol > 0 {
		stat.Sharpe = ret / vol
		return stat, nil
	}

	if e.policy == ZeroVolInfinity && ret != 0 {
		stat.Sharpe = math.Inf(1)
		if ret < 0 {
			stat.Sharpe = math.Inf(-1)
		}
		return stat, nil
	}
	return PortfolioStat{}, fmt.Errorf("%w: zero volatility (return %v, policy %s)", ErrDivisionByZero, ret, e.policy)
}
