package engine

import "errors"

// Failure kinds of an optimization run. Every error returned by this package
// wraps exactly one of these, so callers can branch with errors.Is.
var (
	// ErrInsufficientData: fewer than 2 aligned price points, or fewer than
	// 2 return periods for the covariance estimate.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDivisionByZero: a zero price as a return divisor, or a zero-volatility
	// candidate under the reject policy.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrDegenerateSample: the sampler kept drawing all-zero weight vectors.
	ErrDegenerateSample = errors.New("degenerate weight sample")
	// ErrEmptyPopulation: zero samples requested or nothing to select from.
	ErrEmptyPopulation = errors.New("empty population")
	// ErrNonFinite: NaN or Inf in the input prices or a computed statistic.
	ErrNonFinite = errors.New("non-finite value")
	// ErrMalformedInput: dimensions disagree (ragged rows, wrong weight length).
	ErrMalformedInput = errors.New("malformed input")
)
