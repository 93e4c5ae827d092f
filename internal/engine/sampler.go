package engine

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// maxDegenerateRedraws bounds how often Next redraws an all-zero vector
// before giving up.
const maxDegenerateRedraws = 16

// Sampler draws long-only weight vectors by normalizing independent
// Uniform[0,1) draws. The resulting distribution favours balanced portfolios
// compared to a Dirichlet(1,...,1) sampler.
//
// A Sampler is not safe for concurrent use; give each worker its own.
type Sampler struct {
	dim  int
	dist distuv.Uniform
	rnd  *rand.Rand
}

// NewSampler returns a sampler for dim assets drawing from src.
func NewSampler(dim int, src rand.Source) (*Sampler, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: sampler dimension %d", ErrMalformedInput, dim)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrMalformedInput)
	}
	return &Sampler{
		dim:  dim,
		dist: distuv.Uniform{Min: 0, Max: 1, Src: src},
		rnd:  rand.New(src),
	}, nil
}

// Dim is the length of the vectors produced by Next.
func (s *Sampler) Dim() int { return s.dim }

// draw matches s.dist.Rand without building a new rand.Rand per call.
func (s *Sampler) draw() float64 {
	return s.dist.Min + (s.dist.Max-s.dist.Min)*s.rnd.Float64()
}

// Next returns a fresh weight vector with non-negative components summing to 1.
func (s *Sampler) Next() (WeightVector, error) {
	w := make(WeightVector, s.dim)
	for attempt := 0; attempt <= maxDegenerateRedraws; attempt++ {
		sum := 0.0
		for i := range w {
			w[i] = s.draw()
			sum += w[i]
		}
		if sum == 0 {
			continue
		}
		for i := range w {
			w[i] /= sum
		}
		return w, nil
	}
	return nil, fmt.Errorf("%w: %d consecutive all-zero draws", ErrDegenerateSample, maxDegenerateRedraws+1)
}

// Sample draws n vectors in order.
func (s *Sampler) Sample(n int) ([]WeightVector, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d samples requested", ErrEmptyPopulation, n)
	}
	out := make([]WeightVector, n)
	for i := range out {
		w, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}
