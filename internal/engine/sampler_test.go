package engine

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

// seqSource replays a fixed list of raw 64-bit outputs, cycling when exhausted.
type seqSource struct {
	vals []uint64
	i    int
}

func (s *seqSource) Uint64() uint64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func TestSampler_SimplexInvariant(t *testing.T) {
	for _, dim := range []int{1, 2, 5, 17} {
		s, err := NewSampler(dim, rand.NewPCG(1, 2))
		require.NoError(t, err)
		for k := 0; k < 1000; k++ {
			w, err := s.Next()
			require.NoError(t, err)
			require.Len(t, w, dim)
			sum := 0.0
			for _, x := range w {
				require.GreaterOrEqual(t, x, 0.0)
				sum += x
			}
			require.InDelta(t, 1.0, sum, 1e-9)
		}
	}
}

func TestSampler_KnownDraws(t *testing.T) {
	// Float64 keeps the low 53 bits and divides by 2^53, so 3<<40 -> 3/8192.
	s, err := NewSampler(2, &seqSource{vals: []uint64{3 << 40, 7 << 40}})
	require.NoError(t, err)
	w, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, WeightVector{0.3, 0.7}, w)
}

func TestSampler_DegenerateFails(t *testing.T) {
	s, err := NewSampler(3, &seqSource{vals: []uint64{0}})
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrDegenerateSample)
}

func TestSampler_DegenerateRedraws(t *testing.T) {
	// First vector is all zeros, the second is usable.
	src := &seqSource{vals: []uint64{0, 0, 1 << 40, 1 << 40}}
	s, err := NewSampler(2, src)
	require.NoError(t, err)
	w, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, WeightVector{0.5, 0.5}, w)
	assert.Equal(t, 4, src.i)
}

func TestSampler_Sample(t *testing.T) {
	s, err := NewSampler(3, rand.NewPCG(5, 0))
	require.NoError(t, err)
	ws, err := s.Sample(10)
	require.NoError(t, err)
	assert.Len(t, ws, 10)

	_, err = s.Sample(0)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestSampler_SameSeedSameStream(t *testing.T) {
	a, _ := NewSampler(4, rand.NewPCG(9, 9))
	b, _ := NewSampler(4, rand.NewPCG(9, 9))
	for k := 0; k < 50; k++ {
		wa, _ := a.Next()
		wb, _ := b.Next()
		require.Equal(t, wa, wb)
	}
}

func TestNewSampler_Rejects(t *testing.T) {
	_, err := NewSampler(0, rand.NewPCG(1, 1))
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = NewSampler(2, nil)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestSampler_NoNaN(t *testing.T) {
	s, _ := NewSampler(2, rand.NewPCG(3, 3))
	for k := 0; k < 100; k++ {
		w, _ := s.Next()
		for _, x := range w {
			assert.False(t, math.IsNaN(x))
		}
	}
}

func TestSampler_MatchesUniformDistribution(t *testing.T) {
	s, err := NewSampler(3, rand.NewPCG(7, 7))
	require.NoError(t, err)
	u := distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(7, 7)}

	for k := 0; k < 50; k++ {
		w, err := s.Next()
		require.NoError(t, err)
		raw := []float64{u.Rand(), u.Rand(), u.Rand()}
		sum := raw[0] + raw[1] + raw[2]
		for i := range w {
			assert.Equal(t, raw[i]/sum, w[i])
		}
	}
}

func TestSampler_NextAllocatesOnlyResult(t *testing.T) {
	s, err := NewSampler(8, rand.NewPCG(1, 1))
	require.NoError(t, err)
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = s.Next()
	})
	assert.LessOrEqual(t, allocs, 1.0)
}
