package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioStat_JSON(t *testing.T) {
	st := PortfolioStat{Weights: WeightVector{0.25, 0.75}, ExpectedReturn: 0.1, ExpectedVolatility: 0.2, Sharpe: 0.5}
	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"weights":[0.25,0.75],"expected_return":0.1,"expected_volatility":0.2,"sharpe":0.5}`, string(b))

	var back PortfolioStat
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, st, back)
}

func TestPortfolioStat_JSONInfinity(t *testing.T) {
	for _, sign := range []int{1, -1} {
		st := PortfolioStat{Weights: WeightVector{1}, ExpectedReturn: 0.2, Sharpe: math.Inf(sign)}
		b, err := json.Marshal(st)
		require.NoError(t, err)

		var back PortfolioStat
		require.NoError(t, json.Unmarshal(b, &back))
		assert.True(t, math.IsInf(back.Sharpe, sign))
	}
	b, _ := json.Marshal(PortfolioStat{Sharpe: math.Inf(1)})
	assert.Contains(t, string(b), `"sharpe":"+Inf"`)
}

func TestOptimizationResult_Helpers(t *testing.T) {
	var nilRes *OptimizationResult
	assert.Equal(t, 0.0, nilRes.FirstWeightPct())
	assert.Nil(t, nilRes.WeightsByAsset())

	res := &OptimizationResult{Assets: []string{"GOLD", "FIAT"}, Best: PortfolioStat{Weights: WeightVector{0.4, 0.6}}}
	assert.InDelta(t, 40.0, res.FirstWeightPct(), 1e-9)
	assert.Equal(t, map[string]float64{"GOLD": 0.4, "FIAT": 0.6}, res.WeightsByAsset())

	res.Assets = nil
	assert.Nil(t, res.WeightsByAsset())
}
