package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/db"
	"portfolio-optimizer/internal/engine"
	"portfolio-optimizer/internal/market"
	"portfolio-optimizer/internal/runner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOptimizer struct {
	run  *runner.Run
	err  error
	last runner.Request
}

func (f *fakeOptimizer) Run(_ context.Context, req runner.Request) (*runner.Run, error) {
	f.last = req
	return f.run, f.err
}

type fakeRuns struct {
	records []db.RunRecord
}

func (f *fakeRuns) GetRuns(limit int) []db.RunRecord {
	if limit < len(f.records) {
		return f.records[:limit]
	}
	return f.records
}

func (f *fakeRuns) GetRun(id string) *db.RunRecord {
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i]
		}
	}
	return nil
}

func sampleRun(sharpe float64) *runner.Run {
	return &runner.Run{
		ID: "abc",
		Result: &engine.OptimizationResult{
			Assets: []string{"GOLD", "FIAT"},
			Best: engine.PortfolioStat{
				Weights:            engine.WeightVector{0.25, 0.75},
				ExpectedReturn:     0.1,
				ExpectedVolatility: 0.05,
				Sharpe:             sharpe,
			},
			NumSamples: 100,
			Seed:       9,
			Workers:    1,
		},
		Duration: 12 * time.Millisecond,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleOptimize_Success(t *testing.T) {
	opt := &fakeOptimizer{run: sampleRun(2)}
	srv := NewServer(config.Default(), opt, nil)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/optimize", `{"num_samples":100,"seed":9,"assets":[{"id":"GOLD","symbol":"bitcoin"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "abc", out["id"])
	assert.InDelta(t, 25.0, out["first_weight_pct"], 1e-9)
	weights := out["weights_by_asset"].(map[string]any)
	assert.InDelta(t, 0.75, weights["FIAT"], 1e-12)

	assert.Equal(t, 100, opt.last.NumSamples)
	require.NotNil(t, opt.last.Seed)
	assert.Equal(t, uint64(9), *opt.last.Seed)
	assert.Len(t, opt.last.Assets, 1)

	// Status reflects the last run.
	rec = do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_run":{`)
}

func TestHandleOptimize_EmptyBodyUsesDefaults(t *testing.T) {
	opt := &fakeOptimizer{run: sampleRun(1)}
	rec := do(t, NewServer(config.Default(), opt, nil).Handler(), http.MethodPost, "/api/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, runner.Request{}, opt.last)
}

func TestHandleOptimize_InfiniteSharpeEncodes(t *testing.T) {
	opt := &fakeOptimizer{run: sampleRun(math.Inf(1))}
	rec := do(t, NewServer(config.Default(), opt, nil).Handler(), http.MethodPost, "/api/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sharpe":"+Inf"`)
}

func TestHandleOptimize_BadRequest(t *testing.T) {
	h := NewServer(config.Default(), &fakeOptimizer{run: sampleRun(1)}, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/optimize", `{"num_samples":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/optimize", `{"assets":[{"id":"X"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/optimize", `{"assets":[{"id":"A","symbol":"x"},{"id":"A","symbol":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate asset id")
}

func realServer() http.Handler {
	cfg := config.Default()
	cfg.NumSamples = 50
	cfg.MaxSamples = 1000
	provider := market.NewStaticProvider(map[string][]float64{
		"bitcoin":  {100, 103, 101, 106, 108},
		"ethereum": {50, 49, 52, 51, 55},
	})
	return NewServer(cfg, runner.New(cfg, provider, nil), nil).Handler()
}

func TestHandleOptimize_LimitsRejected(t *testing.T) {
	h := realServer()

	for _, body := range []string{
		`{"num_samples":4611686018427387904,"seed":1}`,
		`{"num_samples":1001,"seed":1}`,
		`{"workers":100000,"seed":1}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/optimize", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"error"`, body)
	}

	rec := do(t, h, http.MethodPost, "/api/optimize", `{"num_samples":1000,"workers":64,"seed":1,"assets":[{"id":"A","symbol":"bitcoin"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandleOptimize_EachAssetKeepsItsWeight(t *testing.T) {
	rec := do(t, realServer(), http.MethodPost, "/api/optimize",
		`{"seed":3,"assets":[{"id":"A","symbol":"bitcoin"},{"id":"B","symbol":"ethereum"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	weights := out["weights_by_asset"].(map[string]any)
	require.Len(t, weights, 2)
	assert.InDelta(t, 1.0, weights["A"].(float64)+weights["B"].(float64), 1e-9)
}

func TestHandleOptimize_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&market.FetchError{AssetID: "GOLD", Err: errors.New("timeout")}, http.StatusBadGateway},
		{fmt.Errorf("optimize: %w", engine.ErrDivisionByZero), http.StatusUnprocessableEntity},
		{fmt.Errorf("optimize: %w", engine.ErrInsufficientData), http.StatusUnprocessableEntity},
		{engine.ErrEmptyPopulation, http.StatusBadRequest},
		{fmt.Errorf("%w: bad policy", engine.ErrMalformedInput), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewServer(config.Default(), &fakeOptimizer{err: tc.err}, nil).Handler()
		rec := do(t, h, http.MethodPost, "/api/optimize", "")
		assert.Equal(t, tc.want, rec.Code, "err=%v", tc.err)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestHandleRuns(t *testing.T) {
	runs := &fakeRuns{records: []db.RunRecord{
		{ID: "r2", Result: *sampleRun(2).Result},
		{ID: "r1", Result: *sampleRun(1).Result},
	}}
	h := NewServer(config.Default(), &fakeOptimizer{}, runs).Handler()

	rec := do(t, h, http.MethodGet, "/api/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0]["id"])

	rec = do(t, h, http.MethodGet, "/api/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/runs/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one db.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "r1", one.ID)
	assert.Equal(t, 1.0, one.Result.Best.Sharpe)

	rec = do(t, h, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRuns_HistoryDisabled(t *testing.T) {
	h := NewServer(config.Default(), &fakeOptimizer{}, nil).Handler()
	rec := do(t, h, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/runs/x", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGetConfig_ReturnsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NumSamples = 1234
	rec := do(t, NewServer(cfg, &fakeOptimizer{}, nil).Handler(), http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out config.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 1234, out.NumSamples)
	assert.Equal(t, "GOLD", out.Assets[0].ID)
}

func TestCORSAndNotFound(t *testing.T) {
	h := NewServer(config.Default(), &fakeOptimizer{}, nil).Handler()

	rec := do(t, h, http.MethodOptions, "/api/optimize", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
