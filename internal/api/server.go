package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/db"
	"portfolio-optimizer/internal/engine"
	"portfolio-optimizer/internal/logger"
	"portfolio-optimizer/internal/market"
	"portfolio-optimizer/internal/runner"
)

// Optimizer runs one optimization.
type Optimizer interface {
	Run(ctx context.Context, req runner.Request) (*runner.Run, error)
}

// RunStore reads stored runs.
type RunStore interface {
	GetRuns(limit int) []db.RunRecord
	GetRun(id string) *db.RunRecord
}

// Server is the HTTP API in front of the optimizer and run history.
type Server struct {
	cfg     *config.Config
	opt     Optimizer
	runs    RunStore
	started time.Time

	mu      sync.RWMutex
	lastRun *runner.Run
	running int
}

// NewServer creates a Server. runs may be nil when history is disabled.
func NewServer(cfg *config.Config, opt Optimizer, runs RunStore) *Server {
	return &Server{cfg: cfg, opt: opt, runs: runs, started: time.Now()}
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/config", s.handleGetConfig)
		api.POST("/optimize", s.handleOptimize)
		api.GET("/runs", s.handleGetRuns)
		api.GET("/runs/:id", s.handleGetRun)
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not found")
	})
	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP", fmt.Sprintf("%s %s %d %s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Microsecond)))
	}
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// statusFor maps a run failure to an HTTP status.
func statusFor(err error) int {
	var fe *market.FetchError
	switch {
	case errors.As(err, &fe):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrMalformedInput), errors.Is(err, engine.ErrEmptyPopulation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientData),
		errors.Is(err, engine.ErrDivisionByZero),
		errors.Is(err, engine.ErrDegenerateSample),
		errors.Is(err, engine.ErrNonFinite):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	running := s.running
	var last gin.H
	if s.lastRun != nil {
		last = gin.H{
			"id":          s.lastRun.ID,
			"best":        s.lastRun.Result.Best,
			"duration_ms": s.lastRun.Duration.Milliseconds(),
		}
	}
	s.mu.RUnlock()

	assets := make([]string, len(s.cfg.Assets))
	for i, a := range s.cfg.Assets {
		assets[i] = a.ID
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"assets":          assets,
		"num_samples":     s.cfg.NumSamples,
		"running":         running,
		"history_enabled": s.runs != nil,
		"uptime_s":        int64(time.Since(s.started).Seconds()),
		"last_run":        last,
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg)
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req runner.Request
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}
	if len(req.Assets) > 0 {
		if err := config.ValidateAssets(req.Assets); err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	run, err := s.opt.Run(c.Request.Context(), req)
	s.mu.Lock()
	s.running--
	if err == nil {
		s.lastRun = run
	}
	s.mu.Unlock()

	if err != nil {
		code := statusFor(err)
		if code >= 500 {
			logger.Error("API", fmt.Sprintf("optimize: %v", err))
		} else {
			logger.Warn("API", fmt.Sprintf("optimize: %v", err))
		}
		writeError(c, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               run.ID,
		"duration_ms":      run.Duration.Milliseconds(),
		"first_weight_pct": run.Result.FirstWeightPct(),
		"weights_by_asset": run.Result.WeightsByAsset(),
		"result":           run.Result,
	})
}

func (s *Server) handleGetRuns(c *gin.Context) {
	if s.runs == nil {
		writeError(c, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 500)
	}
	c.JSON(http.StatusOK, s.runs.GetRuns(limit))
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		writeError(c, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	r := s.runs.GetRun(c.Param("id"))
	if r == nil {
		writeError(c, http.StatusNotFound, "run not found")
		return
	}
	c.JSON(http.StatusOK, r)
}
