package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"portfolio-optimizer/internal/api"
	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/db"
	"portfolio-optimizer/internal/logger"
	"portfolio-optimizer/internal/market"
	"portfolio-optimizer/internal/runner"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOrDefault("OPTIMIZER_CONFIG", ""), "YAML config file")
	samples := flag.Int("samples", 0, "number of sampled portfolios (overrides config)")
	seed := flag.String("seed", "", "random seed for reproducible runs (overrides config)")
	workers := flag.Int("workers", 0, "parallel sampling workers (overrides config)")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a single optimization")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Config", err.Error())
		os.Exit(1)
	}
	if *samples > 0 {
		cfg.NumSamples = *samples
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *seed != "" {
		v, err := strconv.ParseUint(*seed, 10, 64)
		if err != nil {
			logger.Error("Config", fmt.Sprintf("invalid -seed %q: %v", *seed, err))
			os.Exit(1)
		}
		cfg.RandomSeed = &v
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.JSON); err != nil {
		logger.Error("Config", err.Error())
		os.Exit(1)
	}

	logger.Banner(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider market.PriceSeriesProvider = market.NewCoinGeckoProvider(cfg.Provider)
	var database *db.DB
	if cfg.Cache.Enabled {
		database, err = db.OpenPath(cfg.Cache.Path)
		if err != nil {
			logger.Error("DB", fmt.Sprintf("Failed to open database: %v", err))
			os.Exit(1)
		}
		defer database.Close()
		database.CleanupPriceCache(7 * 24 * time.Hour)
		provider = market.NewCachedProvider(provider, database, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	}

	// Pass untyped nils so the consumers' nil checks see "no store".
	var store runner.RunStore
	var runs api.RunStore
	if database != nil {
		store, runs = database, database
	}
	svc := runner.New(cfg, provider, store)

	if *serve {
		if os.Getenv("GIN_MODE") == "" {
			gin.SetMode(gin.ReleaseMode)
		}
		if err := serveHTTP(ctx, cfg, api.NewServer(cfg, svc, runs)); err != nil {
			logger.Error("Server", fmt.Sprintf("Failed: %v", err))
			os.Exit(1)
		}
		return
	}

	run, err := svc.Run(ctx, runner.Request{})
	if err != nil {
		logger.Error("Optimizer", err.Error())
		os.Exit(1)
	}

	res := run.Result
	logger.Section("Optimal Portfolio")
	for i, id := range res.Assets {
		logger.Stats(id, fmt.Sprintf("%.4f%%", res.Best.Weights[i]*100))
	}
	logger.Stats("expected_return", res.Best.ExpectedReturn)
	logger.Stats("expected_volatility", res.Best.ExpectedVolatility)
	logger.Stats("sharpe", fmt.Sprint(res.Best.Sharpe))
	logger.Stats("samples", res.NumSamples)
	logger.Stats("seed", res.Seed)
	if run.ID != "" {
		logger.Stats("run_id", run.ID)
	}

	fmt.Printf("First Token Weight: %v\n", res.FirstWeightPct())
}

func serveHTTP(ctx context.Context, cfg *config.Config, srv *api.Server) error {
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Server(addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Server", "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
