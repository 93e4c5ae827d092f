package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"portfolio-optimizer/internal/engine"
)

// Asset is one entry of the asset registry. ID is the display key used in
// results, Symbol is the identifier the price provider understands.
type Asset struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Symbol string `yaml:"symbol" json:"symbol"`
}

// ProviderConfig configures the remote market-data provider.
type ProviderConfig struct {
	BaseURL         string `yaml:"base_url" json:"base_url"`
	VsCurrency      string `yaml:"vs_currency" json:"vs_currency"`
	Days            int    `yaml:"days" json:"days"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries      int    `yaml:"max_retries" json:"max_retries"`
	RetryWaitMillis int    `yaml:"retry_wait_ms" json:"retry_wait_ms"`
}

// CacheConfig configures the SQLite price cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	TTLMinutes int    `yaml:"ttl_minutes" json:"ttl_minutes"`
}

type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Config holds application settings. It is passed explicitly to everything
// that needs it; there is no package-level instance.
type Config struct {
	Assets         []Asset        `yaml:"assets" json:"assets"`
	NumSamples     int            `yaml:"num_samples" json:"num_samples"`
	RandomSeed     *uint64        `yaml:"random_seed" json:"random_seed,omitempty"`
	Workers        int            `yaml:"workers" json:"workers"`
	MaxSamples     int            `yaml:"max_samples" json:"max_samples"`
	MaxWorkers     int            `yaml:"max_workers" json:"max_workers"`
	ZeroVolatility string         `yaml:"zero_volatility" json:"zero_volatility"` // reject | infinity
	Provider       ProviderConfig `yaml:"provider" json:"provider"`
	Cache          CacheConfig    `yaml:"cache" json:"cache"`
	Server         ServerConfig   `yaml:"server" json:"server"`
	Logging        LoggingConfig  `yaml:"logging" json:"logging"`
}

// Default returns a Config with sensible defaults. The asset registry is the
// two-token GOLD/FIAT pair priced via CoinGecko ids.
func Default() *Config {
	return &Config{
		Assets: []Asset{
			{ID: "GOLD", Name: "Gold Token", Symbol: "bitcoin"},
			{ID: "FIAT", Name: "USD", Symbol: "ethereum"},
		},
		NumSamples:     100000,
		Workers:        1,
		MaxSamples:     1000000,
		MaxWorkers:     64,
		ZeroVolatility: "reject",
		Provider: ProviderConfig{
			BaseURL:         "https://api.coingecko.com/api/v3",
			VsCurrency:      "usd",
			Days:            90,
			TimeoutSeconds:  30,
			MaxRetries:      3,
			RetryWaitMillis: 500,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Path:       "optimizer.db",
			TTLMinutes: 60,
		},
		Server:  ServerConfig{Port: 13380},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and
// OPTIMIZER_* environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OPTIMIZER_ASSETS"); v != "" {
		assets, err := ParseAssets(v)
		if err != nil {
			return err
		}
		c.Assets = assets
	}
	if v := os.Getenv("OPTIMIZER_NUM_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_NUM_SAMPLES: %w", err)
		}
		c.NumSamples = n
	}
	if v := os.Getenv("OPTIMIZER_RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_RANDOM_SEED: %w", err)
		}
		c.RandomSeed = &seed
	}
	if v := os.Getenv("OPTIMIZER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("OPTIMIZER_MAX_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_MAX_SAMPLES: %w", err)
		}
		c.MaxSamples = n
	}
	if v := os.Getenv("OPTIMIZER_ZERO_VOLATILITY"); v != "" {
		c.ZeroVolatility = v
	}
	if v := os.Getenv("OPTIMIZER_COINGECKO_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_CACHE_ENABLED: %w", err)
		}
		c.Cache.Enabled = enabled
	}
	if v := os.Getenv("OPTIMIZER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("OPTIMIZER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("OPTIMIZER_LOG_JSON"); v != "" {
		c.Logging.JSON = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

// ParseAssets parses "ID:symbol,ID:symbol". A bare entry uses the same
// string for ID and symbol.
func ParseAssets(s string) ([]Asset, error) {
	var assets []Asset
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, symbol, found := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		symbol = strings.TrimSpace(symbol)
		if !found {
			symbol = id
		}
		if id == "" || symbol == "" {
			return nil, fmt.Errorf("invalid asset entry %q", part)
		}
		assets = append(assets, Asset{ID: id, Name: id, Symbol: symbol})
	}
	if len(assets) == 0 {
		return nil, errors.New("no assets in list")
	}
	return assets, nil
}

// ValidateAssets checks that every asset has an id and a symbol and that
// ids are unique.
func ValidateAssets(assets []Asset) error {
	if len(assets) == 0 {
		return errors.New("at least one asset is required")
	}
	seen := make(map[string]bool, len(assets))
	for i, a := range assets {
		if a.ID == "" || a.Symbol == "" {
			return fmt.Errorf("asset %d needs id and symbol", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate asset id %s", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := ValidateAssets(c.Assets); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxSamples <= 0 {
		return fmt.Errorf("config: max_samples must be positive, got %d", c.MaxSamples)
	}
	if c.NumSamples <= 0 || c.NumSamples > c.MaxSamples {
		return fmt.Errorf("config: num_samples must be in [1, %d], got %d", c.MaxSamples, c.NumSamples)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("config: max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.Workers < 0 || c.Workers > c.MaxWorkers {
		return fmt.Errorf("config: workers must be in [0, %d], got %d", c.MaxWorkers, c.Workers)
	}
	if _, err := engine.ParseZeroVolatilityPolicy(c.ZeroVolatility); err != nil {
		return fmt.Errorf("config: zero_volatility: %w", err)
	}
	if c.Provider.Days <= 0 {
		return fmt.Errorf("config: provider.days must be positive, got %d", c.Provider.Days)
	}
	return nil
}
