package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Shortradar ServiceConfig   `yaml:"shortradar"`
	Collector  CollectorConfig `yaml:"collector"`
	Watchlist  WatchlistConfig `yaml:"watchlist"`
	Binance    BinanceConfig   `yaml:"binance"`
	Storage    StorageConfig   `yaml:"storage"`
	API        APIConfig       `yaml:"api"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CollectorConfig struct {
	// Mode selects the ingestion strategy: "poll" runs the full fusion
	// cycle, "push" runs the reduced-fidelity websocket variant.
	Mode              string        `yaml:"mode"`
	Interval          time.Duration `yaml:"interval"`
	SymbolConcurrency int           `yaml:"symbol_concurrency"`
	DepthLimit        int           `yaml:"depth_limit"`
	DepthWindowPct    float64       `yaml:"depth_window_pct"`
	OIPeriod          string        `yaml:"oi_period"`
	OISamples         int           `yaml:"oi_samples"`
	BasisTWAPSamples  int           `yaml:"basis_twap_samples"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
}

type WatchlistConfig struct {
	Defaults []string `yaml:"defaults"`
}

type BinanceConfig struct {
	FuturesURL string `yaml:"futures_url"`
	// SpotURLs is the ordered list of spot hosts; later entries are the
	// alternate regional hosts tried when the primary is rate limited or
	// banned.
	SpotURLs       []string             `yaml:"spot_urls"`
	FuturesWSURL   string               `yaml:"futures_ws_url"`
	SpotWSURL      string               `yaml:"spot_ws_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type StorageConfig struct {
	// Backend is "redis" or "memory".
	Backend   string        `yaml:"backend"`
	RedisURL  string        `yaml:"redis_url"`
	Retention time.Duration `yaml:"retention"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides for deployment-specific values.
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Storage.RedisURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_FUTURES_URL"); v != "" {
		config.Binance.FuturesURL = strings.TrimSpace(v)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			Mode:              "poll",
			Interval:          10 * time.Second,
			SymbolConcurrency: 8,
			DepthLimit:        100,
			DepthWindowPct:    0.02,
			OIPeriod:          "5m",
			OISamples:         13,
			BasisTWAPSamples:  15,
			ShutdownGrace:     5 * time.Second,
		},
		Watchlist: WatchlistConfig{
			Defaults: []string{"BTCUSDT", "ETHUSDT"},
		},
		Binance: BinanceConfig{
			FuturesURL: "https://fapi.binance.com",
			SpotURLs: []string{
				"https://api.binance.com",
				"https://api1.binance.com",
				"https://api2.binance.com",
				"https://api3.binance.com",
				"https://api4.binance.com",
			},
			FuturesWSURL: "wss://fstream.binance.com",
			SpotWSURL:    "wss://stream.binance.com:9443",
			Timeout:      10 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    32,
				MaxConnsPerHost: 16,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Storage: StorageConfig{
			Backend:   "redis",
			RedisURL:  "redis://localhost:6379/0",
			Retention: 48 * time.Hour,
		},
		API: APIConfig{
			Enabled: true,
			Address: ":8000",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Address: ":9100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Shortradar.Name == "" {
		return fmt.Errorf("shortradar.name is required")
	}
	if cfg.Shortradar.Version == "" {
		return fmt.Errorf("shortradar.version is required")
	}

	switch cfg.Collector.Mode {
	case "poll", "push":
	default:
		return fmt.Errorf("collector.mode must be 'poll' or 'push'")
	}
	if cfg.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be greater than 0")
	}
	if cfg.Collector.SymbolConcurrency <= 0 {
		return fmt.Errorf("collector.symbol_concurrency must be greater than 0")
	}
	if cfg.Collector.DepthLimit <= 0 {
		return fmt.Errorf("collector.depth_limit must be greater than 0")
	}
	if cfg.Collector.DepthWindowPct <= 0 {
		return fmt.Errorf("collector.depth_window_pct must be greater than 0")
	}
	if cfg.Collector.OISamples < 2 {
		return fmt.Errorf("collector.oi_samples must be at least 2")
	}
	if cfg.Collector.BasisTWAPSamples <= 0 {
		return fmt.Errorf("collector.basis_twap_samples must be greater than 0")
	}

	if cfg.Binance.FuturesURL == "" {
		return fmt.Errorf("binance.futures_url is required")
	}
	if len(cfg.Binance.SpotURLs) == 0 {
		return fmt.Errorf("binance.spot_urls must not be empty")
	}
	if cfg.Binance.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("binance.rate_limit.requests_per_second must be greater than 0")
	}

	switch cfg.Storage.Backend {
	case "redis":
		if cfg.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required when backend is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be 'redis' or 'memory'")
	}

	if cfg.API.Enabled && cfg.API.Address == "" {
		return fmt.Errorf("api.address is required when the api is enabled")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Address == "" {
		return fmt.Errorf("telemetry.address is required when telemetry is enabled")
	}

	return nil
}
