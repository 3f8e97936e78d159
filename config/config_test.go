package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
shortradar:
  name: shortradar
  version: "1.0.0"
collector:
  mode: poll
  interval: 10s
watchlist:
  defaults: ["BTCUSDT", "ETHUSDT"]
storage:
  backend: memory
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Collector.SymbolConcurrency != 8 {
		t.Errorf("expected default symbol_concurrency 8, got %d", cfg.Collector.SymbolConcurrency)
	}
	if cfg.Collector.DepthWindowPct != 0.02 {
		t.Errorf("expected default depth_window_pct 0.02, got %f", cfg.Collector.DepthWindowPct)
	}
	if cfg.Storage.Retention != 48*time.Hour {
		t.Errorf("expected default retention 48h, got %v", cfg.Storage.Retention)
	}
	if len(cfg.Binance.SpotURLs) != 5 {
		t.Errorf("expected 5 default spot hosts, got %d", len(cfg.Binance.SpotURLs))
	}
	if cfg.Binance.FuturesURL != "https://fapi.binance.com" {
		t.Errorf("unexpected default futures url: %s", cfg.Binance.FuturesURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	yaml := validYAML + `
binance:
  futures_url: "https://fapi.example.com"
  rate_limit:
    requests_per_second: 5
    burst_size: 10
api:
  enabled: false
`
	cfg, err := LoadConfig(writeTempConfig(t, yaml))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Binance.FuturesURL != "https://fapi.example.com" {
		t.Errorf("futures_url override not applied: %s", cfg.Binance.FuturesURL)
	}
	if cfg.Binance.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("rate limit override not applied: %d", cfg.Binance.RateLimit.RequestsPerSecond)
	}
	if cfg.API.Enabled {
		t.Error("api.enabled override not applied")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://override:6379/1")

	yaml := strings.Replace(validYAML, "backend: memory", "backend: redis", 1)
	cfg, err := LoadConfig(writeTempConfig(t, yaml))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.RedisURL != "redis://override:6379/1" {
		t.Errorf("REDIS_URL env override not applied: %s", cfg.Storage.RedisURL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  strings.Replace(validYAML, "name: shortradar", "name: \"\"", 1),
			wantErr: "shortradar.name is required",
		},
		{
			name:    "bad mode",
			mutate:  strings.Replace(validYAML, "mode: poll", "mode: stream", 1),
			wantErr: "collector.mode",
		},
		{
			name:    "bad backend",
			mutate:  strings.Replace(validYAML, "backend: memory", "backend: sqlite", 1),
			wantErr: "storage.backend",
		},
		{
			name:    "zero interval",
			mutate:  strings.Replace(validYAML, "interval: 10s", "interval: 0s", 1),
			wantErr: "collector.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, tt.mutate))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
