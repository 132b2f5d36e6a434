package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockcast/internal/regression"
	"stockcast/internal/training"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "")
	cfg := DefaultConfig()

	if cfg.API.RateLimit != 5 {
		t.Errorf("Expected rate limit 5, got %d", cfg.API.RateLimit)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cfg.API.Timeout)
	}
	if cfg.API.MaxBackoff != 2*time.Minute {
		t.Errorf("Expected max backoff 2m, got %v", cfg.API.MaxBackoff)
	}
	if cfg.Training.TestFraction != 0.2 || cfg.Training.Seed != 42 {
		t.Errorf("Unexpected split defaults: %+v", cfg.Training)
	}
	if cfg.Training.Target != training.TargetStandardized {
		t.Errorf("Expected standardized target, got %q", cfg.Training.Target)
	}
	if cfg.Training.Model.Kind != regression.KindForest || cfg.Training.Model.Forest.Trees != 100 {
		t.Errorf("Unexpected model defaults: %+v", cfg.Training.Model)
	}
	if cfg.Thresholds.Buy != 0.4 || cfg.Thresholds.Sell != -0.4 {
		t.Errorf("Unexpected thresholds: %+v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("Expected missing API key error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Data.Symbol != "IBM" {
		t.Errorf("Expected default symbol, got %q", cfg.Data.Symbol)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "from-env")
	t.Setenv("STOCKCAST_DATA_DIR", "")
	path := writeConfig(t, `
api:
  key: from-file
  rate_limit: 75
data:
  symbol: MSFT
  start: "2020-01-01"
training:
  target: raw
  model:
    kind: ridge
    ridge:
      lambda: 0.5
thresholds:
  buy: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.API.Key != "from-env" {
		t.Errorf("Environment should override the file key, got %q", cfg.API.Key)
	}
	if cfg.API.RateLimit != 75 || cfg.API.MaxRetries != 3 {
		t.Errorf("Unexpected api config: %+v", cfg.API)
	}
	if cfg.Data.Symbol != "MSFT" || cfg.Data.End != "2023-09-29" {
		t.Errorf("Unexpected data config: %+v", cfg.Data)
	}
	if cfg.Training.Model.Kind != regression.KindRidge || cfg.Training.Model.Ridge.Lambda != 0.5 {
		t.Errorf("Unexpected model config: %+v", cfg.Training.Model)
	}
	if cfg.Thresholds.Buy != 0.5 || cfg.Thresholds.Sell != -0.4 {
		t.Errorf("Unexpected thresholds: %+v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}

	start, end, err := cfg.Data.Window()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if start.Year() != 2020 || end.Year() != 2023 {
		t.Errorf("Unexpected window %v..%v", start, end)
	}
}

func TestLoadDataDirFromEnv(t *testing.T) {
	t.Setenv("STOCKCAST_DATA_DIR", "/tmp/stockcast")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Data.Dir != "/tmp/stockcast" {
		t.Errorf("Expected env data dir, got %q", cfg.Data.Dir)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"inverted thresholds", func(c *Config) { c.Thresholds.Sell = 0.6 }, "Sell"},
		{"test fraction", func(c *Config) { c.Training.TestFraction = 1 }, "TestFraction"},
		{"target", func(c *Config) { c.Training.Target = "log" }, "Target"},
		{"model kind", func(c *Config) { c.Training.Model.Kind = "svm" }, "Kind"},
		{"bad date", func(c *Config) { c.Data.Start = "28/09/2018" }, "Start"},
		{"window order", func(c *Config) { c.Data.Start, c.Data.End = "2023-01-01", "2022-01-01" }, "before"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "Format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q in %v", tt.want, err)
			}
		})
	}
}
