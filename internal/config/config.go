package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"stockcast/internal/ensemble"
	"stockcast/internal/logging"
	"stockcast/internal/training"
	"stockcast/pkg/model"
)

// Config represents the application configuration
type Config struct {
	API        APIConfig           `yaml:"api"`
	Data       DataConfig          `yaml:"data"`
	Training   training.Config     `yaml:"training"`
	Thresholds ensemble.Thresholds `yaml:"thresholds"`
	Log        logging.Config      `yaml:"log"`
	Metrics    MetricsConfig       `yaml:"metrics"`
}

// APIConfig holds Alpha Vantage settings
type APIConfig struct {
	Key        string        `yaml:"key"`
	RateLimit  int           `yaml:"rate_limit" default:"5" validate:"min=0"` // requests per minute, 0 = unlimited
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"min=0"`
	Timeout    time.Duration `yaml:"timeout" default:"30s"`
	MaxBackoff time.Duration `yaml:"max_backoff" default:"2m"` // cap on the wait after throttling
	BaseURL    string        `yaml:"base_url" default:"https://www.alphavantage.co/query" validate:"url"`
}

// DataConfig holds what to process and where artifacts live
type DataConfig struct {
	Symbol  string `yaml:"symbol" default:"IBM" validate:"required"`
	Dir     string `yaml:"dir" default:"data" validate:"required"`
	Start   string `yaml:"start" default:"2018-09-28" validate:"omitempty,datetime=2006-01-02"`
	End     string `yaml:"end" default:"2023-09-29" validate:"omitempty,datetime=2006-01-02"`
	Parquet bool   `yaml:"parquet"`
}

// MetricsConfig holds the Prometheus textfile output
type MetricsConfig struct {
	File string `yaml:"file"`
}

var validate = validator.New()

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	// Only fails on malformed default tags.
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.API.Key = os.Getenv("ALPHAVANTAGE_API_KEY")
	return cfg
}

// Load loads configuration from a YAML file. A missing file or empty path
// yields the defaults. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	// Override with environment variables if set
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if dir := os.Getenv("STOCKCAST_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}

	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	start, end, err := c.Data.Window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("invalid config: data window ends %s before it starts %s", c.Data.End, c.Data.Start)
	}
	return nil
}

// RequireAPIKey reports a missing key; only downloads need one
func (c *Config) RequireAPIKey() error {
	if c.API.Key == "" {
		return errors.New("ALPHAVANTAGE_API_KEY is required to download data")
	}
	return nil
}

// Window returns the parsed date window; empty bounds are zero times
func (d DataConfig) Window() (start, end time.Time, err error) {
	if d.Start != "" {
		if start, err = time.Parse(model.DateLayout, d.Start); err != nil {
			return start, end, fmt.Errorf("data.start: %w", err)
		}
	}
	if d.End != "" {
		if end, err = time.Parse(model.DateLayout, d.End); err != nil {
			return start, end, fmt.Errorf("data.end: %w", err)
		}
	}
	return start, end, nil
}
