// Package config loads the backlab YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"backlab/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backlab platform.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Strategy Strategy `yaml:"strategy"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`    // parquet bar cache root
	SQLitePath string `yaml:"sqlite_path"` // backtest run database
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Strategy holds the default backtest parameters, used when a run request
// leaves a field unset. StopLossPct and TakeProfitPct are fractions
// (0.01 = 1%).
type Strategy struct {
	ShortWindow    int     `yaml:"short_window"`
	LongWindow     int     `yaml:"long_window"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	StartingAmount float64 `yaml:"starting_amount"`
}

// Defaults converts the strategy section into the engine's parameter type.
func (s Strategy) Defaults() domain.StrategyConfig {
	return domain.StrategyConfig{
		ShortWindow:    s.ShortWindow,
		LongWindow:     s.LongWindow,
		StopLossPct:    decimal.NewFromFloat(s.StopLossPct),
		TakeProfitPct:  decimal.NewFromFloat(s.TakeProfitPct),
		StartingAmount: decimal.NewFromFloat(s.StartingAmount),
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills in
// strategy defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyStrategyDefaults(&cfg.Strategy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values that can never work.
func (c *Config) Validate() error {
	if c.Strategy.ShortWindow >= c.Strategy.LongWindow {
		return fmt.Errorf("strategy: short_window (%d) must be less than long_window (%d)",
			c.Strategy.ShortWindow, c.Strategy.LongWindow)
	}
	if c.Strategy.StartingAmount <= 0 {
		return fmt.Errorf("strategy: starting_amount must be positive, got %v", c.Strategy.StartingAmount)
	}
	return nil
}

// applyStrategyDefaults fills unset strategy parameters with the stock
// 20/50 crossover defaults.
func applyStrategyDefaults(s *Strategy) {
	if s.ShortWindow == 0 {
		s.ShortWindow = 20
	}
	if s.LongWindow == 0 {
		s.LongWindow = 50
	}
	if s.StopLossPct == 0 {
		s.StopLossPct = 0.01
	}
	if s.TakeProfitPct == 0 {
		s.TakeProfitPct = 0.50
	}
	if s.StartingAmount == 0 {
		s.StartingAmount = 10000
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("BACKLAB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca SDK env vars take priority over the ALPACA_* ones.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
