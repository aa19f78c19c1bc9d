package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode     string `yaml:"mode"`     // DRY_RUN or LIVE
	Exchange string `yaml:"exchange"` // gateway backend, e.g. "kite" or "paper"
	DBPath   string `yaml:"db_path"`

	// Optional redis backend for the shared running-flag store and the
	// market-info cache. Empty means sqlite-only.
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	MetricsAddr string `yaml:"metrics_addr"`

	Engine struct {
		FlagPollSeconds      int `yaml:"flag_poll_seconds"`
		LiveRetentionCandles int `yaml:"live_retention_candles"`
		MaxCandlesPerFetch   int `yaml:"max_candles_per_fetch"`
	} `yaml:"engine"`

	Liquidation struct {
		EmitTrade bool `yaml:"emit_trade"`
	} `yaml:"liquidation"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.Engine.FlagPollSeconds <= 0 || c.Engine.FlagPollSeconds > 60 {
		return fmt.Errorf("engine.flag_poll_seconds must be between 1-60, got %d", c.Engine.FlagPollSeconds)
	}
	if c.Engine.LiveRetentionCandles < 50 {
		return fmt.Errorf("engine.live_retention_candles must be at least 50, got %d", c.Engine.LiveRetentionCandles)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = "paper"
	}
	if c.Engine.FlagPollSeconds == 0 {
		c.Engine.FlagPollSeconds = 10
	}
	if c.Engine.LiveRetentionCandles == 0 {
		c.Engine.LiveRetentionCandles = 500
	}
	if c.Engine.MaxCandlesPerFetch == 0 {
		c.Engine.MaxCandlesPerFetch = 1000
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
