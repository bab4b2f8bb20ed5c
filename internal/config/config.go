// Package config loads ambient runtime configuration for the demo signer
// dispatcher and holds the sentinel errors and tunables shared across the
// module.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds configuration for the demo btcsign-server dispatcher,
// loaded from environment variables.
type Config struct {
	MnemonicFile string `envconfig:"BTCSIGN_MNEMONIC_FILE"`
	Network      string `envconfig:"BTCSIGN_NETWORK" default:"testnet"`
	Port         int    `envconfig:"BTCSIGN_PORT" default:"8088"`
	LogLevel     string `envconfig:"BTCSIGN_LOG_LEVEL" default:"info"`
	LogDir       string `envconfig:"BTCSIGN_LOG_DIR" default:"./logs"`

	// InitRatePerSecond bounds how often the host may call init() on the
	// session controller. See internal/btcsign's rate.Limiter wiring.
	InitRatePerSecond float64 `envconfig:"BTCSIGN_INIT_RATE" default:"5"`
}

// Load reads configuration from a ".env" file (if present) then from
// environment variables. Real environment variables take precedence over
// ".env" values.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("%w: network must be \"mainnet\" or \"testnet\", got %q", ErrInvalidConfig, c.Network)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.InitRatePerSecond <= 0 {
		return fmt.Errorf("%w: init rate must be positive, got %f", ErrInvalidConfig, c.InitRatePerSecond)
	}
	return nil
}
