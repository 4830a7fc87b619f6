package server

import (
	"fmt"
	"time"

	"logpack/internal/config"
)

const defaultGracefulTimeout = 5 * time.Second

// ShutdownConfig orders a stop. The listener keeps accepting for Drain, then
// in-flight requests get GracefulTimeout to finish and stoppers share what is
// left of it.
type ShutdownConfig struct {
	Drain           time.Duration
	GracefulTimeout time.Duration
}

func ShutdownFromConfig(cfg config.ShutdownConfig) (ShutdownConfig, error) {
	if cfg.DrainMS < 0 {
		return ShutdownConfig{}, fmt.Errorf("drain_ms must be non-negative")
	}
	if cfg.GracefulTimeoutMS < 0 {
		return ShutdownConfig{}, fmt.Errorf("graceful_timeout_ms must be non-negative")
	}
	return ApplyShutdownDefaults(ShutdownConfig{
		Drain:           time.Duration(cfg.DrainMS) * time.Millisecond,
		GracefulTimeout: time.Duration(cfg.GracefulTimeoutMS) * time.Millisecond,
	}), nil
}

func ApplyShutdownDefaults(cfg ShutdownConfig) ShutdownConfig {
	if cfg.Drain < 0 {
		cfg.Drain = 0
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return cfg
}
