package limits

import (
	"fmt"
	"time"

	"logpack/internal/config"
)

const (
	defaultMaxHeaderBytes    = 64 * 1024
	defaultReadHeaderTimeout = 2 * time.Second
	defaultIdleTimeout       = 30 * time.Second
)

// Limits bounds what the listening server accepts from clients. Body size is
// not limited here: the interceptor caps what it captures and streams the
// rest through.
type Limits struct {
	MaxHeaderBytes    int
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

func Default() Limits {
	return Limits{
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       defaultIdleTimeout,
	}
}

func FromConfig(cfg config.LimitsConfig) (Limits, error) {
	limits := Default()
	if cfg.MaxHeaderBytes > 0 {
		limits.MaxHeaderBytes = cfg.MaxHeaderBytes
	} else if cfg.MaxHeaderBytes < 0 {
		return Limits{}, fmt.Errorf("max_header_bytes must be positive")
	}
	if cfg.ReadHeaderTimeoutMS > 0 {
		limits.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutMS) * time.Millisecond
	} else if cfg.ReadHeaderTimeoutMS < 0 {
		return Limits{}, fmt.Errorf("read_header_timeout_ms must be positive")
	}
	if cfg.ReadTimeoutMS < 0 || cfg.WriteTimeoutMS < 0 || cfg.IdleTimeoutMS < 0 {
		return Limits{}, fmt.Errorf("read, write and idle timeouts must be non-negative")
	}
	limits.ReadTimeout = durationOrZero(cfg.ReadTimeoutMS)
	limits.WriteTimeout = durationOrZero(cfg.WriteTimeoutMS)
	if cfg.IdleTimeoutMS > 0 {
		limits.IdleTimeout = time.Duration(cfg.IdleTimeoutMS) * time.Millisecond
	}
	return limits, nil
}

func durationOrZero(milliseconds int) time.Duration {
	if milliseconds <= 0 {
		return 0
	}
	return time.Duration(milliseconds) * time.Millisecond
}
