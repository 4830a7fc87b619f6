package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"logpack/internal/filter"
)

var (
	ErrNilConfig       = errors.New("config is nil")
	ErrUnknownType     = errors.New("unknown type")
	ErrMissingUpstream = errors.New("upstream is required")
)

// Validate checks cfg for errors a running interceptor could not recover
// from and returns warnings for settings that are legal but likely wrong.
func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	warnings := []string{}
	if err := validateCapture(cfg, &warnings); err != nil {
		return warnings, err
	}
	for i, f := range cfg.Include {
		if err := validateFilter(f, &warnings); err != nil {
			return warnings, fmt.Errorf("include[%d]: %w", i, err)
		}
	}
	for i, f := range cfg.Exclude {
		if err := validateFilter(f, &warnings); err != nil {
			return warnings, fmt.Errorf("exclude[%d]: %w", i, err)
		}
	}
	for i, s := range cfg.Sinks {
		if err := validateSink(s); err != nil {
			return warnings, fmt.Errorf("sinks[%d]: %w", i, err)
		}
	}
	for i, n := range cfg.Notifications {
		if err := validateNotifier(n); err != nil {
			return warnings, fmt.Errorf("notifications[%d]: %w", i, err)
		}
	}
	if err := validateTrace(cfg.Trace); err != nil {
		return warnings, err
	}
	if err := validateLimits(cfg); err != nil {
		return warnings, err
	}
	if len(cfg.Sinks) == 0 && len(cfg.Notifications) == 0 {
		warnings = append(warnings, "no sinks or notifications configured; archives are built and discarded")
	}
	return warnings, nil
}

// ValidateServe additionally requires what the proxy command needs.
func ValidateServe(cfg *Config) ([]string, error) {
	warnings, err := Validate(cfg)
	if err != nil {
		return warnings, err
	}
	if strings.TrimSpace(cfg.Upstream) == "" {
		return warnings, ErrMissingUpstream
	}
	u, err := url.Parse(cfg.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return warnings, fmt.Errorf("upstream %q must be an absolute url", cfg.Upstream)
	}
	return warnings, nil
}

func validateCapture(cfg *Config, warnings *[]string) error {
	c := cfg.Capture
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("capture.time_zone: %w", err)
		}
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("capture.max_body_bytes must be non-negative")
	}
	if c.SendTimeoutMS < 0 {
		return errors.New("capture.send_timeout_ms must be non-negative")
	}
	if c.IncludeResponsePayload && !c.IncludeResponse {
		*warnings = append(*warnings, "capture.include_response_payload has no effect without include_response")
	}
	if (c.IncludeRequestPayload || c.IncludeResponse) && !c.RedactHeaders {
		*warnings = append(*warnings, "capture.redact_headers is off; credentials in headers end up in archives")
	}
	if c.AsyncDispatch && cfg.Shutdown.GracefulTimeoutMS == 0 {
		*warnings = append(*warnings, "capture.async_dispatch relies on shutdown.graceful_timeout_ms to drain; using the default")
	}
	return nil
}

func validateFilter(f FilterConfig, warnings *[]string) error {
	switch f.Type {
	case "status":
		if f.Min <= 0 || f.Max < f.Min {
			return fmt.Errorf("status filter %q needs 0 < min <= max", f.Name)
		}
		if f.Max >= 500 {
			*warnings = append(*warnings, fmt.Sprintf("status filter %q overlaps 5xx, which is always captured", f.Name))
		}
	case "path":
		if f.Pattern == "" {
			return fmt.Errorf("path filter %q needs a pattern", f.Name)
		}
		if _, err := filter.NewPath(f.Name, f.Pattern); err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
	case "method":
		if len(f.Methods) == 0 {
			return fmt.Errorf("method filter %q needs methods", f.Name)
		}
	case "header":
		if strings.TrimSpace(f.Header) == "" {
			return fmt.Errorf("header filter %q needs a header", f.Name)
		}
		if _, err := filter.NewHeader(f.Name, f.Header, f.Pattern, f.Response); err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
	case "expr":
		if strings.TrimSpace(f.Expr) == "" {
			return fmt.Errorf("expr filter %q needs an expression", f.Name)
		}
		if _, err := filter.NewExpr(f.Name, f.Expr); err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
	case "remote":
		if strings.TrimSpace(f.Addr) == "" {
			return fmt.Errorf("remote filter %q needs an addr", f.Name)
		}
		switch strings.ToLower(f.FailureMode) {
		case "", "fail_open":
		case "fail_closed":
			*warnings = append(*warnings, fmt.Sprintf("remote filter %q is fail_closed; an outage abandons capture", f.Name))
		default:
			return fmt.Errorf("remote filter %q has unknown failure_mode %q", f.Name, f.FailureMode)
		}
		if f.TimeoutMS < 0 {
			return fmt.Errorf("remote filter %q timeout_ms must be non-negative", f.Name)
		}
	default:
		return fmt.Errorf("filter %q: %w %q", f.Name, ErrUnknownType, f.Type)
	}
	return nil
}

func validateSink(s SinkConfig) error {
	switch s.Type {
	case "dir":
		if s.Path == "" {
			return errors.New("dir sink needs a path")
		}
	case "http":
		if s.URL == "" {
			return errors.New("http sink needs a url")
		}
	case "s3":
		if s.Bucket == "" {
			return errors.New("s3 sink needs a bucket")
		}
	default:
		return fmt.Errorf("sink %q: %w %q", s.Name, ErrUnknownType, s.Type)
	}
	return nil
}

func validateNotifier(n NotifierConfig) error {
	switch n.Type {
	case "webhook":
		if n.URL == "" {
			return errors.New("webhook notifier needs a url")
		}
	case "nats", "log":
	default:
		return fmt.Errorf("notifier %q: %w %q", n.Name, ErrUnknownType, n.Type)
	}
	return nil
}

func validateTrace(t TraceConfig) error {
	switch t.Backend {
	case "", "memory":
	case "redis":
		if t.Redis == nil || t.Redis.Addr == "" {
			return errors.New("trace.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("trace backend: %w %q", ErrUnknownType, t.Backend)
	}
	if t.MaxLines < 0 {
		return errors.New("trace.max_lines must be non-negative")
	}
	return nil
}

func validateLimits(cfg *Config) error {
	l := cfg.Limits
	if l.MaxHeaderBytes < 0 {
		return errors.New("limits.max_header_bytes must be non-negative")
	}
	if l.ReadHeaderTimeoutMS < 0 || l.ReadTimeoutMS < 0 || l.WriteTimeoutMS < 0 || l.IdleTimeoutMS < 0 {
		return errors.New("limits timeouts must be non-negative")
	}
	if cfg.Shutdown.DrainMS < 0 || cfg.Shutdown.GracefulTimeoutMS < 0 {
		return errors.New("shutdown durations must be non-negative")
	}
	return nil
}
