package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr    string           `json:"listen_addr" yaml:"listen_addr"`
	Upstream      string           `json:"upstream" yaml:"upstream"`
	Log           LogConfig        `json:"log" yaml:"log"`
	Metrics       *MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Capture       CaptureConfig    `json:"capture" yaml:"capture"`
	Include       []FilterConfig   `json:"include" yaml:"include"`
	Exclude       []FilterConfig   `json:"exclude" yaml:"exclude"`
	Sinks         []SinkConfig     `json:"sinks" yaml:"sinks"`
	Notifications []NotifierConfig `json:"notifications" yaml:"notifications"`
	Trace         TraceConfig      `json:"trace" yaml:"trace"`
	Limits        LimitsConfig     `json:"limits" yaml:"limits"`
	Shutdown      ShutdownConfig   `json:"shutdown" yaml:"shutdown"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Access bool   `json:"access" yaml:"access"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type CaptureConfig struct {
	IncludeRequestPayload  bool     `json:"include_request_payload" yaml:"include_request_payload"`
	IncludeResponse        bool     `json:"include_response" yaml:"include_response"`
	IncludeResponsePayload bool     `json:"include_response_payload" yaml:"include_response_payload"`
	IncludeFiles           []string `json:"include_files" yaml:"include_files"`
	TimeZone               string   `json:"time_zone" yaml:"time_zone"`
	Dependencies           bool     `json:"dependencies" yaml:"dependencies"`
	ExcludeOnServerError   bool     `json:"exclude_on_server_error" yaml:"exclude_on_server_error"`
	RedactHeaders          bool     `json:"redact_headers" yaml:"redact_headers"`
	MaxBodyBytes           int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
	IDHeader               string   `json:"id_header" yaml:"id_header"`
	WorkDir                string   `json:"work_dir" yaml:"work_dir"`
	SendTimeoutMS          int      `json:"send_timeout_ms" yaml:"send_timeout_ms"`
	AsyncDispatch          bool     `json:"async_dispatch" yaml:"async_dispatch"`
}

// FilterConfig describes one include or exclude filter. Type selects which
// of the remaining fields apply.
type FilterConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Type        string         `json:"type" yaml:"type"`
	Min         int            `json:"min,omitempty" yaml:"min,omitempty"`
	Max         int            `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern     string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Methods     []string       `json:"methods,omitempty" yaml:"methods,omitempty"`
	Header      string         `json:"header,omitempty" yaml:"header,omitempty"`
	Response    bool           `json:"response,omitempty" yaml:"response,omitempty"`
	Expr        string         `json:"expr,omitempty" yaml:"expr,omitempty"`
	Addr        string         `json:"addr,omitempty" yaml:"addr,omitempty"`
	TimeoutMS   int            `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	FailureMode string         `json:"failure_mode,omitempty" yaml:"failure_mode,omitempty"`
	Breaker     *BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

type BreakerConfig struct {
	ConsecutiveFailures int `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenMS              int `json:"open_ms" yaml:"open_ms"`
	HalfOpenProbes      int `json:"half_open_probes" yaml:"half_open_probes"`
}

type SinkConfig struct {
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	Path           string         `json:"path,omitempty" yaml:"path,omitempty"`
	URL            string         `json:"url,omitempty" yaml:"url,omitempty"`
	TokenEnv       string         `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	FormField      string         `json:"form_field,omitempty" yaml:"form_field,omitempty"`
	Bucket         string         `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix         string         `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region         string         `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint       string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyEnv   string         `json:"access_key_env,omitempty" yaml:"access_key_env,omitempty"`
	SecretKeyEnv   string         `json:"secret_key_env,omitempty" yaml:"secret_key_env,omitempty"`
	ForcePathStyle bool           `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
	Breaker        *BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

type NotifierConfig struct {
	Name     string            `json:"name" yaml:"name"`
	Type     string            `json:"type" yaml:"type"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	TokenEnv string            `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Subject  string            `json:"subject,omitempty" yaml:"subject,omitempty"`
}

type TraceConfig struct {
	Backend  string       `json:"backend" yaml:"backend"`
	MaxLines int          `json:"max_lines" yaml:"max_lines"`
	Redis    *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	PasswordEnv string `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	DB          int    `json:"db" yaml:"db"`
	Prefix      string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	TTLMS       int    `json:"ttl_ms,omitempty" yaml:"ttl_ms,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int `json:"max_header_bytes" yaml:"max_header_bytes"`
	ReadHeaderTimeoutMS int `json:"read_header_timeout_ms" yaml:"read_header_timeout_ms"`
	ReadTimeoutMS       int `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteTimeoutMS      int `json:"write_timeout_ms" yaml:"write_timeout_ms"`
	IdleTimeoutMS       int `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `json:"drain_ms" yaml:"drain_ms"`
	GracefulTimeoutMS int `json:"graceful_timeout_ms" yaml:"graceful_timeout_ms"`
}

// ParseJSON accepts JSON with comments and trailing commas.
func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads path and parses it by extension: .yaml and .yml as YAML,
// anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		cfg, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
