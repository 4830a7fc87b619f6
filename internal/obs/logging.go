package obs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. format is "json" (default) or
// "console".
func NewLogger(level string, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "", "json":
		enc = zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

type AccessLogEntry struct {
	Timestamp      string `json:"ts"`
	CorrelationID  string `json:"correlation_id"`
	Method         string `json:"method"`
	Host           string `json:"host"`
	Path           string `json:"path"`
	Status         int    `json:"status"`
	DurationMS     int64  `json:"duration_ms"`
	BytesIn        int64  `json:"bytes_in"`
	BytesOut       int64  `json:"bytes_out"`
	Captured       bool   `json:"captured"`
	DecisionReason string `json:"decision_reason"`
	Suppressed     bool   `json:"suppressed"`
	ErrorStage     string `json:"error_stage,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	RemoteAddr     string `json:"remote_addr,omitempty"`
}

type RequestContext struct {
	CorrelationID  string
	Method         string
	Host           string
	Path           string
	Status         int
	Duration       time.Duration
	BytesIn        int64
	BytesOut       int64
	Captured       bool
	DecisionReason string
	Suppressed     bool
	ErrorStage     string
	UserAgent      string
	RemoteAddr     string
}

// AccessLog writes one JSON line per request.
type AccessLog struct {
	mu sync.Mutex
	w  io.Writer
}

func NewAccessLog(w io.Writer) *AccessLog {
	if w == nil {
		w = os.Stdout
	}
	return &AccessLog{w: w}
}

func (l *AccessLog) Log(ctx RequestContext) {
	if l == nil {
		return
	}
	entry := AccessLogEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID:  defaultString(ctx.CorrelationID, "none"),
		Method:         ctx.Method,
		Host:           ctx.Host,
		Path:           ctx.Path,
		Status:         ctx.Status,
		DurationMS:     ctx.Duration.Milliseconds(),
		BytesIn:        ctx.BytesIn,
		BytesOut:       ctx.BytesOut,
		Captured:       ctx.Captured,
		DecisionReason: defaultString(ctx.DecisionReason, "none"),
		Suppressed:     ctx.Suppressed,
		ErrorStage:     ctx.ErrorStage,
		UserAgent:      ctx.UserAgent,
		RemoteAddr:     ctx.RemoteAddr,
	}

	data, err := json.Marshal(entry)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "log_marshal_error correlation_id=%s error=%v\n", entry.CorrelationID, err)
		return
	}
	_, _ = l.w.Write(append(data, '\n'))
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
