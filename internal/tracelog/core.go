package tracelog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CorrelationIDKey is the zap field that routes an entry to a collector.
const CorrelationIDKey = "correlation_id"

// Field tags a log entry with the correlation id of the current request.
func Field(id string) zap.Field {
	return zap.String(CorrelationIDKey, id)
}

// Core is a zapcore.Core that appends every entry carrying a correlation id
// to a Collector. Entries without one are ignored.
type Core struct {
	zapcore.LevelEnabler
	collector Collector
	enc       zapcore.Encoder
	id        string
}

func NewCore(collector Collector, level zapcore.LevelEnabler) *Core {
	if collector == nil {
		collector = Nop{}
	}
	if level == nil {
		level = zapcore.DebugLevel
	}
	return &Core{
		LevelEnabler: level,
		collector:    collector,
		enc:          zapcore.NewConsoleEncoder(encoderConfig()),
	}
}

// Tee returns logger with its output additionally fed into collector.
func Tee(logger *zap.Logger, collector Collector) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, NewCore(collector, zapcore.DebugLevel))
	}))
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := &Core{
		LevelEnabler: c.LevelEnabler,
		collector:    c.collector,
		enc:          c.enc.Clone(),
		id:           c.id,
	}
	for _, field := range fields {
		if id, ok := correlationID(field); ok {
			clone.id = id
			continue
		}
		field.AddTo(clone.enc)
	}
	return clone
}

func (c *Core) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *Core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	id := c.id
	rest := fields[:0:0]
	for _, field := range fields {
		if value, ok := correlationID(field); ok {
			id = value
			continue
		}
		rest = append(rest, field)
	}
	if id == "" {
		return nil
	}
	buf, err := c.enc.EncodeEntry(entry, rest)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()
	c.collector.Trace(id, line)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

func correlationID(field zapcore.Field) (string, bool) {
	if field.Key != CorrelationIDKey || field.Type != zapcore.StringType {
		return "", false
	}
	return field.String, true
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}
