package tracelog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCoreRoutesByCorrelationField(t *testing.T) {
	collector := NewMemory(0)
	logger := zap.New(NewCore(collector, zapcore.DebugLevel))

	logger.Info("loading user", Field("req-1"), zap.Int("user", 7))
	logger.Info("no id attached")
	logger.With(Field("req-2")).Warn("slow query", zap.String("table", "orders"))

	lines := collector.Get("req-1")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "loading user")
	assert.Contains(t, lines[0], `"user": 7`)
	assert.NotContains(t, lines[0], CorrelationIDKey)

	lines = collector.Get("req-2")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "WARN")
	assert.Contains(t, lines[0], `"table": "orders"`)
	assert.Equal(t, 2, collector.Len())
}

func TestCoreRespectsLevel(t *testing.T) {
	collector := NewMemory(0)
	logger := zap.New(NewCore(collector, zapcore.WarnLevel))

	logger.Debug("hidden", Field("req"))
	logger.Error("shown", Field("req"))

	lines := collector.Get("req")
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "shown"))
}

func TestTeeKeepsOriginalCore(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	collector := NewMemory(0)
	logger := Tee(zap.New(observed), collector)

	logger.Info("hello", Field("req"))

	assert.Equal(t, 1, logs.Len())
	assert.Len(t, collector.Get("req"), 1)
}
