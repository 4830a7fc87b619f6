package tracelog

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	collector := NewRedis(RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	t.Cleanup(func() {
		_ = collector.Close()
	})
	return collector, mr
}

func TestRedisTraceGetRemove(t *testing.T) {
	collector, mr := setupRedis(t)

	collector.Trace("req-1", "first")
	collector.Trace("req-1", "second")
	collector.Trace("req-2", "unrelated")

	assert.Equal(t, []string{"first", "second"}, collector.Get("req-1"))
	assert.True(t, mr.Exists(defaultRedisPrefix+"req-1"))

	collector.Remove("req-1")
	assert.Nil(t, collector.Get("req-1"))
	assert.False(t, mr.Exists(defaultRedisPrefix+"req-1"))
	assert.Equal(t, []string{"unrelated"}, collector.Get("req-2"))
}

func TestRedisSetsTTL(t *testing.T) {
	collector, mr := setupRedis(t)

	collector.Trace("req-1", "line")
	assert.Equal(t, time.Minute, mr.TTL(defaultRedisPrefix+"req-1"))

	mr.FastForward(2 * time.Minute)
	assert.Nil(t, collector.Get("req-1"))
}

func TestRedisTrimsToMaxLines(t *testing.T) {
	mr := miniredis.RunT(t)
	collector := NewRedis(RedisConfig{Addr: mr.Addr(), MaxLines: 2})
	defer collector.Close()

	collector.Trace("req", "1")
	collector.Trace("req", "2")
	collector.Trace("req", "3")

	assert.Equal(t, []string{"1", "2"}, collector.Get("req"))
}

func TestRedisReportsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	collector := NewRedis(RedisConfig{Addr: mr.Addr(), Timeout: 100 * time.Millisecond})
	defer collector.Close()

	var ops []string
	collector.OnError(func(op string, err error) {
		require.Error(t, err)
		ops = append(ops, op)
	})
	mr.Close()

	collector.Trace("req", "line")
	assert.Nil(t, collector.Get("req"))
	assert.Equal(t, []string{"trace", "get"}, ops)
}
