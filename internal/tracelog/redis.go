package tracelog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "logpack:trace:"
	defaultRedisTTL     = 10 * time.Minute
	defaultRedisTimeout = 500 * time.Millisecond
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long lines survive when a request never reaches cleanup,
	// for example after a crash of the process that owned it.
	TTL      time.Duration
	Timeout  time.Duration
	MaxLines int
}

// Redis stores trace lines in redis lists so several processes behind one
// balancer can share a collector.
type Redis struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	maxLines int64
	onError  func(op string, err error)
}

func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithClient(client, cfg)
}

func NewRedisWithClient(client *redis.Client, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultRedisTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxLines
	}
	return &Redis{
		client:   client,
		prefix:   cfg.Prefix,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
		maxLines: int64(cfg.MaxLines),
	}
}

// OnError installs a callback for failed redis operations. Trace, Get and
// Remove never return errors to their callers.
func (r *Redis) OnError(fn func(op string, err error)) {
	if r == nil {
		return
	}
	r.onError = fn
}

func (r *Redis) Trace(id string, line string) {
	if r == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	key := r.key(id)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, 0, r.maxLines-1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.report("trace", err)
	}
}

func (r *Redis) Get(id string) []string {
	if r == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	lines, err := r.client.LRange(ctx, r.key(id), 0, -1).Result()
	if err != nil {
		r.report("get", err)
		return nil
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

func (r *Redis) Remove(id string) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		r.report("remove", err)
	}
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) report(op string, err error) {
	if r.onError != nil {
		r.onError(op, err)
	}
}
