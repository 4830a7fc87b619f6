package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"logpack/internal/archive"
	"logpack/internal/filter"
	"logpack/internal/interceptor"
	"logpack/internal/notify"
	"logpack/internal/obs"
	"logpack/internal/sink"
	"logpack/internal/tracelog"

	"go.uber.org/zap"
)

// Runtime is a config turned into interceptor options plus the resources
// that must be released with it.
type Runtime struct {
	Options interceptor.Options
	closers []func() error
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build validates cfg and constructs every filter, sink, notifier and the
// trace collector it names. On error every resource opened so far is
// released.
func Build(ctx context.Context, cfg *Config, logger *zap.Logger, metrics *obs.Metrics) (rt *Runtime, err error) {
	if _, err := Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	built := &Runtime{}
	rt = built
	defer func() {
		if err != nil {
			_ = built.Close()
			rt = nil
		}
	}()

	c := cfg.Capture
	loc := time.Local
	if c.TimeZone != "" {
		if loc, err = time.LoadLocation(c.TimeZone); err != nil {
			return nil, err
		}
	}

	collector, err := rt.buildCollector(cfg.Trace, logger)
	if err != nil {
		return nil, err
	}

	var registry *filter.Registry
	filterFor := func(fc FilterConfig) (filter.Filter, error) {
		if fc.Type == "remote" && registry == nil {
			registry = filter.NewRegistry()
			rt.closers = append(rt.closers, func() error {
				registry.Close()
				return nil
			})
		}
		return buildFilter(fc, registry, logger, metrics)
	}
	include, err := buildFilters(cfg.Include, filterFor)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exclude, err := buildFilters(cfg.Exclude, filterFor)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}

	sinks := make([]sink.Sink, 0, len(cfg.Sinks))
	for _, sc := range cfg.Sinks {
		s, err := buildSink(ctx, sc, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", sc.Name, err)
		}
		sinks = append(sinks, s)
	}

	notifiers := make([]notify.Notifier, 0, len(cfg.Notifications))
	for _, nc := range cfg.Notifications {
		n, err := rt.buildNotifier(nc, logger)
		if err != nil {
			return nil, fmt.Errorf("notifier %q: %w", nc.Name, err)
		}
		notifiers = append(notifiers, n)
	}

	var deps archive.DependencyDescriptor
	if c.Dependencies {
		if info, ok := archive.NewBuildInfo(); ok {
			deps = info
		} else {
			logger.Warn("build info unavailable, deps.log disabled")
		}
	}

	rt.Options = interceptor.Options{
		Include:                include,
		Exclude:                exclude,
		ExcludeOnServerError:   c.ExcludeOnServerError,
		IncludeRequestPayload:  c.IncludeRequestPayload,
		IncludeResponse:        c.IncludeResponse,
		IncludeResponsePayload: c.IncludeResponsePayload,
		IncludeFiles:           c.IncludeFiles,
		RedactHeaders:          c.RedactHeaders,
		Dependencies:           deps,
		Location:               loc,
		Sinks:                  sinks,
		Notifiers:              notifiers,
		WorkDir:                c.WorkDir,
		SendTimeout:            durationMS(c.SendTimeoutMS),
		AsyncDispatch:          c.AsyncDispatch,
		IDHeader:               c.IDHeader,
		MaxBodyBytes:           c.MaxBodyBytes,
		Collector:              collector,
		Reporter:               interceptor.NewZapReporter(logger),
		Logger:                 logger,
		Metrics:                metrics,
	}
	return rt, nil
}

func (rt *Runtime) buildCollector(cfg TraceConfig, logger *zap.Logger) (tracelog.Collector, error) {
	if cfg.Backend != "redis" {
		return tracelog.NewMemory(cfg.MaxLines), nil
	}
	redis := tracelog.NewRedis(tracelog.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: secret(cfg.Redis.PasswordEnv),
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      durationMS(cfg.Redis.TTLMS),
		Timeout:  durationMS(cfg.Redis.TimeoutMS),
		MaxLines: cfg.MaxLines,
	})
	redis.OnError(func(op string, err error) {
		logger.Warn("trace collector error", zap.String("op", op), zap.Error(err))
	})
	rt.closers = append(rt.closers, redis.Close)
	return redis, nil
}

func buildFilters(configs []FilterConfig, build func(FilterConfig) (filter.Filter, error)) ([]filter.Filter, error) {
	out := make([]filter.Filter, 0, len(configs))
	for _, fc := range configs {
		f, err := build(fc)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", fc.Name, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func buildFilter(fc FilterConfig, registry *filter.Registry, logger *zap.Logger, metrics *obs.Metrics) (filter.Filter, error) {
	switch fc.Type {
	case "status":
		return &filter.Status{Label: fc.Name, Min: fc.Min, Max: fc.Max}, nil
	case "path":
		return filter.NewPath(fc.Name, fc.Pattern)
	case "method":
		return &filter.Method{Label: fc.Name, Methods: fc.Methods}, nil
	case "header":
		return filter.NewHeader(fc.Name, fc.Header, fc.Pattern, fc.Response)
	case "expr":
		return filter.NewExpr(fc.Name, fc.Expr)
	case "remote":
		var remote *filter.Remote
		rc := filter.RemoteConfig{
			Label:       fc.Name,
			Addr:        fc.Addr,
			Timeout:     durationMS(fc.TimeoutMS),
			FailureMode: filter.FailureMode(strings.ToLower(fc.FailureMode)),
			OnFailure: func(name string, err error) {
				logger.Warn("remote filter failed", zap.String("filter", name), zap.Error(err))
				metrics.SetBreakerOpen(name, remote.Breaker().State() == filter.BreakerOpen)
			},
		}
		if fc.Breaker != nil {
			rc.Breaker = filter.BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: fc.Breaker.ConsecutiveFailures,
				OpenDuration:        durationMS(fc.Breaker.OpenMS),
				HalfOpenProbes:      fc.Breaker.HalfOpenProbes,
			}
		}
		r, err := filter.NewRemote(rc, registry)
		if err != nil {
			return nil, err
		}
		remote = r
		return remote, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, fc.Type)
}

func buildSink(ctx context.Context, sc SinkConfig, logger *zap.Logger, metrics *obs.Metrics) (sink.Sink, error) {
	var (
		s   sink.Sink
		err error
	)
	switch sc.Type {
	case "dir":
		s, err = sink.NewDir(sc.Path)
	case "http":
		s, err = sink.NewHTTP(sink.HTTPConfig{URL: sc.URL, Token: secret(sc.TokenEnv), FormField: sc.FormField})
	case "s3":
		s, err = sink.NewS3(ctx, sink.S3Config{
			Bucket:          sc.Bucket,
			Prefix:          sc.Prefix,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     secret(sc.AccessKeyEnv),
			SecretAccessKey: secret(sc.SecretKeyEnv),
			ForcePathStyle:  sc.ForcePathStyle,
		})
	default:
		err = fmt.Errorf("%w %q", ErrUnknownType, sc.Type)
	}
	if err != nil {
		return nil, err
	}
	if sc.Name != "" {
		s = sink.Func(sc.Name, s.Send)
	}
	if sc.Breaker == nil {
		return s, nil
	}
	return sink.WithBreaker(s, sink.BreakerConfig{
		ConsecutiveFailures: uint32(max(sc.Breaker.ConsecutiveFailures, 0)),
		OpenDuration:        durationMS(sc.Breaker.OpenMS),
		OnStateChange: func(name string, from string, to string) {
			logger.Info("sink breaker state changed", zap.String("sink", name), zap.String("from", from), zap.String("to", to))
			metrics.SetBreakerOpen(name, to == "open")
		},
	}), nil
}

func (rt *Runtime) buildNotifier(nc NotifierConfig, logger *zap.Logger) (notify.Notifier, error) {
	n, err := rt.newNotifier(nc, logger)
	if err != nil || nc.Name == "" {
		return n, err
	}
	return notify.Func(nc.Name, n.Send), nil
}

func (rt *Runtime) newNotifier(nc NotifierConfig, logger *zap.Logger) (notify.Notifier, error) {
	switch nc.Type {
	case "webhook":
		return notify.NewWebhook(notify.WebhookConfig{URL: nc.URL, Token: secret(nc.TokenEnv), Headers: nc.Headers})
	case "nats":
		n, err := notify.NewNATS(notify.NATSConfig{URL: nc.URL, Subject: nc.Subject})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			n.Close()
			return nil
		})
		return n, nil
	case "log":
		return notify.NewLog(logger), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, nc.Type)
}

func secret(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

func durationMS(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
