package app

import (
	"context"
	"errors"
	"io"
	"net/http"

	"logpack/internal/config"
	"logpack/internal/interceptor"
	"logpack/internal/limits"
	"logpack/internal/obs"
	"logpack/internal/proxy"
	"logpack/internal/server"
	"logpack/internal/tracelog"

	"go.uber.org/zap"
)

const (
	defaultListenAddr  = "127.0.0.1:8080"
	defaultMetricsPath = "/metrics"
)

type Options struct {
	Logger *zap.Logger
	// AccessLog receives one JSON line per request when log.access is set.
	AccessLog io.Writer
}

// App is a capture proxy: the interceptor wrapped around a reverse proxy to
// the configured upstream.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *obs.Metrics
	runtime     *config.Runtime
	interceptor *interceptor.Interceptor
	proxy       *proxy.Handler
	handler     http.Handler
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	warnings, err := config.ValidateServe(cfg)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, warning := range warnings {
		logger.Warn("config warning", zap.String("warning", warning))
	}

	var metrics *obs.Metrics
	if cfg.Metrics == nil || cfg.Metrics.Enabled {
		metrics = obs.NewMetrics()
	}
	rt, err := config.Build(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	if cfg.Log.Access {
		rt.Options.AccessLog = obs.NewAccessLog(opts.AccessLog)
	}
	ic, err := interceptor.New(rt.Options)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	upstream, err := proxy.New(cfg.Upstream, proxy.Options{
		Logger: tracelog.Tee(logger, ic.Collector()),
	})
	if err != nil {
		_ = ic.Close(ctx)
		_ = rt.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	if metrics != nil {
		path := defaultMetricsPath
		if cfg.Metrics != nil && cfg.Metrics.Path != "" {
			path = cfg.Metrics.Path
		}
		mux.Handle(path, metrics.Handler())
	}
	mux.Handle("/", ic.Middleware(upstream))

	return &App{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		runtime:     rt,
		interceptor: ic,
		proxy:       upstream,
		handler:     mux,
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Interceptor() *interceptor.Interceptor {
	return a.interceptor
}

// Metrics is nil when metrics are disabled.
func (a *App) Metrics() *obs.Metrics {
	return a.metrics
}

// Start listens on the configured address. Shutting the returned server
// down also closes the app.
func (a *App) Start() (*server.Server, error) {
	lim, err := limits.FromConfig(a.cfg.Limits)
	if err != nil {
		return nil, err
	}
	shutdown, err := server.ShutdownFromConfig(a.cfg.Shutdown)
	if err != nil {
		return nil, err
	}
	addr := a.cfg.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	srv, err := server.Start(a.handler, addr, server.Options{
		Limits:   lim,
		Shutdown: shutdown,
		Stoppers: []server.Stopper{server.StopFunc(a.Close)},
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("listening", zap.String("addr", srv.Addr), zap.String("upstream", a.cfg.Upstream))
	return srv, nil
}

// Close waits for background dispatches, then releases sinks, notifiers,
// filter connections and the trace backend.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(
		a.interceptor.Close(ctx),
		a.proxy.CloseIdle(ctx),
		a.runtime.Close(),
	)
}
