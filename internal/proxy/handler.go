package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"logpack/internal/interceptor"
	"logpack/internal/tracelog"

	"go.uber.org/zap"
)

type Options struct {
	Transport TransportOptions
	// Logger receives one entry per forwarded request, tagged with the
	// correlation id so the entries end up in the request's trace.
	Logger *zap.Logger
}

// Handler forwards every request to a single upstream.
type Handler struct {
	upstream  *url.URL
	proxy     *httputil.ReverseProxy
	transport *http.Transport
	logger    *zap.Logger
}

func New(upstream string, opts Options) (*Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute url", upstream)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		upstream:  target,
		transport: NewTransport(opts.Transport),
		logger:    logger,
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		Transport:      h.transport,
		ModifyResponse: h.observe,
		ErrorHandler:   h.fail,
		ErrorLog:       zap.NewStdLog(logger.Named("reverse_proxy")),
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log(r.Context()).Debug("forwarding request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("upstream", h.upstream.Host),
	)
	h.proxy.ServeHTTP(w, r)
}

// CloseIdle drops pooled upstream connections.
func (h *Handler) CloseIdle(context.Context) error {
	h.transport.CloseIdleConnections()
	return nil
}

func (h *Handler) observe(resp *http.Response) error {
	h.log(resp.Request.Context()).Info("upstream responded",
		zap.Int("status", resp.StatusCode),
		zap.Int64("content_length", resp.ContentLength),
	)
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, category := classify(r, err)
	id, _ := interceptor.CorrelationID(r.Context())
	logger := h.log(r.Context())
	if errors.Is(err, context.Canceled) {
		logger.Info("client cancelled request", zap.Error(err))
	} else {
		logger.Error("upstream request failed", zap.String("category", category), zap.Error(err))
	}
	message := http.StatusText(status)
	if message == "" {
		message = category
	}
	WriteError(w, id, status, category, message)
}

func (h *Handler) log(ctx context.Context) *zap.Logger {
	if id, ok := interceptor.CorrelationID(ctx); ok {
		return h.logger.With(tracelog.Field(id))
	}
	return h.logger
}
