package obs

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	errors           *prometheus.CounterVec
	sends            *prometheus.CounterVec
	sendDuration     *prometheus.HistogramVec
	archiveBytes     prometheus.Histogram
	dispatchDuration prometheus.Histogram
	inflight         prometheus.Gauge
	dispatchInflight prometheus.Gauge
	breakerOpen      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpack_requests_total",
		Help: "Requests seen by the interceptor",
	}, []string{"status_class"})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpack_decisions_total",
		Help: "Capture decisions by result and reason",
	}, []string{"result", "reason"})

	errors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpack_errors_total",
		Help: "Errors swallowed by the interceptor",
	}, []string{"stage"})

	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpack_sends_total",
		Help: "Sink and notifier calls",
	}, []string{"kind", "name", "result"})

	sendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logpack_send_duration_seconds",
		Help:    "Sink and notifier call duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	archiveBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logpack_archive_bytes",
		Help:    "Size of written archive files",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	dispatchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logpack_dispatch_duration_seconds",
		Help:    "Time from archive write to the last notifier",
		Buckets: prometheus.DefBuckets,
	})

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logpack_inflight_requests",
		Help: "Requests currently tracked by the interceptor",
	})

	dispatchInflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logpack_dispatch_inflight",
		Help: "Background dispatches not yet finished",
	})

	breakerOpen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logpack_breaker_open",
		Help: "Breaker open state per remote filter or sink",
	}, []string{"name"})

	registry.MustRegister(requests, decisions, errors, sends, sendDuration, archiveBytes, dispatchDuration, inflight, dispatchInflight, breakerOpen)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		decisions:        decisions,
		errors:           errors,
		sends:            sends,
		sendDuration:     sendDuration,
		archiveBytes:     archiveBytes,
		dispatchDuration: dispatchDuration,
		inflight:         inflight,
		dispatchInflight: dispatchInflight,
		breakerOpen:      breakerOpen,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(statusClass(status)).Inc()
}

func (m *Metrics) RecordDecision(capture bool, reason string) {
	if m == nil {
		return
	}
	result := "skip"
	if capture {
		result = "capture"
	}
	m.decisions.WithLabelValues(result, defaultString(reason, "none")).Inc()
}

func (m *Metrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSend(kind string, name string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(kind, name, result).Inc()
	m.sendDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) ObserveArchive(size int64) {
	if m == nil {
		return
	}
	m.archiveBytes.Observe(float64(size))
}

func (m *Metrics) ObserveDispatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetInflight(requests int) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(requests))
}

func (m *Metrics) SetDispatchInflight(count int64) {
	if m == nil {
		return
	}
	m.dispatchInflight.Set(float64(count))
}

func (m *Metrics) SetBreakerOpen(name string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.breakerOpen.WithLabelValues(name).Set(value)
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
