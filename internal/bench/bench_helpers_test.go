package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"logpack/internal/app"
	"logpack/internal/config"
)

func buildBaseConfig(upstream string, dir string) *config.Config {
	return &config.Config{
		Upstream: upstream,
		Metrics:  &config.MetricsConfig{Enabled: true},
		Capture: config.CaptureConfig{
			IncludeRequestPayload: true,
			IncludeResponse:       true,
			RedactHeaders:         true,
		},
		Sinks: []config.SinkConfig{{Name: "bench", Type: "dir", Path: dir}},
	}
}

func startBenchmarkApp(b *testing.B, cfg *config.Config) (*httptest.Server, *http.Client, func()) {
	b.Helper()
	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		b.Fatalf("new app: %v", err)
	}
	server := httptest.NewServer(a.Handler())
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	cleanup := func() {
		server.Close()
		_ = a.Close(context.Background())
	}
	return server, client, cleanup
}

func buildRequest(url string, body string) (*http.Request, error) {
	if body == "" {
		return http.NewRequest(http.MethodGet, url, nil)
	}
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
