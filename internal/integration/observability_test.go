package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"logpack/internal/testutil"
)

func TestMetricsEndpoint(t *testing.T) {
	upstreamURL, closeUpstream := testutil.StartUpstream(t, testutil.StatusHandler(http.StatusBadGateway, "nope"))
	defer closeUpstream()
	dir := t.TempDir()

	srv, a := startApp(t, buildConfig(upstreamURL, dir, `"metrics": {"enabled": true, "path": "/_metrics"}`))
	if a.Metrics() == nil {
		t.Fatalf("metrics disabled")
	}
	send(t, http.MethodGet, "http://"+srv.Addr+"/x", "")
	waitArchives(t, dir, 1)

	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() error {
		resp, body := send(t, http.MethodGet, "http://"+srv.Addr+"/_metrics", "")
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("metrics status = %d", resp.StatusCode)
		}
		for _, want := range []string{
			`logpack_requests_total{status_class="5xx"} 1`,
			`logpack_decisions_total{reason="status_5xx",result="capture"} 1`,
			`logpack_sends_total{kind="sink",name="local",result="ok"} 1`,
		} {
			if !strings.Contains(body, want) {
				return fmt.Errorf("metrics missing %q", want)
			}
		}
		return nil
	})
}

func TestMetricsDisabled(t *testing.T) {
	upstreamURL, closeUpstream := testutil.StartUpstream(t, nil)
	defer closeUpstream()

	srv, a := startApp(t, buildConfig(upstreamURL, t.TempDir(), `"metrics": {"enabled": false}`))
	if a.Metrics() != nil {
		t.Fatalf("metrics enabled")
	}
	resp, _ := send(t, http.MethodGet, "http://"+srv.Addr+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics path should reach the upstream, got %d", resp.StatusCode)
	}
}
