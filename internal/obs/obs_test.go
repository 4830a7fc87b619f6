package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest(503)
	m.RecordDecision(true, "status_5xx")
	m.RecordDecision(false, "")
	m.RecordError("build")
	m.RecordSend("sink", "dir:/tmp", 10*time.Millisecond, errors.New("boom"))
	m.ObserveArchive(2048)
	m.SetBreakerOpen("remote:ext", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`logpack_requests_total{status_class="5xx"} 1`,
		`logpack_decisions_total{reason="status_5xx",result="capture"} 1`,
		`logpack_decisions_total{reason="none",result="skip"} 1`,
		`logpack_errors_total{stage="build"} 1`,
		`logpack_sends_total{kind="sink",name="dir:/tmp",result="error"} 1`,
		`logpack_breaker_open{name="remote:ext"} 1`,
		`logpack_archive_bytes_count 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(200)
	m.RecordDecision(true, "x")
	m.RecordSend("sink", "x", time.Second, nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Fatalf("expected 503 from nil metrics, got %d", rec.Code)
	}
}

func TestAccessLogWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewAccessLog(&buf)
	log.Log(RequestContext{
		CorrelationID:  "abc",
		Method:         "GET",
		Path:           "/x",
		Status:         500,
		Duration:       1500 * time.Millisecond,
		Captured:       true,
		DecisionReason: "status_5xx",
	})

	line := strings.TrimSpace(buf.String())
	var entry AccessLogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if entry.CorrelationID != "abc" || entry.Status != 500 || entry.DurationMS != 1500 || !entry.Captured {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}
