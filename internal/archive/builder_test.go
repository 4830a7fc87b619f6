package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"logpack/internal/tracelog"
)

var captureTime = time.Date(2024, 3, 9, 14, 7, 31, 0, time.UTC)

func newInput(status int) Input {
	req := httptest.NewRequest(http.MethodPost, "/orders/42?debug=1&x=y", nil)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant", "acme")
	req.Header.Add("Accept", "text/html")
	req.Header.Add("Accept", "application/json")
	return Input{
		CorrelationID:  "req-1",
		Request:        req,
		RequestBody:    `{"a":1}`,
		HasRequestBody: true,
		Status:         status,
		ResponseHeader: http.Header{"Content-Type": {"text/plain"}},
		ResponseBody:   []byte("unavailable"),
		Time:           captureTime,
	}
}

func staticEnv() []string {
	return []string{"ZED=1", "APP_MODE=test"}
}

func TestBuildServerError(t *testing.T) {
	collector := tracelog.NewMemory(0)
	collector.Trace("req-1", "first")
	collector.Trace("req-1", "second")

	b := NewBuilder(Options{Location: time.UTC, Collector: collector, Environ: staticEnv})
	a, meta, err := b.Build(context.Background(), newInput(503))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := "path: /orders/42\ndate: 2024-03-09\ntime: 14:07\nrc: 503\n"
	if meta != want {
		t.Fatalf("unexpected metadata %q", meta)
	}
	if got := strings.Join(a.Names(), ","); got != ".logpack,trace.log,env.log,request" {
		t.Fatalf("unexpected entries %s", got)
	}
	if data, _ := a.Entry(MetaEntry); string(data) != want {
		t.Fatalf(".logpack must hold the metadata, got %q", data)
	}
	if data, _ := a.Entry(TraceEntry); string(data) != "first\nsecond\n" {
		t.Fatalf("unexpected trace %q", data)
	}
	if lines := collector.Get("req-1"); lines != nil {
		t.Fatalf("trace lines must be removed after archiving, got %v", lines)
	}
	if data, _ := a.Entry(EnvEntry); string(data) != "APP_MODE=test\nZED=1\n" {
		t.Fatalf("unexpected env %q", data)
	}
}

func TestRequestEntry(t *testing.T) {
	b := NewBuilder(Options{Location: time.UTC, Environ: staticEnv, IncludeRequestPayload: true})
	a, _, err := b.Build(context.Background(), newInput(400))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, _ := a.Entry(RequestEntry)
	want := strings.Join([]string{
		"HTTP/1.1 /orders/42 POST",
		"Host: example.com",
		"Request.Query:    ?debug=1&x=y",
		"Accept: text/html,application/json",
		"Content-Type: application/json",
		"X-Tenant: acme",
		"{",
		`  "a": 1`,
		"}",
		"",
	}, "\n")
	if string(data) != want {
		t.Fatalf("unexpected request entry:\n%s\nwant:\n%s", data, want)
	}
}

func TestRequestBodyOmittedWithoutPayloadOption(t *testing.T) {
	b := NewBuilder(Options{Environ: staticEnv})
	a, _, _ := b.Build(context.Background(), newInput(500))
	data, _ := a.Entry(RequestEntry)
	if strings.Contains(string(data), `"a"`) {
		t.Fatalf("body must not be written, got %s", data)
	}
}

func TestInvalidJSONFallsBackToRawText(t *testing.T) {
	in := newInput(500)
	in.RequestBody = "{not json"
	b := NewBuilder(Options{Environ: staticEnv, IncludeRequestPayload: true})
	a, _, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, _ := a.Entry(RequestEntry)
	if !strings.HasSuffix(string(data), "{not json\n") {
		t.Fatalf("expected raw body, got %s", data)
	}
}

func TestResponseEntry(t *testing.T) {
	b := NewBuilder(Options{Environ: staticEnv, IncludeResponse: true})
	a, _, _ := b.Build(context.Background(), newInput(503))
	data, ok := a.Entry(ResponseEntry)
	if !ok {
		t.Fatalf("expected response entry")
	}
	if string(data) != "statusCode: 503\nContent-Type: text/plain\n" {
		t.Fatalf("unexpected response entry %q", data)
	}

	b = NewBuilder(Options{Environ: staticEnv, IncludeResponse: true, IncludeResponsePayload: true})
	a, _, _ = b.Build(context.Background(), newInput(503))
	data, _ = a.Entry(ResponseEntry)
	if !strings.HasSuffix(string(data), "unavailable\n") {
		t.Fatalf("expected response body, got %q", data)
	}
}

func TestRedactHeaders(t *testing.T) {
	in := newInput(500)
	in.Request.Header.Set("Authorization", "Bearer secret")
	b := NewBuilder(Options{Environ: staticEnv, RedactHeaders: true})
	a, _, _ := b.Build(context.Background(), in)
	data, _ := a.Entry(RequestEntry)
	if strings.Contains(string(data), "secret") || !strings.Contains(string(data), "Authorization: [redacted]") {
		t.Fatalf("expected redacted authorization, got %s", data)
	}
}

func TestDepsEntry(t *testing.T) {
	deps := StaticDependencies{Module: "example.com/app v1.2.0", Deps: []string{"go.uber.org/zap v1.27.0"}}
	b := NewBuilder(Options{Environ: staticEnv, Dependencies: deps})
	a, _, _ := b.Build(context.Background(), newInput(500))
	data, _ := a.Entry(DepsEntry)
	if string(data) != "example.com/app v1.2.0\n  go.uber.org/zap v1.27.0\n" {
		t.Fatalf("unexpected deps %q", data)
	}
}

func TestBuildInfoShowsReplacements(t *testing.T) {
	info := &BuildInfo{info: &debug.BuildInfo{
		Main: debug.Module{Path: "example.com/app", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "go.uber.org/zap", Version: "v1.27.0"},
			{Path: "example.com/lib", Version: "v1.0.0", Replace: &debug.Module{Path: "../lib"}},
			{Path: "example.com/fork", Version: "v0.3.0", Replace: &debug.Module{Path: "github.com/me/fork", Version: "v0.3.1"}},
		},
	}}
	if got := info.Main(); got != "example.com/app (devel)" {
		t.Fatalf("main = %q", got)
	}
	want := []string{
		"go.uber.org/zap v1.27.0",
		"example.com/lib v1.0.0 => ../lib",
		"example.com/fork v0.3.0 => github.com/me/fork v0.3.1",
	}
	got := info.Dependencies()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("deps = %q, want %q", got, want)
	}
}

func TestIncludeFiles(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	b := NewBuilder(Options{Environ: staticEnv, IncludeFiles: []string{"notes.txt", "missing.txt"}})
	a, _, err := b.Build(context.Background(), newInput(500))
	if err == nil || !strings.Contains(err.Error(), "missing.txt") {
		t.Fatalf("expected missing file error, got %v", err)
	}
	data, ok := a.Entry("notes.txt")
	if !ok || string(data) != "hello" {
		t.Fatalf("expected notes.txt with hello, got %q %v", data, ok)
	}
	if _, ok := a.Entry(RequestEntry); !ok {
		t.Fatalf("other entries must survive a failing step")
	}
}

func TestPanickingStepIsIsolated(t *testing.T) {
	b := NewBuilder(Options{Environ: func() []string { panic("no env") }})
	a, _, err := b.Build(context.Background(), newInput(500))
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if _, ok := a.Entry(RequestEntry); !ok {
		t.Fatalf("request entry must still be built")
	}
	if _, ok := a.Entry(EnvEntry); ok {
		t.Fatalf("env entry must be missing")
	}
}

func TestBuildStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBuilder(Options{Environ: staticEnv})
	a, _, err := b.Build(ctx, newInput(500))
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(a.Names()) != 0 {
		t.Fatalf("expected no entries, got %v", a.Names())
	}
}

func TestMetadataUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := newInput(404)
	in.Time = time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	meta := Metadata(in, loc)
	if !strings.Contains(meta, "date: 2024-03-10\ntime: 01:30\n") {
		t.Fatalf("expected converted time, got %q", meta)
	}
}

func TestEntryName(t *testing.T) {
	cases := map[string]string{
		"notes.txt":         "notes.txt",
		"./logs/../app.log": "app.log",
		"/etc/app/conf":     "etc/app/conf",
		"../../secret":      "secret",
	}
	for in, want := range cases {
		if got := EntryName(in); got != want {
			t.Fatalf("EntryName(%q) = %q, want %q", in, got, want)
		}
	}
}
