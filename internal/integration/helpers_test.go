package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logpack/internal/app"
	"logpack/internal/archive"
	"logpack/internal/config"
	"logpack/internal/server"
	"logpack/internal/testutil"
)

// buildConfig returns a JSON config that proxies to upstream and stores
// archives in dir. extra is spliced in as additional top-level members.
func buildConfig(upstream string, dir string, extra string) string {
	if extra != "" {
		extra = ",\n" + extra
	}
	return fmt.Sprintf(`{
	"listen_addr": "127.0.0.1:0",
	"upstream": %q,
	"capture": {
		"include_request_payload": true,
		"include_response": true,
		"include_response_payload": true,
		"redact_headers": true
	},
	"sinks": [{"name": "local", "type": "dir", "path": %q}]%s
}`, upstream, dir, extra)
}

func startApp(t *testing.T, cfgJSON string) (*server.Server, *app.App) {
	t.Helper()
	cfg, err := config.ParseJSON([]byte(cfgJSON))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	a, err := app.New(context.Background(), cfg, app.Options{AccessLog: io.Discard})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := a.Start()
	if err != nil {
		_ = a.Close(context.Background())
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
	return srv, a
}

func send(t *testing.T, method string, url string, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(data)
}

func archivesIn(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.logpack"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func waitArchives(t *testing.T, dir string, want int) []string {
	t.Helper()
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() error {
		if got := len(archivesIn(t, dir)); got != want {
			return fmt.Errorf("archives=%d want=%d", got, want)
		}
		return nil
	})
	return archivesIn(t, dir)
}

func readArchive(t *testing.T, path string) *archive.Archive {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	a, err := archive.ReadZip(data)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return a
}

func entry(t *testing.T, a *archive.Archive, name string) string {
	t.Helper()
	data, ok := a.Entry(name)
	if !ok {
		t.Fatalf("archive has no %s entry, has %v", name, a.Names())
	}
	return string(data)
}
