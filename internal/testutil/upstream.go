package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// StartUpstream serves handler on a loopback port and returns its base URL.
// A nil handler answers 200 "ok". Calling the returned func stops the server,
// which tests use to simulate an unreachable upstream.
func StartUpstream(t testing.TB, handler http.Handler) (string, func()) {
	t.Helper()
	if handler == nil {
		handler = StatusHandler(http.StatusOK, "ok")
	}
	server := httptest.NewServer(handler)
	return server.URL, server.Close
}

// StatusHandler answers every request with status and body.
func StatusHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}
