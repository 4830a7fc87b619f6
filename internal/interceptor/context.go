package interceptor

import (
	"context"
	"net/http"
	"unicode"

	"logpack/internal/state"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"
	maxIDLength     = 128
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	stopKey          contextKey = "logpack_stop"
)

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(correlationIDKey).(string)
	return value, ok && value != ""
}

func NewCorrelationID() string {
	return uuid.NewString()
}

type stopHandle struct {
	store *state.Store
	id    string
}

func withStop(ctx context.Context, store *state.Store, id string) context.Context {
	return context.WithValue(ctx, stopKey, &stopHandle{store: store, id: id})
}

// Stop suppresses the archive for the request ctx belongs to, even if the
// filters would select it. Calling it more than once, or outside an
// intercepted request, does nothing.
func Stop(ctx context.Context) {
	if ctx == nil {
		return
	}
	if handle, ok := ctx.Value(stopKey).(*stopHandle); ok {
		handle.store.Stop(handle.id)
	}
}

func StopRequest(r *http.Request) {
	if r == nil {
		return
	}
	Stop(r.Context())
}

func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, c := range id {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) || c == ' ' {
			return false
		}
	}
	return true
}
