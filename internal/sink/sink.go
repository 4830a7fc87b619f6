package sink

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Sink receives the path of a finished archive file. The file is deleted
// once every sink has been called, so a sink must finish with it before
// returning.
type Sink interface {
	Name() string
	Send(ctx context.Context, path string) error
}

type funcSink struct {
	name string
	fn   func(context.Context, string) error
}

func Func(name string, fn func(ctx context.Context, path string) error) Sink {
	return &funcSink{name: name, fn: fn}
}

func (f *funcSink) Name() string {
	return f.name
}

func (f *funcSink) Send(ctx context.Context, path string) error {
	return f.fn(ctx, path)
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// StatusError is returned when a remote endpoint answers outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
