package dispatch

import (
	"context"
	"sync"
)

// tracker counts background dispatches. Once closed it refuses to start new
// ones, so a wait after close covers every dispatch that ever started.
type tracker struct {
	mu     sync.Mutex
	count  int64
	closed bool
	idle   chan struct{}
}

func newTracker() *tracker {
	idle := make(chan struct{})
	close(idle)
	return &tracker{idle: idle}
}

func (t *tracker) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.count == 0 {
		t.idle = make(chan struct{})
	}
	t.count++
	return true
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count--
	if t.count == 0 {
		close(t.idle)
	}
}

func (t *tracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *tracker) len() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
