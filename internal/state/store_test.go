package state

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"logpack/internal/tracelog"
)

func TestBeginRejectsDuplicate(t *testing.T) {
	store := NewStore(nil)
	if err := store.Begin("a"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Begin("a"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := store.Begin(""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestBodyRoundTrip(t *testing.T) {
	store := NewStore(nil)
	_ = store.Begin("a")
	if _, ok := store.Body("a"); ok {
		t.Fatalf("expected no body before SetBody")
	}
	store.SetBody("a", `{"a":1}`)
	body, ok := store.Body("a")
	if !ok || body != `{"a":1}` {
		t.Fatalf("unexpected body %q ok=%v", body, ok)
	}
}

func TestSetBodyIgnoresUnknownID(t *testing.T) {
	store := NewStore(nil)
	store.SetBody("ghost", "x")
	if store.Len() != 0 {
		t.Fatalf("expected no entries, got %d", store.Len())
	}
}

func TestStopIdempotent(t *testing.T) {
	store := NewStore(nil)
	_ = store.Begin("a")
	store.Stop("a")
	store.Stop("a")
	store.Stop("a")
	if !store.Stopped("a") {
		t.Fatalf("expected stopped")
	}
	if store.Stopped("b") {
		t.Fatalf("unrelated id must not be stopped")
	}
}

func TestStopBeforeBeginDoesNotLeak(t *testing.T) {
	store := NewStore(nil)
	store.Stop("a")
	_ = store.Begin("a")
	if store.Stopped("a") {
		t.Fatalf("stale stop must not apply to a new request")
	}
}

func TestCleanupRemovesEverything(t *testing.T) {
	collector := tracelog.NewMemory(0)
	store := NewStore(collector)
	_ = store.Begin("a")
	store.SetBody("a", "body")
	store.Stop("a")
	collector.Trace("a", "line")

	store.Cleanup("a")

	if store.InFlight("a") || store.Stopped("a") {
		t.Fatalf("expected entry removed")
	}
	if _, ok := store.Body("a"); ok {
		t.Fatalf("expected body removed")
	}
	if lines := collector.Get("a"); lines != nil {
		t.Fatalf("expected trace lines removed, got %v", lines)
	}
	if err := store.Begin("a"); err != nil {
		t.Fatalf("id should be reusable after cleanup: %v", err)
	}
}

func TestCollectorDropsLinesOutsideRequests(t *testing.T) {
	memory := tracelog.NewMemory(0)
	store := NewStore(memory)
	collector := store.Collector()

	collector.Trace("ghost", "before begin")
	_ = store.Begin("a")
	collector.Trace("a", "kept")
	if lines := collector.Get("a"); len(lines) != 1 || lines[0] != "kept" {
		t.Fatalf("unexpected lines %v", lines)
	}
	store.Cleanup("a")
	collector.Trace("a", "after cleanup")

	if n := memory.Len(); n != 0 {
		t.Fatalf("expected no retained ids, got %d", n)
	}
}

func TestConcurrentRequestsStayIsolated(t *testing.T) {
	store := NewStore(tracelog.NewMemory(0))
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			if err := store.Begin(id); err != nil {
				errs <- err
				return
			}
			defer store.Cleanup(id)
			store.SetBody(id, id)
			if i%2 == 0 {
				store.Stop(id)
			}
			body, _ := store.Body(id)
			if body != id {
				errs <- fmt.Errorf("%s saw body %q", id, body)
			}
			if store.Stopped(id) != (i%2 == 0) {
				errs <- fmt.Errorf("%s wrong stop flag", id)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}
