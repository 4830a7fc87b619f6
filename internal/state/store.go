package state

import (
	"errors"
	"sync"

	"logpack/internal/tracelog"
)

// ErrExists is returned by Begin when the id already belongs to an in-flight
// request.
var ErrExists = errors.New("correlation id already in flight")

type entry struct {
	body    string
	hasBody bool
	stopped bool
}

// Store holds the per-request artifacts of every in-flight request, keyed by
// correlation id. Trace lines live in the collector; Cleanup purges both.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	collector tracelog.Collector
}

func NewStore(collector tracelog.Collector) *Store {
	if collector == nil {
		collector = tracelog.Nop{}
	}
	return &Store{
		entries:   make(map[string]*entry),
		collector: collector,
	}
}

// Collector returns the store's collector gated on InFlight: lines for ids
// that were never begun or are already cleaned up are dropped, so nothing is
// left behind that Cleanup would not remove.
func (s *Store) Collector() tracelog.Collector {
	if s == nil {
		return tracelog.Nop{}
	}
	return gated{store: s}
}

type gated struct {
	store *Store
}

func (g gated) Trace(id string, line string) {
	// The read lock keeps Cleanup from slipping between the check and the
	// append.
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	if _, ok := g.store.entries[id]; !ok {
		return
	}
	g.store.collector.Trace(id, line)
}

func (g gated) Get(id string) []string {
	return g.store.collector.Get(id)
}

func (g gated) Remove(id string) {
	g.store.collector.Remove(id)
}

func (s *Store) Begin(id string) error {
	if s == nil {
		return errors.New("state store not initialized")
	}
	if id == "" {
		return errors.New("correlation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return ErrExists
	}
	s.entries[id] = &entry{}
	return nil
}

func (s *Store) InFlight(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	_, ok := s.entries[id]
	s.mu.RUnlock()
	return ok
}

func (s *Store) SetBody(id string, body string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.body = body
		e.hasBody = true
	}
	s.mu.Unlock()
}

func (s *Store) Body(id string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || !e.hasBody {
		return "", false
	}
	return e.body, true
}

// Stop suppresses archival for id. Calling it again, or for an id that is
// not in flight, has no effect.
func (s *Store) Stop(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.stopped = true
	}
	s.mu.Unlock()
}

func (s *Store) Stopped(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return ok && e.stopped
}

// Cleanup drops everything held for id, including its trace lines.
func (s *Store) Cleanup(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	s.collector.Remove(id)
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
