package tracelog

import (
	"sync"
)

const defaultMaxLines = 10000

// Collector keeps diagnostic lines per correlation id until the request that
// owns them is finished.
type Collector interface {
	Trace(id string, line string)
	Get(id string) []string
	Remove(id string)
}

type Memory struct {
	mu       sync.Mutex
	lines    map[string][]string
	maxLines int
}

// NewMemory returns an in-process collector. Lines beyond maxLines for a
// single id are dropped.
func NewMemory(maxLines int) *Memory {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &Memory{
		lines:    make(map[string][]string),
		maxLines: maxLines,
	}
}

func (m *Memory) Trace(id string, line string) {
	if m == nil || id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lines[id]) >= m.maxLines {
		return
	}
	m.lines[id] = append(m.lines[id], line)
}

func (m *Memory) Get(id string) []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[id]
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (m *Memory) Remove(id string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.lines, id)
	m.mu.Unlock()
}

// Len reports how many ids currently hold lines.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Trace(string, string) {}

func (Nop) Get(string) []string { return nil }

func (Nop) Remove(string) {}
