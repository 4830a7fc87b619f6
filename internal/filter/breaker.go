package filter

import (
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures int
	OpenDuration        time.Duration
	HalfOpenProbes      int
}

// Breaker stops calling a remote filter that keeps failing, so a dead filter
// service costs one timeout per open period instead of one per request.
type Breaker struct {
	mu       sync.Mutex
	config   BreakerConfig
	state    BreakerState
	failures int
	until    time.Time
	inFlight int
	success  int
	now      func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{config: cfg, state: BreakerClosed, now: time.Now}
}

func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Allow() (BreakerState, bool) {
	if b == nil {
		return BreakerClosed, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.config.Enabled {
		return BreakerClosed, true
	}

	if b.state == BreakerOpen {
		if b.now().Before(b.until) {
			return b.state, false
		}
		b.state = BreakerHalfOpen
		b.inFlight = 0
		b.success = 0
	}
	if b.state == BreakerHalfOpen {
		if b.inFlight >= b.probes() {
			return b.state, false
		}
		b.inFlight++
	}
	return b.state, true
}

func (b *Breaker) Report(ok bool) BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.config.Enabled {
		return BreakerClosed
	}

	switch b.state {
	case BreakerClosed:
		if ok {
			b.failures = 0
			break
		}
		b.failures++
		threshold := b.config.ConsecutiveFailures
		if threshold <= 0 {
			threshold = 1
		}
		if b.failures >= threshold {
			b.tripLocked()
		}
	case BreakerHalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !ok {
			b.tripLocked()
			break
		}
		b.success++
		if b.success >= b.probes() && b.inFlight == 0 {
			b.state = BreakerClosed
			b.failures = 0
			b.success = 0
			b.until = time.Time{}
		}
	}
	return b.state
}

func (b *Breaker) tripLocked() {
	open := b.config.OpenDuration
	if open <= 0 {
		open = time.Second
	}
	b.state = BreakerOpen
	b.until = b.now().Add(open)
	b.failures = 0
	b.inFlight = 0
	b.success = 0
}

func (b *Breaker) probes() int {
	if b.config.HalfOpenProbes <= 0 {
		return 1
	}
	return b.config.HalfOpenProbes
}
