package filter

import (
	"testing"
	"time"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(BreakerConfig{Enabled: true, ConsecutiveFailures: 2, OpenDuration: time.Second})
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, ok := b.Allow(); !ok {
			t.Fatalf("closed breaker must allow")
		}
		b.Report(false)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if _, ok := b.Allow(); ok {
		t.Fatalf("open breaker must reject")
	}

	now = now.Add(2 * time.Second)
	state, ok := b.Allow()
	if !ok || state != BreakerHalfOpen {
		t.Fatalf("expected half open probe, got %s %v", state, ok)
	}
	if _, ok := b.Allow(); ok {
		t.Fatalf("only one probe allowed")
	}
	if b.Report(true) != BreakerClosed {
		t.Fatalf("successful probe must close the breaker")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(BreakerConfig{Enabled: true, ConsecutiveFailures: 1, OpenDuration: time.Second})
	b.now = func() time.Time { return now }

	b.Allow()
	b.Report(false)
	now = now.Add(time.Second)
	b.Allow()
	if b.Report(false) != BreakerOpen {
		t.Fatalf("failed probe must reopen")
	}
}

func TestBreakerDisabled(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	for i := 0; i < 10; i++ {
		b.Report(false)
	}
	if _, ok := b.Allow(); !ok {
		t.Fatalf("disabled breaker must always allow")
	}

	var nilBreaker *Breaker
	if _, ok := nilBreaker.Allow(); !ok {
		t.Fatalf("nil breaker must allow")
	}
}
