package sink

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenDuration        time.Duration
	OnStateChange       func(name string, from string, to string)
}

type breakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker stops calling next once it failed ConsecutiveFailures times in
// a row, until OpenDuration has passed. Calls rejected by the open breaker
// return gobreaker.ErrOpenState.
func WithBreaker(next Sink, cfg BreakerConfig) Sink {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
			cfg.OnStateChange(name, from.String(), to.String())
		}
	}
	return &breakerSink{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerSink) Name() string {
	return b.next.Name()
}

func (b *breakerSink) Send(ctx context.Context, path string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, path)
	})
	return err
}
