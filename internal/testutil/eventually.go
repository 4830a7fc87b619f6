package testutil

import (
	"testing"
	"time"
)

// Eventually polls fn every interval until it returns nil, failing the test
// with the last error once timeout has passed.
func Eventually(t testing.TB, timeout time.Duration, interval time.Duration, fn func() error) {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	err := fn()
	for err != nil {
		select {
		case <-deadline.C:
			t.Fatalf("condition not met within %s: %v", timeout, err)
		case <-tick.C:
			err = fn()
		}
	}
}
