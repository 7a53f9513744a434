package tether

import (
	"context"
	"time"
)

// retryCycle tracks one bounded sequence of connection attempts
// (1..maxAttempts). The retry loop never gives up on its own: when a
// cycle exhausts its attempts it resets to attempt 1 after a cooldown.
type retryCycle struct {
	attempt     int
	maxAttempts int
}

func newRetryCycle(maxAttempts int) *retryCycle {
	return &retryCycle{attempt: 1, maxAttempts: maxAttempts}
}

func (r *retryCycle) exhausted() bool { return r.attempt > r.maxAttempts }

func (r *retryCycle) last() bool { return r.attempt >= r.maxAttempts }

func (r *retryCycle) advance() { r.attempt++ }

func (r *retryCycle) reset() { r.attempt = 1 }

// sleepInterruptible waits for d unless the cancel channel closes or the
// context ends first. Returns false on interruption.
func sleepInterruptible(ctx context.Context, d time.Duration, cancel <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-cancel:
		return false
	case <-ctx.Done():
		return false
	}
}
