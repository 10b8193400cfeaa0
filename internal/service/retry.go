package service

import (
	"context"
	"time"

	"github.com/ossamaweb/auto-vid/internal/apperr"
)

const defaultAttempts = 3

// backoff returns the wait after the given failed attempt (1-based):
// base, 2*base, 4*base, ...
type backoff func(attempt int) time.Duration

func exponential(base time.Duration) backoff {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// retry calls fn until it succeeds, returns a non-transient error, or the
// attempt budget runs out. The last error is returned unchanged.
func retry(ctx context.Context, attempts int, wait backoff, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil || !apperr.IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.Transient("retry", ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
