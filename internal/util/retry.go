package util

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping backoff between failures.
// The sleep doubles after each attempt. onRetry, if set, sees every failure
// that will be retried.
func Retry(ctx context.Context, attempts int, backoff time.Duration, onRetry func(attempt int, err error), fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if onRetry != nil {
			onRetry(i, err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
