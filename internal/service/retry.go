package service

import (
	"context"
	"time"

	"github.com/arlen/newscalm/internal/domain"
)

// RetryPolicy bounds retries of transient adapter failures with exponential
// backoff. Non-transient failures are returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Do runs fn up to MaxAttempts times, sleeping BackoffBase * 2^(attempt-1)
// between attempts. It stops early when the error is not transient or the
// context is done, and returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		backoff := p.BackoffBase << (attempt - 1)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
