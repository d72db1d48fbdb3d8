package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arlen/newscalm/internal/domain"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return domain.NewTransientError("test", errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_PermanentFailsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BackoffBase: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return domain.NewPermanentError("test", errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return domain.NewTransientError("test", errors.New("still down"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("expected the last transient error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_ContextCancelStopsBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return domain.NewTransientError("test", errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancel, got %d", calls)
	}
}
