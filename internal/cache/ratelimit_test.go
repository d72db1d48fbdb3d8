package cache

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(newMemRedis(), map[string]BucketConfig{
		"process": {Window: time.Minute, Limit: 3},
	})

	for i := 0; i < 3; i++ {
		d, err := limiter.CheckAndConsume(ctx, "user-1", "process")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d, err := limiter.CheckAndConsume(ctx, "user-1", "process")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("fourth request should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("expected retry hint within the window, got %v", d.RetryAfter)
	}
}

func TestRateLimiter_IdentitiesAndBucketsAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(newMemRedis(), map[string]BucketConfig{
		"process": {Window: time.Minute, Limit: 1},
		"memes":   {Window: time.Minute, Limit: 1},
	})

	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "process"); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "process"); d.Allowed {
		t.Fatal("second request should be denied")
	}

	// A different identity has its own budget.
	if d, _ := limiter.CheckAndConsume(ctx, "user-2", "process"); !d.Allowed {
		t.Error("other identity should not be affected")
	}

	// A different bucket for the same identity has its own budget too.
	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "memes"); !d.Allowed {
		t.Error("other bucket should not be affected")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	ctx := context.Background()
	redis := newMemRedis()
	limiter := NewRateLimiter(redis, map[string]BucketConfig{
		"process": {Window: time.Minute, Limit: 1},
	})

	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "process"); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "process"); d.Allowed {
		t.Fatal("second request should be denied")
	}

	redis.advance(2 * time.Minute)

	if d, _ := limiter.CheckAndConsume(ctx, "user-1", "process"); !d.Allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestRateLimiter_UnknownBucketAdmits(t *testing.T) {
	limiter := NewRateLimiter(newMemRedis(), map[string]BucketConfig{})

	d, err := limiter.CheckAndConsume(context.Background(), "user-1", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("unconfigured bucket should admit requests")
	}
}
