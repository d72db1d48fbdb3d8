package cache

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// BucketConfig defines a fixed window and how many requests it admits.
type BucketConfig struct {
	Window time.Duration
	Limit  int
}

// RateLimiter enforces per-identity fixed-window limits. Each named bucket
// (e.g. "process", "memes") counts independently.
type RateLimiter struct {
	client  RedisClient
	buckets map[string]BucketConfig
}

func NewRateLimiter(client RedisClient, buckets map[string]BucketConfig) *RateLimiter {
	return &RateLimiter{client: client, buckets: buckets}
}

func rateLimitKey(identity, bucket string) string {
	return fmt.Sprintf("rate_limit:%s:%s", identity, bucket)
}

// CheckAndConsume counts a request against the identity's bucket. The first
// request in a window creates the counter and sets its expiry; once the
// count exceeds the bucket limit the decision carries the time until the
// window resets.
func (r *RateLimiter) CheckAndConsume(ctx context.Context, identity, bucket string) (Decision, error) {
	cfg, ok := r.buckets[bucket]
	if !ok {
		return Decision{Allowed: true}, nil
	}

	key := rateLimitKey(identity, bucket)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, cfg.Window); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if count > int64(cfg.Limit) {
		retryAfter, err := r.client.PTTL(ctx, key)
		if err != nil || retryAfter < 0 {
			retryAfter = cfg.Window
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}
