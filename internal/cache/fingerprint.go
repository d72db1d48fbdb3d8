package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	inflightKeyPrefix = "fp:inflight:"
	doneKeyPrefix     = "fp:done:"

	// Inflight markers expire on their own so a crashed worker never
	// blocks resubmission forever.
	inflightTTL = 15 * time.Minute
)

// Fingerprint derives a stable identity for a piece of content. The text is
// lowercased and whitespace-collapsed first so trivial formatting changes
// map to the same task.
func Fingerprint(text, contentType string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + contentType))
	return hex.EncodeToString(sum[:])
}

// FingerprintStore deduplicates detox submissions. Identical content
// submitted while a task is in flight, or shortly after one completed,
// resolves to the existing task instead of spawning a new one.
type FingerprintStore struct {
	client  RedisClient
	doneTTL time.Duration
}

func NewFingerprintStore(client RedisClient, doneTTL time.Duration) *FingerprintStore {
	return &FingerprintStore{client: client, doneTTL: doneTTL}
}

// GetOrCreate resolves a fingerprint to a task ID. When no task is known
// for the fingerprint it claims the inflight slot with candidateID and
// returns isNew=true; the caller then owns creating and processing the
// task. The claim is a single SetNX so concurrent submitters race at most
// one winner.
func (s *FingerprintStore) GetOrCreate(ctx context.Context, fingerprint, candidateID string) (taskID string, isNew bool, err error) {
	if id, err := s.client.Get(ctx, doneKeyPrefix+fingerprint); err == nil {
		return id, false, nil
	} else if err != ErrNil {
		return "", false, fmt.Errorf("fingerprint lookup: %w", err)
	}

	ok, err := s.client.SetNX(ctx, inflightKeyPrefix+fingerprint, candidateID, inflightTTL)
	if err != nil {
		return "", false, fmt.Errorf("fingerprint claim: %w", err)
	}
	if ok {
		return candidateID, true, nil
	}

	id, err := s.client.Get(ctx, inflightKeyPrefix+fingerprint)
	if err == ErrNil {
		// The inflight marker expired between SetNX and Get. Rare enough
		// that retrying the claim once is sufficient.
		ok, err = s.client.SetNX(ctx, inflightKeyPrefix+fingerprint, candidateID, inflightTTL)
		if err != nil {
			return "", false, fmt.Errorf("fingerprint claim: %w", err)
		}
		if ok {
			return candidateID, true, nil
		}
		id, err = s.client.Get(ctx, inflightKeyPrefix+fingerprint)
	}
	if err != nil {
		return "", false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return id, false, nil
}

// Complete records a finished task so future submissions of the same
// content reuse its result for the configured TTL.
func (s *FingerprintStore) Complete(ctx context.Context, fingerprint, taskID string) error {
	if err := s.client.Set(ctx, doneKeyPrefix+fingerprint, taskID, s.doneTTL); err != nil {
		return fmt.Errorf("fingerprint complete: %w", err)
	}
	return s.client.Del(ctx, inflightKeyPrefix+fingerprint)
}

// Abandon releases the inflight claim after a failed task so the content
// can be resubmitted.
func (s *FingerprintStore) Abandon(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, inflightKeyPrefix+fingerprint)
}

// Invalidate drops both markers for a fingerprint. Used when a terminal
// task is retried in place.
func (s *FingerprintStore) Invalidate(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, doneKeyPrefix+fingerprint, inflightKeyPrefix+fingerprint)
}
