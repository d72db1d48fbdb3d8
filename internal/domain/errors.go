package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced through the API layer.
var (
	// ErrValidation marks malformed input. Never retried, surfaced as 400.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown task id. Surfaced as 404.
	ErrNotFound = errors.New("not found")

	// ErrMalformedResponse marks an unparseable model response. Treated as
	// transient once (fallback backend), then terminal.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrNotTerminal marks a retry request against a task that is still
	// pending or processing.
	ErrNotTerminal = errors.New("task is not in a terminal state")
)

// RateLimitError is an expected denial from the rate limiter, carrying the
// retry hint for the 429 response.
type RateLimitError struct {
	Bucket     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for bucket %q, retry after %s", e.Bucket, e.RetryAfter)
}

// AdapterError wraps a failure from an external collaborator. Transient
// failures (timeout, 429, 5xx) are eligible for the retry policy; everything
// else fails immediately.
type AdapterError struct {
	Adapter   string
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s adapter failure (%s): %v", e.Adapter, kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable adapter failure.
func NewTransientError(adapter string, err error) *AdapterError {
	return &AdapterError{Adapter: adapter, Transient: true, Err: err}
}

// NewPermanentError wraps err as a non-retryable adapter failure.
func NewPermanentError(adapter string, err error) *AdapterError {
	return &AdapterError{Adapter: adapter, Transient: false, Err: err}
}

// IsTransient reports whether err is eligible for the retry policy.
func IsTransient(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Transient
	}
	return false
}

// TransientStatusCode reports whether an upstream HTTP status is retryable
// per the retry policy: 429 and 5xx are transient, other 4xx are not.
func TransientStatusCode(code int) bool {
	return code == 429 || code >= 500
}
