package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arlen/newscalm/internal/domain"
)

// fakeBackend is a scriptable ChatBackend. Each call pops the next response.
type fakeBackend struct {
	name     string
	verdicts []*Verdict
	errs     []error
	calls    int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Verdict, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.verdicts) && f.verdicts[i] != nil {
		return f.verdicts[i], nil
	}
	return &Verdict{Analysis: "ok", Confidence: 0.5}, nil
}

func (f *fakeBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "ok", nil
}

func newTestRouter(def, perm *fakeBackend) *ModelRouter {
	return NewModelRouter(
		NewProfanityScorer(),
		def,
		perm,
		0.75,
		RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond},
	)
}

func TestModelRouter_RouteIsDeterministic(t *testing.T) {
	def := &fakeBackend{name: "default"}
	perm := &fakeBackend{name: "permissive"}
	router := newTestRouter(def, perm)

	clean := "the committee published its quarterly budget review"
	for i := 0; i < 5; i++ {
		if got := router.Route(clean); got.Name() != "default" {
			t.Fatalf("clean text routed to %s", got.Name())
		}
	}

	coarse := "this fucking committee lied again"
	for i := 0; i < 5; i++ {
		if got := router.Route(coarse); got.Name() != "permissive" {
			t.Fatalf("coarse text routed to %s", got.Name())
		}
	}
}

func TestModelRouter_AnalyzeHappyPath(t *testing.T) {
	def := &fakeBackend{name: "default", verdicts: []*Verdict{{Analysis: "calm", IsSensational: true, Confidence: 0.8}}}
	perm := &fakeBackend{name: "permissive"}
	router := newTestRouter(def, perm)

	v, backend, err := router.Analyze(context.Background(), "plain headline", "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend != "default" {
		t.Errorf("expected default backend, got %s", backend)
	}
	if !v.IsSensational || v.Confidence != 0.8 {
		t.Errorf("verdict = %+v", v)
	}
	if perm.calls != 0 {
		t.Errorf("permissive backend should not be called, got %d calls", perm.calls)
	}
}

func TestModelRouter_FallsBackOnceOnTransientExhaustion(t *testing.T) {
	down := domain.NewTransientError("default", errors.New("503"))
	def := &fakeBackend{name: "default", errs: []error{down, down}}
	perm := &fakeBackend{name: "permissive", verdicts: []*Verdict{{Analysis: "saved", Confidence: 0.6}}}
	router := newTestRouter(def, perm)

	v, backend, err := router.Analyze(context.Background(), "plain headline", "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend != "permissive" {
		t.Errorf("expected fallback to permissive, got %s", backend)
	}
	if v.Analysis != "saved" {
		t.Errorf("verdict = %+v", v)
	}
	if def.calls != 2 {
		t.Errorf("expected 2 primary attempts, got %d", def.calls)
	}
	if perm.calls != 1 {
		t.Errorf("expected exactly 1 fallback attempt, got %d", perm.calls)
	}
}

func TestModelRouter_FallsBackOnMalformedResponse(t *testing.T) {
	def := &fakeBackend{name: "default", errs: []error{domain.ErrMalformedResponse}}
	perm := &fakeBackend{name: "permissive", verdicts: []*Verdict{{Analysis: "ok", Confidence: 0.3}}}
	router := newTestRouter(def, perm)

	_, backend, err := router.Analyze(context.Background(), "plain headline", "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend != "permissive" {
		t.Errorf("expected fallback, got %s", backend)
	}
	// Malformed responses are not retried on the same backend.
	if def.calls != 1 {
		t.Errorf("expected 1 primary attempt, got %d", def.calls)
	}
}

func TestModelRouter_NoFallbackOnPermanentFailure(t *testing.T) {
	def := &fakeBackend{name: "default", errs: []error{
		domain.NewPermanentError("default", errors.New("401")),
	}}
	perm := &fakeBackend{name: "permissive"}
	router := newTestRouter(def, perm)

	_, _, err := router.Analyze(context.Background(), "plain headline", "sys", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if perm.calls != 0 {
		t.Errorf("permanent failure must not trigger fallback, got %d calls", perm.calls)
	}
}

func TestModelRouter_BothBackendsFailing(t *testing.T) {
	down := domain.NewTransientError("x", errors.New("down"))
	def := &fakeBackend{name: "default", errs: []error{down, down}}
	perm := &fakeBackend{name: "permissive", errs: []error{down}}
	router := newTestRouter(def, perm)

	_, _, err := router.Analyze(context.Background(), "plain headline", "sys", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if perm.calls != 1 {
		t.Errorf("expected exactly 1 fallback attempt, got %d", perm.calls)
	}
}
