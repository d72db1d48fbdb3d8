package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/logger"
)

// ChatBackend is the slice of LLMBackend the router depends on.
type ChatBackend interface {
	Name() string
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Verdict, error)
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ModelRouter picks a chat backend per input. Text scoring above the routing
// threshold on the profanity lexicon goes to the permissive backend, which
// tolerates coarse content; everything else goes to the default backend.
// Routing is deterministic for a given input.
type ModelRouter struct {
	scorer     *ProfanityScorer
	defaultB   ChatBackend
	permissive ChatBackend
	threshold  float64
	retry      RetryPolicy
}

// NewModelRouter creates a router over the two configured backends.
func NewModelRouter(scorer *ProfanityScorer, defaultBackend, permissiveBackend ChatBackend, threshold float64, retry RetryPolicy) *ModelRouter {
	return &ModelRouter{
		scorer:     scorer,
		defaultB:   defaultBackend,
		permissive: permissiveBackend,
		threshold:  threshold,
		retry:      retry,
	}
}

// Route returns the backend for text.
func (r *ModelRouter) Route(text string) ChatBackend {
	if r.scorer.Score(text) > r.threshold {
		return r.permissive
	}
	return r.defaultB
}

func (r *ModelRouter) alternate(b ChatBackend) ChatBackend {
	if b == r.defaultB {
		return r.permissive
	}
	return r.defaultB
}

// fallbackEligible reports whether a primary-backend failure warrants one
// attempt on the alternate backend: transient exhaustion or a malformed
// response, but never validation-style permanent failures.
func fallbackEligible(err error) bool {
	return domain.IsTransient(err) || errors.Is(err, domain.ErrMalformedResponse)
}

// Analyze routes text to a backend, runs the analysis prompt under the retry
// policy, and falls back to the alternate backend exactly once when the
// primary fails transiently or returns garbage. It returns the verdict and
// the name of the backend that produced it.
func (r *ModelRouter) Analyze(ctx context.Context, routingText, systemPrompt, userPrompt string) (*Verdict, string, error) {
	primary := r.Route(routingText)

	var verdict *Verdict
	err := r.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		v, aerr := primary.Analyze(ctx, systemPrompt, userPrompt)
		if aerr != nil {
			logger.CtxWarn(ctx, "analysis attempt %d on %s failed: %v", attempt, primary.Name(), aerr)
			return aerr
		}
		verdict = v
		return nil
	})
	if err == nil {
		return verdict, primary.Name(), nil
	}

	if !fallbackEligible(err) {
		return nil, "", err
	}

	alt := r.alternate(primary)
	logger.CtxWarn(ctx, "falling back from %s to %s: %v", primary.Name(), alt.Name(), err)

	verdict, altErr := alt.Analyze(ctx, systemPrompt, userPrompt)
	if altErr != nil {
		return nil, "", fmt.Errorf("both backends failed: %s: %v; %s: %w", primary.Name(), err, alt.Name(), altErr)
	}
	return verdict, alt.Name(), nil
}
