package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arlen/newscalm/internal/cache"
	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/logger"
	"github.com/arlen/newscalm/internal/prompts"
)

// DetoxTaskStore is the persistence surface the detox pipeline needs.
type DetoxTaskStore interface {
	Create(ctx context.Context, task *domain.DetoxTask) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.DetoxTask, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result *domain.DetoxResult) error
	Fail(ctx context.Context, id string, detail string) error
	ResetForRetry(ctx context.Context, id string) error
	ListRecent(ctx context.Context, userID string, limit, offset int) ([]domain.DetoxTask, error)
	ListUnfinished(ctx context.Context) ([]string, error)
	RequeueProcessing(ctx context.Context, id string) error
}

// Masker depersonalizes text before analysis.
type Masker interface {
	Mask(ctx context.Context, text string) (string, domain.EntityList, error)
}

// SimilarFinder surfaces historical analogues for an input.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, text string) (domain.SimilarItemList, error)
}

// AnalysisRouter routes text to a chat backend and returns the verdict plus
// the name of the backend that produced it.
type AnalysisRouter interface {
	Analyze(ctx context.Context, routingText, systemPrompt, userPrompt string) (*Verdict, string, error)
}

// MemeSpawner creates meme sub-tasks for sensational verdicts.
type MemeSpawner interface {
	Submit(ctx context.Context, headline, analysis, style string) (*domain.MemeTask, error)
}

// FingerprintCache deduplicates submissions by content identity.
type FingerprintCache interface {
	GetOrCreate(ctx context.Context, fingerprint, candidateID string) (taskID string, isNew bool, err error)
	Complete(ctx context.Context, fingerprint, taskID string) error
	Abandon(ctx context.Context, fingerprint string) error
	Invalidate(ctx context.Context, fingerprint string) error
}

// Limiter enforces per-identity request budgets.
type Limiter interface {
	CheckAndConsume(ctx context.Context, identity, bucket string) (cache.Decision, error)
}

// DetoxOptions are the pipeline knobs carried by DetoxService.
type DetoxOptions struct {
	MaxTextLength           int
	MemeGenerationEnabled   bool
	MemeConfidenceThreshold float64
	MemeStyle               string
}

// SubmitRequest is a validated-on-entry detox submission.
type SubmitRequest struct {
	Text         string
	ContentType  string
	GenerateMeme bool
	UserID       string
}

// DetoxService orchestrates the detoxification pipeline: dedup and rate
// limiting on submit, then mask, similarity search, routed analysis, and an
// optional meme sub-task in the worker.
type DetoxService struct {
	repo         DetoxTaskStore
	fingerprints FingerprintCache
	limiter      Limiter
	masker       Masker
	similarity   SimilarFinder
	router       AnalysisRouter
	memes        MemeSpawner
	enqueue      TaskEnqueuer
	retry        RetryPolicy
	opts         DetoxOptions
}

// NewDetoxService creates the detox orchestrator.
func NewDetoxService(
	repo DetoxTaskStore,
	fingerprints FingerprintCache,
	limiter Limiter,
	masker Masker,
	similarity SimilarFinder,
	router AnalysisRouter,
	memes MemeSpawner,
	retry RetryPolicy,
	opts DetoxOptions,
) *DetoxService {
	return &DetoxService{
		repo:         repo,
		fingerprints: fingerprints,
		limiter:      limiter,
		masker:       masker,
		similarity:   similarity,
		router:       router,
		memes:        memes,
		retry:        retry,
		opts:         opts,
	}
}

// SetEnqueuer wires the worker pool after construction.
func (s *DetoxService) SetEnqueuer(e TaskEnqueuer) {
	s.enqueue = e
}

func (s *DetoxService) validate(req *SubmitRequest) error {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return fmt.Errorf("%w: text must not be empty", domain.ErrValidation)
	}
	if s.opts.MaxTextLength > 0 && len(req.Text) > s.opts.MaxTextLength {
		return fmt.Errorf("%w: text exceeds %d characters", domain.ErrValidation, s.opts.MaxTextLength)
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}
	return nil
}

// Submit validates a submission, applies the rate limit, resolves the
// content fingerprint, and either returns the existing task for duplicate
// content or creates and enqueues a new one. created reports which happened.
func (s *DetoxService) Submit(ctx context.Context, req SubmitRequest) (task *domain.DetoxTask, created bool, err error) {
	if err := s.validate(&req); err != nil {
		return nil, false, err
	}

	decision, err := s.limiter.CheckAndConsume(ctx, req.UserID, "process")
	if err != nil {
		// The limiter being down must not take submissions with it.
		logger.CtxWarn(ctx, "rate limiter unavailable, admitting request: %v", err)
	} else if !decision.Allowed {
		return nil, false, &domain.RateLimitError{Bucket: "process", RetryAfter: decision.RetryAfter}
	}

	fp := cache.Fingerprint(req.Text, req.ContentType)

	// The pending row is persisted before the fingerprint is claimed, so
	// every marker always points at a row that exists. A marker whose row
	// cannot be found is therefore genuinely stale, not a claim raced by a
	// concurrent duplicate that has not created its row yet.
	candidate := &domain.DetoxTask{
		ID:           uuid.NewString(),
		Fingerprint:  fp,
		Status:       domain.TaskStatusPending,
		OriginalText: req.Text,
		ContentType:  req.ContentType,
		GenerateMeme: req.GenerateMeme,
		UserID:       req.UserID,
	}
	if err := s.repo.Create(ctx, candidate); err != nil {
		return nil, false, fmt.Errorf("failed to create detox task: %w", err)
	}

	taskID, isNew, err := s.fingerprints.GetOrCreate(ctx, fp, candidate.ID)
	if err != nil {
		_ = s.repo.Delete(ctx, candidate.ID)
		return nil, false, err
	}

	if !isNew {
		existing, gerr := s.repo.GetByID(ctx, taskID)
		if gerr == nil {
			_ = s.repo.Delete(ctx, candidate.ID)
			logger.CtxInfo(logger.SetTaskID(ctx, taskID), "duplicate submission resolved to existing task")
			return existing, false, nil
		}
		// Stale marker pointing at a task we no longer have. Drop the
		// markers and claim again under our row.
		_ = s.fingerprints.Invalidate(ctx, fp)
		_, isNew, err = s.fingerprints.GetOrCreate(ctx, fp, candidate.ID)
		if err != nil || !isNew {
			_ = s.repo.Delete(ctx, candidate.ID)
			if err != nil {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("fingerprint %s contested after invalidation", fp)
		}
	}

	if err := s.enqueue.EnqueueDetox(ctx, candidate.ID); err != nil {
		_ = s.fingerprints.Abandon(ctx, fp)
		_ = s.repo.Delete(ctx, candidate.ID)
		return nil, false, fmt.Errorf("failed to enqueue detox task: %w", err)
	}

	logger.CtxInfo(logger.SetTaskID(ctx, candidate.ID), "detox task submitted")
	return candidate, true, nil
}

// Get returns a detox task by id.
func (s *DetoxService) Get(ctx context.Context, id string) (*domain.DetoxTask, error) {
	return s.repo.GetByID(ctx, id)
}

// History returns a user's recent tasks, newest first.
func (s *DetoxService) History(ctx context.Context, userID string, limit, offset int) ([]domain.DetoxTask, error) {
	return s.repo.ListRecent(ctx, userID, limit, offset)
}

// Process runs one detox task to a terminal state. Invoked by the worker
// pool.
func (s *DetoxService) Process(ctx context.Context, id string) error {
	ctx = logger.SetTaskID(ctx, id)

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}

	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		// Another worker claimed the task first.
		logger.CtxWarn(ctx, "skipping task: %v", err)
		return nil
	}

	result, err := s.analyze(ctx, task)
	if err != nil {
		logger.CtxError(ctx, "detox pipeline failed: %v", err)
		if ferr := s.repo.Fail(ctx, id, err.Error()); ferr != nil {
			logger.CtxError(ctx, "failed to record error state: %v", ferr)
		}
		if aerr := s.fingerprints.Abandon(ctx, task.Fingerprint); aerr != nil {
			logger.CtxWarn(ctx, "failed to release fingerprint claim: %v", aerr)
		}
		return err
	}

	if err := s.repo.Complete(ctx, id, result); err != nil {
		return err
	}
	if err := s.fingerprints.Complete(ctx, task.Fingerprint, id); err != nil {
		logger.CtxWarn(ctx, "failed to record fingerprint completion: %v", err)
	}
	logger.CtxInfo(ctx, "detox task completed")
	return nil
}

func (s *DetoxService) analyze(ctx context.Context, task *domain.DetoxTask) (*domain.DetoxResult, error) {
	// Masking fails open once the retry budget is exhausted: an analysis
	// of the raw text beats no analysis.
	var (
		maskedText string
		entities   domain.EntityList
	)
	err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		masked, ents, merr := s.masker.Mask(ctx, task.OriginalText)
		if merr != nil {
			logger.CtxWarn(ctx, "entity masking attempt %d failed: %v", attempt, merr)
			return merr
		}
		maskedText, entities = masked, ents
		return nil
	})
	if err != nil {
		logger.CtxWarn(ctx, "entity masking unavailable, using original text: %v", err)
		maskedText, entities = task.OriginalText, nil
	}

	// An empty analogue list is a normal outcome; an unreachable search
	// backend after the retry budget is not.
	var similar domain.SimilarItemList
	err = s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		items, serr := s.similarity.FindSimilar(ctx, maskedText)
		if serr != nil {
			logger.CtxWarn(ctx, "similarity search attempt %d failed: %v", attempt, serr)
			return serr
		}
		similar = items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	analogues := make([]string, 0, len(similar))
	for _, item := range similar {
		line := item.Headline
		if item.Source != "" || item.Date != "" {
			line = fmt.Sprintf("%s (%s, %s)", item.Headline, item.Source, item.Date)
		}
		analogues = append(analogues, line)
	}

	userPrompt := prompts.AnalysisUserPrompt(maskedText, task.ContentType, analogues)
	verdict, backend, err := s.router.Analyze(ctx, task.OriginalText, prompts.AnalysisSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	result := &domain.DetoxResult{
		MaskedText:    maskedText,
		Entities:      entities,
		SimilarItems:  similar,
		IsSensational: verdict.IsSensational,
		Confidence:    verdict.Confidence,
		AnalysisText:  verdict.Analysis,
		Backend:       backend,
	}

	if s.shouldGenerateMeme(task, verdict) {
		memeTask, merr := s.memes.Submit(ctx, task.OriginalText, verdict.Analysis, s.opts.MemeStyle)
		if merr != nil {
			// The verdict stands on its own; a failed meme spawn only
			// degrades the result.
			logger.CtxWarn(ctx, "failed to spawn meme task: %v", merr)
		} else {
			result.MemeTaskID = memeTask.ID
		}
	}

	return result, nil
}

func (s *DetoxService) shouldGenerateMeme(task *domain.DetoxTask, verdict *Verdict) bool {
	return s.opts.MemeGenerationEnabled &&
		task.GenerateMeme &&
		verdict.IsSensational &&
		verdict.Confidence >= s.opts.MemeConfidenceThreshold
}

// Retry resets a terminal task back to pending, preserving its id and
// fingerprint, and enqueues it again. Returns ErrNotTerminal for tasks that
// are still pending or processing.
func (s *DetoxService) Retry(ctx context.Context, id string) (*domain.DetoxTask, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		return nil, domain.ErrNotTerminal
	}

	// Drop any cached result, then re-claim the inflight slot under the
	// same task id before the row is reset. Losing the claim to another id
	// means a concurrent submission of the same content got there first.
	if err := s.fingerprints.Invalidate(ctx, task.Fingerprint); err != nil {
		logger.CtxWarn(ctx, "failed to invalidate fingerprint: %v", err)
	}
	claimedID, _, err := s.fingerprints.GetOrCreate(ctx, task.Fingerprint, id)
	if err != nil {
		return nil, fmt.Errorf("failed to re-claim fingerprint: %w", err)
	}
	if claimedID != id {
		return nil, fmt.Errorf("content is already being reprocessed as task %s", claimedID)
	}

	// On failure the claim is left to its TTL: a concurrent retry of the
	// same id holds the same marker, so abandoning here could strip a
	// claim that is still in use.
	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		return nil, err
	}

	if err := s.enqueue.EnqueueDetox(ctx, id); err != nil {
		_ = s.fingerprints.Abandon(ctx, task.Fingerprint)
		return nil, fmt.Errorf("failed to enqueue retried task: %w", err)
	}

	logger.CtxInfo(logger.SetTaskID(ctx, id), "detox task retried")
	return s.repo.GetByID(ctx, id)
}

// Recover re-enqueues detox tasks left unfinished by a previous run.
func (s *DetoxService) Recover(ctx context.Context) error {
	ids, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.repo.RequeueProcessing(ctx, id); err != nil {
			logger.Warn("failed to requeue detox task %s: %v", id, err)
			continue
		}
		if err := s.enqueue.EnqueueDetox(ctx, id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		logger.Info("recovered %d unfinished detox tasks", len(ids))
	}
	return nil
}
