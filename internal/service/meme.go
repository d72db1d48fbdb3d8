package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/logger"
	"github.com/arlen/newscalm/internal/prompts"
	"github.com/arlen/newscalm/internal/storage"
)

const memeKeywordCount = 3

// MemeTaskStore is the persistence surface the meme pipeline needs.
type MemeTaskStore interface {
	Create(ctx context.Context, task *domain.MemeTask) error
	GetByID(ctx context.Context, id string) (*domain.MemeTask, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result *domain.MemeResult) error
	Fail(ctx context.Context, id string, detail string) error
	ListUnfinished(ctx context.Context) ([]string, error)
	RequeueProcessing(ctx context.Context, id string) error
}

// GifSearcher finds a reaction GIF for keywords.
type GifSearcher interface {
	SearchTop(ctx context.Context, keywords []string) (string, error)
}

// TaskEnqueuer hands task ids to the worker pool.
type TaskEnqueuer interface {
	EnqueueMeme(ctx context.Context, id string) error
	EnqueueDetox(ctx context.Context, id string) error
}

// MemeService runs the meme generation sub-pipeline: caption text from the
// default model, keyword extraction, GIF lookup, and a JSON artifact in
// object storage. Meme tasks are tracked independently of any parent detox
// task.
type MemeService struct {
	repo    MemeTaskStore
	backend ChatBackend
	gifs    GifSearcher
	store   storage.ObjectStorage
	enqueue TaskEnqueuer
	retry   RetryPolicy
	style   string
}

// NewMemeService creates a meme service. Submit enqueues, Process runs in a
// worker.
func NewMemeService(repo MemeTaskStore, backend ChatBackend, gifs GifSearcher, store storage.ObjectStorage, retry RetryPolicy, style string) *MemeService {
	return &MemeService{
		repo:    repo,
		backend: backend,
		gifs:    gifs,
		store:   store,
		retry:   retry,
		style:   style,
	}
}

// SetEnqueuer wires the worker pool after construction. The pool and the
// services reference each other, so wiring happens in two steps.
func (s *MemeService) SetEnqueuer(e TaskEnqueuer) {
	s.enqueue = e
}

// Submit validates a meme request, persists the pending task, and enqueues
// it. The returned task is in the pending state.
func (s *MemeService) Submit(ctx context.Context, headline, analysis, style string) (*domain.MemeTask, error) {
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return nil, fmt.Errorf("%w: headline must not be empty", domain.ErrValidation)
	}

	if style == "" {
		style = s.style
	}

	task := &domain.MemeTask{
		ID:             uuid.NewString(),
		Status:         domain.TaskStatusPending,
		SourceHeadline: headline,
		SourceAnalysis: analysis,
		Style:          style,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create meme task: %w", err)
	}

	if err := s.enqueue.EnqueueMeme(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue meme task: %w", err)
	}

	logger.CtxInfo(logger.SetMemeTaskID(ctx, task.ID), "meme task submitted")
	return task, nil
}

// Get returns a meme task by id.
func (s *MemeService) Get(ctx context.Context, id string) (*domain.MemeTask, error) {
	return s.repo.GetByID(ctx, id)
}

// memeArtifact is the JSON document stored for a completed meme task.
type memeArtifact struct {
	TaskID        string    `json:"task_id"`
	Headline      string    `json:"headline"`
	GeneratedText string    `json:"generated_text"`
	Keywords      []string  `json:"keywords"`
	GifURL        string    `json:"gif_url,omitempty"`
	Style         string    `json:"style"`
	CreatedAt     time.Time `json:"created_at"`
}

// Process runs one meme task to a terminal state. Invoked by the worker
// pool; any error is also recorded on the task row.
func (s *MemeService) Process(ctx context.Context, id string) error {
	ctx = logger.SetMemeTaskID(ctx, id)

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}

	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		return err
	}

	result, err := s.generate(ctx, task)
	if err != nil {
		logger.CtxError(ctx, "meme generation failed: %v", err)
		if ferr := s.repo.Fail(ctx, id, err.Error()); ferr != nil {
			logger.CtxError(ctx, "failed to record meme error state: %v", ferr)
		}
		return err
	}

	if err := s.repo.Complete(ctx, id, result); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "meme task completed")
	return nil
}

func (s *MemeService) generate(ctx context.Context, task *domain.MemeTask) (*domain.MemeResult, error) {
	userPrompt := prompts.MemeUserPrompt(task.SourceHeadline, task.SourceAnalysis, task.Style)

	var caption string
	err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		text, cerr := s.backend.Complete(ctx, prompts.MemeSystemPrompt, userPrompt)
		if cerr != nil {
			logger.CtxWarn(ctx, "caption attempt %d failed: %v", attempt, cerr)
			return cerr
		}
		caption = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("caption generation: %w", err)
	}
	if caption == "" {
		return nil, fmt.Errorf("%w: empty caption", domain.ErrMalformedResponse)
	}

	keywords := ExtractKeywords(caption, memeKeywordCount)
	if len(keywords) == 0 {
		keywords = ExtractKeywords(task.SourceHeadline, memeKeywordCount)
	}

	// A missing GIF is a degraded artifact, not a failure.
	gifURL := ""
	err = s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		url, gerr := s.gifs.SearchTop(ctx, keywords)
		if gerr != nil {
			logger.CtxWarn(ctx, "gif search attempt %d failed: %v", attempt, gerr)
			return gerr
		}
		gifURL = url
		return nil
	})
	if err != nil {
		logger.CtxWarn(ctx, "continuing without gif: %v", err)
	}

	artifact := memeArtifact{
		TaskID:        task.ID,
		Headline:      task.SourceHeadline,
		GeneratedText: caption,
		Keywords:      keywords,
		GifURL:        gifURL,
		Style:         task.Style,
		CreatedAt:     time.Now().UTC(),
	}

	key := fmt.Sprintf("memes/%s.json", task.ID)
	publicURL, err := storage.UploadJSON(ctx, s.store, key, artifact)
	if err != nil {
		return nil, fmt.Errorf("artifact upload: %w", err)
	}

	return &domain.MemeResult{
		GeneratedText: caption,
		Keywords:      keywords,
		GifURL:        gifURL,
		PublicURL:     publicURL,
	}, nil
}

// Recover re-enqueues meme tasks left unfinished by a previous run.
func (s *MemeService) Recover(ctx context.Context) error {
	ids, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.repo.RequeueProcessing(ctx, id); err != nil {
			logger.Warn("failed to requeue meme task %s: %v", id, err)
			continue
		}
		if err := s.enqueue.EnqueueMeme(ctx, id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		logger.Info("recovered %d unfinished meme tasks", len(ids))
	}
	return nil
}
