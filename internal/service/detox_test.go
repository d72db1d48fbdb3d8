package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arlen/newscalm/internal/cache"
	"github.com/arlen/newscalm/internal/domain"
)

// fakeDetoxStore is an in-memory DetoxTaskStore.
type fakeDetoxStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.DetoxTask
}

func newFakeDetoxStore() *fakeDetoxStore {
	return &fakeDetoxStore{tasks: make(map[string]*domain.DetoxTask)}
}

func (s *fakeDetoxStore) Create(ctx context.Context, task *domain.DetoxTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *fakeDetoxStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *fakeDetoxStore) GetByID(ctx context.Context, id string) (*domain.DetoxTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *fakeDetoxStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusPending {
		return fmt.Errorf("task %s not pending", id)
	}
	task.Status = domain.TaskStatusProcessing
	return nil
}

func (s *fakeDetoxStore) Complete(ctx context.Context, id string, result *domain.DetoxResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusProcessing {
		return fmt.Errorf("task %s not processing", id)
	}
	now := time.Now()
	task.Status = domain.TaskStatusCompleted
	task.MaskedText = &result.MaskedText
	task.Entities = result.Entities
	task.SimilarItems = result.SimilarItems
	task.IsSensational = &result.IsSensational
	task.Confidence = &result.Confidence
	task.AnalysisText = &result.AnalysisText
	task.Backend = result.Backend
	task.CompletedAt = &now
	if result.MemeTaskID != "" {
		task.MemeTaskID = &result.MemeTaskID
	}
	return nil
}

func (s *fakeDetoxStore) Fail(ctx context.Context, id string, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	task.Status = domain.TaskStatusError
	task.ErrorDetail = &detail
	return nil
}

func (s *fakeDetoxStore) ResetForRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !task.Status.IsTerminal() {
		return domain.ErrNotTerminal
	}
	task.Status = domain.TaskStatusPending
	task.MaskedText = nil
	task.Entities = nil
	task.SimilarItems = nil
	task.IsSensational = nil
	task.Confidence = nil
	task.AnalysisText = nil
	task.Backend = ""
	task.MemeTaskID = nil
	task.ErrorDetail = nil
	task.CompletedAt = nil
	return nil
}

func (s *fakeDetoxStore) ListRecent(ctx context.Context, userID string, limit, offset int) ([]domain.DetoxTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DetoxTask
	for _, task := range s.tasks {
		if task.UserID == userID {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (s *fakeDetoxStore) ListUnfinished(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, task := range s.tasks {
		if !task.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeDetoxStore) RequeueProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok && task.Status == domain.TaskStatusProcessing {
		task.Status = domain.TaskStatusPending
	}
	return nil
}

// fakeFingerprints mirrors FingerprintStore behavior in memory. afterClaim,
// when set, fires once right after a successful new claim, letting tests
// interleave a second submission inside the first one's claim window.
type fakeFingerprints struct {
	mu         sync.Mutex
	inflight   map[string]string
	done       map[string]string
	afterClaim func()
}

func newFakeFingerprints() *fakeFingerprints {
	return &fakeFingerprints{inflight: make(map[string]string), done: make(map[string]string)}
}

func (f *fakeFingerprints) GetOrCreate(ctx context.Context, fp, candidateID string) (string, bool, error) {
	f.mu.Lock()
	if id, ok := f.done[fp]; ok {
		f.mu.Unlock()
		return id, false, nil
	}
	if id, ok := f.inflight[fp]; ok {
		f.mu.Unlock()
		return id, false, nil
	}
	f.inflight[fp] = candidateID
	hook := f.afterClaim
	f.afterClaim = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return candidateID, true, nil
}

func (f *fakeFingerprints) Complete(ctx context.Context, fp, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[fp] = taskID
	delete(f.inflight, fp)
	return nil
}

func (f *fakeFingerprints) Abandon(ctx context.Context, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, fp)
	return nil
}

func (f *fakeFingerprints) Invalidate(ctx context.Context, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, fp)
	delete(f.done, fp)
	return nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) CheckAndConsume(ctx context.Context, identity, bucket string) (cache.Decision, error) {
	return cache.Decision{Allowed: true}, nil
}

type denyLimiter struct{ retryAfter time.Duration }

func (d denyLimiter) CheckAndConsume(ctx context.Context, identity, bucket string) (cache.Decision, error) {
	return cache.Decision{Allowed: false, RetryAfter: d.retryAfter}, nil
}

type fakeMasker struct {
	err   error
	calls int
}

func (m *fakeMasker) Mask(ctx context.Context, text string) (string, domain.EntityList, error) {
	m.calls++
	if m.err != nil {
		return "", nil, m.err
	}
	return "masked:" + text, domain.EntityList{{Text: "X", Label: "PERSON", Mask: "[PERSON_1]"}}, nil
}

type fakeSimilar struct {
	items domain.SimilarItemList
	err   error
}

func (s *fakeSimilar) FindSimilar(ctx context.Context, text string) (domain.SimilarItemList, error) {
	return s.items, s.err
}

type fakeRouter struct {
	verdict *Verdict
	backend string
	err     error
}

func (r *fakeRouter) Analyze(ctx context.Context, routingText, systemPrompt, userPrompt string) (*Verdict, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return r.verdict, r.backend, nil
}

type fakeMemes struct {
	submitted []string
	err       error
}

func (m *fakeMemes) Submit(ctx context.Context, headline, analysis, style string) (*domain.MemeTask, error) {
	if m.err != nil {
		return nil, m.err
	}
	id := fmt.Sprintf("meme-%d", len(m.submitted)+1)
	m.submitted = append(m.submitted, headline)
	return &domain.MemeTask{ID: id, Status: domain.TaskStatusPending}, nil
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	detox []string
	memes []string
}

func (e *fakeEnqueuer) EnqueueDetox(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detox = append(e.detox, id)
	return nil
}

func (e *fakeEnqueuer) EnqueueMeme(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memes = append(e.memes, id)
	return nil
}

type detoxFixture struct {
	svc     *DetoxService
	store   *fakeDetoxStore
	fps     *fakeFingerprints
	router  *fakeRouter
	masker  *fakeMasker
	similar *fakeSimilar
	memes   *fakeMemes
	enq     *fakeEnqueuer
}

func newDetoxFixture(opts DetoxOptions) *detoxFixture {
	f := &detoxFixture{
		store:   newFakeDetoxStore(),
		fps:     newFakeFingerprints(),
		router:  &fakeRouter{verdict: &Verdict{Analysis: "calm", IsSensational: false, Confidence: 0.5}, backend: "default"},
		masker:  &fakeMasker{},
		similar: &fakeSimilar{},
		memes:   &fakeMemes{},
		enq:     &fakeEnqueuer{},
	}
	if opts.MaxTextLength == 0 {
		opts.MaxTextLength = 2000
	}
	f.svc = NewDetoxService(
		f.store, f.fps, allowAllLimiter{}, f.masker, f.similar, f.router, f.memes,
		RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond},
		opts,
	)
	f.svc.SetEnqueuer(f.enq)
	return f
}

func TestDetoxService_SubmitCreatesAndEnqueues(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})

	task, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "Shocking headline", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new task")
	}
	if task.Status != domain.TaskStatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.ContentType != "text" {
		t.Errorf("content type = %s, want default text", task.ContentType)
	}
	if len(f.enq.detox) != 1 || f.enq.detox[0] != task.ID {
		t.Errorf("expected task enqueued, got %v", f.enq.detox)
	}
}

func TestDetoxService_SubmitValidation(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{MaxTextLength: 10})

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \t\n"},
		{"too long", "this text is longer than ten characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Submit(context.Background(), SubmitRequest{Text: tt.text})
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
	if len(f.enq.detox) != 0 {
		t.Errorf("nothing should be enqueued, got %v", f.enq.detox)
	}
}

func TestDetoxService_SubmitRateLimited(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.svc = NewDetoxService(
		f.store, f.fps, denyLimiter{retryAfter: 30 * time.Second}, f.masker, f.similar, f.router, f.memes,
		RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond},
		DetoxOptions{MaxTextLength: 2000},
	)
	f.svc.SetEnqueuer(f.enq)

	_, _, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "anything", UserID: "u1"})
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfter != 30*time.Second {
		t.Errorf("retry after = %v", rateErr.RetryAfter)
	}
}

func TestDetoxService_SubmitDeduplicates(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})

	first, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "Same content", UserID: "u1"})
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}

	// Same text with different formatting resolves to the same task.
	second, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "  same   CONTENT ", UserID: "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("duplicate submission must not create a task")
	}
	if second.ID != first.ID {
		t.Errorf("expected task %s, got %s", first.ID, second.ID)
	}
	if len(f.enq.detox) != 1 {
		t.Errorf("expected a single enqueue, got %v", f.enq.detox)
	}
}

// A duplicate arriving right after the first submission claims the
// fingerprint, before that submission has returned, must converge on the
// first task instead of starting a second pipeline.
func TestDetoxService_ConcurrentDuplicateConvergesOnOneTask(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})

	var (
		dupTask    *domain.DetoxTask
		dupCreated bool
		dupErr     error
	)
	f.fps.afterClaim = func() {
		dupTask, dupCreated, dupErr = f.svc.Submit(context.Background(), SubmitRequest{Text: "racing headline", UserID: "u2"})
	}

	task, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "racing headline", UserID: "u1"})
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	if dupErr != nil {
		t.Fatalf("duplicate submit: %v", dupErr)
	}
	if dupCreated {
		t.Fatalf("duplicate submission created a second task %s", dupTask.ID)
	}
	if dupTask.ID != task.ID {
		t.Errorf("duplicate resolved to %s, want %s", dupTask.ID, task.ID)
	}
	if len(f.enq.detox) != 1 {
		t.Errorf("expected a single enqueue, got %v", f.enq.detox)
	}

	f.store.mu.Lock()
	rows := 0
	for _, stored := range f.store.tasks {
		if stored.Fingerprint == task.Fingerprint {
			rows++
		}
	}
	f.store.mu.Unlock()
	if rows != 1 {
		t.Errorf("store holds %d rows for the fingerprint, want 1", rows)
	}
}

func TestDetoxService_ProcessHappyPath(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.similar.items = domain.SimilarItemList{{ID: "h1", Headline: "old headline", Score: 0.9}}
	f.router.verdict = &Verdict{Analysis: "nothing new", IsSensational: true, Confidence: 0.9}
	f.router.backend = "permissive"

	task, _, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "EVERYTHING IS ON FIRE", UserID: "u1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.MaskedText == nil || *got.MaskedText != "masked:EVERYTHING IS ON FIRE" {
		t.Errorf("masked text = %v", got.MaskedText)
	}
	if got.IsSensational == nil || !*got.IsSensational {
		t.Error("expected sensational verdict")
	}
	if got.Confidence == nil || *got.Confidence != 0.9 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.Backend != "permissive" {
		t.Errorf("backend = %s", got.Backend)
	}
	if len(got.SimilarItems) != 1 || got.SimilarItems[0].Headline != "old headline" {
		t.Errorf("similar items = %+v", got.SimilarItems)
	}

	// Completion is recorded in the fingerprint cache so resubmission hits it.
	resub, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "EVERYTHING IS ON FIRE", UserID: "u1"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if created || resub.ID != task.ID {
		t.Errorf("expected cached task %s, got %s created=%v", task.ID, resub.ID, created)
	}
}

func TestDetoxService_ProcessMaskingFailsOpen(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.masker.err = domain.NewTransientError("masking", errors.New("ner down"))

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "plain headline", UserID: "u1"})
	if err := f.svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.MaskedText == nil || *got.MaskedText != "plain headline" {
		t.Errorf("expected original text on masking failure, got %v", got.MaskedText)
	}
	if len(got.Entities) != 0 {
		t.Errorf("expected no entities, got %+v", got.Entities)
	}
	// The transient failure runs through the full retry budget before the
	// pipeline degrades to the unmasked text.
	if f.masker.calls != 2 {
		t.Errorf("masker called %d times, want 2", f.masker.calls)
	}
}

func TestDetoxService_ProcessSimilarityOutageIsTerminal(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.similar.err = domain.NewTransientError("qdrant", errors.New("connection refused"))

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "unsearchable headline", UserID: "u1"})
	if err := f.svc.Process(context.Background(), task.ID); err == nil {
		t.Fatal("expected process to fail")
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusError {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestDetoxService_ProcessAnalysisFailureIsTerminal(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.router.err = domain.NewPermanentError("default", errors.New("backend rejected"))

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "doomed headline", UserID: "u1"})
	if err := f.svc.Process(context.Background(), task.ID); err == nil {
		t.Fatal("expected process to fail")
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusError {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ErrorDetail == nil {
		t.Error("expected error detail")
	}

	// The fingerprint claim is released, so the content can be resubmitted.
	resub, created, err := f.svc.Submit(context.Background(), SubmitRequest{Text: "doomed headline", UserID: "u1"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !created {
		t.Errorf("expected fresh task after failure, got %s", resub.ID)
	}
}

func TestDetoxService_MemeSpawning(t *testing.T) {
	tests := []struct {
		name     string
		opts     DetoxOptions
		request  bool
		verdict  *Verdict
		expected int
	}{
		{
			name:     "spawned for sensational verdict",
			opts:     DetoxOptions{MemeGenerationEnabled: true},
			request:  true,
			verdict:  &Verdict{Analysis: "a", IsSensational: true, Confidence: 0.9},
			expected: 1,
		},
		{
			name:     "not spawned when not requested",
			opts:     DetoxOptions{MemeGenerationEnabled: true},
			request:  false,
			verdict:  &Verdict{Analysis: "a", IsSensational: true, Confidence: 0.9},
			expected: 0,
		},
		{
			name:     "not spawned for calm verdict",
			opts:     DetoxOptions{MemeGenerationEnabled: true},
			request:  true,
			verdict:  &Verdict{Analysis: "a", IsSensational: false, Confidence: 0.9},
			expected: 0,
		},
		{
			name:     "not spawned when disabled",
			opts:     DetoxOptions{MemeGenerationEnabled: false},
			request:  true,
			verdict:  &Verdict{Analysis: "a", IsSensational: true, Confidence: 0.9},
			expected: 0,
		},
		{
			name:     "not spawned below confidence threshold",
			opts:     DetoxOptions{MemeGenerationEnabled: true, MemeConfidenceThreshold: 0.8},
			request:  true,
			verdict:  &Verdict{Analysis: "a", IsSensational: true, Confidence: 0.5},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDetoxFixture(tt.opts)
			f.router.verdict = tt.verdict

			task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{
				Text:         "wild headline",
				GenerateMeme: tt.request,
				UserID:       "u1",
			})
			if err := f.svc.Process(context.Background(), task.ID); err != nil {
				t.Fatalf("process: %v", err)
			}

			if len(f.memes.submitted) != tt.expected {
				t.Errorf("meme submissions = %d, want %d", len(f.memes.submitted), tt.expected)
			}

			got, _ := f.store.GetByID(context.Background(), task.ID)
			if tt.expected > 0 && got.MemeTaskID == nil {
				t.Error("expected meme task id on parent")
			}
			if tt.expected == 0 && got.MemeTaskID != nil {
				t.Errorf("unexpected meme task id %v", *got.MemeTaskID)
			}
		})
	}
}

func TestDetoxService_MemeSpawnFailureDoesNotFailTask(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{MemeGenerationEnabled: true})
	f.router.verdict = &Verdict{Analysis: "a", IsSensational: true, Confidence: 0.9}
	f.memes.err = errors.New("meme queue full")

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "wild", GenerateMeme: true, UserID: "u1"})
	if err := f.svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.MemeTaskID != nil {
		t.Errorf("unexpected meme task id %v", *got.MemeTaskID)
	}
}

func TestDetoxService_RetryRequiresTerminalState(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "pending task", UserID: "u1"})

	_, err := f.svc.Retry(context.Background(), task.ID)
	if !errors.Is(err, domain.ErrNotTerminal) {
		t.Fatalf("expected ErrNotTerminal, got %v", err)
	}
}

func TestDetoxService_RetryResetsFailedTask(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	f.router.err = domain.NewPermanentError("default", errors.New("boom"))

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "flaky headline", UserID: "u1"})
	_ = f.svc.Process(context.Background(), task.ID)

	retried, err := f.svc.Retry(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID != task.ID {
		t.Errorf("retry must preserve the task id, got %s", retried.ID)
	}
	if retried.Status != domain.TaskStatusPending {
		t.Errorf("status = %s, want pending", retried.Status)
	}
	if retried.ErrorDetail != nil {
		t.Errorf("error detail should be cleared, got %v", *retried.ErrorDetail)
	}

	// The backend recovered; reprocessing succeeds this time.
	f.router.err = nil
	if err := f.svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
}

// contestedFps reports every claim as held by another task id.
type contestedFps struct{ claimedBy string }

func (c contestedFps) GetOrCreate(ctx context.Context, fp, candidateID string) (string, bool, error) {
	return c.claimedBy, false, nil
}
func (c contestedFps) Complete(ctx context.Context, fp, taskID string) error { return nil }
func (c contestedFps) Abandon(ctx context.Context, fp string) error          { return nil }
func (c contestedFps) Invalidate(ctx context.Context, fp string) error       { return nil }

func TestDetoxService_RetryLosesClaimToConcurrentSubmission(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})
	detail := "boom"
	f.store.tasks["t1"] = &domain.DetoxTask{
		ID:           "t1",
		Fingerprint:  "fp1",
		Status:       domain.TaskStatusError,
		OriginalText: "contested headline",
		ErrorDetail:  &detail,
	}

	svc := NewDetoxService(
		f.store, contestedFps{claimedBy: "t2"}, allowAllLimiter{}, f.masker, f.similar, f.router, f.memes,
		RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond},
		DetoxOptions{MaxTextLength: 2000},
	)
	svc.SetEnqueuer(f.enq)

	if _, err := svc.Retry(context.Background(), "t1"); err == nil {
		t.Fatal("expected retry to fail when the fingerprint is claimed elsewhere")
	}
	if len(f.enq.detox) != 0 {
		t.Errorf("nothing should be enqueued, got %v", f.enq.detox)
	}
	got, _ := f.store.GetByID(context.Background(), "t1")
	if got.Status != domain.TaskStatusError {
		t.Errorf("task must stay terminal, status = %s", got.Status)
	}
}

func TestDetoxService_RecoverRequeuesUnfinished(t *testing.T) {
	f := newDetoxFixture(DetoxOptions{})

	task, _, _ := f.svc.Submit(context.Background(), SubmitRequest{Text: "interrupted", UserID: "u1"})
	_ = f.store.MarkProcessing(context.Background(), task.ID)

	// Simulate a fresh start with an empty dispatch queue.
	f.enq.detox = nil

	if err := f.svc.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(f.enq.detox) != 1 || f.enq.detox[0] != task.ID {
		t.Errorf("expected %s requeued, got %v", task.ID, f.enq.detox)
	}

	got, _ := f.store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusPending {
		t.Errorf("status = %s, want pending after requeue", got.Status)
	}
}
