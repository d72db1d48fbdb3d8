package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arlen/newscalm/internal/domain"
)

type fakeMemeStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.MemeTask
}

func newFakeMemeStore() *fakeMemeStore {
	return &fakeMemeStore{tasks: make(map[string]*domain.MemeTask)}
}

func (s *fakeMemeStore) Create(ctx context.Context, task *domain.MemeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *fakeMemeStore) GetByID(ctx context.Context, id string) (*domain.MemeTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *fakeMemeStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusPending {
		return fmt.Errorf("task %s not pending", id)
	}
	task.Status = domain.TaskStatusProcessing
	return nil
}

func (s *fakeMemeStore) Complete(ctx context.Context, id string, result *domain.MemeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusProcessing {
		return fmt.Errorf("task %s not processing", id)
	}
	now := time.Now()
	task.Status = domain.TaskStatusCompleted
	task.GeneratedText = &result.GeneratedText
	task.Keywords = result.Keywords
	if result.GifURL != "" {
		task.GifURL = &result.GifURL
	}
	task.PublicURL = &result.PublicURL
	task.CompletedAt = &now
	return nil
}

func (s *fakeMemeStore) Fail(ctx context.Context, id string, detail string) error {
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

func (s *fakeMemeStore) ListUnfinished(ctx context.Context) ([]string, error) {
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

func (s *fakeMemeStore) RequeueProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok && task.Status == domain.TaskStatusProcessing {
		task.Status = domain.TaskStatusPending
	}
	return nil
}

type fakeCaptionBackend struct {
	caption string
	err     error
}

func (f *fakeCaptionBackend) Name() string { return "default" }

func (f *fakeCaptionBackend) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Verdict, error) {
	return nil, errors.New("not used")
}

func (f *fakeCaptionBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.caption, nil
}

type fakeGifSearcher struct {
	url string
	err error
}

func (f *fakeGifSearcher) SearchTop(ctx context.Context, keywords []string) (string, error) {
	return f.url, f.err
}

// fakeObjectStorage captures uploads in memory.
type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeObjectStorage) GetURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (f *fakeObjectStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func newMemeFixture(backend *fakeCaptionBackend, gifs *fakeGifSearcher) (*MemeService, *fakeMemeStore, *fakeObjectStorage, *fakeEnqueuer) {
	store := newFakeMemeStore()
	objects := newFakeObjectStorage()
	enq := &fakeEnqueuer{}
	svc := NewMemeService(
		store, backend, gifs, objects,
		RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond},
		"funny, satirical",
	)
	svc.SetEnqueuer(enq)
	return svc, store, objects, enq
}

func TestMemeService_SubmitValidatesHeadline(t *testing.T) {
	svc, _, _, enq := newMemeFixture(&fakeCaptionBackend{caption: "x"}, &fakeGifSearcher{})

	_, err := svc.Submit(context.Background(), "   ", "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(enq.memes) != 0 {
		t.Errorf("nothing should be enqueued, got %v", enq.memes)
	}
}

func TestMemeService_ProcessHappyPath(t *testing.T) {
	backend := &fakeCaptionBackend{caption: "markets panic panic panic while economists shrug"}
	gifs := &fakeGifSearcher{url: "https://giphy.example.com/shrug.gif"}
	svc, store, objects, _ := newMemeFixture(backend, gifs)

	task, err := svc.Submit(context.Background(), "MARKETS IN FREEFALL", "markets dipped 1%", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Style != "funny, satirical" {
		t.Errorf("expected default style, got %s", task.Style)
	}

	if err := svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.GeneratedText == nil || *got.GeneratedText != backend.caption {
		t.Errorf("generated text = %v", got.GeneratedText)
	}
	if len(got.Keywords) != 3 || got.Keywords[0] != "panic" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if got.GifURL == nil || *got.GifURL != gifs.url {
		t.Errorf("gif url = %v", got.GifURL)
	}
	if got.PublicURL == nil || *got.PublicURL != "https://cdn.example.com/memes/"+task.ID+".json" {
		t.Errorf("public url = %v", got.PublicURL)
	}

	// The artifact itself landed in object storage.
	if ok, _ := objects.Exists(context.Background(), "memes/"+task.ID+".json"); !ok {
		t.Error("expected artifact in storage")
	}
}

func TestMemeService_ProcessContinuesWithoutGif(t *testing.T) {
	backend := &fakeCaptionBackend{caption: "quiet news day everyone relax"}
	gifs := &fakeGifSearcher{err: domain.NewTransientError("giphy", errors.New("down"))}
	svc, store, _, _ := newMemeFixture(backend, gifs)

	task, _ := svc.Submit(context.Background(), "headline", "", "dry")
	if err := svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.GifURL != nil {
		t.Errorf("expected no gif url, got %v", *got.GifURL)
	}
	if got.PublicURL == nil {
		t.Error("artifact should still be stored")
	}
}

func TestMemeService_ProcessCaptionFailureIsTerminal(t *testing.T) {
	backend := &fakeCaptionBackend{err: domain.NewPermanentError("default", errors.New("rejected"))}
	svc, store, _, _ := newMemeFixture(backend, &fakeGifSearcher{})

	task, _ := svc.Submit(context.Background(), "headline", "", "")
	if err := svc.Process(context.Background(), task.ID); err == nil {
		t.Fatal("expected failure")
	}

	got, _ := store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusError {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ErrorDetail == nil {
		t.Error("expected error detail")
	}
}

func TestMemeService_ProcessSkipsTerminalTask(t *testing.T) {
	backend := &fakeCaptionBackend{caption: "x y z words"}
	svc, store, _, _ := newMemeFixture(backend, &fakeGifSearcher{})

	task, _ := svc.Submit(context.Background(), "headline", "", "")
	_ = store.MarkProcessing(context.Background(), task.ID)
	_ = store.Fail(context.Background(), task.ID, "earlier failure")

	if err := svc.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("process on terminal task should be a no-op, got %v", err)
	}

	got, _ := store.GetByID(context.Background(), task.ID)
	if got.Status != domain.TaskStatusError {
		t.Errorf("status changed to %s", got.Status)
	}
}
