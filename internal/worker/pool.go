package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/arlen/newscalm/internal/logger"
)

// Kind identifies which handler processes a queued task.
type Kind string

const (
	KindDetox Kind = "detox"
	KindMeme  Kind = "meme"
)

// Task is a queue entry. The database row is the durable record; the queue
// only carries the id.
type Task struct {
	Kind Kind
	ID   string
}

// Handler processes one task by id. Returning an error is informational;
// handlers own their task's terminal state transitions.
type Handler func(ctx context.Context, id string) error

var ErrStopped = errors.New("worker pool stopped")

// Pool runs registered handlers over a shared task queue with a fixed number
// of workers. Tasks survive process restarts because handlers are re-enqueued
// from unfinished database rows at startup, not because the channel persists.
type Pool struct {
	queue    chan Task
	handlers map[Kind]Handler
	count    int

	wg     sync.WaitGroup
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool with count workers and a queue of queueSize slots.
func NewPool(count, queueSize int) *Pool {
	if count < 1 {
		count = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		queue:    make(chan Task, queueSize),
		handlers: make(map[Kind]Handler),
		count:    count,
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (p *Pool) Register(kind Kind, h Handler) {
	p.handlers[kind] = h
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.parent = ctx
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	logger.Info("worker pool started with %d workers", p.count)
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.dispatch(task)
		}
	}
}

func (p *Pool) dispatch(task Task) {
	h, ok := p.handlers[task.Kind]
	if !ok {
		logger.Error("no handler registered for task kind %q", task.Kind)
		return
	}

	// Handlers run on the parent context, not the pool's: Stop cancels the
	// run loops but lets the task already in a handler run to completion.
	ctx := logger.SetTaskID(p.parent, task.ID)
	ctx = logger.SetComponent(ctx, "worker")

	if err := h(ctx, task.ID); err != nil {
		logger.CtxError(ctx, "%s task failed: %v", task.Kind, err)
	}
}

// Enqueue places a task on the queue, blocking while it is full. Returns
// ErrStopped once the pool is shutting down. Start must have been called.
func (p *Pool) Enqueue(ctx context.Context, task Task) error {
	if p.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrStopped
	}
}

// Stop drains in-flight work: workers finish their current task, then exit.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	logger.Info("worker pool stopped")
}
