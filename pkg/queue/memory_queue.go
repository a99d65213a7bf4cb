package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// MemoryQueue is an in-process queue backed by a buffered channel.
// It is the default backend for single-node deployments and tests.
type MemoryQueue struct {
	tasks      chan Task
	maxRetries int
	retryDelay time.Duration

	mu     sync.Mutex
	closed bool
	group  *errgroup.Group
}

type MemoryQueueConfig struct {
	Buffer     int
	MaxRetries int
	RetryDelay time.Duration
}

func NewMemoryQueue(cfg MemoryQueueConfig) *MemoryQueue {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &MemoryQueue{
		tasks:      make(chan Task, buffer),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	task, err := normalizeTask(task)
	if err != nil {
		return err
	}
	// The lock spans the closed check and the send so a concurrent Close
	// cannot close the channel between them.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	q.mu.Lock()
	q.group = group
	q.mu.Unlock()
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			q.consumeLoop(ctx, handler)
			return nil
		})
	}
}

func (q *MemoryQueue) consumeLoop(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.process(ctx, task, handler)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, task Task, handler Handler) {
	var err error
	for attempt := 1; attempt <= q.maxRetries; attempt++ {
		if err = handler(ctx, task); err == nil {
			return
		}
		if attempt == q.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	slog.Error("task failed after retries",
		"task_id", task.ID,
		"kind", task.Kind,
		"entity_id", task.EntityID,
		"attempts", q.maxRetries,
		"error", err,
	)
}

// Close stops accepting new tasks and waits for in-flight workers to
// drain the channel.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	group := q.group
	q.mu.Unlock()

	close(q.tasks)
	if group != nil {
		return group.Wait()
	}
	return nil
}
