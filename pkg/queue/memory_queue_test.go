package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueDeliversTasks(t *testing.T) {
	q := NewMemoryQueue(MemoryQueueConfig{RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]Task{}
	done := make(chan struct{}, 2)
	q.Start(ctx, 2, func(_ context.Context, task Task) error {
		mu.Lock()
		seen[task.EntityID] = task
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	if err := q.Enqueue(ctx, Task{Kind: KindBookSummary, EntityID: "book-1", Text: "text"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Task{Kind: KindBookConsensus, EntityID: "book-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got := seen["book-1"]; got.Kind != KindBookSummary || got.ID == "" || got.EnqueuedAt.IsZero() {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got := seen["book-2"]; got.Kind != KindBookConsensus {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := NewMemoryQueue(MemoryQueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	q.Start(ctx, 1, func(_ context.Context, _ Task) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := q.Enqueue(ctx, Task{Kind: KindReviewSentiment, EntityID: "review-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestMemoryQueueEnqueueRejectsIncompleteTask(t *testing.T) {
	q := NewMemoryQueue(MemoryQueueConfig{})
	if err := q.Enqueue(context.Background(), Task{Kind: KindBookSummary}); err == nil {
		t.Fatal("expected error for task without entity id")
	}
}

func TestMemoryQueueCloseRejectsEnqueue(t *testing.T) {
	q := NewMemoryQueue(MemoryQueueConfig{})
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Enqueue(context.Background(), Task{Kind: KindBookSummary, EntityID: "book-1"}); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestMemoryQueueEnqueueDuringClose(t *testing.T) {
	// Enqueue racing Close must fail cleanly, never send on the closed
	// channel.
	for i := 0; i < 50; i++ {
		q := NewMemoryQueue(MemoryQueueConfig{})
		ctx := context.Background()

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = q.Enqueue(ctx, Task{Kind: KindBookSummary, EntityID: "book-1"})
			}()
		}
		if err := q.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		wg.Wait()
		if err := q.Enqueue(ctx, Task{Kind: KindBookSummary, EntityID: "book-1"}); err == nil {
			t.Fatal("expected error after close")
		}
	}
}

func TestQueueFactoryFailsFastOnUnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "kafka"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	q, err := New(Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := q.(*MemoryQueue); !ok {
		t.Fatalf("expected *MemoryQueue, got %T", q)
	}
}
