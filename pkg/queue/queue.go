package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task kinds understood by the enrichment workers.
const (
	KindBookSummary     = "book_summary"
	KindReviewSentiment = "review_sentiment"
	KindBookConsensus   = "book_consensus"
)

// Task is one unit of background enrichment work. EntityID names the
// book or review the task operates on; Text carries the input for
// kinds that need it (summary, sentiment).
type Task struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	Text       string    `json:"text,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one task. A nil return acknowledges the task; an
// error return lets the backend retry it.
type Handler func(ctx context.Context, task Task) error

// Queue is the transport between API handlers and enrichment workers.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Start(ctx context.Context, concurrency int, handler Handler)
	Close() error
}

type Config struct {
	Backend string

	// redis backend
	RedisAddr     string
	RedisPassword string

	// rabbitmq backend
	AMQPURL string

	MaxRetries int
	RetryDelay time.Duration
}

// New builds the queue backend selected by cfg.Backend. Unknown
// backends are a configuration error and fail fast.
func New(cfg Config) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemoryQueue(MemoryQueueConfig{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}), nil
	case "redis":
		return NewRedisTaskQueue(RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     "luminalib:enrich",
			Group:      "enrich-workers",
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
	case "rabbitmq", "amqp":
		return NewAMQPQueue(AMQPQueueConfig{
			URL:        cfg.AMQPURL,
			Queue:      "luminalib.enrich",
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

func normalizeTask(task Task) (Task, error) {
	if strings.TrimSpace(task.Kind) == "" {
		return Task{}, errors.New("task kind required")
	}
	if strings.TrimSpace(task.EntityID) == "" {
		return Task{}, errors.New("task entity id required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	return task, nil
}
