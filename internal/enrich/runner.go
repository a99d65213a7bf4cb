package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"luminalib/pkg/llm"
	"luminalib/pkg/queue"
	"luminalib/pkg/store"
)

// Runner consumes enrichment tasks and writes results back to the
// store. Failures never surface to API callers; they are logged and
// retried by the queue backend.
type Runner struct {
	store   store.Store
	llm     llm.Provider
	queue   queue.Queue
	timeout time.Duration
}

func New(st store.Store, provider llm.Provider, q queue.Queue, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{store: st, llm: provider, queue: q, timeout: timeout}
}

// Start attaches the runner to its queue with the given worker count.
func (r *Runner) Start(ctx context.Context, concurrency int) {
	r.queue.Start(ctx, concurrency, r.handle)
}

// EnqueueBookSummary schedules summary generation for a freshly
// uploaded book. text is the extracted full text.
func (r *Runner) EnqueueBookSummary(ctx context.Context, bookID, text string) error {
	return r.queue.Enqueue(ctx, queue.Task{
		Kind:     queue.KindBookSummary,
		EntityID: bookID,
		Text:     text,
	})
}

// EnqueueReviewSentiment schedules sentiment analysis for a review
// comment.
func (r *Runner) EnqueueReviewSentiment(ctx context.Context, reviewID, comment string) error {
	return r.queue.Enqueue(ctx, queue.Task{
		Kind:     queue.KindReviewSentiment,
		EntityID: reviewID,
		Text:     comment,
	})
}

// EnqueueBookConsensus schedules a recompute of the book's aggregate
// rating from its current review set.
func (r *Runner) EnqueueBookConsensus(ctx context.Context, bookID string) error {
	return r.queue.Enqueue(ctx, queue.Task{
		Kind:     queue.KindBookConsensus,
		EntityID: bookID,
	})
}

func (r *Runner) handle(ctx context.Context, task queue.Task) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	switch task.Kind {
	case queue.KindBookSummary:
		err = r.runBookSummary(ctx, task)
	case queue.KindReviewSentiment:
		err = r.runReviewSentiment(ctx, task)
	case queue.KindBookConsensus:
		err = r.runBookConsensus(ctx, task)
	default:
		// unknown kinds are acked; retrying cannot fix them
		slog.Warn("unknown task kind", "task_id", task.ID, "kind", task.Kind)
		return nil
	}
	if err != nil {
		slog.Error("enrichment task failed",
			"task_id", task.ID,
			"kind", task.Kind,
			"entity_id", task.EntityID,
			"error", err,
		)
	}
	return err
}

func (r *Runner) runBookSummary(ctx context.Context, task queue.Task) error {
	summary, err := r.llm.Summarize(ctx, task.Text)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	ok, err := r.store.SetBookSummary(task.EntityID, summary)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if !ok {
		// book deleted while the task was queued
		slog.Info("skipping summary for missing book", "book_id", task.EntityID)
	}
	return nil
}

func (r *Runner) runReviewSentiment(ctx context.Context, task queue.Task) error {
	sentiment, err := r.llm.AnalyzeSentiment(ctx, task.Text)
	if err != nil {
		return fmt.Errorf("analyze sentiment: %w", err)
	}
	ok, err := r.store.SetReviewSentiment(task.EntityID, sentiment.Score, sentiment.Label)
	if err != nil {
		return fmt.Errorf("store sentiment: %w", err)
	}
	if !ok {
		slog.Info("skipping sentiment for missing review", "review_id", task.EntityID)
	}
	return nil
}

func (r *Runner) runBookConsensus(ctx context.Context, task queue.Task) error {
	reviews, err := r.store.ListReviewsByBook(task.EntityID)
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}
	if len(reviews) == 0 {
		return nil
	}
	total := 0
	for _, review := range reviews {
		total += review.Rating
	}
	avg := float64(total) / float64(len(reviews))
	ok, err := r.store.SetBookConsensus(task.EntityID, &avg, len(reviews))
	if err != nil {
		return fmt.Errorf("store consensus: %w", err)
	}
	if !ok {
		slog.Info("skipping consensus for missing book", "book_id", task.EntityID)
	}
	return nil
}
