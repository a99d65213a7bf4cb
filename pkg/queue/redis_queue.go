package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// TaskStatus tracks the lifecycle of a task in the redis backend. It
// lives in a hash next to the stream entry so attempts survive
// consumer restarts.
type TaskStatus struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	EntityID     string    `json:"entityId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RedisTaskQueue distributes tasks over a redis stream with a consumer
// group, so multiple API instances can share one worker pool.
type RedisTaskQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	taskTTL      time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	TaskTTL    time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisTaskQueue(cfg RedisQueueConfig) (*RedisTaskQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	taskTTL := cfg.TaskTTL
	if taskTTL <= 0 {
		taskTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisTaskQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		taskTTL:      taskTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

func (q *RedisTaskQueue) Enqueue(ctx context.Context, task Task) error {
	task, err := normalizeTask(task)
	if err != nil {
		return err
	}
	status := TaskStatus{
		ID:        task.ID,
		Kind:      task.Kind,
		EntityID:  task.EntityID,
		Status:    StatusQueued,
		CreatedAt: task.EnqueuedAt,
		UpdatedAt: task.EnqueuedAt,
	}
	if err := q.writeStatus(ctx, status); err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: taskValues(task),
	}).Err()
}

func (q *RedisTaskQueue) GetTask(ctx context.Context, taskID string) (TaskStatus, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return TaskStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.taskKey(taskID)).Result()
	if err != nil {
		return TaskStatus{}, false, err
	}
	if len(data) == 0 {
		return TaskStatus{}, false, nil
	}
	return decodeTaskStatus(taskID, data), true, nil
}

func (q *RedisTaskQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisTaskQueue) Close() error {
	return q.client.Close()
}

func (q *RedisTaskQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			// best-effort; errors will surface on consume
		}
	})
}

func (q *RedisTaskQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisTaskQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisTaskQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	task, ok := taskFromValues(msg.Values)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	status, err := q.markProcessing(ctx, task)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, task); err == nil {
		_ = q.markDone(ctx, task.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	} else {
		if status.Attempts >= q.maxRetries {
			_ = q.markFailed(ctx, task.ID, err.Error())
			q.ackAndDel(ctx, msg.ID)
			return
		}
		_ = q.markQueued(ctx, task.ID, err.Error())
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, task)
}

func (q *RedisTaskQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisTaskQueue) requeueAndAck(ctx context.Context, msgID string, task Task) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: taskValues(task),
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisTaskQueue) markProcessing(ctx context.Context, task Task) (TaskStatus, error) {
	status, _, err := q.GetTask(ctx, task.ID)
	if err != nil {
		return TaskStatus{}, err
	}
	if status.ID == "" {
		status = TaskStatus{ID: task.ID}
	}
	status.Kind = task.Kind
	status.EntityID = task.EntityID
	status.Attempts++
	status.Status = StatusProcessing
	status.UpdatedAt = time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = status.UpdatedAt
	}
	if err := q.writeStatus(ctx, status); err != nil {
		return TaskStatus{}, err
	}
	return status, nil
}

func (q *RedisTaskQueue) markQueued(ctx context.Context, taskID, errMsg string) error {
	status, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	status.Status = StatusQueued
	status.ErrorMessage = errMsg
	status.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, status)
}

func (q *RedisTaskQueue) markDone(ctx context.Context, taskID string) error {
	status, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	status.Status = StatusDone
	status.ErrorMessage = ""
	status.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, status)
}

func (q *RedisTaskQueue) markFailed(ctx context.Context, taskID, errMsg string) error {
	status, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	status.Status = StatusFailed
	status.ErrorMessage = errMsg
	status.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, status)
}

func (q *RedisTaskQueue) writeStatus(ctx context.Context, status TaskStatus) error {
	key := q.taskKey(status.ID)
	payload := map[string]any{
		"id":        status.ID,
		"kind":      status.Kind,
		"entityId":  status.EntityID,
		"status":    status.Status,
		"error":     status.ErrorMessage,
		"attempts":  strconv.Itoa(status.Attempts),
		"createdAt": status.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": status.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.taskTTL).Err()
	return nil
}

func (q *RedisTaskQueue) taskKey(taskID string) string {
	return fmt.Sprintf("task:%s:%s", q.stream, taskID)
}

func taskValues(task Task) map[string]any {
	return map[string]any{
		"task_id":     task.ID,
		"kind":        task.Kind,
		"entity_id":   task.EntityID,
		"text":        task.Text,
		"enqueued_at": task.EnqueuedAt.Format(time.RFC3339Nano),
	}
}

func taskFromValues(values map[string]any) (Task, bool) {
	id, _ := values["task_id"].(string)
	kind, _ := values["kind"].(string)
	entityID, _ := values["entity_id"].(string)
	if id == "" || kind == "" || entityID == "" {
		return Task{}, false
	}
	task := Task{ID: id, Kind: kind, EntityID: entityID}
	task.Text, _ = values["text"].(string)
	if v, _ := values["enqueued_at"].(string); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			task.EnqueuedAt = t
		}
	}
	return task, true
}

func decodeTaskStatus(taskID string, data map[string]string) TaskStatus {
	status := TaskStatus{ID: taskID}
	status.Kind = data["kind"]
	status.EntityID = data["entityId"]
	status.Status = data["status"]
	status.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			status.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			status.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			status.UpdatedAt = t
		}
	}
	return status
}
