package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue distributes tasks over a durable RabbitMQ queue. Delivery
// headers carry the attempt count so retries survive broker restarts.
type AMQPQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	maxRetries int
}

type AMQPQueueConfig struct {
	URL        string
	Queue      string
	MaxRetries int
}

func NewAMQPQueue(cfg AMQPQueueConfig) (*AMQPQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	name := strings.TrimSpace(cfg.Queue)
	if name == "" {
		return nil, errors.New("amqp queue name required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &AMQPQueue{
		conn:       conn,
		channel:    channel,
		queue:      name,
		maxRetries: maxRetries,
	}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) error {
	task, err := normalizeTask(task)
	if err != nil {
		return err
	}
	return q.publish(ctx, task, 0)
}

func (q *AMQPQueue) publish(ctx context.Context, task Task, attempts int) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Headers:      amqp.Table{"attempts": int32(attempts)},
		Body:         body,
	})
}

func (q *AMQPQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.channel.Qos(concurrency, 0, false); err != nil {
		slog.Error("amqp qos", "error", err)
	}
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		slog.Error("amqp consume", "queue", q.queue, "error", err)
		return
	}
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, deliveries, handler)
	}
}

func (q *AMQPQueue) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil || task.Kind == "" || task.EntityID == "" {
		_ = d.Nack(false, false)
		return
	}
	attempts := deliveryAttempts(d) + 1
	err := handler(ctx, task)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	if attempts >= q.maxRetries {
		slog.Error("task failed after retries",
			"task_id", task.ID,
			"kind", task.Kind,
			"entity_id", task.EntityID,
			"attempts", attempts,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}
	// republish with the bumped attempt count, then drop the original
	if pubErr := q.publish(ctx, task, attempts); pubErr != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deliveryAttempts(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers["attempts"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
