// Package tasks provides Redis-stream task queues, the consuming worker,
// and the periodic job scheduler.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/geollm/geollm/internal/llm"
	"github.com/geollm/geollm/internal/metrics"
)

// Queue names. Each domain gets its own stream so a slow LLM task never
// blocks an email.
const (
	QueueAuth = "auth"
	QueueGeo  = "geo"
	QueueLLM  = "llm"
)

const (
	streamPrefix = "tasks:"

	// DeadLetterStream receives poison messages from all queues.
	DeadLetterStream = "tasks:dlq"

	// MaxStreamLen is the approximate max length of each stream.
	MaxStreamLen = 100000

	// PublishTimeout bounds a fire-and-forget publish.
	PublishTimeout = 500 * time.Millisecond
)

// Task types.
const (
	TypeSendWelcomeEmail  = "auth.send_welcome_email"
	TypeSendPasswordReset = "auth.send_password_reset"
	TypeWarmGeoCache      = "geo.warm_cache"
	TypeGenerateReport    = "llm.generate_report"
)

// Task is the wire envelope carried on the streams.
type Task struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt int64          `json:"t"` // Unix milliseconds
}

// StreamForQueue maps a queue name to its Redis stream key.
func StreamForQueue(queue string) string {
	return streamPrefix + queue
}

// WelcomeEmailPayload builds the payload for auth.send_welcome_email.
// Producers and the handler share this shape.
func WelcomeEmailPayload(userID, email, username string) map[string]any {
	return map[string]any{
		"user_id":  userID,
		"email":    email,
		"username": username,
	}
}

// PasswordResetPayload builds the payload for auth.send_password_reset.
func PasswordResetPayload(userID, email, username, token string) map[string]any {
	return map[string]any{
		"user_id":  userID,
		"email":    email,
		"username": username,
		"token":    token,
	}
}

// WarmGeoCachePayload builds the payload for geo.warm_cache.
func WarmGeoCachePayload(intent *llm.Intent) map[string]any {
	return map[string]any{"intent": intent}
}

// ReportPayload builds the payload for llm.generate_report.
func ReportPayload(historyID, userID string) map[string]any {
	return map[string]any{
		"history_id": historyID,
		"user_id":    userID,
	}
}

// Publisher enqueues tasks onto the Redis streams.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a task publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "tasks.publisher"),
		metrics: recorder,
	}
}

// Publish adds a task to a queue synchronously.
// Satisfies service.TaskPublisher.
func (p *Publisher) Publish(ctx context.Context, queue, taskType string, payload map[string]any) error {
	task := Task{
		ID:         ulid.Make().String(),
		Type:       taskType,
		Payload:    payload,
		EnqueuedAt: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamForQueue(queue),
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		p.metrics.IncTaskPublished(queue, "dropped")
		return fmt.Errorf("xadd %s: %w", StreamForQueue(queue), err)
	}

	p.metrics.IncTaskPublished(queue, "success")
	return nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(queue, taskType string, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, queue, taskType, payload); err != nil {
			p.logger.Warn("failed to publish task",
				"queue", queue,
				"task_type", taskType,
				"error", err,
			)
		}
	}()
}
