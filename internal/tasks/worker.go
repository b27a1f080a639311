package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geollm/geollm/internal/metrics"
)

const (
	// ConsumerGroup is the Redis consumer group name shared by all workers.
	ConsumerGroup = "task_workers"

	// DefaultBatchSize is the max tasks read per iteration.
	DefaultBatchSize = 32

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max attempts per task before dead-lettering.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second
)

// HandlerFunc processes a single task.
type HandlerFunc func(ctx context.Context, task *Task) error

// Worker consumes tasks from the queue streams and dispatches them to
// registered handlers. Unhandled or repeatedly failing tasks go to the
// dead-letter stream.
type Worker struct {
	redis           *redis.Client
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	queues          []string
	handlers        map[string]HandlerFunc
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartIDs   map[string]string
	lastClaim       map[string]time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a task worker consuming the given queues.
func NewWorker(client *redis.Client, logger *slog.Logger, consumerID string, recorder metrics.Recorder, queues ...string) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if len(queues) == 0 {
		queues = []string{QueueAuth, QueueGeo, QueueLLM}
	}
	claimStarts := make(map[string]string, len(queues))
	for _, q := range queues {
		claimStarts[q] = "0-0"
	}
	return &Worker{
		redis:           client,
		logger:          logger.With("component", "tasks.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		queues:          queues,
		handlers:        make(map[string]HandlerFunc),
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartIDs:   claimStarts,
		lastClaim:       make(map[string]time.Time, len(queues)),
	}
}

// Handle registers a handler for a task type. Must be called before Run.
func (w *Worker) Handle(taskType string, fn HandlerFunc) {
	w.handlers[taskType] = fn
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	for _, queue := range w.queues {
		if err := w.ensureConsumerGroup(ctx, queue); err != nil {
			return fmt.Errorf("ensure consumer group for %s: %w", queue, err)
		}
	}

	w.logger.Info("task worker started", "queues", w.queues)

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("task worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("task worker stopping")
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight task.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("task worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("task worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("task worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

func (w *Worker) ensureConsumerGroup(ctx context.Context, queue string) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamForQueue(queue), ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and processes one batch across all queues.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	for _, queue := range w.queues {
		claimed, err := w.maybeClaimPending(ctx, queue)
		if err != nil {
			w.logger.Warn("failed to claim pending tasks", "queue", queue, "error", err)
		}
		if len(claimed) > 0 {
			w.dispatchMessages(ctx, queue, claimed)
		}
	}

	streams := make([]string, 0, len(w.queues)*2)
	for _, queue := range w.queues {
		streams = append(streams, StreamForQueue(queue))
	}
	for range w.queues {
		streams = append(streams, ">")
	}

	result, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  streams,
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()

	if err == redis.Nil || len(result) == 0 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("xreadgroup: %w", err)
	}

	for _, stream := range result {
		queue := stream.Stream[len(streamPrefix):]
		w.dispatchMessages(ctx, queue, stream.Messages)
	}

	return nil
}

// dispatchMessages runs each task through its handler with retries,
// dead-lettering poison messages, and acknowledges everything processed.
func (w *Worker) dispatchMessages(ctx context.Context, queue string, messages []redis.XMessage) {
	stream := StreamForQueue(queue)
	acked := make([]string, 0, len(messages))

	for _, msg := range messages {
		task, err := parseTask(msg)
		if err != nil {
			w.deadLetter(ctx, stream, msg, "unmarshal_error", err.Error())
			w.metrics.IncTaskProcessed(queue, "dead_lettered")
			acked = append(acked, msg.ID)
			continue
		}

		handler, ok := w.handlers[task.Type]
		if !ok {
			w.deadLetter(ctx, stream, msg, "unknown_type", task.Type)
			w.metrics.IncTaskProcessed(queue, "dead_lettered")
			acked = append(acked, msg.ID)
			continue
		}

		if err := w.runWithRetry(ctx, handler, task); err != nil {
			if errors.Is(err, context.Canceled) {
				// Leave unacked so another consumer picks it up
				break
			}
			w.deadLetter(ctx, stream, msg, "handler_failed", err.Error())
			w.metrics.IncTaskProcessed(queue, "failed")
			acked = append(acked, msg.ID)
			continue
		}

		w.metrics.IncTaskProcessed(queue, "success")
		acked = append(acked, msg.ID)
	}

	if len(acked) > 0 {
		if err := w.redis.XAck(ctx, stream, ConsumerGroup, acked...).Err(); err != nil {
			w.logger.Error("xack failed", "queue", queue, "error", err)
		}
	}
}

// runWithRetry attempts a handler with exponential backoff.
func (w *Worker) runWithRetry(ctx context.Context, handler HandlerFunc, task *Task) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := handler(ctx, task); err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) {
				return err
			}
			backoff := time.Duration(1<<attempt) * time.Second
			w.logger.Warn("task failed, retrying",
				"task_id", task.ID,
				"task_type", task.Type,
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds(),
				"error", err,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return nil
	}

	return lastErr
}

func (w *Worker) maybeClaimPending(ctx context.Context, queue string) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	// Throttle per queue: one queue's scan must not starve the others
	if last := w.lastClaim[queue]; !last.IsZero() && time.Since(last) < w.claimInterval {
		return nil, nil
	}

	w.lastClaim[queue] = time.Now()
	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamForQueue(queue),
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartIDs[queue],
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartIDs[queue] = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	for _, queue := range w.queues {
		groups, err := w.redis.XInfoGroups(ctx, StreamForQueue(queue)).Result()
		if err != nil {
			continue
		}
		for _, group := range groups {
			if group.Name == ConsumerGroup {
				w.metrics.SetQueueDepth(queue, group.Pending+group.Lag)
				break
			}
		}
	}
}

// deadLetter moves a poison message to the dead-letter stream.
func (w *Worker) deadLetter(ctx context.Context, stream string, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering task",
		"message_id", msg.ID,
		"stream", stream,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  stream,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()

	if err != nil {
		w.logger.Error("failed to write to dead-letter stream",
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// parseTask extracts the task envelope from a stream message.
func parseTask(msg redis.XMessage) (*Task, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, errors.New("payload field missing or not a string")
	}

	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, err
	}
	if task.Type == "" {
		return nil, errors.New("task type is empty")
	}
	return &task, nil
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		err.Error() == "BUSYGROUP")
}
