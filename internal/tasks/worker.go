package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"spothot/internal/platform/kafka/consumer"
	"spothot/internal/tasks/metrics"
)

// HandlerFunc processes one task. Returning an error leaves the task
// uncommitted so delivery retries it; handlers must tolerate replays.
type HandlerFunc func(ctx context.Context, task *Envelope) error

// Worker routes task envelopes to registered handlers. It implements
// consumer.Handler so it can sit directly behind a Kafka consumer group, and
// Process is called inline by the in-process dispatcher.
type Worker struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{handlers: make(map[string]HandlerFunc)}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Register binds a handler to a task type. Later registrations replace
// earlier ones.
func (w *Worker) Register(taskType string, fn HandlerFunc) {
	w.handlers[taskType] = fn
}

// Process routes a task to its handler.
func (w *Worker) Process(ctx context.Context, task *Envelope) error {
	fn, ok := w.handlers[task.Type]
	if !ok {
		return fmt.Errorf("no handler for task type %q", task.Type)
	}

	if err := fn(ctx, task); err != nil {
		if w.metrics != nil {
			w.metrics.Failed.WithLabelValues(task.Type).Inc()
		}
		w.logger.Warn("task handler failed",
			"task_id", task.ID,
			"task_type", task.Type,
			"identity_id", task.IdentityID,
			"error", err,
		)
		return err
	}

	if w.metrics != nil {
		w.metrics.Processed.WithLabelValues(task.Type).Inc()
	}
	w.logger.Debug("task processed",
		"task_id", task.ID,
		"task_type", task.Type,
		"identity_id", task.IdentityID,
	)
	return nil
}

// Handle decodes a consumed Kafka record and routes it. A decode failure is
// logged and committed: a malformed record can never succeed, so redelivering
// it would wedge the partition.
func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	task, err := Decode(msg.Value)
	if err != nil {
		w.logger.Error("discarding malformed task record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	return w.Process(ctx, task)
}
