package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spothot/internal/tasks/metrics"
)

// Dispatcher hands a task to the delivery layer. Implementations guarantee
// at-least-once delivery with no ordering.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *Envelope) error
}

// memory dispatcher redelivery bounds.
const (
	memoryRedeliveries = 5
	memoryBackoff      = 50 * time.Millisecond
)

// MemoryDispatcher delivers tasks to the worker in-process through a buffered
// channel. It stands in for the broker in tests and single-process runs:
// failed tasks are retried with backoff up to the redelivery bound, then
// dropped with an error log.
type MemoryDispatcher struct {
	worker  *Worker
	tasks   chan *Envelope
	logger  *slog.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// MemoryOption configures the MemoryDispatcher.
type MemoryOption func(*MemoryDispatcher)

func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(d *MemoryDispatcher) {
		d.logger = logger
	}
}

func WithMemoryMetrics(m *metrics.Metrics) MemoryOption {
	return func(d *MemoryDispatcher) {
		d.metrics = m
	}
}

// NewMemory constructs a running in-process dispatcher with the given number
// of worker goroutines.
func NewMemory(worker *Worker, concurrency int, opts ...MemoryOption) *MemoryDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	d := &MemoryDispatcher{
		worker: worker,
		tasks:  make(chan *Envelope, 256),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.run()
	}
	return d
}

func (d *MemoryDispatcher) Dispatch(ctx context.Context, task *Envelope) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.tasks <- task:
		if d.metrics != nil {
			d.metrics.Dispatched.WithLabelValues(task.Type).Inc()
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch task: %w", ctx.Err())
	}
}

func (d *MemoryDispatcher) run() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.deliver(task)
	}
}

// deliver retries a failing task inline. Replays are safe because every
// handler is idempotent.
func (d *MemoryDispatcher) deliver(task *Envelope) {
	var err error
	for attempt := 0; attempt < memoryRedeliveries; attempt++ {
		if attempt > 0 {
			time.Sleep(memoryBackoff << (attempt - 1))
		}
		if err = d.worker.Process(context.Background(), task); err == nil {
			return
		}
	}

	if d.metrics != nil {
		d.metrics.Dropped.WithLabelValues(task.Type).Inc()
	}
	d.logger.Error("task dropped after redelivery budget",
		"task_id", task.ID,
		"task_type", task.Type,
		"identity_id", task.IdentityID,
		"error", err,
	)
}

// Close stops accepting tasks and drains the queue before returning.
func (d *MemoryDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.tasks)
	d.wg.Wait()
}
