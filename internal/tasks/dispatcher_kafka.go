package tasks

import (
	"context"
	"fmt"

	"spothot/internal/platform/kafka/producer"
	"spothot/internal/tasks/metrics"
)

// KafkaDispatcher publishes task envelopes to the task topic. Records are
// keyed by identity so one identity's tasks land on one partition; handlers
// still tolerate reordering because consumer groups rebalance.
type KafkaDispatcher struct {
	producer *producer.Producer
	topic    string
	metrics  *metrics.Metrics
}

// KafkaOption configures the KafkaDispatcher.
type KafkaOption func(*KafkaDispatcher)

func WithKafkaMetrics(m *metrics.Metrics) KafkaOption {
	return func(d *KafkaDispatcher) {
		d.metrics = m
	}
}

func NewKafka(p *producer.Producer, topic string, opts ...KafkaOption) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer: p,
		topic:    topic,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch publishes synchronously and returns once the broker acknowledges,
// so a successful Dispatch means the task survives a process crash.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, task *Envelope) error {
	payload, err := task.Encode()
	if err != nil {
		return err
	}

	msg := &producer.Message{
		Topic: d.topic,
		Key:   []byte(task.IdentityID.String()),
		Value: payload,
		Headers: map[string]string{
			"task-type": task.Type,
		},
	}
	if err := d.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("dispatch task %s: %w", task.Type, err)
	}

	if d.metrics != nil {
		d.metrics.Dispatched.WithLabelValues(task.Type).Inc()
	}
	return nil
}
