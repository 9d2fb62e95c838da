package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	platformstrings "spothot/pkg/platform/strings"
)

// Message is an outbound notification.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
}

// Sink delivers a message to its transport (SMTP relay, push gateway, a log
// in development).
type Sink interface {
	Deliver(ctx context.Context, msg *Message) error
}

// Notifier accepts messages for delivery.
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// ChallengeEmail builds the verification email carrying a challenge code.
func ChallengeEmail(recipient, name, code string) *Message {
	return &Message{
		Subject: "Verify your spot",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour verification code is %s. It expires in 10 minutes.\n",
			name, code,
		),
		Recipients: []string{recipient},
	}
}

// AsyncNotifier buffers messages and delivers them from a background
// goroutine so callers never block on the transport. A full buffer drops the
// message with a warning: notifications are best-effort and the caller's
// operation must not fail because email is slow. Close drains what was
// accepted.
type AsyncNotifier struct {
	sink   Sink
	queue  chan *Message
	logger *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures the AsyncNotifier.
type Option func(*AsyncNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *AsyncNotifier) {
		n.logger = logger
	}
}

// WithBuffer overrides the queue depth.
func WithBuffer(size int) Option {
	return func(n *AsyncNotifier) {
		if size > 0 {
			n.queue = make(chan *Message, size)
		}
	}
}

// NewAsync constructs a running notifier draining into sink.
func NewAsync(sink Sink, opts ...Option) *AsyncNotifier {
	n := &AsyncNotifier{
		sink:  sink,
		queue: make(chan *Message, 128),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}

	n.wg.Add(1)
	go n.run()
	return n
}

func (n *AsyncNotifier) Send(_ context.Context, msg *Message) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return fmt.Errorf("notifier is closed")
	}

	// Addresses are case-insensitive; never deliver twice to one mailbox.
	msg.Recipients = platformstrings.DedupeAndTrimLower(msg.Recipients)

	select {
	case n.queue <- msg:
		return nil
	default:
		n.logger.Warn("notification dropped, queue full",
			"subject", msg.Subject,
			"recipients", len(msg.Recipients),
		)
		return nil
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for msg := range n.queue {
		if err := n.sink.Deliver(context.Background(), msg); err != nil {
			n.logger.Error("notification delivery failed",
				"subject", msg.Subject,
				"error", err,
			)
		}
	}
}

// Close stops accepting messages and drains the queue before returning.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.queue)
	n.wg.Wait()
}

// LogSink writes notifications to the log instead of sending them. It is the
// development and test transport.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, msg *Message) error {
	s.logger.Info("notification",
		"subject", msg.Subject,
		"recipients", msg.Recipients,
		"body", msg.Body,
	)
	return nil
}
