package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu       sync.Mutex
	messages []*Message
	block    chan struct{}
}

func (s *captureSink) Deliver(_ context.Context, msg *Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestAsyncDeliversAndDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	n := NewAsync(sink)

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Send(context.Background(), ChallengeEmail("who@example.com", "Who", "123456")))
	}
	n.Close()

	assert.Equal(t, 5, sink.count())
}

func TestAsyncDropsWhenFull(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	n := NewAsync(sink, WithBuffer(1))

	// One message occupies the worker, one fills the buffer, the rest drop
	// without blocking the caller.
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Send(context.Background(), &Message{Subject: "s"}))
	}

	close(sink.block)
	n.Close()
	assert.LessOrEqual(t, sink.count(), 2)
}

func TestSendAfterClose(t *testing.T) {
	n := NewAsync(&captureSink{})
	n.Close()

	err := n.Send(context.Background(), &Message{Subject: "s"})
	assert.Error(t, err)
}

func TestSendNormalizesRecipients(t *testing.T) {
	sink := &captureSink{}
	n := NewAsync(sink)

	require.NoError(t, n.Send(context.Background(), &Message{
		Subject:    "s",
		Recipients: []string{" Ada@Example.com ", "ada@example.com", ""},
	}))
	n.Close()

	require.Equal(t, 1, sink.count())
	assert.Equal(t, []string{"ada@example.com"}, sink.messages[0].Recipients)
}

func TestChallengeEmail(t *testing.T) {
	msg := ChallengeEmail("ada@example.com", "Ada", "424242")
	assert.Equal(t, []string{"ada@example.com"}, msg.Recipients)
	assert.Contains(t, msg.Body, "424242")
	assert.Contains(t, msg.Body, "Ada")
}
