package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spothot/internal/platform/kafka/consumer"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	task := NewEnvelope(TypeWaitlistInsert, uuid.New())

	payload, err := task.Encode()
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.Type, decoded.Type)
	assert.Equal(t, task.IdentityID, decoded.IdentityID)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"id":"00000000-0000-0000-0000-000000000001"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestWorkerRoutesByType(t *testing.T) {
	worker := NewWorker()
	var inserts, promotes atomic.Int32
	worker.Register(TypeWaitlistInsert, func(context.Context, *Envelope) error {
		inserts.Add(1)
		return nil
	})
	worker.Register(TypeWaitlistPromote, func(context.Context, *Envelope) error {
		promotes.Add(1)
		return nil
	})

	require.NoError(t, worker.Process(context.Background(), NewEnvelope(TypeWaitlistInsert, uuid.New())))
	require.NoError(t, worker.Process(context.Background(), NewEnvelope(TypeWaitlistPromote, uuid.New())))
	assert.EqualValues(t, 1, inserts.Load())
	assert.EqualValues(t, 1, promotes.Load())
}

func TestWorkerUnknownType(t *testing.T) {
	worker := NewWorker()
	err := worker.Process(context.Background(), NewEnvelope("waitlist.unknown", uuid.New()))
	assert.Error(t, err)
}

func TestWorkerHandlePropagatesHandlerError(t *testing.T) {
	worker := NewWorker()
	worker.Register(TypeWaitlistPromote, func(context.Context, *Envelope) error {
		return errors.New("contended")
	})

	task := NewEnvelope(TypeWaitlistPromote, uuid.New())
	payload, err := task.Encode()
	require.NoError(t, err)

	// Handler failure must reach the consumer so the offset stays
	// uncommitted and the record is redelivered.
	err = worker.Handle(context.Background(), &consumer.Message{Value: payload})
	assert.Error(t, err)
}

func TestWorkerHandleDiscardsMalformedRecord(t *testing.T) {
	worker := NewWorker()
	err := worker.Handle(context.Background(), &consumer.Message{Value: []byte("garbage")})
	assert.NoError(t, err)
}

func TestMemoryDispatcherDelivers(t *testing.T) {
	worker := NewWorker()
	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	worker.Register(TypeWaitlistInsert, func(_ context.Context, task *Envelope) error {
		mu.Lock()
		seen[task.IdentityID] = true
		mu.Unlock()
		return nil
	})

	d := NewMemory(worker, 4)
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, d.Dispatch(context.Background(), NewEnvelope(TypeWaitlistInsert, ids[i])))
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		assert.True(t, seen[id])
	}
}

func TestMemoryDispatcherRedeliversUntilSuccess(t *testing.T) {
	worker := NewWorker()
	var attempts atomic.Int32
	worker.Register(TypeWaitlistPromote, func(context.Context, *Envelope) error {
		if attempts.Add(1) < 3 {
			return errors.New("contended")
		}
		return nil
	})

	d := NewMemory(worker, 1)
	require.NoError(t, d.Dispatch(context.Background(), NewEnvelope(TypeWaitlistPromote, uuid.New())))
	d.Close()

	assert.EqualValues(t, 3, attempts.Load())
}

func TestMemoryDispatcherDropsAfterBudget(t *testing.T) {
	worker := NewWorker()
	var attempts atomic.Int32
	worker.Register(TypeWaitlistPromote, func(context.Context, *Envelope) error {
		attempts.Add(1)
		return errors.New("permanent")
	})

	d := NewMemory(worker, 1)
	require.NoError(t, d.Dispatch(context.Background(), NewEnvelope(TypeWaitlistPromote, uuid.New())))
	d.Close()

	assert.EqualValues(t, memoryRedeliveries, attempts.Load())
}

func TestMemoryDispatcherRejectsAfterClose(t *testing.T) {
	d := NewMemory(NewWorker(), 1)
	d.Close()

	err := d.Dispatch(context.Background(), NewEnvelope(TypeWaitlistInsert, uuid.New()))
	assert.Error(t, err)
}

func TestMemoryDispatcherDispatchHonorsContext(t *testing.T) {
	// A worker that never finishes fills the queue; a cancelled context must
	// unblock the producer side.
	worker := NewWorker()
	block := make(chan struct{})
	worker.Register(TypeWaitlistInsert, func(context.Context, *Envelope) error {
		<-block
		return nil
	})

	d := NewMemory(worker, 1)
	t.Cleanup(func() {
		close(block)
		d.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for {
		if err := d.Dispatch(ctx, NewEnvelope(TypeWaitlistInsert, uuid.New())); err != nil {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			return
		}
	}
}
