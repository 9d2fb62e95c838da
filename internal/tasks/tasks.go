package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task types routed by the worker.
const (
	TypeWaitlistInsert  = "waitlist.insert"
	TypeWaitlistPromote = "waitlist.promote"
)

// Envelope is the wire form of an asynchronous task. Delivery is
// at-least-once and unordered, so every handler must be idempotent.
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	IdentityID uuid.UUID `json:"identity_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEnvelope builds a task envelope for the given identity.
func NewEnvelope(taskType string, identityID uuid.UUID) *Envelope {
	return &Envelope{
		ID:         uuid.New(),
		Type:       taskType,
		IdentityID: identityID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode task envelope: %w", err)
	}
	return payload, nil
}

// Decode parses an envelope off the wire.
func Decode(payload []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode task envelope: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("task envelope missing type")
	}
	return &envelope, nil
}
