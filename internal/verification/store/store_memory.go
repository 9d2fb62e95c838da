package store

import (
	"context"
	"fmt"
	"sync"

	"spothot/internal/verification/models"
	"spothot/pkg/platform/sentinel"
)

// InMemoryStore keeps challenges in memory for tests and single-process runs.
// Multiple outstanding challenges per identity are allowed (resend).
type InMemoryStore struct {
	mu         sync.RWMutex
	challenges map[string]*models.Challenge
}

// NewInMemory constructs an empty in-memory challenge store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{challenges: make(map[string]*models.Challenge)}
}

func (s *InMemoryStore) Create(_ context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[challenge.Code]; ok {
		return fmt.Errorf("challenge code collision: %w", sentinel.ErrConflict)
	}
	clone := *challenge
	s.challenges[challenge.Code] = &clone
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[code]
	if !ok {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	clone := *challenge
	return &clone, nil
}
