package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"spothot/internal/referral/models"
	"spothot/pkg/platform/sentinel"
)

// InMemoryStore keeps referral edges in memory for tests and single-process runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	byReferee map[uuid.UUID]*models.Edge
}

// NewInMemory constructs an empty in-memory edge store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byReferee: make(map[uuid.UUID]*models.Edge)}
}

// Create records an edge. At most one edge may exist per referee.
func (s *InMemoryStore) Create(_ context.Context, edge *models.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byReferee[edge.RefereeID]; ok {
		return fmt.Errorf("referee already attributed: %w", sentinel.ErrAlreadyUsed)
	}
	clone := *edge
	s.byReferee[edge.RefereeID] = &clone
	return nil
}

// FindByReferee returns the edge naming the identity as referee, if any.
func (s *InMemoryStore) FindByReferee(_ context.Context, refereeID uuid.UUID) (*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edge, ok := s.byReferee[refereeID]
	if !ok {
		return nil, fmt.Errorf("referral edge not found: %w", sentinel.ErrNotFound)
	}
	clone := *edge
	return &clone, nil
}

// ListByReferrer returns every edge recorded for the referrer.
func (s *InMemoryStore) ListByReferrer(_ context.Context, referrerID uuid.UUID) ([]*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var edges []*models.Edge
	for _, edge := range s.byReferee {
		if edge.ReferrerID == referrerID {
			clone := *edge
			edges = append(edges, &clone)
		}
	}
	return edges, nil
}
