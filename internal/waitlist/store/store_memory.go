package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"spothot/internal/waitlist/models"
	"spothot/pkg/platform/sentinel"
)

// Error Contract:
// - Find methods return ErrNotFound (wrapped) for missing entries.
// - Insert returns ErrAlreadyUsed when the identity already has an entry and
//   ErrConflict when the position is taken.
// - Move and Swap return ErrConflict when the observed positions no longer
//   match; callers re-read state and retry.

// InMemoryStore keeps waitlist entries in memory. A single mutex serializes
// every mutation, so Move and Swap are atomic without a scratch position.
type InMemoryStore struct {
	mu         sync.RWMutex
	byIdentity map[uuid.UUID]*models.Entry
	byPosition map[int]uuid.UUID
}

// NewInMemory constructs an empty in-memory entry store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byIdentity: make(map[uuid.UUID]*models.Entry),
		byPosition: make(map[int]uuid.UUID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIdentity[entry.IdentityID]; ok {
		return fmt.Errorf("identity already on waitlist: %w", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.byPosition[entry.Position]; ok {
		return fmt.Errorf("position %d taken: %w", entry.Position, sentinel.ErrConflict)
	}

	clone := *entry
	s.byIdentity[entry.IdentityID] = &clone
	s.byPosition[entry.Position] = entry.IdentityID
	return nil
}

func (s *InMemoryStore) FindByIdentity(_ context.Context, identityID uuid.UUID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byIdentity[identityID]
	if !ok {
		return nil, fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	clone := *entry
	return &clone, nil
}

func (s *InMemoryStore) FindByPosition(_ context.Context, position int) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identityID, ok := s.byPosition[position]
	if !ok {
		return nil, fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	clone := *s.byIdentity[identityID]
	return &clone, nil
}

// MaxPosition returns the worst live position. ok is false when the waitlist
// is empty.
func (s *InMemoryStore) MaxPosition(_ context.Context) (max int, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for position := range s.byPosition {
		if position > max {
			max = position
			ok = true
		}
	}
	return max, ok, nil
}

// Move relocates the identity's entry from one position to a free one. The
// from position is an optimistic check: if the entry moved meanwhile, or the
// target is occupied, the caller gets ErrConflict and retries on fresh state.
func (s *InMemoryStore) Move(_ context.Context, identityID uuid.UUID, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byIdentity[identityID]
	if !ok {
		return fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	if entry.Position != from {
		return fmt.Errorf("entry moved to %d since read: %w", entry.Position, sentinel.ErrConflict)
	}
	if _, taken := s.byPosition[to]; taken {
		return fmt.Errorf("position %d taken: %w", to, sentinel.ErrConflict)
	}

	delete(s.byPosition, from)
	entry.Position = to
	s.byPosition[to] = identityID
	return nil
}

// Swap exchanges the positions of the mover and the occupant. Both observed
// positions are optimistic checks; any mismatch returns ErrConflict without
// partial writes.
func (s *InMemoryStore) Swap(_ context.Context, moverID uuid.UUID, moverFrom int, occupantID uuid.UUID, occupantFrom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mover, ok := s.byIdentity[moverID]
	if !ok {
		return fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	occupant, ok := s.byIdentity[occupantID]
	if !ok {
		return fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	if mover.Position != moverFrom || occupant.Position != occupantFrom {
		return fmt.Errorf("positions changed since read: %w", sentinel.ErrConflict)
	}

	mover.Position, occupant.Position = occupantFrom, moverFrom
	s.byPosition[mover.Position] = moverID
	s.byPosition[occupant.Position] = occupantID
	return nil
}

// List returns all entries ordered best-first.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.Entry, 0, len(s.byIdentity))
	for _, entry := range s.byIdentity {
		clone := *entry
		entries = append(entries, &clone)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
	return entries, nil
}
