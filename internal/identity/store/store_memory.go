package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"spothot/internal/identity/models"
	"spothot/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return ErrAlreadyUsed when a unique value (email) is taken
// - Return ErrConflict when a generated referral code collides
// - Return nil for successful operations

// InMemoryStore keeps identities in memory for tests and single-process runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*models.Identity
	byEmail    map[string]uuid.UUID
	byCode     map[string]uuid.UUID
}

// NewInMemory constructs an empty in-memory identity store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		identities: make(map[uuid.UUID]*models.Identity),
		byEmail:    make(map[string]uuid.UUID),
		byCode:     make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[identity.Email]; ok {
		return fmt.Errorf("email %q taken: %w", identity.Email, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.byCode[identity.ReferralCode]; ok {
		return fmt.Errorf("referral code collision: %w", sentinel.ErrConflict)
	}

	clone := *identity
	s.identities[identity.ID] = &clone
	s.byEmail[identity.Email] = identity.ID
	s.byCode[identity.ReferralCode] = identity.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	return s.find(id)
}

// FindByReferralCode resolves a referral code to its owner. Unverified owners
// are returned on purpose: referral codes exist before verification completes.
func (s *InMemoryStore) FindByReferralCode(_ context.Context, code string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	return s.find(id)
}

// find returns a copy so callers cannot mutate store state without Save-like calls.
// Soft-deleted rows are invisible.
func (s *InMemoryStore) find(id uuid.UUID) (*models.Identity, error) {
	identity, ok := s.identities[id]
	if !ok || identity.Deleted {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	clone := *identity
	return &clone, nil
}

// MarkVerified flips the verified flag. Calling it on an already verified
// identity is a no-op.
func (s *InMemoryStore) MarkVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok || identity.Deleted {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	identity.Verified = true
	return nil
}

// IncrementReferralCount adds exactly one to the identity's referral count.
func (s *InMemoryStore) IncrementReferralCount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok || identity.Deleted {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	identity.ReferralCount++
	return nil
}

// Delete removes the row entirely. Used only as the registration compensating
// action; product-facing removal goes through SoftDelete.
func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	delete(s.byEmail, identity.Email)
	delete(s.byCode, identity.ReferralCode)
	delete(s.identities, id)
	return nil
}

// SoftDelete flags the identity as deleted without removing the row.
func (s *InMemoryStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok || identity.Deleted {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	identity.Deleted = true
	return nil
}
