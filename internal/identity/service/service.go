package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"spothot/internal/identity/metrics"
	"spothot/internal/identity/models"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/platform/sentinel"
	"spothot/pkg/token"
)

// Store defines the persistence interface for identity data.
// Error Contract: Find methods return sentinel.ErrNotFound (wrapped) when the
// entity doesn't exist or is soft-deleted; Create returns ErrAlreadyUsed for a
// taken email and ErrConflict for a referral code collision.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Identity, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	IncrementReferralCount(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service owns identity creation and lookups.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	svc := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Create registers a new identity with a freshly assigned referral code.
// The code is drawn at random and re-drawn on store collision; with an 8-char
// code the expected number of attempts stays at one for any realistic
// waitlist size, so the loop is unbounded on purpose.
func (s *Service) Create(ctx context.Context, name, email string) (*models.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}

	for {
		code, err := token.New(token.ReferralCodeLength)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate referral code")
		}

		identity := &models.Identity{
			ID:           uuid.New(),
			Name:         name,
			Email:        email,
			ReferralCode: code,
			CreatedAt:    s.now(),
		}

		err = s.store.Create(ctx, identity)
		if err == nil {
			s.logger.Info("identity created", "identity_id", identity.ID, "email", email)
			if s.metrics != nil {
				s.metrics.IncrementIdentitiesCreated()
			}
			return identity, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			// Referral code collision; draw again.
			if s.metrics != nil {
				s.metrics.IncrementReferralCodeRetries()
			}
			continue
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeValidation, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create identity")
	}
}

func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookup(err)
	}
	return identity, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateLookup(err)
	}
	return identity, nil
}

// FindByReferralCode resolves a referral code to its owner, verified or not.
func (s *Service) FindByReferralCode(ctx context.Context, code string) (*models.Identity, error) {
	identity, err := s.store.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, translateLookup(err)
	}
	return identity, nil
}

// MarkVerified flips the one-way verified flag. Idempotent.
func (s *Service) MarkVerified(ctx context.Context, id uuid.UUID) error {
	if err := s.store.MarkVerified(ctx, id); err != nil {
		return translateLookup(err)
	}
	if s.metrics != nil {
		s.metrics.IncrementIdentitiesVerified()
	}
	return nil
}

// Rollback hard-deletes a freshly created identity. It is the compensating
// action for a registration whose referral attribution failed; nothing else
// may hard-delete identities.
func (s *Service) Rollback(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return translateLookup(err)
	}
	s.logger.Info("identity rolled back", "identity_id", id)
	if s.metrics != nil {
		s.metrics.IncrementRegistrationRollbacks()
	}
	return nil
}

func translateLookup(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "identity not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "identity store failure")
}
