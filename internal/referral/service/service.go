package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	identitymodels "spothot/internal/identity/models"
	"spothot/internal/referral/models"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/platform/sentinel"
)

// EdgeStore defines the persistence interface for referral edges.
// Error Contract: FindByReferee returns sentinel.ErrNotFound (wrapped) when no
// edge exists; Create returns sentinel.ErrAlreadyUsed when the referee is
// already attributed.
type EdgeStore interface {
	Create(ctx context.Context, edge *models.Edge) error
	FindByReferee(ctx context.Context, refereeID uuid.UUID) (*models.Edge, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Edge, error)
}

// IdentityStore is the slice of the identity store attribution needs.
type IdentityStore interface {
	FindByReferralCode(ctx context.Context, code string) (*identitymodels.Identity, error)
	IncrementReferralCount(ctx context.Context, id uuid.UUID) error
}

// Service attributes referees to referrers.
type Service struct {
	edges      EdgeStore
	identities IdentityStore
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

func NewService(edges EdgeStore, identities IdentityStore, opts ...Option) *Service {
	svc := &Service{
		edges:      edges,
		identities: identities,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Attribute resolves referralCode to its owner, increments that owner's
// referral count by exactly one, and records the edge. It runs once per
// referee, at registration.
//
// The referrer may be unverified; codes are live from the moment the owner
// registers. Self-referrals and second attributions of the same referee are
// rejected before any count is touched.
func (s *Service) Attribute(ctx context.Context, referralCode string, refereeID uuid.UUID) (*models.Edge, error) {
	referrer, err := s.identities.FindByReferralCode(ctx, referralCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown referral code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve referral code")
	}

	if referrer.ID == refereeID {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot refer yourself")
	}

	edge := &models.Edge{
		ReferrerID: referrer.ID,
		RefereeID:  refereeID,
		CreatedAt:  s.now(),
	}
	if err := s.edges.Create(ctx, edge); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "referee already attributed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record referral edge")
	}

	if err := s.identities.IncrementReferralCount(ctx, referrer.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "increment referral count")
	}

	s.logger.Info("referral attributed",
		"referrer_id", referrer.ID,
		"referee_id", refereeID,
	)
	return edge, nil
}

// ReferrerOf returns the edge naming identityID as referee, or nil when the
// identity registered unreferred.
func (s *Service) ReferrerOf(ctx context.Context, identityID uuid.UUID) (*models.Edge, error) {
	edge, err := s.edges.FindByReferee(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load referral edge")
	}
	return edge, nil
}

// Referrals lists every edge recorded for the referrer.
func (s *Service) Referrals(ctx context.Context, referrerID uuid.UUID) ([]*models.Edge, error) {
	edges, err := s.edges.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list referral edges")
	}
	return edges, nil
}
