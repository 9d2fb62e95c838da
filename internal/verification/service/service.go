package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	identitymodels "spothot/internal/identity/models"
	"spothot/internal/verification/models"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/platform/sentinel"
	"spothot/pkg/token"
)

// ChallengeStore defines the persistence interface for challenges.
// Error Contract: FindByCode returns sentinel.ErrNotFound (wrapped) for
// unknown codes; Create returns sentinel.ErrConflict on a code collision.
type ChallengeStore interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	FindByCode(ctx context.Context, code string) (*models.Challenge, error)
}

// IdentityStore is the slice of the identity store this service needs.
type IdentityStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identitymodels.Identity, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// RedeemStatus reports how a redemption concluded.
type RedeemStatus string

const (
	// StatusVerified means this call flipped the identity to verified; the
	// caller owns triggering ranking side effects exactly once.
	StatusVerified RedeemStatus = "verified"
	// StatusAlreadyVerified is an idempotent success: the identity was
	// verified before this call and no side effects may fire again.
	StatusAlreadyVerified RedeemStatus = "already_verified"
)

// RedeemResult is the outcome of a successful redemption.
type RedeemResult struct {
	IdentityID uuid.UUID
	Status     RedeemStatus
}

const defaultWindow = 10 * time.Minute

// Service issues and redeems verification challenges.
type Service struct {
	challenges ChallengeStore
	identities IdentityStore
	window     time.Duration
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

// WithWindow overrides the redemption window. Zero or negative keeps the
// 10 minute default.
func WithWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock overrides the time source, used by tests to pin the window edge.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(challenges ChallengeStore, identities IdentityStore, opts ...Option) *Service {
	svc := &Service{
		challenges: challenges,
		identities: identities,
		window:     defaultWindow,
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

// IssueChallenge creates a fresh challenge for the identity and returns its
// code. Codes are re-drawn on collision. Issuing again for the same identity
// (resend) leaves earlier challenges redeemable until they age out.
func (s *Service) IssueChallenge(ctx context.Context, identityID uuid.UUID) (string, error) {
	if _, err := s.identities.FindByID(ctx, identityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeNotFound, "identity not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load identity")
	}

	for {
		code, err := token.New(token.ChallengeCodeLength)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge code")
		}

		challenge := &models.Challenge{
			Code:       code,
			IdentityID: identityID,
			CreatedAt:  s.now(),
		}
		err = s.challenges.Create(ctx, challenge)
		if err == nil {
			s.logger.Info("challenge issued", "identity_id", identityID)
			return code, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "store challenge")
	}
}

// Redeem verifies the identity bound to code.
//
// Outcomes:
//   - unknown code: not_found
//   - identity already verified: success with StatusAlreadyVerified, no side effects
//   - code older than the window: expired (the exact boundary is exclusive:
//     a code aged exactly the window still redeems)
//   - otherwise the identity is marked verified and StatusVerified tells the
//     orchestrator to fire ranking side effects exactly once
func (s *Service) Redeem(ctx context.Context, code string) (*RedeemResult, error) {
	challenge, err := s.challenges.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown verification code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load challenge")
	}

	identity, err := s.identities.FindByID(ctx, challenge.IdentityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load identity")
	}

	if identity.Verified {
		return &RedeemResult{IdentityID: identity.ID, Status: StatusAlreadyVerified}, nil
	}

	if s.now().Sub(challenge.CreatedAt) > s.window {
		return nil, dErrors.New(dErrors.CodeExpired, "verification code expired")
	}

	if err := s.identities.MarkVerified(ctx, identity.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark identity verified")
	}

	s.logger.Info("identity verified", "identity_id", identity.ID)
	return &RedeemResult{IdentityID: identity.ID, Status: StatusVerified}, nil
}
