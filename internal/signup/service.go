package signup

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	identitymodels "spothot/internal/identity/models"
	"spothot/internal/notification"
	referralmodels "spothot/internal/referral/models"
	"spothot/internal/tasks"
	verification "spothot/internal/verification/service"
	waitlistmodels "spothot/internal/waitlist/models"
	waitlist "spothot/internal/waitlist/service"
	dErrors "spothot/pkg/domain-errors"
)

// IdentityService is the slice of the identity service signup drives.
type IdentityService interface {
	Create(ctx context.Context, name, email string) (*identitymodels.Identity, error)
	FindByEmail(ctx context.Context, email string) (*identitymodels.Identity, error)
	Rollback(ctx context.Context, id uuid.UUID) error
}

// ChallengeService issues and redeems verification challenges.
type ChallengeService interface {
	IssueChallenge(ctx context.Context, identityID uuid.UUID) (string, error)
	Redeem(ctx context.Context, code string) (*verification.RedeemResult, error)
}

// ReferralService attributes referees to referrers.
type ReferralService interface {
	Attribute(ctx context.Context, referralCode string, refereeID uuid.UUID) (*referralmodels.Edge, error)
	ReferrerOf(ctx context.Context, identityID uuid.UUID) (*referralmodels.Edge, error)
}

// Ranker is the slice of the waitlist service the task handlers drive.
type Ranker interface {
	InsertAtTail(ctx context.Context, identityID uuid.UUID) (*waitlistmodels.Entry, error)
	Promote(ctx context.Context, identityID uuid.UUID) (waitlist.Outcome, error)
}

// PositionReader resolves an identity's current waitlist slot.
type PositionReader interface {
	Position(ctx context.Context, identityID uuid.UUID) (*waitlistmodels.Entry, error)
}

// Service orchestrates the signup flow: registration with optional referral
// attribution, challenge issue and resend, and the post-verification fan-out
// to the task queue.
type Service struct {
	identities IdentityService
	challenges ChallengeService
	referrals  ReferralService
	dispatcher tasks.Dispatcher
	notifier   notification.Notifier
	positions  PositionReader
	logger     *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPositionReader enables the Lookup read path.
func WithPositionReader(positions PositionReader) Option {
	return func(s *Service) {
		s.positions = positions
	}
}

func NewService(
	identities IdentityService,
	challenges ChallengeService,
	referrals ReferralService,
	dispatcher tasks.Dispatcher,
	notifier notification.Notifier,
	opts ...Option,
) *Service {
	svc := &Service{
		identities: identities,
		challenges: challenges,
		referrals:  referrals,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// RegisterResult is the outcome of a successful registration.
type RegisterResult struct {
	Identity *identitymodels.Identity
	// ChallengeCode is the issued verification code. The transport layer
	// must never echo it to the registrant; it reaches them by email only.
	ChallengeCode string
}

// Register creates an identity, attributes the optional referral, issues the
// verification challenge, and emails it.
//
// Referral attribution is all-or-nothing: when referralCode names no
// identity, the freshly created identity is rolled back and the whole
// registration fails with CodeInvalidReferral, as if it never happened.
func (s *Service) Register(ctx context.Context, name, email, referralCode string) (*RegisterResult, error) {
	identity, err := s.identities.Create(ctx, name, email)
	if err != nil {
		return nil, err
	}

	if referralCode != "" {
		if _, err := s.referrals.Attribute(ctx, referralCode, identity.ID); err != nil {
			if rbErr := s.identities.Rollback(ctx, identity.ID); rbErr != nil {
				s.logger.Error("registration rollback failed",
					"identity_id", identity.ID,
					"error", rbErr,
				)
			}
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Wrap would keep the inner not_found code; the registrant
				// must see invalid_referral.
				return nil, &dErrors.Error{
					Code:    dErrors.CodeInvalidReferral,
					Message: "invalid referral code",
					Err:     err,
				}
			}
			return nil, err
		}
	}

	code, err := s.challenges.IssueChallenge(ctx, identity.ID)
	if err != nil {
		// The identity stays; a resend can still complete verification.
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue verification challenge")
	}

	s.sendChallenge(ctx, identity, code)
	s.logger.Info("registration accepted",
		"identity_id", identity.ID,
		"referred", referralCode != "",
	)
	return &RegisterResult{Identity: identity, ChallengeCode: code}, nil
}

// ResendChallenge issues a fresh challenge for an unverified identity and
// emails it. Earlier codes stay redeemable until they age out.
func (s *Service) ResendChallenge(ctx context.Context, email string) error {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if identity.Verified {
		return dErrors.New(dErrors.CodeValidation, "identity already verified")
	}

	code, err := s.challenges.IssueChallenge(ctx, identity.ID)
	if err != nil {
		return err
	}
	s.sendChallenge(ctx, identity, code)
	return nil
}

// HandleRedeem redeems a verification code and, when this call performed the
// verification, enqueues the ranking side effects: a tail insert for the new
// identity and a promotion for its referrer, if any. A repeat redemption
// reports already_verified and enqueues nothing, so the side effects fire at
// most once per identity on the happy path; the handlers are idempotent for
// the crash windows in between.
func (s *Service) HandleRedeem(ctx context.Context, code string) (*verification.RedeemResult, error) {
	result, err := s.challenges.Redeem(ctx, code)
	if err != nil {
		return nil, err
	}
	if result.Status != verification.StatusVerified {
		return result, nil
	}

	if err := s.dispatcher.Dispatch(ctx, tasks.NewEnvelope(tasks.TypeWaitlistInsert, result.IdentityID)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "enqueue waitlist insert")
	}

	edge, err := s.referrals.ReferrerOf(ctx, result.IdentityID)
	if err != nil {
		return nil, err
	}
	if edge != nil {
		if err := s.dispatcher.Dispatch(ctx, tasks.NewEnvelope(tasks.TypeWaitlistPromote, edge.ReferrerID)); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "enqueue referrer promotion")
		}
	}

	return result, nil
}

// Status reports an identity's verification and waitlist state.
type Status struct {
	Identity *identitymodels.Identity
	Position int
	Listed   bool
}

// Lookup resolves an identity by email together with its waitlist slot.
// Unverified identities report Listed false; Position is meaningless then.
func (s *Service) Lookup(ctx context.Context, email string) (*Status, error) {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	status := &Status{Identity: identity}
	if s.positions == nil {
		return status, nil
	}
	entry, err := s.positions.Position(ctx, identity.ID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return status, nil
		}
		return nil, err
	}
	status.Position = entry.Position
	status.Listed = true
	return status, nil
}

// sendChallenge emails the verification code. Best-effort: a failed send is
// logged and the registrant falls back to resend.
func (s *Service) sendChallenge(ctx context.Context, identity *identitymodels.Identity, code string) {
	msg := notification.ChallengeEmail(identity.Email, identity.Name, code)
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("challenge email not sent",
			"identity_id", identity.ID,
			"error", err,
		)
	}
}

// RegisterTaskHandlers binds the waitlist task types to the ranker. Both
// handlers are idempotent, which is what lets delivery be at-least-once.
func RegisterTaskHandlers(worker *tasks.Worker, ranker Ranker) {
	worker.Register(tasks.TypeWaitlistInsert, func(ctx context.Context, task *tasks.Envelope) error {
		_, err := ranker.InsertAtTail(ctx, task.IdentityID)
		return err
	})
	worker.Register(tasks.TypeWaitlistPromote, func(ctx context.Context, task *tasks.Envelope) error {
		_, err := ranker.Promote(ctx, task.IdentityID)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			// A referrer who has not verified yet holds no waitlist entry.
			// There is nothing to promote and redelivery cannot change that;
			// their own verification will insert them at the tail.
			return nil
		}
		return err
	})
}
