package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymodels "spothot/internal/identity/models"
	"spothot/internal/waitlist/metrics"
	"spothot/internal/waitlist/models"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/platform/sentinel"
)

// defaultBase is the position handed to the first identity on an empty
// waitlist. Later arrivals take max+1.
const defaultBase = 99

// maxAttempts bounds the optimistic retry loops in InsertAtTail and Promote.
// Exhausting it surfaces CodeConflict; the task queue redelivers and the
// operation converges on a later attempt.
const maxAttempts = 5

// EntryStore defines the persistence interface for waitlist entries.
// Error Contract:
// - Find methods return sentinel.ErrNotFound (wrapped) for missing entries.
// - Insert returns sentinel.ErrAlreadyUsed when the identity already has an
//   entry and sentinel.ErrConflict when the position is taken.
// - Move and Swap take the positions observed by the caller and return
//   sentinel.ErrConflict when state changed underneath; the caller re-reads
//   and retries.
type EntryStore interface {
	Insert(ctx context.Context, entry *models.Entry) error
	FindByIdentity(ctx context.Context, identityID uuid.UUID) (*models.Entry, error)
	FindByPosition(ctx context.Context, position int) (*models.Entry, error)
	MaxPosition(ctx context.Context) (int, bool, error)
	Move(ctx context.Context, identityID uuid.UUID, from, to int) error
	Swap(ctx context.Context, moverID uuid.UUID, moverFrom int, occupantID uuid.UUID, occupantFrom int) error
	List(ctx context.Context) ([]*models.Entry, error)
}

// IdentityStore is the slice of the identity store ranking needs: referral
// counts for the promotion comparison.
type IdentityStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identitymodels.Identity, error)
}

// Outcome describes how a promotion attempt resolved.
type Outcome string

const (
	// OutcomeMoved means the slot above was free and the entry took it.
	OutcomeMoved Outcome = "moved"
	// OutcomeSwapped means the entry displaced the occupant above.
	OutcomeSwapped Outcome = "swapped"
	// OutcomeKept means the occupant above held its slot.
	OutcomeKept Outcome = "kept"
	// OutcomeAtBest means the entry already sits at position 1.
	OutcomeAtBest Outcome = "at_best"
)

// Service ranks the waitlist: it appends new identities at the tail and
// bubbles referrers up one slot per attributed referral.
type Service struct {
	entries    EntryStore
	identities IdentityStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
	base       int
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

// WithBase overrides the starting position for an empty waitlist.
func WithBase(base int) Option {
	return func(s *Service) {
		if base > 0 {
			s.base = base
		}
	}
}

func NewService(entries EntryStore, identities IdentityStore, opts ...Option) *Service {
	svc := &Service{
		entries:    entries,
		identities: identities,
		tracer:     otel.Tracer("spothot/waitlist"),
		now:        time.Now,
		base:       defaultBase,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// InsertAtTail appends the identity after the current worst position, or at
// the base position when the waitlist is empty. It is idempotent: an identity
// already on the waitlist keeps its position and the existing entry is
// returned.
func (s *Service) InsertAtTail(ctx context.Context, identityID uuid.UUID) (*models.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "waitlist.InsertAtTail",
		trace.WithAttributes(attribute.String("identity_id", identityID.String())))
	defer span.End()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		existing, err := s.entries.FindByIdentity(ctx, identityID)
		if err == nil {
			span.SetAttributes(attribute.Bool("already_listed", true))
			return existing, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "load waitlist entry"))
		}

		max, occupied, err := s.entries.MaxPosition(ctx)
		if err != nil {
			return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "read waitlist tail"))
		}
		position := s.base
		if occupied {
			position = max + 1
		}

		entry := &models.Entry{
			IdentityID: identityID,
			Position:   position,
			CreatedAt:  s.now(),
		}
		err = s.entries.Insert(ctx, entry)
		if err == nil {
			if s.metrics != nil {
				s.metrics.Inserts.Inc()
			}
			span.SetAttributes(attribute.Int("position", position))
			s.logger.Info("waitlist entry inserted",
				"identity_id", identityID,
				"position", position,
			)
			return entry, nil
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Raced a duplicate insert for the same identity; the winner's
			// entry is authoritative.
			continue
		}
		if errors.Is(err, sentinel.ErrConflict) {
			// Raced another insert for the tail slot.
			s.countRetry()
			continue
		}
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "insert waitlist entry"))
	}

	s.countExhausted()
	return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, "waitlist tail contended, retry"))
}

// Promote bubbles the identity's entry up by at most one position. The slot
// above is taken when it is free, or when the occupant has strictly fewer
// referrals; on equal counts the earlier waitlist entry wins. An entry at
// position 1 is a no-op.
//
// Conflicting writers trigger a bounded re-read-and-retry loop; exhaustion
// surfaces CodeConflict so the caller's delivery machinery can try again.
func (s *Service) Promote(ctx context.Context, identityID uuid.UUID) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "waitlist.Promote",
		trace.WithAttributes(attribute.String("identity_id", identityID.String())))
	defer span.End()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		outcome, err := s.promoteOnce(ctx, identityID)
		if err == nil {
			if s.metrics != nil {
				s.metrics.Promotions.WithLabelValues(string(outcome)).Inc()
			}
			span.SetAttributes(attribute.String("outcome", string(outcome)))
			return outcome, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.countRetry()
			continue
		}
		return "", s.fail(span, err)
	}

	s.countExhausted()
	return "", s.fail(span, dErrors.New(dErrors.CodeConflict, "waitlist promotion contended, retry"))
}

// promoteOnce runs a single optimistic attempt. It returns a bare
// sentinel.ErrConflict when the snapshot went stale mid-write; every other
// error is already a domain error.
func (s *Service) promoteOnce(ctx context.Context, identityID uuid.UUID) (Outcome, error) {
	entry, err := s.entries.FindByIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeNotFound, "identity not on waitlist")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load waitlist entry")
	}

	target := entry.Position - 1
	if target < 1 {
		target = 1
	}
	if target == entry.Position {
		return OutcomeAtBest, nil
	}

	occupant, err := s.entries.FindByPosition(ctx, target)
	if errors.Is(err, sentinel.ErrNotFound) {
		if err := s.entries.Move(ctx, identityID, entry.Position, target); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return "", err
			}
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "move waitlist entry")
		}
		s.logger.Info("waitlist entry promoted",
			"identity_id", identityID,
			"from", entry.Position,
			"to", target,
		)
		return OutcomeMoved, nil
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load occupant entry")
	}

	wins, err := s.outranks(ctx, entry, occupant)
	if err != nil {
		return "", err
	}
	if !wins {
		return OutcomeKept, nil
	}

	if err := s.entries.Swap(ctx, identityID, entry.Position, occupant.IdentityID, occupant.Position); err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
			// ErrNotFound here means the occupant left between read and
			// lock; re-read and try again.
			return "", fmt.Errorf("swap snapshot stale: %w", sentinel.ErrConflict)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "swap waitlist entries")
	}
	s.logger.Info("waitlist entries swapped",
		"identity_id", identityID,
		"displaced_id", occupant.IdentityID,
		"position", target,
	)
	return OutcomeSwapped, nil
}

// outranks decides whether the mover displaces the occupant: strictly more
// referrals wins, equal counts fall back to the earlier waitlist entry.
func (s *Service) outranks(ctx context.Context, mover, occupant *models.Entry) (bool, error) {
	moverIdentity, err := s.identities.FindByID(ctx, mover.IdentityID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load mover identity")
	}
	occupantIdentity, err := s.identities.FindByID(ctx, occupant.IdentityID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load occupant identity")
	}

	if moverIdentity.ReferralCount != occupantIdentity.ReferralCount {
		return moverIdentity.ReferralCount > occupantIdentity.ReferralCount, nil
	}
	return mover.CreatedAt.Before(occupant.CreatedAt), nil
}

// Position reports the identity's current slot.
func (s *Service) Position(ctx context.Context, identityID uuid.UUID) (*models.Entry, error) {
	entry, err := s.entries.FindByIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "identity not on waitlist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load waitlist entry")
	}
	return entry, nil
}

// List returns the whole waitlist ordered best-first.
func (s *Service) List(ctx context.Context) ([]*models.Entry, error) {
	entries, err := s.entries.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list waitlist entries")
	}
	return entries, nil
}

func (s *Service) countRetry() {
	if s.metrics != nil {
		s.metrics.ConflictRetries.Inc()
	}
}

func (s *Service) countExhausted() {
	if s.metrics != nil {
		s.metrics.RetriesExhausted.Inc()
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
