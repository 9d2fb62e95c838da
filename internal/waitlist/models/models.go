package models

import (
	"time"

	"github.com/google/uuid"
)

// Entry binds an identity to a waitlist position. Position 1 is best; the
// total order over entries is ascending position.
//
// Positions are unique among live entries and strictly positive. Position 0
// is a transient scratch value used inside a swap transaction and is never
// visible to readers.
//
// CreatedAt is the entry's own creation instant, not the identity's; it is
// the tie-breaker when two neighbors have equal referral counts.
type Entry struct {
	IdentityID uuid.UUID
	Position   int
	CreatedAt  time.Time
}
