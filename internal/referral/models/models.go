package models

import (
	"time"

	"github.com/google/uuid"
)

// Edge records that the referrer brought in the referee. Edges are written
// once at registration and never mutated or deleted. A referee has at most
// one edge; self-referrals are rejected before an edge is written.
type Edge struct {
	ReferrerID uuid.UUID
	RefereeID  uuid.UUID
	CreatedAt  time.Time
}
