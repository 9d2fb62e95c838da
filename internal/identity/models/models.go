package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a registered account on the waitlist.
//
// ReferralCount only ever grows, one increment per referee that verifies.
// Verified is a one-way flag: false -> true, never back.
// Deleted is a soft-delete marker; soft-deleted identities are invisible to
// lookups but their rows (and referral edges) remain.
type Identity struct {
	ID            uuid.UUID
	Name          string
	Email         string
	ReferralCode  string
	ReferralCount int
	Verified      bool
	Deleted       bool
	CreatedAt     time.Time
}
