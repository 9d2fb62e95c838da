package models

import (
	"time"

	"github.com/google/uuid"
)

// Challenge is a short-lived verification code bound to an identity.
//
// A challenge is never deleted on success; once the bound identity is
// verified, redeeming any of its outstanding codes reports AlreadyVerified.
// Unredeemed codes simply age out of the window.
type Challenge struct {
	Code       string
	IdentityID uuid.UUID
	CreatedAt  time.Time
}
