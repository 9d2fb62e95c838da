package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet used for generated codes. Mixed case plus digits keeps 8-char
// referral codes at ~47 bits and 6-char challenge codes at ~35 bits, enough
// that collision retries stay rare at waitlist scale.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	// ReferralCodeLength is the length of identity referral codes.
	ReferralCodeLength = 8
	// ChallengeCodeLength is the length of verification challenge codes.
	ChallengeCodeLength = 6
)

// New generates a random token of the given length from the alphabet.
// It draws from crypto/rand; callers handle uniqueness by retrying on
// store collisions.
func New(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
