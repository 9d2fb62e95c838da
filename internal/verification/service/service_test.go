package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityservice "spothot/internal/identity/service"
	identitystore "spothot/internal/identity/store"
	"spothot/internal/verification/store"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/token"
)

type fixture struct {
	svc        *Service
	identities *identitystore.InMemoryStore
	now        time.Time
}

// newFixture wires the verification service against in-memory stores with a
// controllable clock starting at a fixed instant.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		identities: identitystore.NewInMemory(),
		now:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(store.NewInMemory(), f.identities, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) register(t *testing.T, email string) uuid.UUID {
	t.Helper()
	identity, err := identityservice.NewService(f.identities).Create(context.Background(), "Test User", email)
	require.NoError(t, err)
	return identity.ID
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestIssueChallengeReturnsCode(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")

	code, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, code, token.ChallengeCodeLength)
}

func TestIssueChallengeUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IssueChallenge(context.Background(), uuid.New())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRedeemVerifies(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")
	code, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)

	result, err := f.svc.Redeem(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)
	assert.Equal(t, id, result.IdentityID)

	identity, err := f.identities.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, identity.Verified)
}

func TestRedeemTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")
	code, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)

	first, err := f.svc.Redeem(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, first.Status)

	// The second redemption succeeds but must not report Verified again,
	// otherwise ranking side effects would fire twice.
	second, err := f.svc.Redeem(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyVerified, second.Status)
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Redeem(context.Background(), "zzzzzz")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRedeemExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")
	code, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)

	// 9m59s into the window: still valid.
	f.advance(9*time.Minute + 59*time.Second)
	result, err := f.svc.Redeem(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, result.Status)
}

func TestRedeemExpired(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")
	code, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)

	// One second past the window: permanently unusable.
	f.advance(10*time.Minute + time.Second)
	_, err = f.svc.Redeem(context.Background(), code)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))

	// The window does not reopen.
	f.advance(time.Hour)
	_, err = f.svc.Redeem(context.Background(), code)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
}

func TestStaleDuplicateChallengeAfterVerification(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "a@example.com")

	first, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)
	second, err := f.svc.IssueChallenge(context.Background(), id)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = f.svc.Redeem(context.Background(), first)
	require.NoError(t, err)

	// The unredeemed duplicate stays redeemable until expiry; it reports the
	// identity as already verified rather than failing.
	result, err := f.svc.Redeem(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyVerified, result.Status)
}
