package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitymodels "spothot/internal/identity/models"
	identityservice "spothot/internal/identity/service"
	identitystore "spothot/internal/identity/store"
	"spothot/internal/referral/store"
	dErrors "spothot/pkg/domain-errors"
)

type fixture struct {
	svc        *Service
	identities *identitystore.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	identities := identitystore.NewInMemory()
	return &fixture{
		svc:        NewService(store.NewInMemory(), identities),
		identities: identities,
	}
}

func (f *fixture) register(t *testing.T, email string) *identitymodels.Identity {
	t.Helper()
	identity, err := identityservice.NewService(f.identities).Create(context.Background(), "Test User", email)
	require.NoError(t, err)
	return identity
}

func TestAttributeIncrementsAndRecordsEdge(t *testing.T) {
	f := newFixture(t)
	referrer := f.register(t, "referrer@example.com")
	referee := f.register(t, "referee@example.com")

	edge, err := f.svc.Attribute(context.Background(), referrer.ReferralCode, referee.ID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, edge.ReferrerID)
	assert.Equal(t, referee.ID, edge.RefereeID)

	updated, err := f.identities.FindByID(context.Background(), referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReferralCount)
}

func TestAttributeUnknownCode(t *testing.T) {
	f := newFixture(t)
	referee := f.register(t, "referee@example.com")

	_, err := f.svc.Attribute(context.Background(), "NoSuchCd", referee.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestAttributeUnverifiedReferrer(t *testing.T) {
	f := newFixture(t)
	referrer := f.register(t, "referrer@example.com")
	referee := f.register(t, "referee@example.com")

	// Referral codes work before the referrer has verified.
	_, err := f.svc.Attribute(context.Background(), referrer.ReferralCode, referee.ID)
	assert.NoError(t, err)
}

func TestAttributeSelfReferral(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "loop@example.com")

	_, err := f.svc.Attribute(context.Background(), identity.ReferralCode, identity.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	unchanged, err := f.identities.FindByID(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Zero(t, unchanged.ReferralCount)
}

func TestAttributeSecondEdgeRejected(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "first@example.com")
	second := f.register(t, "second@example.com")
	referee := f.register(t, "referee@example.com")

	_, err := f.svc.Attribute(context.Background(), first.ReferralCode, referee.ID)
	require.NoError(t, err)

	_, err = f.svc.Attribute(context.Background(), second.ReferralCode, referee.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// The losing referrer's count stays untouched.
	unchanged, err := f.identities.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Zero(t, unchanged.ReferralCount)
}

func TestReferrerOf(t *testing.T) {
	f := newFixture(t)
	referrer := f.register(t, "referrer@example.com")
	referee := f.register(t, "referee@example.com")
	unreferred := f.register(t, "organic@example.com")

	_, err := f.svc.Attribute(context.Background(), referrer.ReferralCode, referee.ID)
	require.NoError(t, err)

	edge, err := f.svc.ReferrerOf(context.Background(), referee.ID)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, referrer.ID, edge.ReferrerID)

	edge, err = f.svc.ReferrerOf(context.Background(), unreferred.ID)
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestReferralsLists(t *testing.T) {
	f := newFixture(t)
	referrer := f.register(t, "referrer@example.com")

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		referee := f.register(t, email)
		_, err := f.svc.Attribute(context.Background(), referrer.ReferralCode, referee.ID)
		require.NoError(t, err)
	}

	edges, err := f.svc.Referrals(context.Background(), referrer.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}
