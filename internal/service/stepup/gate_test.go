package stepup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestGate(t *testing.T) (*RedisGate, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisGate(client, zaptest.NewLogger(t), "stepup"), mr
}

func TestRiskLevelPolicy(t *testing.T) {
	assert.Equal(t, 2*time.Minute, RiskCritical.SessionTTL())
	assert.Equal(t, 5*time.Minute, RiskHigh.SessionTTL())
	assert.Equal(t, 10*time.Minute, RiskMedium.SessionTTL())
	assert.Equal(t, time.Duration(0), RiskLow.SessionTTL())

	assert.False(t, RiskLow.RequiresVerification())
	assert.True(t, RiskMedium.RequiresVerification())

	assert.Equal(t, 2, RiskCritical.RequiredFactors())
	assert.Equal(t, 2, RiskHigh.RequiredFactors())
	assert.Equal(t, 1, RiskMedium.RequiredFactors())
	assert.Equal(t, 0, RiskLow.RequiredFactors())

	// Unknown configuration strings tighten, never loosen.
	assert.Equal(t, RiskHigh, ParseRiskLevel("whatever"))
	assert.Equal(t, RiskMedium, ParseRiskLevel("medium"))
}

func TestCreateVerificationSession(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	t.Run("medium risk session", func(t *testing.T) {
		session, err := gate.CreateVerificationSession(ctx, uuid.New(), uuid.New(), "record_restore", RiskMedium)
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, 1, session.RequiredFactors)
	})

	t.Run("low risk rejected", func(t *testing.T) {
		_, err := gate.CreateVerificationSession(ctx, uuid.New(), uuid.New(), "record_restore", RiskLow)
		assert.Error(t, err)
	})
}

func TestSatisfactionLifecycle(t *testing.T) {
	gate, mr := newTestGate(t)
	ctx := context.Background()
	userID := uuid.New()
	orgID := uuid.New()

	session, err := gate.CreateVerificationSession(ctx, userID, orgID, "session_restore", RiskHigh)
	require.NoError(t, err)

	satisfied, err := gate.IsSatisfied(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, satisfied, "fresh session has no completed factors")

	require.NoError(t, gate.CompleteFactor(ctx, session.ID, "totp"))
	satisfied, err = gate.IsSatisfied(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, satisfied, "high risk needs two factors")

	// Repeating the same factor type must not count twice.
	require.NoError(t, gate.CompleteFactor(ctx, session.ID, "totp"))
	satisfied, err = gate.IsSatisfied(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, gate.CompleteFactor(ctx, session.ID, "webauthn"))
	satisfied, err = gate.IsSatisfied(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, satisfied)

	t.Run("verify binds subject and tenant", func(t *testing.T) {
		ok, err := gate.Verify(ctx, session.ID, userID, orgID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = gate.Verify(ctx, session.ID, uuid.New(), orgID)
		require.NoError(t, err)
		assert.False(t, ok, "another actor's session is no authorization")

		ok, err = gate.Verify(ctx, session.ID, userID, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok, "cross-tenant session is no authorization")
	})

	t.Run("expired session reads as unsatisfied", func(t *testing.T) {
		mr.FastForward(6 * time.Minute)

		satisfied, err := gate.IsSatisfied(ctx, session.ID)
		require.NoError(t, err)
		assert.False(t, satisfied)
	})
}

func TestIsSatisfiedUnknownSession(t *testing.T) {
	gate, _ := newTestGate(t)

	satisfied, err := gate.IsSatisfied(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, satisfied)

	satisfied, err = gate.IsSatisfied(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	session := &Session{
		ID:             uuid.NewString(),
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		RiskLevel:      RiskMedium,
		ExpiresAt:      time.Now().UTC().Add(10 * time.Minute),
	}

	token, err := issuer.Mint(session)
	require.NoError(t, err)

	sessionID, userID, orgID, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, sessionID)
	assert.Equal(t, session.UserID, userID)
	assert.Equal(t, session.OrganizationID, orgID)

	t.Run("tampered token rejected", func(t *testing.T) {
		_, _, _, err := issuer.Parse(token + "x")
		assert.Error(t, err)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other := NewTokenIssuer("other-secret")
		_, _, _, err := other.Parse(token)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		stale := &Session{
			ID:             uuid.NewString(),
			UserID:         session.UserID,
			OrganizationID: session.OrganizationID,
			ExpiresAt:      time.Now().UTC().Add(-time.Minute),
		}
		token, err := issuer.Mint(stale)
		require.NoError(t, err)
		_, _, _, err = issuer.Parse(token)
		assert.Error(t, err)
	})
}
