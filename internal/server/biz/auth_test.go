package biz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

func TestHashPassword_Roundtrip(t *testing.T) {
	hashed, err := HashPassword("password123")
	require.NoError(t, err)
	require.NotEmpty(t, hashed)
	require.NotEqual(t, "password123", hashed)

	require.NoError(t, VerifyPassword(hashed, "password123"))
	require.Error(t, VerifyPassword(hashed, "wrong-password"))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	require.Error(t, VerifyPassword("not-hex!", "password123"))
}

func TestGenerateSecretKey(t *testing.T) {
	key, err := GenerateSecretKey()
	require.NoError(t, err)
	require.Len(t, key, 64)

	other, err := GenerateSecretKey()
	require.NoError(t, err)
	require.NotEqual(t, key, other)
}

func TestAuthService_SignIn(t *testing.T) {
	svcs, tenant, owner := initializedServices(t)
	ctx := t.Context()

	result, err := svcs.Auth.SignIn(ctx, "owner@example.com", "password123", IssueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, owner.Hub.Key.String(), result.Actor.Key)
	require.Equal(t, "owner@example.com", result.Actor.Email)

	// The issued token validates against the session engine.
	session, _, reason, err := svcs.Sessions.Validate(authz.NewTestContext(ctx), result.Token, riskSignals(100, 0))
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Equal(t, tenant, session.TenantKey)
	require.Equal(t, owner.Hub.Key, session.ActorKey)
}

func TestAuthService_SignIn_WrongPassword(t *testing.T) {
	svcs, _, _ := initializedServices(t)

	_, err := svcs.Auth.SignIn(t.Context(), "owner@example.com", "wrong-password", IssueOptions{})
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestAuthService_SignIn_UnknownEmail(t *testing.T) {
	svcs, _, _ := initializedServices(t)

	// Unknown accounts and bad passwords are indistinguishable.
	_, err := svcs.Auth.SignIn(t.Context(), "nobody@example.com", "password123", IssueOptions{})
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestAuthService_SignIn_NotInitialized(t *testing.T) {
	svcs := newTestServices(t)

	_, err := svcs.Auth.SignIn(t.Context(), "owner@example.com", "password123", IssueOptions{})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestAuthService_StepUpFlow(t *testing.T) {
	svcs, _, _ := initializedServices(t)
	ctx := t.Context()

	result, err := svcs.Auth.SignIn(ctx, "owner@example.com", "password123", IssueOptions{})
	require.NoError(t, err)

	testCtx := authz.NewTestContext(ctx)

	grant, err := svcs.Auth.GrantStepUp(testCtx, result.Token, "password123", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, grant.Grant)
	require.False(t, grant.ExpiresAt.IsZero())

	digest, err := svcs.Auth.VerifyStepUp(testCtx, grant.Grant)
	require.NoError(t, err)
	require.Equal(t, vault.TokenDigest(result.Token), digest)
}

func TestAuthService_GrantStepUp_WrongPassword(t *testing.T) {
	svcs, _, _ := initializedServices(t)
	ctx := t.Context()

	result, err := svcs.Auth.SignIn(ctx, "owner@example.com", "password123", IssueOptions{})
	require.NoError(t, err)

	_, err = svcs.Auth.GrantStepUp(authz.NewTestContext(ctx), result.Token, "wrong-password", time.Minute)
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestAuthService_GrantStepUp_RevokedSession(t *testing.T) {
	svcs, _, _ := initializedServices(t)
	ctx := t.Context()

	result, err := svcs.Auth.SignIn(ctx, "owner@example.com", "password123", IssueOptions{})
	require.NoError(t, err)

	testCtx := authz.NewTestContext(ctx)

	_, err = svcs.Sessions.RevokeByDigest(testCtx, vault.TokenDigest(result.Token))
	require.NoError(t, err)

	_, err = svcs.Auth.GrantStepUp(testCtx, result.Token, "password123", time.Minute)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_VerifyStepUp_Garbage(t *testing.T) {
	svcs, _, _ := initializedServices(t)

	_, err := svcs.Auth.VerifyStepUp(t.Context(), "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidJWT)
}

func TestAuthService_VerifyStepUp_Expired(t *testing.T) {
	svcs, _, _ := initializedServices(t)
	ctx := t.Context()

	// Mint the grant in the past so its expiry has already passed by
	// the time it is verified.
	xtime.SetUTCNowFunc(func() time.Time {
		return time.Now().UTC().Add(-10 * time.Minute)
	})

	result, err := svcs.Auth.SignIn(ctx, "owner@example.com", "password123", IssueOptions{})
	require.NoError(t, err)

	testCtx := authz.NewTestContext(ctx)

	grant, err := svcs.Auth.GrantStepUp(testCtx, result.Token, "password123", time.Minute)
	require.NoError(t, err)

	xtime.ResetUTCNowFunc()

	_, err = svcs.Auth.VerifyStepUp(testCtx, grant.Grant)
	require.ErrorIs(t, err, ErrInvalidJWT)
}
