package idp

import (
	"context"
	"testing"
	"time"

	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStaticProvider(t *testing.T) *StaticProvider {
	t.Helper()
	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)
	return NewStaticProvider([]StaticUser{
		{ID: "u1", Email: "Depo@Example.com", PasswordHash: hash},
	}, time.Hour)
}

func TestStaticProvider_SignInWithPassword(t *testing.T) {
	p := newTestStaticProvider(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	s, err := p.SignInWithPassword(context.Background(), "depo@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	assert.Equal(t, "u1", s.User.ID)
	assert.Equal(t, "depo@example.com", s.User.Email)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	_, err = p.SignInWithPassword(context.Background(), "depo@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.SignInWithPassword(context.Background(), "nobody@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaticProvider_RefreshRotates(t *testing.T) {
	p := newTestStaticProvider(t)
	ctx := context.Background()

	first, err := p.SignInWithPassword(ctx, "depo@example.com", "secret")
	require.NoError(t, err)

	second, err := p.Refresh(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User, second.User)

	_, err = p.Refresh(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "a used refresh token must not work twice")
}

func TestStaticProvider_SignOut(t *testing.T) {
	p := newTestStaticProvider(t)
	ctx := context.Background()

	s, err := p.SignInWithPassword(ctx, "depo@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, s))

	_, err = p.Refresh(ctx, s)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Error(t, p.SignOut(ctx, s))
}
