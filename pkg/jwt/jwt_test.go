package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, 15*time.Minute, 7*24*time.Hour, "hamme")
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager("short", time.Minute, time.Hour, "hamme")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	m := newTestManager(t)

	pair, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)

	_, err = m.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	m := newTestManager(t)
	issued := time.Now()
	m.now = func() time.Time { return issued }

	pair, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(time.Hour) }
	_, err = m.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenFromOtherSecretIsInvalid(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager("ffffffffffffffffffffffffffffffff", time.Minute, time.Hour, "hamme")
	require.NoError(t, err)

	pair, err := other.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)

	_, err = m.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeOnlyAffectsThatToken(t *testing.T) {
	m := newTestManager(t)

	first, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)
	claims, err := m.ValidateAccessToken(first.AccessToken)
	require.NoError(t, err)

	m.Revoke(claims)
	_, err = m.ValidateAccessToken(first.AccessToken)
	assert.ErrorIs(t, err, ErrRevokedToken)

	second, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(second.AccessToken)
	assert.NoError(t, err)
}

func TestRefreshRotates(t *testing.T) {
	m := newTestManager(t)

	pair, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)

	claims, next, err := m.RefreshTokens(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	_, _, err = m.RefreshTokens(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken)

	_, _, err = m.RefreshTokens(next.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCleanupExpiredRevocations(t *testing.T) {
	m := newTestManager(t)
	start := time.Now()
	m.now = func() time.Time { return start }

	pair, err := m.GenerateTokenPair("u-1", "a@example.com")
	require.NoError(t, err)
	claims, err := m.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	m.Revoke(claims)

	assert.Equal(t, 0, m.CleanupExpiredRevocations())
	m.now = func() time.Time { return start.Add(time.Hour) }
	assert.Equal(t, 1, m.CleanupExpiredRevocations())
}
