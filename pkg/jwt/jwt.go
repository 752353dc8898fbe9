package jwt

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"` // "access" or "refresh"
}

// TokenPair is an access/refresh token pair with their expiry times.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Manager signs and validates HS256 tokens. Revocation is tracked per token
// ID in memory until the token would have expired anyway.
type Manager struct {
	secret          []byte
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string
	now             func() time.Time

	revoked map[string]time.Time // jti -> expiry
	mu      sync.RWMutex
}

// NewManager creates a new JWT manager.
func NewManager(secret string, accessDuration, refreshDuration time.Duration, issuer string) (*Manager, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return &Manager{
		secret:          []byte(secret),
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
		issuer:          issuer,
		now:             time.Now,
		revoked:         make(map[string]time.Time),
	}, nil
}

// GenerateTokenPair creates access and refresh tokens for a user.
func (m *Manager) GenerateTokenPair(userID, email string) (*TokenPair, error) {
	now := m.now()

	accessExp := now.Add(m.accessDuration)
	access, err := m.sign(m.claims(userID, email, TypeAccess, now, accessExp))
	if err != nil {
		return nil, err
	}

	refreshExp := now.Add(m.refreshDuration)
	refresh, err := m.sign(m.claims(userID, email, TypeRefresh, now, refreshExp))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp.Unix(),
		RefreshExpiresAt: refreshExp.Unix(),
	}, nil
}

// ValidateToken validates a token of any type and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if m.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// ValidateAccessToken validates a token and requires it to be an access token.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens rotates a valid refresh token into a new pair. The used
// refresh token is revoked.
func (m *Manager) RefreshTokens(refreshTokenString string) (*Claims, *TokenPair, error) {
	claims, err := m.ValidateToken(refreshTokenString)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, nil, ErrInvalidToken
	}

	pair, err := m.GenerateTokenPair(claims.UserID, claims.Email)
	if err != nil {
		return nil, nil, err
	}
	m.Revoke(claims)
	return claims, pair, nil
}

// Revoke blocks the token identified by claims until it expires.
func (m *Manager) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	exp := m.now().Add(m.refreshDuration)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[claims.ID] = exp
}

// IsRevoked reports whether the token ID has been revoked and not yet expired.
func (m *Manager) IsRevoked(tokenID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.revoked[tokenID]
	return ok && m.now().Before(exp)
}

// CleanupExpiredRevocations removes revocation entries for expired tokens.
func (m *Manager) CleanupExpiredRevocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) claims(userID, email, typ string, now, exp time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
		Email:  email,
		Type:   typ,
	}
}

func (m *Manager) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
