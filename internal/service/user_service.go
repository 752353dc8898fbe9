package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/shaamilshan/hamme/internal/audit"
	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/internal/repository"
	"github.com/shaamilshan/hamme/pkg/jwt"
	"github.com/shaamilshan/hamme/pkg/log"
)

const (
	minNameLen     = 2
	maxNameLen     = 50
	minPasswordLen = 6
)

// userServiceImpl implements UserService interface.
type userServiceImpl struct {
	repo   repository.UserRepository
	tokens *jwt.Manager
	now    func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(repo repository.UserRepository, tokens *jwt.Manager) UserService {
	return &userServiceImpl{
		repo:   repo,
		tokens: tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register registers a new user.
func (s *userServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return nil, ErrInvalidName
	}
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		LastActiveAt: &now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after register")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")

	return s.authResponse(user, pair), nil
}

// Login authenticates a user.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)
	email := normalizeEmail(req.Email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastActive(ctx, user.ID, now); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to update last active")
	} else {
		user.LastActiveAt = &now
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")

	return s.authResponse(user, pair), nil
}

// RefreshToken rotates a refresh token.
func (s *userServiceImpl) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	claims, pair, err := s.tokens.RefreshTokens(req.RefreshToken)
	if err != nil {
		l.Warn().Err(err).Msg("failed to refresh token")
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to get user after token refresh")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRefreshToken, user.ID, "token refreshed")

	return s.authResponse(user, pair), nil
}

// Logout revokes the presented access token.
func (s *userServiceImpl) Logout(ctx context.Context, claims *jwt.Claims) error {
	if claims == nil {
		return ErrInvalidCredentials
	}
	s.tokens.Revoke(claims)
	audit.Log(ctx, audit.ActionLogout, claims.UserID, "user logged out")
	return nil
}

func (s *userServiceImpl) authResponse(user *domain.User, pair *jwt.TokenPair) *domain.AuthResponse {
	return &domain.AuthResponse{
		User:         user.ToResponse(s.now()),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	}
}

var _ UserService = (*userServiceImpl)(nil)
