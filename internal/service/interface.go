package service

import (
	"context"
	"errors"
	"io"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/jwt"
)

var (
	// Validation
	ErrInvalidChoice      = errors.New("choice must be one of date, friends, reject")
	ErrInvalidTarget      = errors.New("target user id is required")
	ErrSelfInteraction    = errors.New("cannot interact with your own profile")
	ErrInvalidName        = errors.New("name must be between 2 and 50 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters long")
	ErrInvalidDateOfBirth = errors.New("invalid date of birth")
	ErrAgeOutOfRange      = errors.New("age must be between 13 and 100")
	ErrBioTooLong         = errors.New("bio must be at most 500 characters")
	ErrInvalidPicture     = errors.New("only image files are allowed")
	ErrPictureTooLarge    = errors.New("picture exceeds the upload size limit")

	// Not found
	ErrTargetNotFound = errors.New("target user not found")
	ErrUserNotFound   = errors.New("user not found")

	// Auth
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("user with this email already exists")
)

// MatchingService is the matching and expiry engine.
type MatchingService interface {
	// Submit records viewerID's choice about targetUserID and creates a match
	// when the target already made the same non-reject choice back.
	Submit(ctx context.Context, viewerID, targetUserID, choice string) (*domain.SubmitResult, error)
	// ListPending returns recent inbound choices userID has not answered.
	ListPending(ctx context.Context, userID string) ([]domain.PendingProfile, error)
	// ListActiveMatches expires userID's stale matches and returns the rest.
	ListActiveMatches(ctx context.Context, userID string) ([]domain.MatchView, error)
	// GetPublicProfile returns targetUserID's public profile and, when
	// callerID is set, the caller's unexpired vote toward it.
	GetPublicProfile(ctx context.Context, callerID, targetUserID string) (*domain.PublicProfileView, error)
	// SweepExpired expires every stale active match.
	SweepExpired(ctx context.Context) (int, error)
}

// UserService handles accounts and sessions.
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
}

// ProfileLookup resolves public profiles for the matching engine.
type ProfileLookup interface {
	GetPublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error)
	// GetPublicProfiles returns the profiles that exist among userIDs.
	GetPublicProfiles(ctx context.Context, userIDs []string) (map[string]domain.PublicProfile, error)
}

// ProfileService manages the caller's own profile.
type ProfileService interface {
	ProfileLookup
	GetMe(ctx context.Context, userID string) (*domain.UserResponse, error)
	UpdateDateOfBirth(ctx context.Context, userID, dateOfBirth string) (*domain.UserResponse, error)
	UpdateBio(ctx context.Context, userID, bio string) (*domain.UserResponse, error)
	SetPictureURL(ctx context.Context, userID, url string) (*domain.UserResponse, error)
	UploadPicture(ctx context.Context, userID string, upload *PictureUpload) (*domain.UserResponse, error)
}

// PictureUpload is an uploaded image file.
type PictureUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// EventNotifier receives matching events. Implementations must not block
// on delivery failures.
type EventNotifier interface {
	VoteReceived(ctx context.Context, vote *domain.Vote)
	MatchCreated(ctx context.Context, m *domain.Match)
	MatchExpired(ctx context.Context, m *domain.Match)
}

type noopNotifier struct{}

func (noopNotifier) VoteReceived(context.Context, *domain.Vote)  {}
func (noopNotifier) MatchCreated(context.Context, *domain.Match) {}
func (noopNotifier) MatchExpired(context.Context, *domain.Match) {}
