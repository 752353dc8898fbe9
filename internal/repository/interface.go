package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shaamilshan/hamme/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailExists       = errors.New("email already exists")
	ErrVoteNotFound      = errors.New("vote not found")
	ErrMatchNotFound     = errors.New("match not found")
	ErrActiveMatchExists = errors.New("active match already exists for pair")
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIDs returns the users that exist, keyed by ID. Missing IDs are absent.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
	UpdateDateOfBirth(ctx context.Context, id string, dob time.Time) error
	UpdateBio(ctx context.Context, id, bio string) error
	UpdatePicture(ctx context.Context, id, url string, keys []string) error
}

// VoteRepository persists the latest choice per ordered (viewer, viewed) pair.
type VoteRepository interface {
	// Upsert inserts the vote or overwrites choice and timestamp of the
	// existing vote for the same pair, atomically.
	Upsert(ctx context.Context, vote *domain.Vote) error
	Get(ctx context.Context, viewerID, viewedUserID string) (*domain.Vote, error)
	// ListInbound returns non-reject votes toward viewedUserID created after since.
	ListInbound(ctx context.Context, viewedUserID string, since time.Time) ([]*domain.Vote, error)
	// VotedTargets reports, for each of targetIDs, whether viewerID has voted on it.
	VotedTargets(ctx context.Context, viewerID string, targetIDs []string) (map[string]bool, error)
}

// MatchRepository persists matches. At most one active match exists per
// unordered pair; the store enforces it.
type MatchRepository interface {
	// CreateActive stores an active match. It returns ErrActiveMatchExists
	// when the pair already has one.
	CreateActive(ctx context.Context, match *domain.Match) error
	GetByID(ctx context.Context, id string) (*domain.Match, error)
	FindActiveBetween(ctx context.Context, userID1, userID2 string) (*domain.Match, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*domain.Match, error)
	// ExpireForUser expires the user's active matches created at or before cutoff.
	ExpireForUser(ctx context.Context, userID string, cutoff, now time.Time) (int64, error)
	// ExpireAll expires every active match created at or before cutoff and
	// returns the matches it expired.
	ExpireAll(ctx context.Context, cutoff, now time.Time) ([]*domain.Match, error)
}
