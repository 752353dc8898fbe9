package cache

import (
	"context"
	"errors"
	"time"

	"github.com/shaamilshan/hamme/internal/domain"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the entry was invalidated after its
	// version was read.
	ErrStale = errors.New("cache entry is stale")
)

// CachedProfile holds the profile fields needed to build a public profile.
// Age is derived at read time from DateOfBirth.
type CachedProfile struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	Bio            string     `json:"bio,omitempty"`
}

// FromUser copies the public fields of u.
func FromUser(u *domain.User) *CachedProfile {
	return &CachedProfile{
		ID:             u.ID,
		Name:           u.Name,
		DateOfBirth:    u.DateOfBirth,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
	}
}

// Public builds the public profile as of now.
func (p *CachedProfile) Public(now time.Time) domain.PublicProfile {
	u := domain.User{
		ID:             p.ID,
		Name:           p.Name,
		DateOfBirth:    p.DateOfBirth,
		ProfilePicture: p.ProfilePicture,
		Bio:            p.Bio,
	}
	return u.Public(now)
}

// ProfileCache caches public profile fields by user ID.
//
// Every Delete bumps a per-user version. Readers take the version before
// loading from the store and pass it to Set, so a load that raced with an
// update cannot put the old profile back.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*CachedProfile, error)
	// GetMany returns the cached entries among userIDs. Misses are absent.
	GetMany(ctx context.Context, userIDs []string) (map[string]*CachedProfile, error)
	// Versions returns the invalidation version of each user, 0 if never invalidated.
	Versions(ctx context.Context, userIDs []string) (map[string]int64, error)
	// Set stores profile only if its version still equals version, else ErrStale.
	Set(ctx context.Context, profile *CachedProfile, version int64, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
	Close() error
}
