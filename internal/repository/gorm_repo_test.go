package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/database"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file::memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestGormUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))

	u := &domain.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotEmpty(t, u.ID)

	err := repo.Create(ctx, &domain.User{Name: "Other", Email: "ann@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := repo.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	ok, err := repo.Exists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	dob := time.Date(1995, 2, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateDateOfBirth(ctx, u.ID, dob))
	require.NoError(t, repo.UpdateBio(ctx, u.ID, "hello"))
	require.NoError(t, repo.UpdatePicture(ctx, u.ID, "/uploads/p/lg.jpg", []string{"p/sm.jpg", "p/lg.jpg"}))
	require.NoError(t, repo.UpdateLastActive(ctx, u.ID, t0))

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)
	assert.Equal(t, "/uploads/p/lg.jpg", got.ProfilePicture)
	assert.Equal(t, []string{"p/sm.jpg", "p/lg.jpg"}, got.PictureKeys)
	if assert.NotNil(t, got.DateOfBirth) {
		assert.True(t, dob.Equal(*got.DateOfBirth))
	}

	assert.ErrorIs(t, repo.UpdateBio(ctx, "missing", "x"), ErrUserNotFound)

	users, err := repo.GetByIDs(ctx, []string{u.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Contains(t, users, u.ID)
}

func TestGormVoteRepository_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormVoteRepository(db)

	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceDate, CreatedAt: t0}))
	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceDate, CreatedAt: t0}))
	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceFriends, CreatedAt: t0.Add(time.Minute)}))

	var count int64
	require.NoError(t, db.Model(&domain.VoteModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	v, err := repo.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceFriends, v.Choice)
	assert.True(t, v.CreatedAt.Equal(t0.Add(time.Minute)))

	_, err = repo.Get(ctx, "b", "a")
	assert.ErrorIs(t, err, ErrVoteNotFound)
}

func TestGormVoteRepository_ListInbound(t *testing.T) {
	ctx := context.Background()
	repo := NewGormVoteRepository(newTestDB(t))

	votes := []domain.Vote{
		{ViewerID: "a", ViewedUserID: "u", Choice: domain.ChoiceDate, CreatedAt: t0.Add(-time.Hour)},
		{ViewerID: "b", ViewedUserID: "u", Choice: domain.ChoiceFriends, CreatedAt: t0.Add(-time.Minute)},
		{ViewerID: "c", ViewedUserID: "u", Choice: domain.ChoiceReject, CreatedAt: t0},
		{ViewerID: "d", ViewedUserID: "u", Choice: domain.ChoiceDate, CreatedAt: t0.Add(-30 * time.Hour)},
		{ViewerID: "e", ViewedUserID: "other", Choice: domain.ChoiceDate, CreatedAt: t0},
	}
	for i := range votes {
		require.NoError(t, repo.Upsert(ctx, &votes[i]))
	}

	got, err := repo.ListInbound(ctx, "u", t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ViewerID)
	assert.Equal(t, "a", got[1].ViewerID)
}

func TestGormVoteRepository_VotedTargets(t *testing.T) {
	ctx := context.Background()
	repo := NewGormVoteRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "u", ViewedUserID: "a", Choice: domain.ChoiceReject, CreatedAt: t0.Add(-72 * time.Hour)}))

	got, err := repo.VotedTargets(ctx, "u", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, got)

	got, err = repo.VotedTargets(ctx, "u", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGormMatchRepository_OneActivePerPair(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMatchRepository(newTestDB(t))

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m1", UserA: "b", UserB: "a", MatchType: domain.ChoiceDate, CreatedAt: t0}))

	err := repo.CreateActive(ctx, &domain.Match{ID: "m2", UserA: "a", UserB: "b", MatchType: domain.ChoiceFriends, CreatedAt: t0})
	assert.ErrorIs(t, err, ErrActiveMatchExists)

	m, err := repo.FindActiveBetween(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "a", m.UserA)
	assert.Equal(t, "b", m.UserB)
}

func TestGormMatchRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMatchRepository(newTestDB(t))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateActive(ctx, &domain.Match{
				ID:        string(rune('A'+i)) + "-match",
				UserA:     "x",
				UserB:     "y",
				MatchType: domain.ChoiceDate,
				CreatedAt: t0,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrActiveMatchExists)
	}
	assert.Equal(t, 1, created)
}

func TestGormMatchRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMatchRepository(newTestDB(t))

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "old", UserA: "a", UserB: "b", MatchType: domain.ChoiceDate, CreatedAt: t0.Add(-25 * time.Hour)}))
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "new", UserA: "a", UserB: "c", MatchType: domain.ChoiceFriends, CreatedAt: t0.Add(-time.Hour)}))
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "other", UserA: "d", UserB: "e", MatchType: domain.ChoiceDate, CreatedAt: t0.Add(-48 * time.Hour)}))

	cutoff := t0.Add(-24 * time.Hour)
	n, err := repo.ExpireForUser(ctx, "a", cutoff, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := repo.ListActiveForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "new", active[0].ID)

	old, err := repo.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusExpired, old.Status)
	assert.NotNil(t, old.ExpiredAt)

	// The pair slot is free again once the old match has expired.
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "again", UserA: "a", UserB: "b", MatchType: domain.ChoiceDate, CreatedAt: t0}))

	expired, err := repo.ExpireAll(ctx, cutoff, t0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "other", expired[0].ID)
	assert.Equal(t, domain.MatchStatusExpired, expired[0].Status)

	expired, err = repo.ExpireAll(ctx, cutoff, t0)
	require.NoError(t, err)
	assert.Empty(t, expired)
}
