package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaamilshan/hamme/internal/cache"
	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/internal/expiry"
	"github.com/shaamilshan/hamme/internal/repository"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Policy() *expiry.Policy {
	return &expiry.Policy{Window: expiry.Window, Now: c.Now}
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	byEmail map[string]string
	gets    int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *fakeUserRepo) add(id, name string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{ID: id, Name: name, Email: id + "@example.com"}
	r.users[id] = u
	r.byEmail[u.Email] = id
	return u
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return repository.ErrEmailExists
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	r.users[user.ID] = &cp
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.User)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	id, ok := r.byEmail[email]
	r.mu.Unlock()
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return r.GetByID(context.Background(), id)
}

func (r *fakeUserRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

func (r *fakeUserRepo) update(id string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r *fakeUserRepo) UpdateLastActive(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *domain.User) { u.LastActiveAt = &at })
}

func (r *fakeUserRepo) UpdateDateOfBirth(_ context.Context, id string, dob time.Time) error {
	return r.update(id, func(u *domain.User) { u.DateOfBirth = &dob })
}

func (r *fakeUserRepo) UpdateBio(_ context.Context, id, bio string) error {
	return r.update(id, func(u *domain.User) { u.Bio = bio })
}

func (r *fakeUserRepo) UpdatePicture(_ context.Context, id, url string, keys []string) error {
	return r.update(id, func(u *domain.User) {
		u.ProfilePicture = url
		u.PictureKeys = keys
	})
}

// fakeVoteRepo keeps one vote per ordered pair.
type fakeVoteRepo struct {
	mu    sync.Mutex
	votes map[[2]string]domain.Vote
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[[2]string]domain.Vote)}
}

func (r *fakeVoteRepo) Upsert(_ context.Context, vote *domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes[[2]string{vote.ViewerID, vote.ViewedUserID}] = *vote
	return nil
}

func (r *fakeVoteRepo) Get(_ context.Context, viewerID, viewedUserID string) (*domain.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.votes[[2]string{viewerID, viewedUserID}]
	if !ok {
		return nil, repository.ErrVoteNotFound
	}
	return &v, nil
}

func (r *fakeVoteRepo) ListInbound(_ context.Context, viewedUserID string, since time.Time) ([]*domain.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Vote
	for k, v := range r.votes {
		if k[1] != viewedUserID || v.Choice == domain.ChoiceReject || !v.CreatedAt.After(since) {
			continue
		}
		cp := v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeVoteRepo) VotedTargets(_ context.Context, viewerID string, targetIDs []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range targetIDs {
		if _, ok := r.votes[[2]string{viewerID, id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *fakeVoteRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.votes)
}

// fakeMatchRepo enforces one active match per unordered pair.
type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*domain.Match
	active  map[string]string // pair key -> match id
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		matches: make(map[string]*domain.Match),
		active:  make(map[string]string),
	}
}

func (r *fakeMatchRepo) CreateActive(_ context.Context, m *domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.PairKey(m.UserA, m.UserB)
	if _, ok := r.active[key]; ok {
		return repository.ErrActiveMatchExists
	}
	cp := *m
	r.matches[m.ID] = &cp
	r.active[key] = m.ID
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, id string) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repository.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) FindActiveBetween(_ context.Context, u1, u2 string) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[domain.PairKey(u1, u2)]
	if !ok {
		return nil, repository.ErrMatchNotFound
	}
	cp := *r.matches[id]
	return &cp, nil
}

func (r *fakeMatchRepo) ListActiveForUser(_ context.Context, userID string) ([]*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Match
	for _, m := range r.matches {
		if m.IsActive() && m.Involves(userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) expireLocked(m *domain.Match, now time.Time) {
	m.Status = domain.MatchStatusExpired
	m.ExpiredAt = &now
	m.UpdatedAt = now
	delete(r.active, domain.PairKey(m.UserA, m.UserB))
}

func (r *fakeMatchRepo) ExpireForUser(_ context.Context, userID string, cutoff, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.matches {
		if m.IsActive() && m.Involves(userID) && !m.CreatedAt.After(cutoff) {
			r.expireLocked(m, now)
			n++
		}
	}
	return n, nil
}

func (r *fakeMatchRepo) ExpireAll(_ context.Context, cutoff, now time.Time) ([]*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Match
	for _, m := range r.matches {
		if m.IsActive() && !m.CreatedAt.After(cutoff) {
			r.expireLocked(m, now)
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) all() []*domain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Match, 0, len(r.matches))
	for _, m := range r.matches {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// fakeProfileCache is a map-backed ProfileCache.
type fakeProfileCache struct {
	mu       sync.Mutex
	entries  map[string]cache.CachedProfile
	versions map[string]int64
	sets     int
	stale    int
}

func newFakeProfileCache() *fakeProfileCache {
	return &fakeProfileCache{
		entries:  make(map[string]cache.CachedProfile),
		versions: make(map[string]int64),
	}
}

func (c *fakeProfileCache) Get(_ context.Context, userID string) (*cache.CachedProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &p, nil
}

func (c *fakeProfileCache) GetMany(_ context.Context, userIDs []string) (map[string]*cache.CachedProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*cache.CachedProfile)
	for _, id := range userIDs {
		if p, ok := c.entries[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *fakeProfileCache) Versions(_ context.Context, userIDs []string) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(userIDs))
	for _, id := range userIDs {
		out[id] = c.versions[id]
	}
	return out, nil
}

func (c *fakeProfileCache) Set(_ context.Context, profile *cache.CachedProfile, version int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[profile.ID] != version {
		c.stale++
		return cache.ErrStale
	}
	c.entries[profile.ID] = *profile
	c.sets++
	return nil
}

func (c *fakeProfileCache) Delete(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
		c.versions[id]++
	}
	return nil
}

func (c *fakeProfileCache) Close() error { return nil }

func (c *fakeProfileCache) staleSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

func (c *fakeProfileCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// recordingNotifier records the events it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	votes   []domain.Vote
	created []domain.Match
	expired []domain.Match
}

func (n *recordingNotifier) VoteReceived(_ context.Context, v *domain.Vote) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.votes = append(n.votes, *v)
}

func (n *recordingNotifier) MatchCreated(_ context.Context, m *domain.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, *m)
}

func (n *recordingNotifier) MatchExpired(_ context.Context, m *domain.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, *m)
}
