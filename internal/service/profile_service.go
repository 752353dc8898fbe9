package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/shaamilshan/hamme/internal/audit"
	"github.com/shaamilshan/hamme/internal/cache"
	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/internal/repository"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/storage"
)

const (
	minAge       = 13
	maxAge       = 100
	maxBioLen    = 500
	picturesRoot = "profile-pictures"
	jpegQuality  = 85

	// maxPicturePixels caps the decoded size of an upload. Headers are
	// checked before decoding since a small file can declare a huge canvas.
	maxPicturePixels = 40_000_000
)

// pictureSize is one square variant of an uploaded picture.
type pictureSize struct {
	name string
	side int
}

// The last size is the one exposed as profilePicture.
var pictureSizes = []pictureSize{
	{name: "sm", side: 96},
	{name: "md", side: 320},
	{name: "lg", side: 800},
}

var allowedPictureExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ProfileConfig tunes the profile service.
type ProfileConfig struct {
	CacheTTL       time.Duration
	MaxUploadBytes int64
	URLTTL         time.Duration
}

type profileServiceImpl struct {
	repo  repository.UserRepository
	cache cache.ProfileCache
	store storage.Storage
	cfg   ProfileConfig
	sf    singleflight.Group
	now   func() time.Time
}

// NewProfileService creates the profile service. profileCache and store may
// be nil; without a store picture uploads are unavailable.
func NewProfileService(
	repo repository.UserRepository,
	profileCache cache.ProfileCache,
	store storage.Storage,
	cfg ProfileConfig,
) ProfileService {
	return &profileServiceImpl{
		repo:  repo,
		cache: profileCache,
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *profileServiceImpl) GetPublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	result, err, _ := s.sf.Do(userID, func() (interface{}, error) {
		if s.cache != nil {
			cached, err := s.cache.Get(ctx, userID)
			if err == nil {
				return cached, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("cache get error")
			}
		}

		versions := s.cacheVersions(ctx, []string{userID})
		user, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}

		profile := cache.FromUser(user)
		s.asyncCacheSet(profile, versions)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}

	public := result.(*cache.CachedProfile).Public(s.now())
	return &public, nil
}

func (s *profileServiceImpl) GetPublicProfiles(ctx context.Context, userIDs []string) (map[string]domain.PublicProfile, error) {
	now := s.now()
	out := make(map[string]domain.PublicProfile, len(userIDs))

	missing := uniqueIDs(userIDs)
	if s.cache != nil && len(missing) > 0 {
		cached, err := s.cache.GetMany(ctx, missing)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Int(log.FieldCount, len(missing)).Msg("cache mget error")
		}
		rest := missing[:0]
		for _, id := range missing {
			if p, ok := cached[id]; ok {
				out[id] = p.Public(now)
				continue
			}
			rest = append(rest, id)
		}
		missing = rest
	}
	if len(missing) == 0 {
		return out, nil
	}

	versions := s.cacheVersions(ctx, missing)
	users, err := s.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range users {
		profile := cache.FromUser(u)
		out[id] = profile.Public(now)
		s.asyncCacheSet(profile, versions)
	}
	return out, nil
}

func (s *profileServiceImpl) GetMe(ctx context.Context, userID string) (*domain.UserResponse, error) {
	return s.load(ctx, userID)
}

func (s *profileServiceImpl) UpdateDateOfBirth(ctx context.Context, userID, dateOfBirth string) (*domain.UserResponse, error) {
	dob, err := parseDateOfBirth(dateOfBirth)
	if err != nil {
		return nil, ErrInvalidDateOfBirth
	}
	now := s.now()
	if dob.After(now) {
		return nil, ErrInvalidDateOfBirth
	}
	if age := domain.AgeAt(dob, now); age < minAge || age > maxAge {
		return nil, ErrAgeOutOfRange
	}

	if err := s.repo.UpdateDateOfBirth(ctx, userID, dob); err != nil {
		return nil, s.mapUserErr(err)
	}
	s.invalidate(ctx, userID)
	audit.LogWithDetail(ctx, audit.ActionUpdateProfile, userID, "date_of_birth", "profile updated")
	return s.load(ctx, userID)
}

func (s *profileServiceImpl) UpdateBio(ctx context.Context, userID, bio string) (*domain.UserResponse, error) {
	bio = strings.TrimSpace(bio)
	if utf8.RuneCountInString(bio) > maxBioLen {
		return nil, ErrBioTooLong
	}

	if err := s.repo.UpdateBio(ctx, userID, bio); err != nil {
		return nil, s.mapUserErr(err)
	}
	s.invalidate(ctx, userID)
	audit.LogWithDetail(ctx, audit.ActionUpdateProfile, userID, "bio", "profile updated")
	return s.load(ctx, userID)
}

func (s *profileServiceImpl) SetPictureURL(ctx context.Context, userID, rawURL string) (*domain.UserResponse, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidPicture
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, s.mapUserErr(err)
	}
	if err := s.repo.UpdatePicture(ctx, userID, rawURL, nil); err != nil {
		return nil, s.mapUserErr(err)
	}
	s.invalidate(ctx, userID)
	s.deleteKeys(ctx, user.PictureKeys)
	audit.LogWithDetail(ctx, audit.ActionUpdateProfile, userID, "profile_picture", "profile updated")
	return s.load(ctx, userID)
}

// UploadPicture validates the upload, stores square JPEG variants and
// points the profile at the largest one.
func (s *profileServiceImpl) UploadPicture(ctx context.Context, userID string, upload *PictureUpload) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	if s.store == nil {
		return nil, errors.New("picture storage is not configured")
	}
	if upload == nil || upload.Body == nil {
		return nil, ErrInvalidPicture
	}
	if !allowedPictureExts[strings.ToLower(filepath.Ext(upload.Filename))] {
		return nil, ErrInvalidPicture
	}
	if !strings.HasPrefix(strings.ToLower(upload.ContentType), "image/") {
		return nil, ErrInvalidPicture
	}
	if upload.Size > s.cfg.MaxUploadBytes {
		return nil, ErrPictureTooLarge
	}

	raw, err := io.ReadAll(io.LimitReader(upload.Body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxUploadBytes {
		return nil, ErrPictureTooLarge
	}

	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || imgCfg.Width <= 0 || imgCfg.Height <= 0 {
		return nil, ErrInvalidPicture
	}
	if int64(imgCfg.Width)*int64(imgCfg.Height) > maxPicturePixels {
		l.Warn().Str(log.FieldUserID, userID).
			Int("width", imgCfg.Width).Int("height", imgCfg.Height).
			Msg("picture dimensions rejected")
		return nil, ErrInvalidPicture
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrInvalidPicture
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, s.mapUserErr(err)
	}

	uploadID := uuid.New().String()
	keys := make([]string, 0, len(pictureSizes))
	for _, sz := range pictureSizes {
		// Square crop centred on the image.
		resized := imaging.Fill(img, sz.side, sz.side, imaging.Center, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			s.deleteKeys(ctx, keys)
			return nil, fmt.Errorf("encode %s: %w", sz.name, err)
		}

		key := fmt.Sprintf("%s/%s/%s/%s.jpg", picturesRoot, userID, uploadID, sz.name)
		if err := s.store.Write(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
			s.deleteKeys(ctx, keys)
			return nil, fmt.Errorf("store %s: %w", sz.name, err)
		}
		keys = append(keys, key)
	}

	pictureURL, err := s.store.GetURL(ctx, keys[len(keys)-1], s.cfg.URLTTL)
	if err != nil {
		s.deleteKeys(ctx, keys)
		return nil, fmt.Errorf("picture url: %w", err)
	}

	if err := s.repo.UpdatePicture(ctx, userID, pictureURL, keys); err != nil {
		s.deleteKeys(ctx, keys)
		return nil, s.mapUserErr(err)
	}
	s.invalidate(ctx, userID)
	s.deleteKeys(ctx, user.PictureKeys)

	l.Info().Str(log.FieldUserID, userID).Str("upload_id", uploadID).Msg("profile picture stored")
	audit.LogWithDetail(ctx, audit.ActionUploadPicture, userID, uploadID, "profile picture uploaded")
	return s.load(ctx, userID)
}

func (s *profileServiceImpl) load(ctx context.Context, userID string) (*domain.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, s.mapUserErr(err)
	}
	resp := user.ToResponse(s.now())
	return &resp, nil
}

func (s *profileServiceImpl) mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

// deleteKeys removes stored picture variants. Failures only leave orphans.
func (s *profileServiceImpl) deleteKeys(ctx context.Context, keys []string) {
	if s.store == nil {
		return
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str("key", key).Msg("failed to delete old picture")
		}
	}
}

func (s *profileServiceImpl) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("cache invalidate error")
	}
}

// cacheVersions reads invalidation versions ahead of a store load. A nil
// result disables caching for that load.
func (s *profileServiceImpl) cacheVersions(ctx context.Context, userIDs []string) map[string]int64 {
	if s.cache == nil {
		return nil
	}
	versions, err := s.cache.Versions(ctx, userIDs)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int(log.FieldCount, len(userIDs)).Msg("cache version error")
		return nil
	}
	return versions
}

func (s *profileServiceImpl) asyncCacheSet(profile *cache.CachedProfile, versions map[string]int64) {
	if s.cache == nil {
		return
	}
	version, ok := versions[profile.ID]
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := s.cache.Set(ctx, profile, version, s.cfg.CacheTTL)
		switch {
		case err == nil:
		case errors.Is(err, cache.ErrStale):
			l := log.L()
			l.Debug().Str(log.FieldUserID, profile.ID).Msg("skipped stale cache set")
		default:
			l := log.L()
			l.Warn().Err(err).Str(log.FieldUserID, profile.ID).Msg("cache set error")
		}
	}()
}

// parseDateOfBirth accepts YYYY-MM-DD or RFC3339 and returns midnight UTC
// of that calendar date.
func parseDateOfBirth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ ProfileService = (*profileServiceImpl)(nil)
