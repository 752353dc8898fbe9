package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shaamilshan/hamme/internal/domain"
)

// GormMatchRepository implements MatchRepository using GORM. The unique
// index on active_pair is the race guard for concurrent match creation.
type GormMatchRepository struct {
	db *gorm.DB
}

// NewGormMatchRepository creates a new GORM-backed match repository.
func NewGormMatchRepository(db *gorm.DB) *GormMatchRepository {
	return &GormMatchRepository{db: db}
}

// CreateActive inserts an active match.
func (r *GormMatchRepository) CreateActive(ctx context.Context, match *domain.Match) error {
	match.UserA, match.UserB = domain.CanonicalPair(match.UserA, match.UserB)
	match.Status = domain.MatchStatusActive
	match.CreatedAt = match.CreatedAt.UTC()
	if match.UpdatedAt.IsZero() {
		match.UpdatedAt = match.CreatedAt
	}

	if err := r.db.WithContext(ctx).Create(domain.MatchToModel(match)).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrActiveMatchExists
		}
		return err
	}
	return nil
}

// GetByID returns a match in any status.
func (r *GormMatchRepository) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	var model domain.MatchModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveBetween returns the active match of the unordered pair.
func (r *GormMatchRepository) FindActiveBetween(ctx context.Context, userID1, userID2 string) (*domain.Match, error) {
	var model domain.MatchModel
	err := r.db.WithContext(ctx).
		Where("active_pair = ?", domain.PairKey(userID1, userID2)).
		First(&model).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActiveForUser returns the user's active matches, newest first.
func (r *GormMatchRepository) ListActiveForUser(ctx context.Context, userID string) ([]*domain.Match, error) {
	var models []domain.MatchModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND (user_a = ? OR user_b = ?)", string(domain.MatchStatusActive), userID, userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toMatches(models), nil
}

// ExpireForUser flips the user's stale active matches to expired and frees
// their pair slot.
func (r *GormMatchRepository) ExpireForUser(ctx context.Context, userID string, cutoff, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.MatchModel{}).
		Where("status = ? AND (user_a = ? OR user_b = ?) AND created_at <= ?",
			string(domain.MatchStatusActive), userID, userID, cutoff.UTC()).
		Updates(expireFields(now))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExpireAll expires every stale active match.
func (r *GormMatchRepository) ExpireAll(ctx context.Context, cutoff, now time.Time) ([]*domain.Match, error) {
	var expired []*domain.Match

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []domain.MatchModel
		if err := tx.
			Where("status = ? AND created_at <= ?", string(domain.MatchStatusActive), cutoff.UTC()).
			Find(&models).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]string, 0, len(models))
		for _, m := range models {
			ids = append(ids, m.ID)
		}

		if err := tx.Model(&domain.MatchModel{}).
			Where("id IN ? AND status = ?", ids, string(domain.MatchStatusActive)).
			Updates(expireFields(now)).Error; err != nil {
			return err
		}

		expiredAt := now.UTC()
		expired = toMatches(models)
		for _, m := range expired {
			m.Status = domain.MatchStatusExpired
			m.ExpiredAt = &expiredAt
			m.UpdatedAt = expiredAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func expireFields(now time.Time) map[string]interface{} {
	now = now.UTC()
	return map[string]interface{}{
		"status":      string(domain.MatchStatusExpired),
		"active_pair": nil,
		"expired_at":  now,
		"updated_at":  now,
	}
}

func toMatches(models []domain.MatchModel) []*domain.Match {
	matches := make([]*domain.Match, 0, len(models))
	for i := range models {
		matches = append(matches, models[i].ToDomain())
	}
	return matches
}

// Ensure interface is satisfied at compile time.
var _ MatchRepository = (*GormMatchRepository)(nil)
