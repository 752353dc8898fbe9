package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shaamilshan/hamme/internal/domain"
)

// GormVoteRepository implements VoteRepository using GORM.
type GormVoteRepository struct {
	db *gorm.DB
}

// NewGormVoteRepository creates a new GORM-backed vote repository.
func NewGormVoteRepository(db *gorm.DB) *GormVoteRepository {
	return &GormVoteRepository{db: db}
}

// Upsert writes the vote in a single INSERT ... ON CONFLICT statement keyed
// by the (viewer_id, viewed_user_id) unique index.
func (r *GormVoteRepository) Upsert(ctx context.Context, vote *domain.Vote) error {
	createdAt := vote.CreatedAt.UTC()
	model := domain.VoteModel{
		ViewerID:     vote.ViewerID,
		ViewedUserID: vote.ViewedUserID,
		Choice:       string(vote.Choice),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "viewer_id"}, {Name: "viewed_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"choice", "created_at", "updated_at"}),
	}).Create(&model).Error
}

// Get returns the vote of viewerID toward viewedUserID.
func (r *GormVoteRepository) Get(ctx context.Context, viewerID, viewedUserID string) (*domain.Vote, error) {
	var model domain.VoteModel
	err := r.db.WithContext(ctx).
		Where("viewer_id = ? AND viewed_user_id = ?", viewerID, viewedUserID).
		First(&model).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListInbound returns recent non-reject votes toward viewedUserID, newest first.
func (r *GormVoteRepository) ListInbound(ctx context.Context, viewedUserID string, since time.Time) ([]*domain.Vote, error) {
	var models []domain.VoteModel
	err := r.db.WithContext(ctx).
		Where("viewed_user_id = ? AND choice <> ? AND created_at > ?", viewedUserID, string(domain.ChoiceReject), since.UTC()).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	votes := make([]*domain.Vote, 0, len(models))
	for i := range models {
		votes = append(votes, models[i].ToDomain())
	}
	return votes, nil
}

// VotedTargets reports which of targetIDs viewerID has voted on, with any choice.
func (r *GormVoteRepository) VotedTargets(ctx context.Context, viewerID string, targetIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		result[id] = false
	}

	if len(targetIDs) == 0 {
		return result, nil
	}

	var models []domain.VoteModel
	err := r.db.WithContext(ctx).
		Select("viewed_user_id").
		Where("viewer_id = ? AND viewed_user_id IN ?", viewerID, targetIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for _, m := range models {
		result[m.ViewedUserID] = true
	}
	return result, nil
}

// Ensure interface is satisfied at compile time.
var _ VoteRepository = (*GormVoteRepository)(nil)
