package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/database"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user, assigning an ID when none is set.
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	model := domain.UserToModel(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return err
	}

	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByIDs retrieves the existing users among ids.
func (r *GormUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	result := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var models []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		result[models[i].ID] = models[i].ToDomain()
	}
	return result, nil
}

// GetByEmail retrieves a user by email.
func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Exists reports whether a user with id exists.
func (r *GormUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateLastActive records the user's latest sign-in.
func (r *GormUserRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{"last_active_at": at.UTC()})
}

// UpdateDateOfBirth sets the user's date of birth.
func (r *GormUserRepository) UpdateDateOfBirth(ctx context.Context, id string, dob time.Time) error {
	return r.update(ctx, id, map[string]interface{}{"date_of_birth": dob.UTC()})
}

// UpdateBio sets the user's bio.
func (r *GormUserRepository) UpdateBio(ctx context.Context, id, bio string) error {
	return r.update(ctx, id, map[string]interface{}{"bio": bio})
}

// UpdatePicture sets the picture URL and the storage keys backing it.
func (r *GormUserRepository) UpdatePicture(ctx context.Context, id, url string, keys []string) error {
	return r.update(ctx, id, map[string]interface{}{
		"profile_picture": url,
		"picture_keys":    database.StringArray(keys),
	})
}

func (r *GormUserRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Ensure interface is satisfied at compile time.
var _ UserRepository = (*GormUserRepository)(nil)
