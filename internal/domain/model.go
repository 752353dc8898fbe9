package domain

import (
	"time"

	"github.com/shaamilshan/hamme/pkg/database"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID             string               `gorm:"type:varchar(36);primaryKey"`
	Name           string               `gorm:"type:varchar(50);not null"`
	Email          string               `gorm:"type:varchar(255);uniqueIndex:uidx_users_email;not null"`
	PasswordHash   string               `gorm:"type:varchar(255);not null"`
	DateOfBirth    *time.Time           `gorm:"column:date_of_birth"`
	ProfilePicture string               `gorm:"type:varchar(1024)"`
	PictureKeys    database.StringArray `gorm:"type:text"`
	Bio            string               `gorm:"type:varchar(500)"`
	LastActiveAt   *time.Time           `gorm:"index"`
	CreatedAt      time.Time            `gorm:"autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:             m.ID,
		Name:           m.Name,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		DateOfBirth:    m.DateOfBirth,
		ProfilePicture: m.ProfilePicture,
		PictureKeys:    []string(m.PictureKeys),
		Bio:            m.Bio,
		LastActiveAt:   m.LastActiveAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		DateOfBirth:    u.DateOfBirth,
		ProfilePicture: u.ProfilePicture,
		PictureKeys:    database.StringArray(u.PictureKeys),
		Bio:            u.Bio,
		LastActiveAt:   u.LastActiveAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// VoteModel is the GORM model for the votes table. One row per ordered pair.
type VoteModel struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	ViewerID     string    `gorm:"column:viewer_id;type:varchar(36);not null;uniqueIndex:uidx_votes_pair,priority:1"`
	ViewedUserID string    `gorm:"column:viewed_user_id;type:varchar(36);not null;uniqueIndex:uidx_votes_pair,priority:2;index:idx_votes_viewed"`
	Choice       string    `gorm:"type:varchar(16);not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (VoteModel) TableName() string { return "votes" }

// ToDomain converts VoteModel to domain Vote.
func (m *VoteModel) ToDomain() *Vote {
	return &Vote{
		ViewerID:     m.ViewerID,
		ViewedUserID: m.ViewedUserID,
		Choice:       Choice(m.Choice),
		CreatedAt:    m.CreatedAt,
	}
}

// MatchModel is the GORM model for the matches table. ActivePair holds the
// canonical pair key while the match is active and NULL afterwards, so the
// unique index admits one active match per pair and any number of expired
// ones.
type MatchModel struct {
	ID         string     `gorm:"type:varchar(26);primaryKey"`
	UserA      string     `gorm:"column:user_a;type:varchar(36);not null;index:idx_matches_user_a"`
	UserB      string     `gorm:"column:user_b;type:varchar(36);not null;index:idx_matches_user_b"`
	MatchType  string     `gorm:"type:varchar(16);not null"`
	Status     string     `gorm:"type:varchar(16);not null;index:idx_matches_status"`
	ActivePair *string    `gorm:"column:active_pair;type:varchar(80);uniqueIndex:uidx_matches_active_pair"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time
	ExpiredAt  *time.Time
}

func (MatchModel) TableName() string { return "matches" }

// ToDomain converts MatchModel to domain Match.
func (m *MatchModel) ToDomain() *Match {
	return &Match{
		ID:        m.ID,
		UserA:     m.UserA,
		UserB:     m.UserB,
		MatchType: Choice(m.MatchType),
		Status:    MatchStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		ExpiredAt: m.ExpiredAt,
	}
}

// MatchToModel converts domain Match to MatchModel.
func MatchToModel(m *Match) *MatchModel {
	model := &MatchModel{
		ID:        m.ID,
		UserA:     m.UserA,
		UserB:     m.UserB,
		MatchType: string(m.MatchType),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		ExpiredAt: m.ExpiredAt,
	}
	if m.IsActive() {
		key := PairKey(m.UserA, m.UserB)
		model.ActivePair = &key
	}
	return model
}
