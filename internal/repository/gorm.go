package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/shaamilshan/hamme/internal/domain"
)

// AutoMigrate creates or updates the tables and indexes of the SQL store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.UserModel{}, &domain.VoteModel{}, &domain.MatchModel{})
}

// isUniqueViolation reports whether err is a unique-constraint violation.
// TranslateError maps driver errors to gorm.ErrDuplicatedKey; the string
// checks cover drivers that do not translate.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") ||
		strings.Contains(s, "UNIQUE constraint") ||
		strings.Contains(s, "Duplicate entry")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
