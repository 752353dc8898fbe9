package domain

import "time"

// User is a registered account with its profile.
type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	DateOfBirth    *time.Time
	ProfilePicture string
	// PictureKeys are the storage keys of the uploaded picture variants.
	PictureKeys  []string
	Bio          string
	LastActiveAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgeAt returns the age in whole years of someone born on dob, at now.
// The birthday counts once its month and day are reached.
func AgeAt(dob, now time.Time) int {
	dob = dob.UTC()
	now = now.UTC()

	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// Age returns the user's age at now, or nil when no date of birth is set.
func (u *User) Age(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	age := AgeAt(*u.DateOfBirth, now)
	return &age
}

// Public returns the fields other users may see.
func (u *User) Public(now time.Time) PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Name:           u.Name,
		Age:            u.Age(now),
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
	}
}

// ToResponse converts User to the private profile representation.
func (u *User) ToResponse(now time.Time) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		DateOfBirth:    u.DateOfBirth,
		Age:            u.Age(now),
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		LastActiveAt:   u.LastActiveAt,
		CreatedAt:      u.CreatedAt,
	}
}
