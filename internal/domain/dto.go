package domain

import "time"

// PublicProfile is the part of a profile visible to other users.
type PublicProfile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Age            *int   `json:"age"`
	ProfilePicture string `json:"profilePicture"`
	Bio            string `json:"bio"`
}

// PendingProfile is an inbound choice awaiting the recipient's response.
type PendingProfile struct {
	User             PublicProfile `json:"user"`
	Choice           Choice        `json:"choice"`
	ViewedAt         time.Time     `json:"viewedAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	RemainingSeconds int64         `json:"remainingSeconds"`
}

// MatchView is an active match as seen by one participant.
type MatchView struct {
	MatchID          string        `json:"matchId"`
	User             PublicProfile `json:"user"`
	MatchType        Choice        `json:"matchType"`
	CreatedAt        time.Time     `json:"createdAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	RemainingSeconds int64         `json:"remainingSeconds"`
}

// ExistingVote is the caller's own unexpired vote toward a profile.
type ExistingVote struct {
	Choice    Choice    `json:"choice"`
	VotedAt   time.Time `json:"votedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PublicProfileView is a public profile plus the caller's vote state.
type PublicProfileView struct {
	User         PublicProfile `json:"user"`
	ExistingVote *ExistingVote `json:"existingVote"`
}

// MatchResult describes a match created by a submitted choice.
type MatchResult struct {
	Matched   bool   `json:"matched"`
	MatchType Choice `json:"matchType"`
	MatchID   string `json:"matchId"`
}

// SubmitResult is the outcome of a submitted choice. Match is nil when no
// match was created.
type SubmitResult struct {
	Match *MatchResult `json:"match"`
}

// ChoiceRequest is the body of a choice submission.
type ChoiceRequest struct {
	TargetUserID string `json:"targetUserId"`
	Choice       string `json:"choice"`
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents a refresh token request.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UpdateDOBRequest carries a date of birth as YYYY-MM-DD or RFC3339.
type UpdateDOBRequest struct {
	DateOfBirth string `json:"dateOfBirth" binding:"required"`
}

// UpdateBioRequest carries a new bio. An empty bio clears it.
type UpdateBioRequest struct {
	Bio string `json:"bio"`
}

// UpdatePictureRequest sets the picture to an externally hosted URL.
type UpdatePictureRequest struct {
	ProfilePicture string `json:"profilePicture" binding:"required"`
}

// UserResponse is the caller's own profile.
type UserResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	DateOfBirth    *time.Time `json:"dateOfBirth"`
	Age            *int       `json:"age"`
	ProfilePicture string     `json:"profilePicture"`
	Bio            string     `json:"bio"`
	LastActiveAt   *time.Time `json:"lastActive,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AuthResponse represents authentication response with tokens.
type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    int64        `json:"expiresAt"`
}
