package domain

import "time"

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusActive  MatchStatus = "active"
	MatchStatusExpired MatchStatus = "expired"
)

// Match is a mutual same-choice pair of votes. UserA < UserB always holds.
type Match struct {
	ID        string
	UserA     string
	UserB     string
	MatchType Choice
	Status    MatchStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiredAt *time.Time
}

// CanonicalPair orders two user IDs so that an unordered pair has a single
// stored form.
func CanonicalPair(u1, u2 string) (string, string) {
	if u1 > u2 {
		return u2, u1
	}
	return u1, u2
}

// PairKey is the canonical key of the unordered pair {u1, u2}.
func PairKey(u1, u2 string) string {
	a, b := CanonicalPair(u1, u2)
	return a + ":" + b
}

// Involves reports whether userID is a participant.
func (m *Match) Involves(userID string) bool {
	return m.UserA == userID || m.UserB == userID
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID string) string {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// IsActive reports whether the stored status is active.
func (m *Match) IsActive() bool {
	return m.Status == MatchStatusActive
}
