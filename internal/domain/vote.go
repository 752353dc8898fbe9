package domain

import "time"

// Vote is the latest choice of one viewer about one viewed user.
type Vote struct {
	ViewerID     string
	ViewedUserID string
	Choice       Choice
	CreatedAt    time.Time
}
