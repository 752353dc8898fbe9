// Package expiry defines the lifetime window shared by votes and matches.
package expiry

import "time"

// Window is how long a vote counts as recent and a match stays active.
const Window = 24 * time.Hour

// Policy applies the expiry window against a clock.
type Policy struct {
	Window time.Duration
	Now    func() time.Time
}

// New returns a Policy using Window and the UTC wall clock.
func New() *Policy {
	return &Policy{
		Window: Window,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Fixed returns a Policy whose clock always reads t.
func Fixed(t time.Time) *Policy {
	return &Policy{
		Window: Window,
		Now:    func() time.Time { return t },
	}
}

// Cutoff is the creation time at or before which a record has expired.
func (p *Policy) Cutoff() time.Time {
	return p.Now().Add(-p.Window)
}

// IsExpired reports whether a record created at createdAt has reached the
// end of its window.
func (p *Policy) IsExpired(createdAt time.Time) bool {
	return p.Now().Sub(createdAt) >= p.Window
}

// ExpiresAt is the end of the window for a record created at createdAt.
func (p *Policy) ExpiresAt(createdAt time.Time) time.Time {
	return createdAt.Add(p.Window)
}

// Remaining is the time left in the window, never negative.
func (p *Policy) Remaining(createdAt time.Time) time.Duration {
	left := p.ExpiresAt(createdAt).Sub(p.Now())
	if left < 0 {
		return 0
	}
	return left
}
