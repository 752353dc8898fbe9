package domain

import "strings"

// Choice is a user's judgement about another user's profile.
type Choice string

const (
	ChoiceDate    Choice = "date"
	ChoiceFriends Choice = "friends"
	ChoiceReject  Choice = "reject"
)

// ParseChoice normalizes s and reports whether it names a valid choice.
func ParseChoice(s string) (Choice, bool) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Valid reports whether c is one of the known choices.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceDate, ChoiceFriends, ChoiceReject:
		return true
	}
	return false
}

// CanMatch reports whether c can take part in a match.
func (c Choice) CanMatch() bool {
	return c == ChoiceDate || c == ChoiceFriends
}

func (c Choice) String() string { return string(c) }
