package pubsub

import (
	"fmt"
	"strings"
)

// ChannelUserEvents is the per-user notification channel.
const ChannelUserEvents = "matching:user:%s:events"

// Event types delivered to users.
const (
	EventVoteReceived = "vote_received"
	EventMatchCreated = "match_created"
	EventMatchExpired = "match_expired"
)

// UserEventsChannel returns the notification channel for a user.
func UserEventsChannel(userID string) string {
	return fmt.Sprintf(ChannelUserEvents, userID)
}

// parseUserChannel splits "matching:user:<id>:events" into its parts.
func parseUserChannel(channel string) (prefix, userID, suffix string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "user" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[0], parts[2], parts[3], nil
}

// VoteReceivedPayload tells a user someone made a non-reject choice about them.
type VoteReceivedPayload struct {
	FromUserID string `json:"fromUserId"`
	Choice     string `json:"choice"`
}

// MatchPayload describes a match from the recipient's point of view.
type MatchPayload struct {
	MatchID     string `json:"matchId"`
	OtherUserID string `json:"otherUserId"`
	MatchType   string `json:"matchType"`
	CreatedAt   string `json:"createdAt"`
}
