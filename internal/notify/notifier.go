// Package notify publishes matching events and delivers them to connected
// WebSocket clients.
package notify

import (
	"context"
	"time"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/pubsub"
)

// Notifier publishes per-user matching events. Publishing is best effort:
// failures are logged and never returned. A Notifier with a nil publisher
// drops every event.
type Notifier struct {
	pub pubsub.Publisher
}

// NewNotifier creates a Notifier. pub may be nil.
func NewNotifier(pub pubsub.Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// Enabled reports whether events are published anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.pub != nil
}

// VoteReceived tells the viewed user about a non-reject choice.
func (n *Notifier) VoteReceived(ctx context.Context, vote *domain.Vote) {
	n.publish(ctx, vote.ViewedUserID, pubsub.EventVoteReceived, pubsub.VoteReceivedPayload{
		FromUserID: vote.ViewerID,
		Choice:     string(vote.Choice),
	})
}

// MatchCreated tells both participants about a new match.
func (n *Notifier) MatchCreated(ctx context.Context, m *domain.Match) {
	n.publishMatch(ctx, pubsub.EventMatchCreated, m)
}

// MatchExpired tells both participants a match has expired.
func (n *Notifier) MatchExpired(ctx context.Context, m *domain.Match) {
	n.publishMatch(ctx, pubsub.EventMatchExpired, m)
}

func (n *Notifier) publishMatch(ctx context.Context, eventType string, m *domain.Match) {
	for _, userID := range []string{m.UserA, m.UserB} {
		n.publish(ctx, userID, eventType, pubsub.MatchPayload{
			MatchID:     m.ID,
			OtherUserID: m.Other(userID),
			MatchType:   string(m.MatchType),
			CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, userID, eventType string, payload interface{}) {
	if !n.Enabled() {
		return
	}

	l := log.Ctx(ctx)
	event, err := pubsub.NewEvent(eventType, userID, payload)
	if err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}

	if err := n.pub.Publish(ctx, pubsub.UserEventsChannel(userID), event); err != nil {
		l.Warn().Err(err).
			Str("event_type", eventType).
			Str(log.FieldTargetID, userID).
			Msg("failed to publish event")
	}
}
