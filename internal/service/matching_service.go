package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/shaamilshan/hamme/internal/audit"
	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/internal/expiry"
	"github.com/shaamilshan/hamme/internal/repository"
	"github.com/shaamilshan/hamme/pkg/log"
)

type matchingServiceImpl struct {
	votes    repository.VoteRepository
	matches  repository.MatchRepository
	profiles ProfileLookup
	notifier EventNotifier
	policy   *expiry.Policy
}

// NewMatchingService creates the matching engine. notifier may be nil.
func NewMatchingService(
	votes repository.VoteRepository,
	matches repository.MatchRepository,
	profiles ProfileLookup,
	notifier EventNotifier,
	policy *expiry.Policy,
) MatchingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if policy == nil {
		policy = expiry.New()
	}
	return &matchingServiceImpl{
		votes:    votes,
		matches:  matches,
		profiles: profiles,
		notifier: notifier,
		policy:   policy,
	}
}

func newMatchID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func (s *matchingServiceImpl) Submit(ctx context.Context, viewerID, targetUserID, choice string) (*domain.SubmitResult, error) {
	l := log.Ctx(ctx)

	c, ok := domain.ParseChoice(choice)
	if !ok {
		return nil, ErrInvalidChoice
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, ErrInvalidTarget
	}
	if targetUserID == viewerID {
		return nil, ErrSelfInteraction
	}

	if _, err := s.profiles.GetPublicProfile(ctx, targetUserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("look up target: %w", err)
	}

	vote := &domain.Vote{
		ViewerID:     viewerID,
		ViewedUserID: targetUserID,
		Choice:       c,
		CreatedAt:    s.policy.Now(),
	}
	if err := s.votes.Upsert(ctx, vote); err != nil {
		l.Error().Err(err).Str(log.FieldTargetID, targetUserID).Msg("failed to save vote")
		return nil, fmt.Errorf("save vote: %w", err)
	}
	audit.LogChoice(ctx, viewerID, targetUserID, string(c))

	result := &domain.SubmitResult{}
	if !c.CanMatch() {
		return result, nil
	}

	match, err := s.detectMatch(ctx, vote)
	if err != nil {
		l.Error().Err(err).Str(log.FieldTargetID, targetUserID).Msg("match detection failed")
		return nil, err
	}
	if match == nil {
		s.notifier.VoteReceived(ctx, vote)
		return result, nil
	}

	audit.LogMatch(ctx, audit.ActionMatchCreated, match, "match created")
	s.notifier.MatchCreated(ctx, match)

	result.Match = &domain.MatchResult{
		Matched:   true,
		MatchType: match.MatchType,
		MatchID:   match.ID,
	}
	return result, nil
}

// detectMatch creates a match when the reciprocal vote carries the same
// choice and the pair has no active match. It returns nil when no match
// was created.
func (s *matchingServiceImpl) detectMatch(ctx context.Context, vote *domain.Vote) (*domain.Match, error) {
	reciprocal, err := s.votes.Get(ctx, vote.ViewedUserID, vote.ViewerID)
	if err != nil {
		if errors.Is(err, repository.ErrVoteNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reciprocal vote: %w", err)
	}
	if reciprocal.Choice != vote.Choice {
		return nil, nil
	}

	existing, err := s.matches.FindActiveBetween(ctx, vote.ViewerID, vote.ViewedUserID)
	switch {
	case err == nil:
		if !s.policy.IsExpired(existing.CreatedAt) {
			return nil, nil
		}
		// The stored match outlived its window; release the pair first.
		if _, err := s.matches.ExpireForUser(ctx, vote.ViewerID, s.policy.Cutoff(), vote.CreatedAt); err != nil {
			return nil, fmt.Errorf("expire stale match: %w", err)
		}
	case errors.Is(err, repository.ErrMatchNotFound):
	default:
		return nil, fmt.Errorf("check active match: %w", err)
	}

	userA, userB := domain.CanonicalPair(vote.ViewerID, vote.ViewedUserID)
	match := &domain.Match{
		ID:        newMatchID(vote.CreatedAt),
		UserA:     userA,
		UserB:     userB,
		MatchType: vote.Choice,
		Status:    domain.MatchStatusActive,
		CreatedAt: vote.CreatedAt,
		UpdatedAt: vote.CreatedAt,
	}
	if err := s.matches.CreateActive(ctx, match); err != nil {
		if errors.Is(err, repository.ErrActiveMatchExists) {
			// A concurrent reciprocal submission created it first.
			return nil, nil
		}
		return nil, fmt.Errorf("create match: %w", err)
	}
	return match, nil
}

func (s *matchingServiceImpl) ListPending(ctx context.Context, userID string) ([]domain.PendingProfile, error) {
	inbound, err := s.votes.ListInbound(ctx, userID, s.policy.Cutoff())
	if err != nil {
		return nil, fmt.Errorf("list inbound votes: %w", err)
	}

	byViewer := make(map[string]*domain.Vote, len(inbound))
	senders := make([]string, 0, len(inbound))
	for _, v := range inbound {
		if !v.Choice.CanMatch() || s.policy.IsExpired(v.CreatedAt) {
			continue
		}
		byViewer[v.ViewerID] = v
		senders = append(senders, v.ViewerID)
	}
	if len(senders) == 0 {
		return []domain.PendingProfile{}, nil
	}

	var (
		answered map[string]bool
		profiles map[string]domain.PublicProfile
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		answered, err = s.votes.VotedTargets(gCtx, userID, senders)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = s.profiles.GetPublicProfiles(gCtx, senders)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decorate pending: %w", err)
	}

	pending := make([]domain.PendingProfile, 0, len(senders))
	for _, viewerID := range senders {
		if answered[viewerID] {
			continue
		}
		profile, ok := profiles[viewerID]
		if !ok {
			continue
		}
		v := byViewer[viewerID]
		pending = append(pending, domain.PendingProfile{
			User:             profile,
			Choice:           v.Choice,
			ViewedAt:         v.CreatedAt,
			ExpiresAt:        s.policy.ExpiresAt(v.CreatedAt),
			RemainingSeconds: s.remainingSeconds(v.CreatedAt),
		})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].ViewedAt.Equal(pending[j].ViewedAt) {
			return pending[i].ViewedAt.After(pending[j].ViewedAt)
		}
		return pending[i].User.ID < pending[j].User.ID
	})
	return pending, nil
}

func (s *matchingServiceImpl) ListActiveMatches(ctx context.Context, userID string) ([]domain.MatchView, error) {
	l := log.Ctx(ctx)

	n, err := s.matches.ExpireForUser(ctx, userID, s.policy.Cutoff(), s.policy.Now())
	if err != nil {
		return nil, fmt.Errorf("expire matches: %w", err)
	}
	if n > 0 {
		l.Debug().Int64(log.FieldCount, n).Msg("expired stale matches")
	}

	active, err := s.matches.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	live := make([]*domain.Match, 0, len(active))
	others := make([]string, 0, len(active))
	for _, m := range active {
		if s.policy.IsExpired(m.CreatedAt) {
			continue
		}
		live = append(live, m)
		others = append(others, m.Other(userID))
	}
	if len(live) == 0 {
		return []domain.MatchView{}, nil
	}

	profiles, err := s.profiles.GetPublicProfiles(ctx, others)
	if err != nil {
		return nil, fmt.Errorf("decorate matches: %w", err)
	}

	views := make([]domain.MatchView, 0, len(live))
	for _, m := range live {
		profile, ok := profiles[m.Other(userID)]
		if !ok {
			continue
		}
		views = append(views, domain.MatchView{
			MatchID:          m.ID,
			User:             profile,
			MatchType:        m.MatchType,
			CreatedAt:        m.CreatedAt,
			ExpiresAt:        s.policy.ExpiresAt(m.CreatedAt),
			RemainingSeconds: s.remainingSeconds(m.CreatedAt),
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].MatchID > views[j].MatchID
	})
	return views, nil
}

func (s *matchingServiceImpl) GetPublicProfile(ctx context.Context, callerID, targetUserID string) (*domain.PublicProfileView, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, ErrInvalidTarget
	}

	var (
		profile *domain.PublicProfile
		vote    *domain.Vote
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.profiles.GetPublicProfile(gCtx, targetUserID)
		return err
	})
	if callerID != "" && callerID != targetUserID {
		g.Go(func() error {
			v, err := s.votes.Get(gCtx, callerID, targetUserID)
			if err != nil {
				if errors.Is(err, repository.ErrVoteNotFound) {
					return nil
				}
				return fmt.Errorf("get caller vote: %w", err)
			}
			vote = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &domain.PublicProfileView{User: *profile}
	if vote != nil && !s.policy.IsExpired(vote.CreatedAt) {
		view.ExistingVote = &domain.ExistingVote{
			Choice:    vote.Choice,
			VotedAt:   vote.CreatedAt,
			ExpiresAt: s.policy.ExpiresAt(vote.CreatedAt),
		}
	}
	return view, nil
}

func (s *matchingServiceImpl) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.matches.ExpireAll(ctx, s.policy.Cutoff(), s.policy.Now())
	for _, m := range expired {
		audit.LogMatch(ctx, audit.ActionMatchExpired, m, "match expired")
		s.notifier.MatchExpired(ctx, m)
	}
	if err != nil {
		return len(expired), fmt.Errorf("expire matches: %w", err)
	}
	return len(expired), nil
}

// Ensure interface is satisfied at compile time.
// remainingSeconds rounds the time left in the window down to whole seconds.
func (s *matchingServiceImpl) remainingSeconds(createdAt time.Time) int64 {
	return int64(s.policy.Remaining(createdAt) / time.Second)
}

var _ MatchingService = (*matchingServiceImpl)(nil)
