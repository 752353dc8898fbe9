package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shaamilshan/hamme/internal/domain"
)

type matchItem struct {
	ID        string `dynamodbav:"matchId"`
	UserA     string `dynamodbav:"userA"`
	UserB     string `dynamodbav:"userB"`
	MatchType string `dynamodbav:"matchType"`
	Status    string `dynamodbav:"status"`
	PairKey   string `dynamodbav:"pairKey"`
	CreatedAt int64  `dynamodbav:"createdAt"`
	UpdatedAt int64  `dynamodbav:"updatedAt"`
	ExpiredAt *int64 `dynamodbav:"expiredAt,omitempty"`
}

func (i *matchItem) toDomain() *domain.Match {
	m := &domain.Match{
		ID:        i.ID,
		UserA:     i.UserA,
		UserB:     i.UserB,
		MatchType: domain.Choice(i.MatchType),
		Status:    domain.MatchStatus(i.Status),
		CreatedAt: fromNanos(i.CreatedAt),
		UpdatedAt: fromNanos(i.UpdatedAt),
	}
	if i.ExpiredAt != nil {
		t := fromNanos(*i.ExpiredAt)
		m.ExpiredAt = &t
	}
	return m
}

// pairItem exists exactly while its pair has an active match.
type pairItem struct {
	PairKey   string `dynamodbav:"pairKey"`
	MatchID   string `dynamodbav:"matchId"`
	CreatedAt int64  `dynamodbav:"createdAt"`
}

// DynamoMatchRepository implements MatchRepository on DynamoDB. Match rows
// live in the matches table; the pairs table holds a lock item per active
// pair, written in the same transaction so a second active match for the
// pair fails its condition check.
type DynamoMatchRepository struct {
	client       DynamoAPI
	matchesTable string
	pairsTable   string
}

// NewDynamoMatchRepository creates a new DynamoDB-backed match repository.
func NewDynamoMatchRepository(client DynamoAPI, matchesTable, pairsTable string) *DynamoMatchRepository {
	return &DynamoMatchRepository{client: client, matchesTable: matchesTable, pairsTable: pairsTable}
}

// CreateActive writes the match and the pair lock in one transaction.
func (r *DynamoMatchRepository) CreateActive(ctx context.Context, match *domain.Match) error {
	match.UserA, match.UserB = domain.CanonicalPair(match.UserA, match.UserB)
	match.Status = domain.MatchStatusActive
	if match.UpdatedAt.IsZero() {
		match.UpdatedAt = match.CreatedAt
	}
	pairKey := domain.PairKey(match.UserA, match.UserB)

	mItem, err := attributevalue.MarshalMap(matchItem{
		ID:        match.ID,
		UserA:     match.UserA,
		UserB:     match.UserB,
		MatchType: string(match.MatchType),
		Status:    string(match.Status),
		PairKey:   pairKey,
		CreatedAt: toNanos(match.CreatedAt),
		UpdatedAt: toNanos(match.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}
	pItem, err := attributevalue.MarshalMap(pairItem{
		PairKey:   pairKey,
		MatchID:   match.ID,
		CreatedAt: toNanos(match.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pair lock: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.matchesTable),
				Item:                mItem,
				ConditionExpression: aws.String("attribute_not_exists(matchId)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.pairsTable),
				Item:                pItem,
				ConditionExpression: aws.String("attribute_not_exists(pairKey)"),
			}},
		},
	})
	if err != nil {
		if conditionFailedAt(err, 1) {
			return ErrActiveMatchExists
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// GetByID returns a match in any status.
func (r *DynamoMatchRepository) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.matchesTable),
		Key:            map[string]types.AttributeValue{"matchId": stringAttr(id)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if out.Item == nil {
		return nil, ErrMatchNotFound
	}

	var item matchItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return item.toDomain(), nil
}

// FindActiveBetween resolves the pair lock to its match.
func (r *DynamoMatchRepository) FindActiveBetween(ctx context.Context, userID1, userID2 string) (*domain.Match, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.pairsTable),
		Key:            map[string]types.AttributeValue{"pairKey": stringAttr(domain.PairKey(userID1, userID2))},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pair lock: %w", err)
	}
	if out.Item == nil {
		return nil, ErrMatchNotFound
	}

	var lock pairItem
	if err := attributevalue.UnmarshalMap(out.Item, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pair lock: %w", err)
	}
	return r.GetByID(ctx, lock.MatchID)
}

// ListActiveForUser queries both participant indexes, newest first.
func (r *DynamoMatchRepository) ListActiveForUser(ctx context.Context, userID string) ([]*domain.Match, error) {
	var matches []*domain.Match
	for _, idx := range []struct{ name, attr string }{
		{indexMatchesByA, "userA"},
		{indexMatchesByB, "userB"},
	} {
		found, err := r.queryActive(ctx, idx.name, idx.attr, userID)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func (r *DynamoMatchRepository) queryActive(ctx context.Context, index, attr, userID string) ([]*domain.Match, error) {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.matchesTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#user = :user"),
		FilterExpression:       aws.String("#status = :active"),
		ExpressionAttributeNames: map[string]string{
			"#user":   attr,
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user":   stringAttr(userID),
			":active": stringAttr(string(domain.MatchStatusActive)),
		},
	})

	var matches []*domain.Match
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query matches on %s: %w", index, err)
		}

		var items []matchItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matches: %w", err)
		}
		for i := range items {
			matches = append(matches, items[i].toDomain())
		}
	}
	return matches, nil
}

// ExpireForUser expires the user's stale active matches.
func (r *DynamoMatchRepository) ExpireForUser(ctx context.Context, userID string, cutoff, now time.Time) (int64, error) {
	active, err := r.ListActiveForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, m := range active {
		if m.CreatedAt.After(cutoff) {
			continue
		}
		ok, err := r.expire(ctx, m, now)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// ExpireAll scans the pair locks for stale active matches and expires them.
func (r *DynamoMatchRepository) ExpireAll(ctx context.Context, cutoff, now time.Time) ([]*domain.Match, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.pairsTable),
		FilterExpression: aws.String("createdAt <= :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": numberAttr(toNanos(cutoff)),
		},
		ConsistentRead: aws.Bool(true),
	})

	var expired []*domain.Match
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return expired, fmt.Errorf("failed to scan pair locks: %w", err)
		}

		var locks []pairItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &locks); err != nil {
			return expired, fmt.Errorf("failed to unmarshal pair locks: %w", err)
		}

		for _, lock := range locks {
			m, err := r.GetByID(ctx, lock.MatchID)
			if err != nil {
				return expired, err
			}
			ok, err := r.expire(ctx, m, now)
			if err != nil {
				return expired, err
			}
			if ok {
				expired = append(expired, m)
			}
		}
	}
	return expired, nil
}

// expire flips one match to expired and releases its pair lock. It reports
// false when another writer expired the match first.
func (r *DynamoMatchRepository) expire(ctx context.Context, m *domain.Match, now time.Time) (bool, error) {
	ts := toNanos(now)
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.matchesTable),
				Key:                 map[string]types.AttributeValue{"matchId": stringAttr(m.ID)},
				UpdateExpression:    aws.String("SET #status = :expired, expiredAt = :now, updatedAt = :now"),
				ConditionExpression: aws.String("#status = :active"),
				ExpressionAttributeNames: map[string]string{
					"#status": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":expired": stringAttr(string(domain.MatchStatusExpired)),
					":active":  stringAttr(string(domain.MatchStatusActive)),
					":now":     numberAttr(ts),
				},
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(r.pairsTable),
				Key:                 map[string]types.AttributeValue{"pairKey": stringAttr(domain.PairKey(m.UserA, m.UserB))},
				ConditionExpression: aws.String("matchId = :id"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id": stringAttr(m.ID),
				},
			}},
		},
	})
	if err != nil {
		if conditionFailedAt(err, 0) || conditionFailedAt(err, 1) {
			return false, nil
		}
		return false, fmt.Errorf("failed to expire match %s: %w", m.ID, err)
	}

	expiredAt := fromNanos(ts)
	m.Status = domain.MatchStatusExpired
	m.ExpiredAt = &expiredAt
	m.UpdatedAt = expiredAt
	return true, nil
}

// Ensure interface is satisfied at compile time.
var _ MatchRepository = (*DynamoMatchRepository)(nil)
