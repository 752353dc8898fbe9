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

type voteItem struct {
	ViewerID     string `dynamodbav:"viewerId"`
	ViewedUserID string `dynamodbav:"viewedUserId"`
	Choice       string `dynamodbav:"choice"`
	CreatedAt    int64  `dynamodbav:"createdAt"`
}

func (i *voteItem) toDomain() *domain.Vote {
	return &domain.Vote{
		ViewerID:     i.ViewerID,
		ViewedUserID: i.ViewedUserID,
		Choice:       domain.Choice(i.Choice),
		CreatedAt:    fromNanos(i.CreatedAt),
	}
}

// DynamoVoteRepository implements VoteRepository on a DynamoDB table keyed
// by (viewerId, viewedUserId).
type DynamoVoteRepository struct {
	client     DynamoAPI
	table      string
	retryDelay time.Duration
	maxRetries int
}

// NewDynamoVoteRepository creates a new DynamoDB-backed vote repository.
func NewDynamoVoteRepository(client DynamoAPI, table string) *DynamoVoteRepository {
	return &DynamoVoteRepository{
		client:     client,
		table:      table,
		retryDelay: batchRetryDelay,
		maxRetries: batchMaxRetries,
	}
}

func (r *DynamoVoteRepository) key(viewerID, viewedUserID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"viewerId":     stringAttr(viewerID),
		"viewedUserId": stringAttr(viewedUserID),
	}
}

// Upsert replaces the item for the pair in one PutItem.
func (r *DynamoVoteRepository) Upsert(ctx context.Context, vote *domain.Vote) error {
	item, err := attributevalue.MarshalMap(voteItem{
		ViewerID:     vote.ViewerID,
		ViewedUserID: vote.ViewedUserID,
		Choice:       string(vote.Choice),
		CreatedAt:    toNanos(vote.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal vote: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put vote: %w", err)
	}
	return nil
}

// Get returns the vote of viewerID toward viewedUserID.
func (r *DynamoVoteRepository) Get(ctx context.Context, viewerID, viewedUserID string) (*domain.Vote, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(viewerID, viewedUserID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	if out.Item == nil {
		return nil, ErrVoteNotFound
	}

	var item voteItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vote: %w", err)
	}
	return item.toDomain(), nil
}

// ListInbound queries the viewed-user index for recent non-reject votes.
func (r *DynamoVoteRepository) ListInbound(ctx context.Context, viewedUserID string, since time.Time) ([]*domain.Vote, error) {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(indexVotesByViewed),
		KeyConditionExpression: aws.String("viewedUserId = :viewed"),
		FilterExpression:       aws.String("#choice <> :reject AND createdAt > :since"),
		ExpressionAttributeNames: map[string]string{
			"#choice": "choice",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":viewed": stringAttr(viewedUserID),
			":reject": stringAttr(string(domain.ChoiceReject)),
			":since":  numberAttr(toNanos(since)),
		},
	})

	var votes []*domain.Vote
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query inbound votes: %w", err)
		}

		var items []voteItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
		}
		for i := range items {
			votes = append(votes, items[i].toDomain())
		}
	}

	sort.SliceStable(votes, func(i, j int) bool {
		return votes[i].CreatedAt.After(votes[j].CreatedAt)
	})
	return votes, nil
}

// VotedTargets batch-reads the viewer's votes toward targetIDs.
func (r *DynamoVoteRepository) VotedTargets(ctx context.Context, viewerID string, targetIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		result[id] = false
	}

	for start := 0; start < len(targetIDs); start += dynamoBatchGetLimit {
		end := start + dynamoBatchGetLimit
		if end > len(targetIDs) {
			end = len(targetIDs)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range targetIDs[start:end] {
			keys = append(keys, r.key(viewerID, id))
		}

		request := map[string]types.KeysAndAttributes{
			r.table: {Keys: keys, ProjectionExpression: aws.String("viewedUserId")},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > 0 {
				if attempt > r.maxRetries {
					return nil, fmt.Errorf("failed to batch get votes: %d keys unprocessed after %d retries",
						len(request[r.table].Keys), r.maxRetries)
				}
				select {
				case <-time.After(r.retryDelay << (attempt - 1)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get votes: %w", err)
			}
			for _, item := range out.Responses[r.table] {
				if v, ok := item["viewedUserId"].(*types.AttributeValueMemberS); ok {
					result[v.Value] = true
				}
			}
			request = out.UnprocessedKeys
		}
	}
	return result, nil
}

// Ensure interface is satisfied at compile time.
var _ VoteRepository = (*DynamoVoteRepository)(nil)
