package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaamilshan/hamme/internal/domain"
)

// fakeDynamo is an in-memory table store. It evaluates the condition,
// filter and update expressions the repositories send: comparisons joined
// by AND, attribute_not_exists, and SET lists. Queries ignore the index
// name and match the key condition against every item.
type fakeDynamo struct {
	t      *testing.T
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]map[string]types.AttributeValue

	// unprocessed makes the next BatchGetItem calls hand back that many
	// keys as UnprocessedKeys.
	unprocessed []int
	batchCalls  int
}

func newFakeDynamo(t *testing.T) *fakeDynamo {
	f := &fakeDynamo{
		keys: map[string][]string{
			"votes":   {"viewerId", "viewedUserId"},
			"matches": {"matchId"},
			"pairs":   {"pairKey"},
		},
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
	f.t = t
	return f
}

func (f *fakeDynamo) keyOf(table string, item map[string]types.AttributeValue) string {
	parts := make([]string, 0, 2)
	for _, k := range f.keys[table] {
		if s, ok := item[k].(*types.AttributeValueMemberS); ok {
			parts = append(parts, s.Value)
		}
	}
	return strings.Join(parts, "|")
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		f.tables[name] = t
	}
	return t
}

// items returns the table's items in key order.
func (f *fakeDynamo) items(name string) []map[string]types.AttributeValue {
	t := f.table(name)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, t[k])
	}
	return out
}

type exprContext struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e exprContext) name(token string) string {
	if n, ok := e.names[token]; ok {
		return n
	}
	return token
}

// eval evaluates a conjunction of comparisons against item. An empty
// expression always holds.
func (e exprContext) eval(t *testing.T, expr string, item map[string]types.AttributeValue) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "attribute_not_exists(") {
			attr := e.name(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"))
			if _, ok := item[attr]; ok {
				return false
			}
			continue
		}

		fields := strings.Fields(clause)
		require.Len(t, fields, 3, "unsupported clause %q", clause)
		lhs, ok := item[e.name(fields[0])]
		if !ok {
			return false
		}
		rhs, ok := e.values[fields[2]]
		require.True(t, ok, "missing value %s", fields[2])
		if !compareAttr(t, lhs, fields[1], rhs) {
			return false
		}
	}
	return true
}

// apply runs a "SET a = :x, b = :y" update on item.
func (e exprContext) apply(t *testing.T, expr string, item map[string]types.AttributeValue) {
	expr = strings.TrimSpace(expr)
	require.True(t, strings.HasPrefix(expr, "SET "), "unsupported update %q", expr)
	for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		require.Len(t, parts, 2)
		v, ok := e.values[strings.TrimSpace(parts[1])]
		require.True(t, ok, "missing value %s", parts[1])
		item[e.name(strings.TrimSpace(parts[0]))] = v
	}
}

func compareAttr(t *testing.T, lhs types.AttributeValue, op string, rhs types.AttributeValue) bool {
	var cmp int
	switch l := lhs.(type) {
	case *types.AttributeValueMemberS:
		r, ok := rhs.(*types.AttributeValueMemberS)
		require.True(t, ok)
		cmp = strings.Compare(l.Value, r.Value)
	case *types.AttributeValueMemberN:
		r, ok := rhs.(*types.AttributeValueMemberN)
		require.True(t, ok)
		ln, err := strconv.ParseInt(l.Value, 10, 64)
		require.NoError(t, err)
		rn, err := strconv.ParseInt(r.Value, 10, 64)
		require.NoError(t, err)
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	default:
		t.Fatalf("unsupported attribute type %T", lhs)
	}

	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	t.Fatalf("unsupported operator %q", op)
	return false
}

func cloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	return &dynamodb.GetItemOutput{Item: f.table(name)[f.keyOf(name, in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	f.table(name)[f.keyOf(name, in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hold := 0
	if f.batchCalls < len(f.unprocessed) {
		hold = f.unprocessed[f.batchCalls]
	}
	f.batchCalls++

	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for name, ka := range in.RequestItems {
		keys := ka.Keys
		if hold > len(keys) {
			hold = len(keys)
		}
		if hold > 0 {
			rest := ka
			rest.Keys = keys[:hold]
			out.UnprocessedKeys[name] = rest
			keys = keys[hold:]
		}
		for _, key := range keys {
			if item, ok := f.table(name)[f.keyOf(name, key)]; ok {
				out.Responses[name] = append(out.Responses[name], item)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.t
	e := exprContext{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items(aws.ToString(in.TableName)) {
		if !e.eval(t, aws.ToString(in.KeyConditionExpression), item) {
			continue
		}
		if e.eval(t, aws.ToString(in.FilterExpression), item) {
			out.Items = append(out.Items, item)
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.t
	e := exprContext{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items(aws.ToString(in.TableName)) {
		if e.eval(t, aws.ToString(in.FilterExpression), item) {
			out.Items = append(out.Items, item)
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// TransactWriteItems checks every condition first and applies nothing if
// any fails, like DynamoDB.
func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.t
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}

		var name, cond string
		var key map[string]types.AttributeValue
		var e exprContext
		switch {
		case ti.Put != nil:
			name, key, cond = aws.ToString(ti.Put.TableName), ti.Put.Item, aws.ToString(ti.Put.ConditionExpression)
			e = exprContext{names: ti.Put.ExpressionAttributeNames, values: ti.Put.ExpressionAttributeValues}
		case ti.Update != nil:
			name, key, cond = aws.ToString(ti.Update.TableName), ti.Update.Key, aws.ToString(ti.Update.ConditionExpression)
			e = exprContext{names: ti.Update.ExpressionAttributeNames, values: ti.Update.ExpressionAttributeValues}
		case ti.Delete != nil:
			name, key, cond = aws.ToString(ti.Delete.TableName), ti.Delete.Key, aws.ToString(ti.Delete.ConditionExpression)
			e = exprContext{names: ti.Delete.ExpressionAttributeNames, values: ti.Delete.ExpressionAttributeValues}
		default:
			return nil, errors.New("unsupported transact item")
		}

		existing := f.table(name)[f.keyOf(name, key)]
		if existing == nil {
			existing = map[string]types.AttributeValue{}
		}
		if !e.eval(t, cond, existing) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			name := aws.ToString(ti.Put.TableName)
			f.table(name)[f.keyOf(name, ti.Put.Item)] = ti.Put.Item
		case ti.Update != nil:
			name := aws.ToString(ti.Update.TableName)
			k := f.keyOf(name, ti.Update.Key)
			item := cloneItem(ti.Update.Key)
			if existing, ok := f.table(name)[k]; ok {
				item = cloneItem(existing)
			}
			e := exprContext{names: ti.Update.ExpressionAttributeNames, values: ti.Update.ExpressionAttributeValues}
			e.apply(t, aws.ToString(ti.Update.UpdateExpression), item)
			f.table(name)[k] = item
		case ti.Delete != nil:
			name := aws.ToString(ti.Delete.TableName)
			delete(f.table(name), f.keyOf(name, ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestDynamoVoteRepository_UpsertGet(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoVoteRepository(newFakeDynamo(t), "votes")
	now := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceDate, CreatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceReject, CreatedAt: now.Add(time.Second)}))

	v, err := repo.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceReject, v.Choice)
	assert.True(t, v.CreatedAt.Equal(now.Add(time.Second)))

	_, err = repo.Get(ctx, "b", "a")
	assert.ErrorIs(t, err, ErrVoteNotFound)

	voted, err := repo.VotedTargets(ctx, "a", []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true, "c": false}, voted)
}

func TestDynamoMatchRepository_PairLock(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoMatchRepository(newFakeDynamo(t), "matches", "pairs")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m1", UserA: "b", UserB: "a", MatchType: domain.ChoiceDate, CreatedAt: now}))

	err := repo.CreateActive(ctx, &domain.Match{ID: "m2", UserA: "a", UserB: "b", MatchType: domain.ChoiceDate, CreatedAt: now})
	assert.ErrorIs(t, err, ErrActiveMatchExists)

	m, err := repo.FindActiveBetween(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "a", m.UserA)
	assert.Equal(t, domain.MatchStatusActive, m.Status)
	assert.True(t, m.CreatedAt.Equal(now))

	_, err = repo.FindActiveBetween(ctx, "a", "z")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = repo.GetByID(ctx, "m2")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestDynamoVoteRepository_ListInbound(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoVoteRepository(newFakeDynamo(t), "votes")
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	for _, v := range []domain.Vote{
		{ViewerID: "a", ViewedUserID: "z", Choice: domain.ChoiceDate, CreatedAt: now.Add(-time.Hour)},
		{ViewerID: "b", ViewedUserID: "z", Choice: domain.ChoiceFriends, CreatedAt: now.Add(-2 * time.Hour)},
		{ViewerID: "c", ViewedUserID: "z", Choice: domain.ChoiceReject, CreatedAt: now.Add(-time.Hour)},
		{ViewerID: "d", ViewedUserID: "z", Choice: domain.ChoiceDate, CreatedAt: now.Add(-25 * time.Hour)},
		{ViewerID: "e", ViewedUserID: "z", Choice: domain.ChoiceDate, CreatedAt: since},
		{ViewerID: "a", ViewedUserID: "y", Choice: domain.ChoiceDate, CreatedAt: now},
	} {
		v := v
		require.NoError(t, repo.Upsert(ctx, &v))
	}

	votes, err := repo.ListInbound(ctx, "z", since)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, "a", votes[0].ViewerID)
	assert.Equal(t, "b", votes[1].ViewerID)
	assert.Equal(t, domain.ChoiceFriends, votes[1].Choice)

	votes, err = repo.ListInbound(ctx, "nobody", since)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestDynamoVoteRepository_VotedTargetsRetriesUnprocessed(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo(t)
	fake.unprocessed = []int{2, 1}
	repo := NewDynamoVoteRepository(fake, "votes")
	repo.retryDelay = time.Millisecond

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "b", Choice: domain.ChoiceDate, CreatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &domain.Vote{ViewerID: "a", ViewedUserID: "c", Choice: domain.ChoiceReject, CreatedAt: now}))

	voted, err := repo.VotedTargets(ctx, "a", []string{"b", "c", "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true, "c": true, "x": false}, voted)
	assert.Equal(t, 3, fake.batchCalls)
}

func TestDynamoVoteRepository_VotedTargetsGivesUp(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo(t)
	fake.unprocessed = []int{1, 1, 1, 1, 1, 1, 1, 1}
	repo := NewDynamoVoteRepository(fake, "votes")
	repo.retryDelay = time.Millisecond

	_, err := repo.VotedTargets(ctx, "a", []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprocessed")
	assert.Equal(t, batchMaxRetries+1, fake.batchCalls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	fake.unprocessed = []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	_, err = repo.VotedTargets(cancelled, "a", []string{"b"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDynamoMatchRepository_ExpireThenRecreate(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoMatchRepository(newFakeDynamo(t), "matches", "pairs")
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m1", UserA: "a", UserB: "b", MatchType: domain.ChoiceDate, CreatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m2", UserA: "c", UserB: "a", MatchType: domain.ChoiceFriends, CreatedAt: now.Add(-time.Hour)}))

	active, err := repo.ListActiveForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "m2", active[0].ID)
	assert.Equal(t, "m1", active[1].ID)

	n, err := repo.ExpireForUser(ctx, "a", cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	m1, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusExpired, m1.Status)
	require.NotNil(t, m1.ExpiredAt)
	assert.True(t, m1.ExpiredAt.Equal(now))

	_, err = repo.FindActiveBetween(ctx, "b", "a")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	active, err = repo.ListActiveForUser(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, active)

	// Expiring again is a no-op.
	n, err = repo.ExpireForUser(ctx, "b", cutoff, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m3", UserA: "b", UserB: "a", MatchType: domain.ChoiceFriends, CreatedAt: now}))
	m, err := repo.FindActiveBetween(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "m3", m.ID)

	active, err = repo.ListActiveForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "m3", active[0].ID)
	assert.Equal(t, "m2", active[1].ID)

	m1, err = repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusExpired, m1.Status)
}

func TestDynamoMatchRepository_ExpireAll(t *testing.T) {
	ctx := context.Background()
	repo := NewDynamoMatchRepository(newFakeDynamo(t), "matches", "pairs")
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m1", UserA: "a", UserB: "b", MatchType: domain.ChoiceDate, CreatedAt: now.Add(-30 * time.Hour)}))
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m2", UserA: "c", UserB: "d", MatchType: domain.ChoiceFriends, CreatedAt: cutoff}))
	require.NoError(t, repo.CreateActive(ctx, &domain.Match{ID: "m3", UserA: "a", UserB: "c", MatchType: domain.ChoiceDate, CreatedAt: now.Add(-time.Hour)}))

	expired, err := repo.ExpireAll(ctx, cutoff, now)
	require.NoError(t, err)
	ids := make([]string, 0, len(expired))
	for _, m := range expired {
		assert.Equal(t, domain.MatchStatusExpired, m.Status)
		require.NotNil(t, m.ExpiredAt)
		assert.True(t, m.ExpiredAt.Equal(now))
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)

	expired, err = repo.ExpireAll(ctx, cutoff, now)
	require.NoError(t, err)
	assert.Empty(t, expired)

	active, err := repo.ListActiveForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "m3", active[0].ID)

	// A writer holding a stale copy loses to the one that expired it first.
	m1, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	m1.Status = domain.MatchStatusActive
	ok, err := repo.expire(ctx, m1, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionFailedAt(t *testing.T) {
	err := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	assert.False(t, conditionFailedAt(err, 0))
	assert.True(t, conditionFailedAt(err, 1))
	assert.False(t, conditionFailedAt(err, 2))
	assert.False(t, conditionFailedAt(errors.New("boom"), 1))
}
