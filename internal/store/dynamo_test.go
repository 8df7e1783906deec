package store

import (
	"context"
	"sort"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctrl/eventstack/internal/es"
)

// fakeDynamo emulates the one-table layout the store uses: items keyed by
// (ns, id), conditional puts guarded on absence, and condition checks
// guarded on existence.
type fakeDynamo struct {
	items map[string]map[int64]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[int64]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) (string, int64) {
	ns := item["ns"].(*types.AttributeValueMemberS).Value
	id, _ := strconv.ParseInt(item["id"].(*types.AttributeValueMemberN).Value, 10, 64)
	return ns, id
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	ns, id := itemKey(params.Key)
	item := f.items[ns][id]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	ns, id := itemKey(params.Item)
	if f.items[ns] == nil {
		f.items[ns] = map[int64]map[string]types.AttributeValue{}
	}
	f.items[ns][id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		switch {
		case item.ConditionCheck != nil:
			ns, id := itemKey(item.ConditionCheck.Key)
			if f.items[ns][id] == nil {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		case item.Put != nil:
			ns, id := itemKey(item.Put.Item)
			if f.items[ns][id] != nil {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	for _, item := range params.TransactItems {
		if item.Put != nil {
			ns, id := itemKey(item.Put.Item)
			if f.items[ns] == nil {
				f.items[ns] = map[int64]map[string]types.AttributeValue{}
			}
			f.items[ns][id] = item.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	ns := params.ExpressionAttributeValues[":ns"].(*types.AttributeValueMemberS).Value
	start := int64(0)
	if v, ok := params.ExpressionAttributeValues[":start"]; ok {
		start, _ = strconv.ParseInt(v.(*types.AttributeValueMemberN).Value, 10, 64)
	}
	end := int64(-1)
	if v, ok := params.ExpressionAttributeValues[":end"]; ok {
		end, _ = strconv.ParseInt(v.(*types.AttributeValueMemberN).Value, 10, 64)
	}

	var ids []int64
	for id := range f.items[ns] {
		if id < start || (end >= 0 && id > end) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	if params.Limit != nil && int(*params.Limit) < len(ids) {
		ids = ids[:*params.Limit]
	}

	out := &dynamodb.QueryOutput{}
	for _, id := range ids {
		out.Items = append(out.Items, f.items[ns][id])
	}
	return out, nil
}

func TestDynamoStackLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewDynamoStore(newFakeDynamo(), "events")

	_, err := s.GetStack(ctx, "account", "a1")
	assert.ErrorIs(t, err, es.ErrStackNotFound)

	stack, err := s.GetOrCreateStack(ctx, "account", "a1")
	require.NoError(t, err)
	assert.Equal(t, "account|a1", stack.Namespace())

	_, err = s.GetStack(ctx, "account", "a1")
	require.NoError(t, err)
}

func TestDynamoSequenceInvariant(t *testing.T) {
	ctx := context.Background()
	s := NewDynamoStore(newFakeDynamo(), "events")
	stack, err := s.GetOrCreateStack(ctx, "account", "a1")
	require.NoError(t, err)

	err = stack.CommitEvent(ctx, es.Event{ID: 1, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "gap before first event")

	require.NoError(t, stack.CommitEvent(ctx, es.Event{ID: 0, Type: "X"}))
	err = stack.CommitEvent(ctx, es.Event{ID: 0, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "replayed id")
	require.NoError(t, stack.CommitEvent(ctx, es.Event{ID: 1, Type: "X"}))
	err = stack.CommitEvent(ctx, es.Event{ID: 3, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "gap past the tail")
}

func TestDynamoAnonymousAndSlice(t *testing.T) {
	ctx := context.Background()
	s := NewDynamoStore(newFakeDynamo(), "events")
	stack, err := s.GetOrCreateStack(ctx, "account", "a1")
	require.NoError(t, err)

	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "A", Payload: map[string]any{"n": 1.0}}))
	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "B"}))
	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "C"}))

	events, err := stack.Slice(ctx, 0, es.NoEventID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(0), events[0].ID)
	assert.Equal(t, "C", events[2].Type)

	mid, err := stack.Slice(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, mid, 1)
	assert.Equal(t, "B", mid[0].Type)

	ev, err := stack.GetEvent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.Payload["n"])

	_, err = stack.GetEvent(ctx, 7)
	assert.ErrorIs(t, err, es.ErrEventNotFound)
}
