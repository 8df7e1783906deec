package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sctrl/eventstack/internal/es"
)

// DynamoAPI is the slice of the DynamoDB client the store uses. Tests
// substitute a fake; production passes *dynamodb.Client.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore persists event stacks in one DynamoDB table with partition
// key "ns" (string) and sort key "id" (number). Event ids start at 0; a
// sentinel item at id -1 marks a stack as created so empty stacks are
// distinguishable from absent ones.
//
// The sequence invariant is enforced without any server-side counter: an
// explicit commit of id n is a transaction that condition-checks the
// existence of event n-1 and conditionally puts event n only if absent.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// stackMarkerID marks the sentinel item that records stack existence.
const stackMarkerID int64 = -1

// NewDynamoStore creates a store over the given table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

type dynamoEvent struct {
	Namespace string         `dynamodbav:"ns"`
	ID        int64          `dynamodbav:"id"`
	Type      string         `dynamodbav:"type,omitempty"`
	Metadata  map[string]any `dynamodbav:"metadata,omitempty"`
	Payload   map[string]any `dynamodbav:"payload,omitempty"`
}

func (s *DynamoStore) key(namespace string, id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ns": &types.AttributeValueMemberS{Value: namespace},
		"id": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", id)},
	}
}

// GetStack returns the stack for the entity, or es.ErrStackNotFound.
func (s *DynamoStore) GetStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(ns, stackMarkerID),
	})
	if err != nil {
		return nil, fmt.Errorf("get stack %s: %w", ns, err)
	}
	if len(out.Item) == 0 {
		return nil, es.ErrStackNotFound
	}
	return &dynamoStack{store: s, namespace: ns}, nil
}

// CreateStack writes the stack's sentinel item. Idempotent.
func (s *DynamoStore) CreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	marker, err := attributevalue.MarshalMap(dynamoEvent{Namespace: ns, ID: stackMarkerID})
	if err != nil {
		return nil, fmt.Errorf("create stack %s: %w", ns, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      marker,
	})
	if err != nil {
		return nil, fmt.Errorf("create stack %s: %w", ns, err)
	}
	return &dynamoStack{store: s, namespace: ns}, nil
}

// GetOrCreateStack resolves the stack, creating it on first use.
func (s *DynamoStore) GetOrCreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	stack, err := s.GetStack(ctx, entityType, entityID)
	if errors.Is(err, es.ErrStackNotFound) {
		return s.CreateStack(ctx, entityType, entityID)
	}
	return stack, err
}

type dynamoStack struct {
	store     *DynamoStore
	namespace string
}

func (st *dynamoStack) Namespace() string { return st.namespace }

func isConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var conditional *types.ConditionalCheckFailedException
	return errors.As(err, &conditional)
}

// CommitEvent appends ev at its explicit id. Id 0 is a conditional put
// guarded on item absence; id n > 0 is a transaction that additionally
// condition-checks event n-1, so a gap or a concurrent winner both
// surface as an InvalidSequenceError.
func (st *dynamoStack) CommitEvent(ctx context.Context, ev es.Event) error {
	item, err := attributevalue.MarshalMap(dynamoEvent{
		Namespace: st.namespace,
		ID:        ev.ID,
		Type:      ev.Type,
		Metadata:  ev.Metadata,
		Payload:   ev.Payload,
	})
	if err != nil {
		return fmt.Errorf("commit event %d to %s: %w", ev.ID, st.namespace, err)
	}

	put := &types.Put{
		TableName:           aws.String(st.store.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#ns)"),
		ExpressionAttributeNames: map[string]string{
			"#ns": "ns",
		},
	}

	var txErr error
	if ev.ID == 0 {
		tx := &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{{Put: put}},
		}
		_, txErr = st.store.client.TransactWriteItems(ctx, tx)
	} else {
		check := &types.ConditionCheck{
			TableName:           aws.String(st.store.table),
			Key:                 st.store.key(st.namespace, ev.ID-1),
			ConditionExpression: aws.String("attribute_exists(#ns)"),
			ExpressionAttributeNames: map[string]string{
				"#ns": "ns",
			},
		}
		tx := &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{ConditionCheck: check},
				{Put: put},
			},
		}
		_, txErr = st.store.client.TransactWriteItems(ctx, tx)
	}
	if txErr != nil {
		if isConditionFailure(txErr) {
			return &es.InvalidSequenceError{Namespace: st.namespace, EventID: ev.ID}
		}
		return fmt.Errorf("commit event %d to %s: %w", ev.ID, st.namespace, txErr)
	}
	return nil
}

// anonymousAttempts bounds tail re-reads when anonymous appends race.
const anonymousAttempts = 5

// CommitAnonymousEvent reads the tail and commits at tail+1, re-reading
// on conflict a bounded number of times.
func (st *dynamoStack) CommitAnonymousEvent(ctx context.Context, ev es.Event) error {
	var lastErr error
	for attempt := 0; attempt < anonymousAttempts; attempt++ {
		tail, err := st.tail(ctx)
		if err != nil {
			return err
		}
		ev.ID = tail + 1
		err = st.CommitEvent(ctx, ev)
		if err == nil || !es.IsInvalidSequence(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// tail returns the highest event id, or es.NoEventID on an empty stack.
func (st *dynamoStack) tail(ctx context.Context) (int64, error) {
	out, err := st.store.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(st.store.table),
		KeyConditionExpression: aws.String("#ns = :ns AND #id >= :zero"),
		ExpressionAttributeNames: map[string]string{
			"#ns": "ns",
			"#id": "id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ns":   &types.AttributeValueMemberS{Value: st.namespace},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, fmt.Errorf("read tail of %s: %w", st.namespace, err)
	}
	if len(out.Items) == 0 {
		return es.NoEventID, nil
	}
	var record dynamoEvent
	if err := attributevalue.UnmarshalMap(out.Items[0], &record); err != nil {
		return 0, fmt.Errorf("read tail of %s: %w", st.namespace, err)
	}
	return record.ID, nil
}

func (st *dynamoStack) GetEvent(ctx context.Context, id int64) (es.Event, error) {
	if id < 0 {
		return es.Event{}, es.ErrEventNotFound
	}
	out, err := st.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(st.store.table),
		Key:       st.store.key(st.namespace, id),
	})
	if err != nil {
		return es.Event{}, fmt.Errorf("get event %d from %s: %w", id, st.namespace, err)
	}
	if len(out.Item) == 0 {
		return es.Event{}, es.ErrEventNotFound
	}
	var record dynamoEvent
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return es.Event{}, fmt.Errorf("get event %d from %s: %w", id, st.namespace, err)
	}
	return es.Event{ID: record.ID, Type: record.Type, Metadata: record.Metadata, Payload: record.Payload}, nil
}

// Slice pages through the namespace's partition in id order.
func (st *dynamoStack) Slice(ctx context.Context, start, end int64) ([]es.Event, error) {
	if start < 0 {
		start = 0
	}
	condition := "#ns = :ns AND #id >= :start"
	values := map[string]types.AttributeValue{
		":ns":    &types.AttributeValueMemberS{Value: st.namespace},
		":start": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", start)},
	}
	if end != es.NoEventID {
		condition = "#ns = :ns AND #id BETWEEN :start AND :end"
		values[":end"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", end)}
	}

	var (
		events   []es.Event
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := st.store.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(st.store.table),
			KeyConditionExpression: aws.String(condition),
			ExpressionAttributeNames: map[string]string{
				"#ns": "ns",
				"#id": "id",
			},
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
		}
		for _, item := range out.Items {
			var record dynamoEvent
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
			}
			events = append(events, es.Event{ID: record.ID, Type: record.Type, Metadata: record.Metadata, Payload: record.Payload})
		}
		if len(out.LastEvaluatedKey) == 0 {
			return events, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
