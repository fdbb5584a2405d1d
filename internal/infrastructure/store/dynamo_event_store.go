package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call.
const maxTransactItems = 100

// DynamoAPI is the subset of the DynamoDB client used by the event store.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoEventStore stores events in DynamoDB.
// Events are streamed to Kinesis Data Streams by the table's Kinesis integration,
// which takes the place of the outbox used by the SQL store.
type DynamoEventStore struct {
	client            DynamoAPI
	tableName         string
	snapshotTableName string
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	UserID        string `dynamodbav:"user_id"`
	RequestID     string `dynamodbav:"request_id"`
	Payload       string `dynamodbav:"payload"`
	OccurredOn    int64  `dynamodbav:"occurred_on"`
}

func (de dynamoEvent) event() Event {
	return Event{
		ID:            de.ID,
		AggregateID:   de.AggregateID,
		AggregateType: de.AggregateType,
		EventType:     de.EventType,
		Version:       de.Version,
		UserID:        de.UserID,
		RequestID:     de.RequestID,
		Payload:       []byte(de.Payload),
		OccurredOn:    time.UnixMicro(de.OccurredOn).UTC(),
	}
}

func NewDynamoEventStore(client DynamoAPI, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

// Append writes the batch in one transaction. Every item is conditioned on its
// (aggregate_id, version) key being free, so a concurrent writer cancels it.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, records []Record) ([]Event, error) {
	events, err := buildEvents(aggregateID, aggregateType, expectedVersion, records)
	if err != nil {
		return nil, err
	}
	if len(events) > maxTransactItems {
		return nil, fmt.Errorf("append %d events: at most %d fit in one transaction", len(events), maxTransactItems)
	}

	current, err := es.currentVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	if current != expectedVersion {
		return nil, conflictError(aggregateID, current, expectedVersion)
	}

	items := make([]types.TransactWriteItem, 0, len(events))
	for _, e := range events {
		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID:   e.AggregateID,
			Version:       e.Version,
			ID:            e.ID,
			AggregateType: e.AggregateType,
			EventType:     e.EventType,
			UserID:        e.UserID,
			RequestID:     e.RequestID,
			Payload:       string(e.Payload),
			OccurredOn:    e.OccurredOn.UnixMicro(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return nil, fmt.Errorf("%w: aggregate %s was appended concurrently at version %d", ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return nil, fmt.Errorf("failed to write events: %w", err)
	}

	return events, nil
}

// currentVersion queries the highest stored version of an aggregate.
func (es *DynamoEventStore) currentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ScanIndexForward:         aws.Bool(false), // Descending order
		Limit:                    aws.Int32(1),
		ProjectionExpression:     aws.String("#v"),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}

	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}

	return item.Version, nil
}

// ReadStream pages through the stream as the sequence is consumed.
func (es *DynamoEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		paginator := dynamodb.NewQueryPaginator(es.client, &dynamodb.QueryInput{
			TableName:              aws.String(es.tableName),
			KeyConditionExpression: aws.String("aggregate_id = :aid AND #v > :ver"),
			ExpressionAttributeNames: map[string]string{"#v": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":aid": &types.AttributeValueMemberS{Value: aggregateID},
				":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
			},
			ScanIndexForward: aws.Bool(true), // Ascending order by version
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Event{}, fmt.Errorf("failed to query events: %w", err))
				return
			}
			for _, item := range page.Items {
				var de dynamoEvent
				if err := attributevalue.UnmarshalMap(item, &de); err != nil {
					yield(Event{}, fmt.Errorf("failed to unmarshal event: %w", err))
					return
				}
				if !yield(de.event(), nil) {
					return
				}
			}
		}
	}
}

func (es *DynamoEventStore) ReadByEventTypes(ctx context.Context, aggregateID string, eventTypes []string, before time.Time) ([]Event, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}

	values := map[string]types.AttributeValue{
		":aid":    &types.AttributeValueMemberS{Value: aggregateID},
		":before": &types.AttributeValueMemberN{Value: strconv.FormatInt(Timestamp(before).UnixMicro(), 10)},
	}
	filter := "occurred_on < :before AND event_type IN ("
	for i, t := range eventTypes {
		key := ":t" + strconv.Itoa(i)
		values[key] = &types.AttributeValueMemberS{Value: t}
		if i > 0 {
			filter += ", "
		}
		filter += key
	}
	filter += ")"

	paginator := dynamodb.NewQueryPaginator(es.client, &dynamodb.QueryInput{
		TableName:                 aws.String(es.tableName),
		KeyConditionExpression:    aws.String("aggregate_id = :aid"),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
	})

	var events []Event
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		for _, item := range page.Items {
			var de dynamoEvent
			if err := attributevalue.UnmarshalMap(item, &de); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event: %w", err)
			}
			events = append(events, de.event())
		}
	}
	return events, nil
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots
// Stored in a separate snapshots table with aggregate_id as partition key
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     int64  `dynamodbav:"created_at"`
}

// SaveSnapshot stores a snapshot unless a newer one is already there.
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(es.snapshotTableName),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(aggregate_id) OR #v < :ver"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(snapshot.Version)},
		},
	})
	if err != nil {
		var stale *types.ConditionalCheckFailedException
		if errors.As(err, &stale) {
			return nil
		}
		return fmt.Errorf("failed to put snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves the snapshot for an aggregate from the snapshots table
func (es *DynamoEventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         []byte(ds.State),
		CreatedAt:     time.UnixMicro(ds.CreatedAt).UTC(),
	}, nil
}
