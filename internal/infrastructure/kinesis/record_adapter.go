package kinesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// ErrMalformedRecord marks a stream record that can never become an event.
var ErrMalformedRecord = errors.New("malformed stream record")

// ConvertFromKinesisRecord converts a Kinesis record carrying a DynamoDB stream
// change of the events table. Changes other than inserts yield nil.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("%w: unmarshal DynamoDB record: %v", ErrMalformedRecord, err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a record read from DynamoDB Streams.
// Events are immutable, so only inserts carry new events.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != string(events.DynamoDBOperationTypeInsert) {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage reads an item written by the DynamoDB event store.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: image is nil", ErrMalformedRecord)
	}

	event := &store.Event{
		ID:            stringAttr(image, "id"),
		AggregateID:   stringAttr(image, "aggregate_id"),
		AggregateType: stringAttr(image, "aggregate_type"),
		EventType:     stringAttr(image, "event_type"),
		UserID:        stringAttr(image, "user_id"),
		RequestID:     stringAttr(image, "request_id"),
	}
	if v, ok := image["payload"]; ok {
		if v.DataType() != events.DataTypeString {
			return nil, fmt.Errorf("%w: payload is not a string", ErrMalformedRecord)
		}
		event.Payload = json.RawMessage(v.String())
	}
	version, err := numberAttr(image, "version")
	if err != nil {
		return nil, err
	}
	event.Version = int(version)
	if _, ok := image["occurred_on"]; ok {
		micros, err := numberAttr(image, "occurred_on")
		if err != nil {
			return nil, err
		}
		event.OccurredOn = time.UnixMicro(micros).UTC()
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" || event.Version < 1 {
		return nil, fmt.Errorf("%w: missing required fields: id=%s, aggregate_id=%s, event_type=%s, version=%d",
			ErrMalformedRecord, event.ID, event.AggregateID, event.EventType, event.Version)
	}
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("%w: payload of event %s is not JSON", ErrMalformedRecord, event.ID)
	}

	return event, nil
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}

// numberAttr reads a numeric attribute. A missing one is zero.
func numberAttr(image map[string]events.DynamoDBAttributeValue, name string) (int64, error) {
	v, ok := image[name]
	if !ok {
		return 0, nil
	}
	if v.DataType() != events.DataTypeNumber {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformedRecord, name)
	}
	n, err := v.Integer()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, name, err)
	}
	return n, nil
}
