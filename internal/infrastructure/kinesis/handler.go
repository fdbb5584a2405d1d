package kinesis

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// DispatchFunc projects one event.
type DispatchFunc func(ctx context.Context, e store.Event) error

// Handler feeds the records of a Kinesis batch to dispatch in order.
//
// The first record that fails is reported as the batch item failure and the
// rest of the batch is left alone: Lambda redelivers from that record, so no
// event is projected ahead of an earlier one of the same shard. Malformed
// records are logged and skipped.
type Handler struct {
	dispatch DispatchFunc
	logger   zerolog.Logger
}

func NewHandler(dispatch DispatchFunc, logger zerolog.Logger) *Handler {
	return &Handler{dispatch: dispatch, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	h.logger.Debug().Int("records", len(kinesisEvent.Records)).Msg("received batch")

	for i, record := range kinesisEvent.Records {
		logger := h.logger.With().
			Str("record_id", record.EventID).
			Str("sequence_number", record.Kinesis.SequenceNumber).
			Logger()

		event, err := ConvertFromKinesisRecord(record)
		if errors.Is(err, ErrMalformedRecord) {
			logger.Error().Err(err).Msg("skipping malformed record")
			continue
		}
		if event == nil {
			continue
		}

		if err := h.dispatch(ctx, *event); err != nil {
			logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Int("processed", i).
				Msg("failed to project event, batch stops here")
			return events.KinesisEventResponse{
				BatchItemFailures: []events.KinesisBatchItemFailure{
					{ItemIdentifier: record.Kinesis.SequenceNumber},
				},
			}, nil
		}
	}

	return events.KinesisEventResponse{}, nil
}
