package quotereader

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	quotereaderv1 "github.com/robertjkeck2/KEX/internal/domain/quote-reader/v1"
	"github.com/robertjkeck2/KEX/pkg/config"
	"github.com/robertjkeck2/KEX/pkg/logger"
)

// Reader consumes quote requests from the quote topic.
type Reader struct {
	kafkaReader *kafka.Reader
	logger      *logger.Logger
}

// NewReader creates a new Kafka reader for the quote topic.
// It returns an implementation of the QuoteReader interface.
func NewReader(config config.KafkaConfig, log *logger.Logger) Reader {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		Partition:   0,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	return Reader{
		kafkaReader: kafkaReader,
		logger:      log,
	}
}

// logError is a helper method to log errors consistently
func (r Reader) logError(err error, operation string) {
	r.logger.Error(err,
		logger.Field{Key: "error", Value: err.Error()},
		logger.Field{Key: "operation", Value: operation},
	)
}

// SetOffset sets the offset for the Kafka reader.
func (r Reader) SetOffset(offset int64) error {
	if err := r.kafkaReader.SetOffset(offset); err != nil {
		r.logError(err, "SetOffset")
		return err
	}
	return nil
}

// ReadMessage reads a message from the quote topic and parses it as a
// quote request.
func (r Reader) ReadMessage(ctx context.Context) (kafka.Message, *quotereaderv1.QuoteRequestPayload, error) {
	msg, err := r.kafkaReader.ReadMessage(ctx)
	if err != nil {
		r.logError(err, "ReadMessage")
		return kafka.Message{Offset: 0}, nil, err
	}

	var payload quotereaderv1.QuoteRequestPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		r.logError(err, "UnmarshalQuoteRequest")
		return kafka.Message{Offset: 0}, nil, err
	}

	r.logger.Info("ReadMessage",
		logger.Field{
			Key:   "action",
			Value: payload.Action,
		},
		logger.Field{
			Key:   "accountID",
			Value: payload.AccountID,
		},
		logger.Field{
			Key:   "side",
			Value: payload.Side,
		},
		logger.Field{
			Key:   "type",
			Value: payload.Type,
		},
		logger.Field{
			Key:   "price",
			Value: payload.Price,
		},
		logger.Field{
			Key:   "quantity",
			Value: payload.Quantity,
		},
	)

	payload.Offset = msg.Offset // Set the offset in the quote request

	return msg, &payload, nil
}

// Close properly closes the Kafka reader.
func (r Reader) Close() error {
	if err := r.kafkaReader.Close(); err != nil {
		r.logError(err, "Close")
		return err
	}
	return nil
}

// CommitMessages commits the messages to Kafka after processing.
// The reader is a bare partition reader; replay position is owned by the
// snapshot's order offset, so there is no consumer group to commit to.
func (r Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return nil
}
