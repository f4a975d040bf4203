package quotereaderv1

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// QuoteReader defines the interface for reading quote requests from a stream.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=quotereaderv1_mock
type QuoteReader interface {
	// ReadMessage reads a message and returns the raw message and parsed payload
	ReadMessage(ctx context.Context) (kafka.Message, *QuoteRequestPayload, error)
	// SetOffset sets the offset for the reader
	SetOffset(offset int64) error
	// Close closes the reader
	Close() error

	// CommitMessages commits the messages after processing
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}
