package messagepipeline

import (
	"time"
)

// Message is the transport-neutral representation of a message received from a
// queue. It carries the raw payload and the acknowledgment handles of the source.
type Message struct {
	// ID is the unique identifier assigned by the source broker.
	ID string

	// Payload is the raw byte content of the message.
	Payload []byte

	// PublishTime is when the broker accepted the message, if it reports one.
	PublishTime time.Time

	// Attributes holds broker metadata (Pub/Sub attributes, SQS message attributes).
	Attributes map[string]string

	// Ack signals that the message can be permanently removed from the source.
	Ack func()

	// Nack signals that the message should be made available for redelivery.
	Nack func()
}

// noop is used for sources that have no meaningful negative acknowledgment.
func noop() {}
