package messagepipeline

import (
	"context"
)

// BatchConsumer is a message source that delivers messages in groups. A batch
// is never empty.
type BatchConsumer interface {
	// Batches returns the channel batches are delivered on. It is closed once
	// the consumer has stopped.
	Batches() <-chan []Message
	// Start begins consumption in the background.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for background goroutines, bounded by ctx.
	Stop(ctx context.Context) error
	// Done is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// Publisher sends a single payload to a named destination (a queue, topic or
// subject) and reports whether the broker accepted it.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte) error
	// Stop flushes and releases any resources held by the publisher.
	Stop(ctx context.Context) error
}
