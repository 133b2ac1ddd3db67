package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GooglePubsubPublisher publishes to Pub/Sub topics, one *pubsub.Topic per
// destination, and waits for the server to confirm each message.
type GooglePubsubPublisher struct {
	client *pubsub.Client
	logger zerolog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewGooglePubsubPublisher creates a publisher. Topics are checked for
// existence on first use.
func NewGooglePubsubPublisher(client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	return &GooglePubsubPublisher{
		client: client,
		logger: logger.With().Str("component", "GooglePubsubPublisher").Logger(),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (p *GooglePubsubPublisher) topic(ctx context.Context, topicID string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[topicID]; ok {
		return t, nil
	}

	t := p.client.Topic(topicID)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}
	p.topics[topicID] = t
	return t, nil
}

// Publish sends payload to the topic named by destination and blocks until
// the server has accepted it.
func (p *GooglePubsubPublisher) Publish(ctx context.Context, destination string, payload []byte) error {
	t, err := p.topic(ctx, destination)
	if err != nil {
		return err
	}
	msgID, err := t.Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", destination, err)
	}
	p.logger.Debug().Str("topic_id", destination).Str("published_msg_id", msgID).Msg("Message sent successfully.")
	return nil
}

// Stop flushes every topic, respecting the context's timeout.
func (p *GooglePubsubPublisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	topics := make([]*pubsub.Topic, 0, len(p.topics))
	for _, t := range p.topics {
		topics = append(topics, t)
	}
	p.mu.Unlock()

	// topic.Stop() is blocking, so we wrap it to respect the context timeout.
	stopDone := make(chan struct{})
	go func() {
		for _, t := range topics {
			t.Stop()
		}
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
