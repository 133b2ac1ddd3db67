package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GooglePubsubConsumerConfig holds configuration for a GooglePubsubConsumer.
type GooglePubsubConsumerConfig struct {
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
	// BatchSize caps the number of messages delivered in one batch.
	BatchSize int
	// FlushInterval delivers a partial batch after this long.
	FlushInterval time.Duration
	// StopTimeout bounds the wait for the receive goroutine when Stop's ctx has no deadline.
	StopTimeout time.Duration
}

// NewGooglePubsubConsumerDefaults returns a config with sensible defaults for subID.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
		BatchSize:              10,
		FlushInterval:          time.Second,
		StopTimeout:            30 * time.Second,
	}
}

// GooglePubsubConsumer receives from a Pub/Sub subscription and groups the
// messages into batches.
type GooglePubsubConsumer struct {
	cfg                GooglePubsubConsumerConfig
	subscription       *pubsub.Subscription
	logger             zerolog.Logger
	msgChan            chan Message
	batchChan          chan []Message
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewGooglePubsubConsumer creates a consumer after checking the subscription exists.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}

	sub := client.Subscription(cfg.SubscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	return &GooglePubsubConsumer{
		cfg:          *cfg,
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		msgChan:      make(chan Message, cfg.BatchSize),
		batchChan:    make(chan []Message),
		doneChan:     make(chan struct{}),
	}, nil
}

// Batches implements BatchConsumer.
func (c *GooglePubsubConsumer) Batches() <-chan []Message { return c.batchChan }

// Done implements BatchConsumer.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }

// Start launches the receive and batching goroutines.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting Pub/Sub message consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel

	go func() {
		defer close(c.msgChan)
		defer c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		err := c.subscription.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			payloadCopy := make([]byte, len(msg.Data))
			copy(payloadCopy, msg.Data)

			m := Message{
				ID:          msg.ID,
				Payload:     payloadCopy,
				PublishTime: msg.PublishTime,
				Attributes:  msg.Attributes,
				Ack:         msg.Ack,
				Nack:        msg.Nack,
			}
			select {
			case c.msgChan <- m:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()

	go c.batchWorker()
	return nil
}

// batchWorker groups received messages and flushes on size or interval.
func (c *GooglePubsubConsumer) batchWorker() {
	defer close(c.doneChan)
	defer close(c.batchChan)

	batch := make([]Message, 0, c.cfg.BatchSize)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.batchChan <- batch
		batch = make([]Message, 0, c.cfg.BatchSize)
		ticker.Reset(c.cfg.FlushInterval)
	}

	for {
		select {
		case msg, ok := <-c.msgChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop cancels the receive loop and waits for the consumer to finish.
// Batches still pending are delivered before Batches is closed, so the reader
// must keep draining until then.
func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelSubscription == nil {
			// Never started.
			close(c.batchChan)
			close(c.doneChan)
			return
		}
		c.cancelSubscription()
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("Pub/Sub consumer confirmed stopped.")
		case <-ctx.Done():
			err = ctx.Err()
			c.logger.Error().Err(err).Msg("Timeout waiting for Pub/Sub consumer to stop.")
		case <-time.After(c.cfg.StopTimeout):
			err = errors.New("timed out waiting for pubsub consumer to stop")
			c.logger.Error().Err(err).Msg("Timeout waiting for Pub/Sub consumer to stop.")
		}
	})
	return err
}
