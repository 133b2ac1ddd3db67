package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// NewKafkaSyncProducer creates a sarama producer that waits for every in-sync
// replica to acknowledge each message.
func NewKafkaSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher publishes to Kafka topics with a sarama SyncProducer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	logger   zerolog.Logger
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(producer sarama.SyncProducer, logger zerolog.Logger) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer cannot be nil")
	}
	return &KafkaPublisher{
		producer: producer,
		logger:   logger.With().Str("component", "KafkaPublisher").Logger(),
	}, nil
}

// Publish sends payload to the topic named by destination. SendMessage does
// not take a context, so it runs in a goroutine and the caller stops waiting
// when ctx is done.
func (p *KafkaPublisher) Publish(ctx context.Context, destination string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: destination,
		Value: sarama.ByteEncoder(payload),
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	resultCh := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		resultCh <- result{partition, offset, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return fmt.Errorf("failed to publish to kafka topic %s: %w", destination, res.err)
		}
		p.logger.Debug().Str("topic", destination).Int32("partition", res.partition).Int64("offset", res.offset).Msg("Message sent successfully.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the producer.
func (p *KafkaPublisher) Stop(_ context.Context) error {
	return p.producer.Close()
}
