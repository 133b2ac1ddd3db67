package messagepipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// sqsMaxBatch is the SQS limit for both ReceiveMessage and DeleteMessageBatch.
const sqsMaxBatch = 10

// SQSReceiveAPI is the subset of the SQS client used by SQSConsumer.
type SQSReceiveAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// SQSConsumerConfig holds configuration for an SQSConsumer.
type SQSConsumerConfig struct {
	QueueURL string
	// MaxMessages per ReceiveMessage call, at most 10.
	MaxMessages int32
	// WaitTime is the long-poll wait, at most 20s.
	WaitTime time.Duration
	// VisibilityTimeout hides received messages from other consumers; zero uses the queue default.
	VisibilityTimeout time.Duration
	// AckFlushInterval is how often pending acknowledgments are deleted in bulk.
	AckFlushInterval time.Duration
	// ErrorBackoff is the pause after a failed ReceiveMessage call.
	ErrorBackoff time.Duration
}

// NewSQSConsumerDefaults returns a config with sensible defaults for queueURL.
func NewSQSConsumerDefaults(queueURL string) *SQSConsumerConfig {
	return &SQSConsumerConfig{
		QueueURL:         queueURL,
		MaxMessages:      sqsMaxBatch,
		WaitTime:         20 * time.Second,
		AckFlushInterval: time.Second,
		ErrorBackoff:     5 * time.Second,
	}
}

// SQSConsumer long-polls an SQS queue and delivers each ReceiveMessage result
// as one batch. Acknowledged messages are removed with DeleteMessageBatch.
// Nack is a no-op: the message becomes visible again when its visibility
// timeout expires.
type SQSConsumer struct {
	cfg       SQSConsumerConfig
	client    SQSReceiveAPI
	logger    zerolog.Logger
	batchChan chan []Message
	doneChan  chan struct{}
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	ackMu      sync.Mutex
	pendingAck []sqstypes.DeleteMessageBatchRequestEntry
	ackClosed  bool
}

// NewSQSConsumer creates an SQSConsumer.
func NewSQSConsumer(cfg *SQSConsumerConfig, client SQSReceiveAPI, logger zerolog.Logger) (*SQSConsumer, error) {
	if client == nil {
		return nil, errors.New("sqs client cannot be nil")
	}
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > sqsMaxBatch {
		cfg.MaxMessages = sqsMaxBatch
	}
	if cfg.WaitTime < 0 || cfg.WaitTime > 20*time.Second {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.AckFlushInterval <= 0 {
		cfg.AckFlushInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &SQSConsumer{
		cfg:       *cfg,
		client:    client,
		logger:    logger.With().Str("component", "SQSConsumer").Str("queue_url", cfg.QueueURL).Logger(),
		batchChan: make(chan []Message),
		doneChan:  make(chan struct{}),
	}, nil
}

// Batches implements BatchConsumer.
func (c *SQSConsumer) Batches() <-chan []Message { return c.batchChan }

// Done implements BatchConsumer.
func (c *SQSConsumer) Done() <-chan struct{} { return c.doneChan }

// Start launches the receive loop and the acknowledgment flusher.
func (c *SQSConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting SQS message consumption...")
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go c.receiveLoop(runCtx)
	go c.ackLoop(runCtx)

	go func() {
		c.wg.Wait()
		c.ackMu.Lock()
		c.ackClosed = true
		c.ackMu.Unlock()
		c.flushAcks(context.Background())
		close(c.doneChan)
	}()
	return nil
}

func (c *SQSConsumer) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.batchChan)
	defer c.logger.Info().Msg("SQS receive loop stopped.")

	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages:         c.cfg.MaxMessages,
		WaitTimeSeconds:             int32(c.cfg.WaitTime / time.Second),
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameSentTimestamp},
	}
	if c.cfg.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(c.cfg.VisibilityTimeout / time.Second)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		out, err := c.client.ReceiveMessage(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Dur("backoff", c.cfg.ErrorBackoff).Msg("SQS ReceiveMessage failed.")
			select {
			case <-time.After(c.cfg.ErrorBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		if len(out.Messages) == 0 {
			continue
		}

		batch := make([]Message, 0, len(out.Messages))
		for _, m := range out.Messages {
			batch = append(batch, c.toMessage(m))
		}
		select {
		case c.batchChan <- batch:
		case <-ctx.Done():
			c.logger.Warn().Int("batch_size", len(batch)).Msg("Consumer stopping, undelivered batch will be redelivered by SQS.")
			return
		}
	}
}

func (c *SQSConsumer) toMessage(m sqstypes.Message) Message {
	msg := Message{
		ID:         aws.ToString(m.MessageId),
		Payload:    []byte(aws.ToString(m.Body)),
		Attributes: make(map[string]string, len(m.MessageAttributes)),
		Nack:       noop,
	}
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			msg.Attributes[k] = *v.StringValue
		}
	}
	if sent, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(sent, 10, 64); err == nil {
			msg.PublishTime = time.UnixMilli(ms)
		}
	}

	entry := sqstypes.DeleteMessageBatchRequestEntry{
		Id:            m.MessageId,
		ReceiptHandle: m.ReceiptHandle,
	}
	var once sync.Once
	msg.Ack = func() {
		once.Do(func() { c.queueAck(entry) })
	}
	return msg
}

func (c *SQSConsumer) queueAck(entry sqstypes.DeleteMessageBatchRequestEntry) {
	c.ackMu.Lock()
	c.pendingAck = append(c.pendingAck, entry)
	// Once the ack loop has gone, late acks are deleted straight away.
	flushNow := len(c.pendingAck) >= sqsMaxBatch || c.ackClosed
	c.ackMu.Unlock()
	if flushNow {
		c.flushAcks(context.Background())
	}
}

func (c *SQSConsumer) ackLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.AckFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flushAcks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// flushAcks deletes pending acknowledgments in chunks of at most ten.
func (c *SQSConsumer) flushAcks(ctx context.Context) {
	c.ackMu.Lock()
	pending := c.pendingAck
	c.pendingAck = nil
	c.ackMu.Unlock()

	for len(pending) > 0 {
		n := min(len(pending), sqsMaxBatch)
		chunk := pending[:n]
		pending = pending[n:]

		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		out, err := c.client.DeleteMessageBatch(deleteCtx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.cfg.QueueURL),
			Entries:  chunk,
		})
		cancel()
		if err != nil {
			c.logger.Error().Err(err).Int("count", len(chunk)).Msg("Failed to delete acknowledged SQS messages.")
			continue
		}
		for _, f := range out.Failed {
			c.logger.Warn().Str("msg_id", aws.ToString(f.Id)).Str("code", aws.ToString(f.Code)).Msg("SQS refused to delete acknowledged message.")
		}
	}
}

// Stop ends the receive loop, flushes pending acknowledgments and waits,
// bounded by ctx.
func (c *SQSConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping SQS consumer...")
		if c.cancel == nil {
			close(c.batchChan)
			close(c.doneChan)
			return
		}
		c.cancel()
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("SQS consumer confirmed stopped.")
		case <-ctx.Done():
			err = ctx.Err()
			c.logger.Error().Err(err).Msg("Timeout waiting for SQS consumer to stop.")
		}
	})
	return err
}
