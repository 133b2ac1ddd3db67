package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// SQSSendAPI is the subset of the SQS client used by SQSPublisher.
type SQSSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSPublisher sends messages to SQS. A destination is either a queue URL or a
// queue name; names are resolved once and cached.
type SQSPublisher struct {
	client SQSSendAPI
	logger zerolog.Logger

	mu   sync.Mutex
	urls map[string]string
}

// NewSQSPublisher creates an SQSPublisher.
func NewSQSPublisher(client SQSSendAPI, logger zerolog.Logger) (*SQSPublisher, error) {
	if client == nil {
		return nil, errors.New("sqs client cannot be nil")
	}
	return &SQSPublisher{
		client: client,
		logger: logger.With().Str("component", "SQSPublisher").Logger(),
		urls:   make(map[string]string),
	}, nil
}

func (p *SQSPublisher) queueURL(ctx context.Context, destination string) (string, error) {
	if strings.HasPrefix(destination, "https://") || strings.HasPrefix(destination, "http://") {
		return destination, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if url, ok := p.urls[destination]; ok {
		return url, nil
	}
	out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(destination)})
	if err != nil {
		return "", fmt.Errorf("failed to resolve sqs queue %s: %w", destination, err)
	}
	url := aws.ToString(out.QueueUrl)
	p.urls[destination] = url
	return url, nil
}

// Publish sends payload as the message body.
func (p *SQSPublisher) Publish(ctx context.Context, destination string, payload []byte) error {
	url, err := p.queueURL(ctx, destination)
	if err != nil {
		return err
	}
	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to send to sqs queue %s: %w", destination, err)
	}
	p.logger.Debug().Str("queue", destination).Str("published_msg_id", aws.ToString(out.MessageId)).Msg("Message sent successfully.")
	return nil
}

// Stop is a no-op; SendMessage is synchronous.
func (p *SQSPublisher) Stop(_ context.Context) error {
	return nil
}
