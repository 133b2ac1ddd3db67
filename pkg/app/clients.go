package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/illmade-knight/go-payflow/pkg/archive"
	"github.com/illmade-knight/go-payflow/pkg/config"
	"github.com/illmade-knight/go-payflow/pkg/ingestion"
	"github.com/illmade-knight/go-payflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-payflow/pkg/sink"
	"github.com/rs/zerolog"
)

// clients lazily creates the SDK clients shared between components and
// remembers how to close them.
type clients struct {
	cfg    *config.Config
	logger zerolog.Logger

	aws     *aws.Config
	sqs     *sqs.Client
	pubsub  *pubsub.Client
	closers []func() error
}

func (c *clients) awsConfig(ctx context.Context) (aws.Config, error) {
	if c.aws != nil {
		return *c.aws, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	if c.cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.cfg.AWS.EndpointURL)
		c.logger.Info().Str("endpoint", c.cfg.AWS.EndpointURL).Msg("Using custom AWS endpoint.")
	}
	c.aws = &awsCfg
	return awsCfg, nil
}

func (c *clients) sqsClient(ctx context.Context) (*sqs.Client, error) {
	if c.sqs != nil {
		return c.sqs, nil
	}
	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.sqs = sqs.NewFromConfig(awsCfg)
	return c.sqs, nil
}

func (c *clients) pubsubClient(ctx context.Context) (*pubsub.Client, error) {
	if c.pubsub != nil {
		return c.pubsub, nil
	}
	client, err := pubsub.NewClient(ctx, c.cfg.Ingest.PubsubProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	c.pubsub = client
	c.closers = append(c.closers, client.Close)
	return client, nil
}

func (c *clients) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// buildSources creates the two named inbound queues.
func (c *clients) buildSources(ctx context.Context) ([]ingestion.Source, error) {
	ic := c.cfg.Ingest
	switch ic.Transport {
	case "sqs":
		client, err := c.sqsClient(ctx)
		if err != nil {
			return nil, err
		}
		var sources []ingestion.Source
		for _, q := range []struct{ name, url string }{
			{ingestion.SourceQueue1, ic.SQSQueue1URL},
			{ingestion.SourceQueue2, ic.SQSQueue2URL},
		} {
			consumerCfg := messagepipeline.NewSQSConsumerDefaults(q.url)
			consumerCfg.WaitTime = ic.SQSWaitTime
			consumerCfg.MaxMessages = ic.SQSMaxMessages
			consumer, err := messagepipeline.NewSQSConsumer(consumerCfg, client, c.logger.With().Str("source", q.name).Logger())
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", q.name, err)
			}
			sources = append(sources, ingestion.Source{Name: q.name, Consumer: consumer})
		}
		return sources, nil
	case "pubsub":
		client, err := c.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		var sources []ingestion.Source
		for _, q := range []struct{ name, sub string }{
			{ingestion.SourceQueue1, ic.PubsubQueue1Sub},
			{ingestion.SourceQueue2, ic.PubsubQueue2Sub},
		} {
			consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(q.sub)
			consumerCfg.BatchSize = ic.PubsubBatchSize
			consumerCfg.FlushInterval = ic.PubsubFlushTimeout
			consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, consumerCfg, client, c.logger.With().Str("source", q.name).Logger())
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", q.name, err)
			}
			sources = append(sources, ingestion.Source{Name: q.name, Consumer: consumer})
		}
		return sources, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ingest transport %q", ic.Transport)
	}
}

// buildSink creates the configured sink, optionally fronted by a Redis cache.
func (c *clients) buildSink(ctx context.Context) (sink.Sink, error) {
	sc := c.cfg.Sink
	var primary sink.Sink
	switch sc.Backend {
	case "dynamodb":
		awsCfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		s, err := sink.NewDynamoDBSink(&sink.DynamoDBConfig{TableName: sc.DynamoDBTable}, dynamodb.NewFromConfig(awsCfg), c.logger)
		if err != nil {
			return nil, err
		}
		primary = s
	case "firestore":
		client, err := firestore.NewClient(ctx, sc.FirestoreProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		s, err := sink.NewFirestoreSink(&sink.FirestoreConfig{ProjectID: sc.FirestoreProjectID, CollectionName: sc.FirestoreCollection}, client, c.logger)
		if err != nil {
			return nil, err
		}
		primary = s
	case "redis":
		return c.redisSink(ctx)
	case "memory":
		return sink.NewInMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", sc.Backend)
	}

	if !sc.CacheEnabled {
		return primary, nil
	}
	cache, err := c.redisSink(ctx)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	return sink.NewCachedSink(primary, cache, 0, c.logger)
}

func (c *clients) redisSink(ctx context.Context) (*sink.RedisSink, error) {
	sc := c.cfg.Sink
	return sink.NewRedisSink(ctx, &sink.RedisConfig{
		Addr:     sc.RedisAddr,
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
		TTL:      sc.RedisTTL,
	}, c.logger)
}

// buildPublisher creates the outbound queue publisher.
func (c *clients) buildPublisher(ctx context.Context) (messagepipeline.Publisher, error) {
	pc := c.cfg.Publish
	switch pc.Transport {
	case "sqs":
		client, err := c.sqsClient(ctx)
		if err != nil {
			return nil, err
		}
		return messagepipeline.NewSQSPublisher(client, c.logger)
	case "pubsub":
		client, err := c.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		return messagepipeline.NewGooglePubsubPublisher(client, c.logger)
	case "nats":
		conn, err := messagepipeline.NewNATSConn(messagepipeline.NATSConfig{URL: pc.NATSURL, MaxReconnects: -1}, c.logger)
		if err != nil {
			return nil, err
		}
		return messagepipeline.NewNATSPublisher(conn, pc.Timeout, c.logger)
	case "kafka":
		producer, err := messagepipeline.NewKafkaSyncProducer(pc.KafkaBroker)
		if err != nil {
			return nil, err
		}
		return messagepipeline.NewKafkaPublisher(producer, c.logger)
	default:
		return nil, fmt.Errorf("unknown publish transport %q", pc.Transport)
	}
}

// buildArchiveWriter returns nil when archiving is off.
func (c *clients) buildArchiveWriter(ctx context.Context) (archive.Writer, error) {
	ac := c.cfg.Archive
	switch ac.Backend {
	case "none", "":
		return nil, nil
	case "bigquery":
		bqCfg := archive.BigQueryConfig{ProjectID: ac.ProjectID, DatasetID: ac.BQDatasetID, TableID: ac.BQTableID}
		client, err := archive.NewBigQueryClient(ctx, bqCfg, c.logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		return archive.NewBigQueryWriter(ctx, client, bqCfg, c.logger)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		return archive.NewGCSWriter(archive.NewGCSClientAdapter(client), archive.GCSConfig{BucketName: ac.GCSBucket, ObjectPrefix: ac.GCSPrefix}, c.logger)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", ac.Backend)
	}
}
