package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// DefaultEnvFile is loaded, when present, before the environment is read.
const DefaultEnvFile = "config.env"

// Config is the complete runtime configuration.
type Config struct {
	Log       LogConfig
	HTTPPort  string `envconfig:"HTTP_PORT"`
	AWS       AWSConfig
	Ingest    IngestConfig
	Sink      SinkConfig
	Postgres  PostgresConfig
	Poller    PollerConfig
	Publish   PublishConfig
	Workers   WorkerConfig
	Archive   ArchiveConfig
	Migration MigrationConfig
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// EndpointURL points every AWS client at a local emulator such as LocalStack.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

type IngestConfig struct {
	Transport          string        `envconfig:"INGEST_TRANSPORT" default:"sqs"`
	SQSQueue1URL       string        `envconfig:"SQS_QUEUE1_URL"`
	SQSQueue2URL       string        `envconfig:"SQS_QUEUE2_URL"`
	SQSWaitTime        time.Duration `envconfig:"SQS_WAIT_TIME" default:"20s"`
	SQSMaxMessages     int32         `envconfig:"SQS_MAX_MESSAGES" default:"10"`
	PubsubProjectID    string        `envconfig:"PUBSUB_PROJECT_ID"`
	PubsubQueue1Sub    string        `envconfig:"PUBSUB_QUEUE1_SUBSCRIPTION"`
	PubsubQueue2Sub    string        `envconfig:"PUBSUB_QUEUE2_SUBSCRIPTION"`
	PubsubBatchSize    int           `envconfig:"PUBSUB_BATCH_SIZE" default:"10"`
	PubsubFlushTimeout time.Duration `envconfig:"PUBSUB_FLUSH_INTERVAL" default:"1s"`
}

type SinkConfig struct {
	Backend             string        `envconfig:"SINK_BACKEND" default:"dynamodb"`
	DynamoDBTable       string        `envconfig:"DYNAMODB_TABLE_NAME" default:"enriched-payments"`
	FirestoreProjectID  string        `envconfig:"FIRESTORE_PROJECT_ID"`
	FirestoreCollection string        `envconfig:"FIRESTORE_COLLECTION" default:"enriched-payments"`
	RedisAddr           string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword       string        `envconfig:"REDIS_PASSWORD"`
	RedisDB             int           `envconfig:"REDIS_DB" default:"0"`
	RedisTTL            time.Duration `envconfig:"REDIS_TTL" default:"24h"`
	CacheEnabled        bool          `envconfig:"SINK_CACHE_ENABLED" default:"false"`
}

type PostgresConfig struct {
	DSN      string `envconfig:"POSTGRES_DSN"`
	MaxConns int32  `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

type PollerConfig struct {
	Enabled       bool          `envconfig:"POLLER_ENABLED" default:"true"`
	Interval      time.Duration `envconfig:"POLLER_INTERVAL" default:"10s"`
	QueryStrategy string        `envconfig:"POLLER_QUERY_STRATEGY" default:"mapped"`
	ClaimRows     bool          `envconfig:"POLLER_CLAIM_ROWS" default:"false"`
	ClaimLease    time.Duration `envconfig:"POLLER_CLAIM_LEASE" default:"5m"`
}

type PublishConfig struct {
	Transport   string        `envconfig:"PUBLISH_TRANSPORT" default:"sqs"`
	Destination string        `envconfig:"TRANSACTION_QUEUE" default:"transaction-queue"`
	NATSURL     string        `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	KafkaBroker []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Timeout     time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"5s"`
}

type WorkerConfig struct {
	PoolSize  int `envconfig:"WORKER_POOL_SIZE" default:"16"`
	QueueSize int `envconfig:"WORKER_QUEUE_SIZE" default:"1024"`
}

type ArchiveConfig struct {
	Backend       string        `envconfig:"ARCHIVE_BACKEND" default:"none"`
	ProjectID     string        `envconfig:"ARCHIVE_PROJECT_ID"`
	BQDatasetID   string        `envconfig:"BQ_DATASET_ID"`
	BQTableID     string        `envconfig:"BQ_TABLE_ID"`
	GCSBucket     string        `envconfig:"GCS_BUCKET"`
	GCSPrefix     string        `envconfig:"GCS_PREFIX" default:"payments"`
	BatchSize     int           `envconfig:"ARCHIVE_BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"ARCHIVE_FLUSH_INTERVAL" default:"1m"`
}

type MigrationConfig struct {
	Enabled bool `envconfig:"MIGRATIONS_ENABLED" default:"false"`
}

// NewConfig loads envFile if it exists and then reads the environment.
func NewConfig(envFile string, logger zerolog.Logger) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Debug().Err(err).Str("file", envFile).Msg("No env file loaded, using process environment only.")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every selected backend has what it needs. The poller
// and the ingestion side can be validated separately because the CLI runs
// them independently.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.ValidateIngest(), c.ValidatePoller(), c.validateArchive())
	return errors.Join(errs...)
}

// ValidateIngest checks the inbound queues and the sink.
func (c *Config) ValidateIngest() error {
	var errs []error
	switch c.Ingest.Transport {
	case "sqs":
		if c.Ingest.SQSQueue1URL == "" || c.Ingest.SQSQueue2URL == "" {
			errs = append(errs, errors.New("SQS_QUEUE1_URL and SQS_QUEUE2_URL are required for sqs ingestion"))
		}
	case "pubsub":
		if c.Ingest.PubsubProjectID == "" || c.Ingest.PubsubQueue1Sub == "" || c.Ingest.PubsubQueue2Sub == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID and both PUBSUB_QUEUE*_SUBSCRIPTION are required for pubsub ingestion"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown INGEST_TRANSPORT %q", c.Ingest.Transport))
	}

	switch c.Sink.Backend {
	case "dynamodb":
		if c.Sink.DynamoDBTable == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE_NAME is required for the dynamodb sink"))
		}
	case "firestore":
		if c.Sink.FirestoreProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for the firestore sink"))
		}
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown SINK_BACKEND %q", c.Sink.Backend))
	}
	if c.Sink.CacheEnabled && (c.Sink.Backend == "redis" || c.Sink.Backend == "memory") {
		errs = append(errs, errors.New("SINK_CACHE_ENABLED only applies to the dynamodb and firestore sinks"))
	}
	if c.Workers.PoolSize <= 0 || c.Workers.QueueSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE and WORKER_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// ValidatePoller checks the relational store and the outbound queue.
func (c *Config) ValidatePoller() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	switch c.Poller.QueryStrategy {
	case "mapped", "raw":
	default:
		errs = append(errs, fmt.Errorf("unknown POLLER_QUERY_STRATEGY %q", c.Poller.QueryStrategy))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("POLLER_INTERVAL must be positive"))
	}
	switch c.Publish.Transport {
	case "sqs", "nats", "kafka":
	case "pubsub":
		if c.Ingest.PubsubProjectID == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for pubsub publishing"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PUBLISH_TRANSPORT %q", c.Publish.Transport))
	}
	if c.Publish.Destination == "" {
		errs = append(errs, errors.New("TRANSACTION_QUEUE is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateArchive() error {
	switch c.Archive.Backend {
	case "none":
		return nil
	case "bigquery":
		if c.Archive.ProjectID == "" || c.Archive.BQDatasetID == "" || c.Archive.BQTableID == "" {
			return errors.New("ARCHIVE_PROJECT_ID, BQ_DATASET_ID and BQ_TABLE_ID are required for the bigquery archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required for the gcs archive")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend)
	}
	return nil
}
