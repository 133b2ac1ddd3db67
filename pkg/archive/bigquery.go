package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryConfig names the archive table.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string // Optional: Path to a service account JSON file.
}

// NewBigQueryClient creates a BigQuery client using Application Default
// Credentials unless a credentials file is given.
func NewBigQueryClient(ctx context.Context, cfg BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client.")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

// RowPutter is the part of *bigquery.Inserter used to stream rows.
type RowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryWriter streams archive records into a BigQuery table.
type BigQueryWriter struct {
	inserter RowPutter
	logger   zerolog.Logger
}

// NewBigQueryWriter connects to the configured table, creating it from the
// Record schema when it does not exist.
func NewBigQueryWriter(ctx context.Context, client *bigquery.Client, cfg BigQueryConfig, logger zerolog.Logger) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	logger = logger.With().Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Attempting to create with inferred schema.")
		schema, err := bigquery.InferSchema(Record{})
		if err != nil {
			return nil, fmt.Errorf("failed to infer archive schema: %w", err)
		}
		meta := &bigquery.TableMetadata{
			Schema: schema,
			TimePartitioning: &bigquery.TimePartitioning{
				Type:  bigquery.DayPartitioningType,
				Field: "enrichment_timestamp",
			},
		}
		if err := table.Create(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
		}
		logger.Info().Msg("BigQuery table created successfully.")
	}
	return NewBigQueryWriterWithPutter(table.Inserter(), logger), nil
}

// NewBigQueryWriterWithPutter wraps an existing inserter.
func NewBigQueryWriterWithPutter(inserter RowPutter, logger zerolog.Logger) *BigQueryWriter {
	return &BigQueryWriter{
		inserter: inserter,
		logger:   logger.With().Str("component", "BigQueryWriter").Logger(),
	}
}

// WriteBatch streams records into the table, logging each failed row.
func (w *BigQueryWriter) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := w.inserter.Put(ctx, records); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				w.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	w.logger.Debug().Int("batch_size", len(records)).Msg("Inserted archive batch into BigQuery.")
	return nil
}

// Close is a no-op; the client's lifecycle belongs to its creator.
func (w *BigQueryWriter) Close() error {
	return nil
}
