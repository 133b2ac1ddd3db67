package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-payflow/pkg/metrics"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
)

// Default source names.
const (
	SourceQueue1 = "queue1"
	SourceQueue2 = "queue2"
)

// Enricher accepts records for asynchronous enrichment. *enrichment.Service satisfies it.
type Enricher interface {
	EnrichAsync(ctx context.Context, record types.PaymentRecord)
}

// Source is a named inbound queue.
type Source struct {
	Name     string
	Consumer messagepipeline.BatchConsumer
}

// Adapter reads batches from every source, decodes them and hands the
// records to the Enricher. Messages are acknowledged as soon as they have
// been handed off, so delivery is at most once.
type Adapter struct {
	sources  []Source
	enricher Enricher
	now      func() time.Time
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewAdapter creates an Adapter.
func NewAdapter(sources []Source, enricher Enricher, logger zerolog.Logger) (*Adapter, error) {
	if enricher == nil {
		return nil, errors.New("enricher cannot be nil")
	}
	for _, s := range sources {
		if s.Name == "" || s.Consumer == nil {
			return nil, errors.New("every source needs a name and a consumer")
		}
	}
	return &Adapter{
		sources:  sources,
		enricher: enricher,
		now:      time.Now,
		logger:   logger.With().Str("component", "IngestionAdapter").Logger(),
	}, nil
}

// Start starts every consumer and one reader goroutine per source.
func (a *Adapter) Start(ctx context.Context) error {
	for _, src := range a.sources {
		if err := src.Consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start source %s: %w", src.Name, err)
		}
		a.wg.Add(1)
		go a.consume(ctx, src)
		a.logger.Info().Str("source", src.Name).Msg("Source started.")
	}
	return nil
}

func (a *Adapter) consume(ctx context.Context, src Source) {
	defer a.wg.Done()
	for batch := range src.Consumer.Batches() {
		a.HandleBatch(ctx, src.Name, batch)
	}
	a.logger.Info().Str("source", src.Name).Msg("Source drained.")
}

// HandleBatch decodes and submits every message of a batch, then acks it.
// Undecodable payloads become ERROR records rather than being dropped.
func (a *Adapter) HandleBatch(ctx context.Context, source string, batch []messagepipeline.Message) {
	a.logger.Debug().Str("source", source).Int("batch_size", len(batch)).Msg("Received batch.")
	for _, msg := range batch {
		metrics.MessagesReceived.WithLabelValues(source).Inc()
		now := a.now()

		record, err := DecodePayment(msg.Payload, now)
		if err != nil {
			metrics.DecodeErrors.WithLabelValues(source).Inc()
			record = ErrorRecord(now)
			a.logger.Error().Err(err).
				Str("source", source).
				Str("msg_id", msg.ID).
				Str("payment_id", record.ID).
				Msg("Failed to decode payment, substituting error record.")
		}
		record.SourceQueue = source

		a.logger.Debug().Str("source", source).Str("msg_id", msg.ID).Str("payment_id", record.ID).Msg("Processing payment.")
		a.enricher.EnrichAsync(ctx, record)
		if msg.Ack != nil {
			msg.Ack()
		}
	}
}

// Stop stops every consumer and waits for the reader goroutines, bounded by ctx.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info().Msg("Stopping ingestion adapter...")
	var errs []error
	for _, src := range a.sources {
		if err := src.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info().Msg("Ingestion adapter stopped.")
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
