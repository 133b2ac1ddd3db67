package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-payflow/pkg/metrics"
	"github.com/illmade-knight/go-payflow/pkg/sink"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/illmade-knight/go-payflow/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Submitter runs tasks in the background. *workerpool.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task workerpool.Task) error
}

// Archiver receives a copy of every record after it has been written to the
// sink. Implementations must not block.
type Archiver interface {
	Archive(record *types.EnrichedPaymentRecord)
}

// FailureHandler is told about records that EnrichAsync could not deliver.
// It is for observability only and does not change delivery guarantees.
type FailureHandler func(record types.PaymentRecord, err error)

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithArchiver mirrors written records to an archive.
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithFailureHandler registers a callback for asynchronous failures.
func WithFailureHandler(h FailureHandler) ServiceOption {
	return func(s *Service) { s.onFailure = h }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service enriches payments and writes them to a sink.
type Service struct {
	sink      sink.Sink
	pool      Submitter
	archiver  Archiver
	onFailure FailureHandler
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates an enrichment Service. Both the sink and the pool that
// runs EnrichAsync tasks are required.
func NewService(s sink.Sink, pool Submitter, logger zerolog.Logger, opts ...ServiceOption) (*Service, error) {
	if s == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	svc := &Service{
		sink:   s,
		pool:   pool,
		now:    time.Now,
		logger: logger.With().Str("component", "EnrichmentService").Logger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Enrich derives every enrichment attribute for the record and performs
// exactly one sink write. A failed write is returned and not retried.
func (s *Service) Enrich(ctx context.Context, record types.PaymentRecord) (*types.EnrichedPaymentRecord, error) {
	start := time.Now()
	s.logger.Debug().Str("payment_id", record.ID).Msg("Starting enrichment.")

	now := s.now()
	enriched := types.NewEnrichedPaymentRecord(record)
	enriched.EnrichmentID = uuid.NewString()
	enriched.AdditionalData = AdditionalData(record, now)
	enriched.RiskScore = CalculateRiskScore(record.Amount)
	enriched.FraudStatus = DetermineFraudStatus(record.Amount, record.Currency)
	enriched.EnrichmentTimestamp = now
	enriched.ProcessingStatus = types.ProcessingCompleted
	enriched.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := s.sink.Put(ctx, enriched); err != nil {
		metrics.EnrichmentsTotal.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("payment_id", record.ID).Str("transaction_id", record.TransactionID).Msg("Failed to write enriched payment.")
		return nil, fmt.Errorf("failed to save enriched payment %s: %w", record.ID, err)
	}

	metrics.EnrichmentsTotal.WithLabelValues("completed").Inc()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	metrics.RiskScores.WithLabelValues(string(enriched.RiskScore), string(enriched.FraudStatus)).Inc()

	if s.archiver != nil {
		s.archiver.Archive(enriched)
	}

	s.logger.Info().
		Str("payment_id", record.ID).
		Str("enrichment_id", enriched.EnrichmentID).
		Str("risk_score", string(enriched.RiskScore)).
		Str("fraud_status", string(enriched.FraudStatus)).
		Int64("processing_ms", time.Since(start).Milliseconds()).
		Msg("Completed enrichment.")
	return enriched, nil
}

// EnrichAsync submits the record for enrichment and forgets about it.
//
// Nothing is returned to the caller: a full or stopped pool, or a failed
// write, is logged once and reported to the FailureHandler, and the record is
// dropped. Callers must not assume delivery.
func (s *Service) EnrichAsync(ctx context.Context, record types.PaymentRecord) {
	err := s.pool.Submit(ctx, func(taskCtx context.Context) {
		if _, err := s.Enrich(taskCtx, record); err != nil {
			s.fail(record, err)
		}
	})
	if err != nil {
		metrics.EnrichmentsTotal.WithLabelValues("rejected").Inc()
		s.logger.Error().Err(err).Str("payment_id", record.ID).Msg("Failed to submit payment for async enrichment.")
		s.fail(record, err)
	}
}

// fail reports a dropped record. The error has already been logged.
func (s *Service) fail(record types.PaymentRecord, err error) {
	if s.onFailure != nil {
		s.onFailure(record, err)
	}
}
