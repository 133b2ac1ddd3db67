package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-payflow/pkg/metrics"
	"github.com/illmade-knight/go-payflow/pkg/transactions"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/illmade-knight/go-payflow/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Submitter runs tasks in the background. *workerpool.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task workerpool.Task) error
}

// Config holds configuration for a Poller.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	Destination string
	// ClaimRows moves each row to IN_PROGRESS before publishing it so that
	// several pollers can share a table. Off by default: a single poller per
	// table is then required, as nothing stops two instances publishing the
	// same row.
	ClaimRows bool
	// ClaimLease is how long a claim may stay IN_PROGRESS before a later cycle
	// returns it to UNPROCESSED. Zero defaults to five minutes.
	ClaimLease time.Duration
}

// Poller republishes UNPROCESSED transaction rows and marks them PROCESSED.
type Poller struct {
	cfg       Config
	store     transactions.Store
	publisher messagepipeline.Publisher
	pool      Submitter
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a Poller. A zero interval defaults to ten seconds.
func New(cfg Config, store transactions.Store, publisher messagepipeline.Publisher, pool Submitter, logger zerolog.Logger, opts ...Option) (*Poller, error) {
	if store == nil || publisher == nil || pool == nil {
		return nil, errors.New("store, publisher and pool cannot be nil")
	}
	if cfg.Destination == "" {
		return nil, errors.New("poller destination is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	p := &Poller{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		pool:      pool,
		now:       time.Now,
		logger:    logger.With().Str("component", "TransactionPoller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PollOnce publishes every UNPROCESSED row and returns how many were both
// published and marked PROCESSED. Rows are handled concurrently on the pool
// and PollOnce waits for all of them. A failed row stays UNPROCESSED and is
// picked up again on a later cycle. In claim mode, claims older than the
// lease are returned to UNPROCESSED first.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	if p.cfg.ClaimRows {
		if _, err := p.store.ReclaimExpired(ctx, p.now().Add(-p.cfg.ClaimLease)); err != nil {
			p.logger.Error().Err(err).Msg("Failed to reclaim expired claims.")
		}
	}

	rows, err := p.store.FindUnprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unprocessed rows: %w", err)
	}
	if len(rows) == 0 {
		p.logger.Debug().Msg("No unprocessed transactions.")
		return 0, nil
	}
	p.logger.Info().Int("count", len(rows)).Msg("Processing unprocessed transactions.")

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for _, row := range rows {
		wg.Add(1)
		err := p.pool.Submit(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			if p.processRow(taskCtx, row) {
				succeeded.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			metrics.PolledRows.WithLabelValues("rejected").Inc()
			p.logger.Error().Err(err).Str("row_id", row.ID).Msg("Failed to submit row.")
		}
	}
	wg.Wait()

	n := int(succeeded.Load())
	p.logger.Info().Int("succeeded", n).Int("total", len(rows)).Msg("Poll cycle complete.")
	return n, nil
}

// processRow publishes one row and flags it PROCESSED. It reports success
// only when the status update matched a row. A claimed row whose update fails
// is released even though it was published, so it will be published again:
// delivery is at-least-once.
func (p *Poller) processRow(ctx context.Context, row types.TransactionRow) (ok bool) {
	log := p.logger.With().Str("row_id", row.ID).Str("transaction_id", row.TransactionID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Row processing panicked.")
			ok = false
		}
		status := "failed"
		if ok {
			status = "processed"
		}
		metrics.PolledRows.WithLabelValues(status).Inc()
	}()

	if p.cfg.ClaimRows {
		claimed, err := p.store.ClaimRow(ctx, row.ID, p.now())
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim row.")
			return false
		}
		if !claimed {
			log.Debug().Msg("Row already claimed elsewhere, skipping.")
			return false
		}
	}

	payload, err := json.Marshal(row)
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialise row.")
		p.release(ctx, row.ID, log)
		return false
	}
	if err := p.publisher.Publish(ctx, p.cfg.Destination, payload); err != nil {
		log.Error().Err(err).Str("destination", p.cfg.Destination).Msg("Failed to publish row.")
		p.release(ctx, row.ID, log)
		return false
	}

	affected, err := p.store.UpdateStatus(ctx, row.ID, types.RowProcessed, p.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark row processed.")
		p.release(ctx, row.ID, log)
		return false
	}
	if affected == 0 {
		log.Warn().Msg("Status update matched no rows.")
		p.release(ctx, row.ID, log)
		return false
	}
	log.Debug().Msg("Row published and marked processed.")
	return true
}

func (p *Poller) release(ctx context.Context, id string, log zerolog.Logger) {
	if !p.cfg.ClaimRows {
		return
	}
	if err := p.store.ReleaseRow(ctx, id); err != nil {
		log.Error().Err(err).Msg("Failed to release claimed row.")
	}
}

// RunCycle is one scheduled tick. It never fails: errors and panics are
// logged and the cycle counts as zero.
func (p *Poller) RunCycle(ctx context.Context) (n int) {
	if !p.cfg.Enabled {
		p.logger.Debug().Msg("Poller disabled, skipping cycle.")
		metrics.PollCycles.WithLabelValues("disabled").Inc()
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Poll cycle panicked.")
			metrics.PollCycles.WithLabelValues("error").Inc()
			n = 0
		}
	}()

	n, err := p.PollOnce(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Poll cycle failed.")
		metrics.PollCycles.WithLabelValues("error").Inc()
		return 0
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()
	return n
}

// Run ticks every Interval until ctx is done. Cycles never overlap.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info().Dur("interval", p.cfg.Interval).Bool("enabled", p.cfg.Enabled).Bool("claim_rows", p.cfg.ClaimRows).Dur("claim_lease", p.cfg.ClaimLease).Msg("Starting transaction poller.")
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Transaction poller stopped.")
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}
