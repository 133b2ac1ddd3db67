package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/metrics"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
)

// Writer persists a batch of archive records.
type Writer interface {
	WriteBatch(ctx context.Context, records []*Record) error
	Close() error
}

// BatcherConfig holds configuration for a Batcher.
type BatcherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	// WriteTimeout bounds a single WriteBatch call.
	WriteTimeout time.Duration
	// BufferSize is how many records may wait for the worker before Archive drops them.
	BufferSize int
}

// Batcher collects records and writes them in batches. Archive never blocks:
// when the buffer is full the record is dropped and counted.
type Batcher struct {
	cfg       BatcherConfig
	writer    Writer
	logger    zerolog.Logger
	inputChan chan *Record
	wg        sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewBatcher creates a Batcher.
func NewBatcher(cfg BatcherConfig, writer Writer, logger zerolog.Logger) (*Batcher, error) {
	if writer == nil {
		return nil, errors.New("archive writer cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.BatchSize * 2
	}
	return &Batcher{
		cfg:       cfg,
		writer:    writer,
		logger:    logger.With().Str("component", "ArchiveBatcher").Logger(),
		inputChan: make(chan *Record, cfg.BufferSize),
	}, nil
}

// Archive queues a copy of an enriched record.
func (b *Batcher) Archive(record *types.EnrichedPaymentRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		metrics.ArchiveDropped.Inc()
		return
	}
	select {
	case b.inputChan <- FromEnriched(record):
	default:
		metrics.ArchiveDropped.Inc()
		b.logger.Warn().Str("payment_id", record.ID).Msg("Archive buffer full, dropping record.")
	}
}

// Start begins the batching worker.
func (b *Batcher) Start(ctx context.Context) {
	b.logger.Info().
		Int("batch_size", b.cfg.BatchSize).
		Dur("flush_interval", b.cfg.FlushInterval).
		Msg("Starting archive batcher...")
	b.wg.Add(1)
	go b.worker(ctx)
}

// Stop flushes what is buffered, waits for the worker, bounded by ctx, and
// closes the writer.
func (b *Batcher) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	close(b.inputChan)
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping archive batcher...")
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for archive batcher to stop.")
		return ctx.Err()
	}

	if err := b.writer.Close(); err != nil {
		b.logger.Error().Err(err).Msg("Error closing archive writer")
		return err
	}
	b.logger.Info().Msg("Archive batcher stopped.")
	return nil
}

func (b *Batcher) worker(ctx context.Context) {
	defer b.wg.Done()
	batch := make([]*Record, 0, b.cfg.BatchSize)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		b.flush(flushCtx, batch)
		batch = make([]*Record, 0, b.cfg.BatchSize)
		ticker.Reset(b.cfg.FlushInterval)
	}

	for {
		select {
		case <-ctx.Done():
			// Drain what is already buffered, then exit.
			for {
				select {
				case rec, ok := <-b.inputChan:
					if !ok {
						flush(context.Background())
						return
					}
					batch = append(batch, rec)
				default:
					flush(context.Background())
					return
				}
			}
		case rec, ok := <-b.inputChan:
			if !ok {
				flush(context.WithoutCancel(ctx))
				return
			}
			batch = append(batch, rec)
			if len(batch) >= b.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (b *Batcher) flush(ctx context.Context, batch []*Record) {
	writeCtx, cancel := context.WithTimeout(ctx, b.cfg.WriteTimeout)
	defer cancel()

	if err := b.writer.WriteBatch(writeCtx, batch); err != nil {
		metrics.ArchiveFlushes.WithLabelValues("failed").Inc()
		b.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write archive batch.")
		return
	}
	metrics.ArchiveFlushes.WithLabelValues("ok").Inc()
	b.logger.Debug().Int("batch_size", len(batch)).Msg("Flushed archive batch.")
}
