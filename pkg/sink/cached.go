package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
)

// CachedSink puts a fast sink (usually Redis) in front of a durable one.
// Writes go to the primary first and are then copied to the cache; reads try
// the cache and fall back to the primary, back-filling the cache on a hit.
type CachedSink struct {
	primary      Sink
	cache        Sink
	cacheTimeout time.Duration
	logger       zerolog.Logger
}

// NewCachedSink composes a primary sink with a cache.
func NewCachedSink(primary, cache Sink, cacheTimeout time.Duration, logger zerolog.Logger) (*CachedSink, error) {
	if primary == nil || cache == nil {
		return nil, fmt.Errorf("primary and cache sinks cannot be nil")
	}
	if cacheTimeout <= 0 {
		cacheTimeout = 5 * time.Second
	}
	return &CachedSink{
		primary:      primary,
		cache:        cache,
		cacheTimeout: cacheTimeout,
		logger:       logger.With().Str("component", "CachedSink").Logger(),
	}, nil
}

// Put writes to the primary. A cache write failure is logged, not returned.
func (c *CachedSink) Put(ctx context.Context, record *types.EnrichedPaymentRecord) error {
	if err := c.primary.Put(ctx, record); err != nil {
		return err
	}
	c.writeCache(ctx, record)
	return nil
}

// Get reads through the cache.
func (c *CachedSink) Get(ctx context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error) {
	record, err := c.cache.Get(ctx, id, transactionID)
	if err == nil {
		c.logger.Debug().Str("payment_id", id).Msg("Cache hit.")
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.logger.Warn().Err(err).Str("payment_id", id).Msg("Cache read failed, falling back to primary.")
	}

	record, err = c.primary.Get(ctx, id, transactionID)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, record)
	return record, nil
}

// Close closes both sinks and returns the first error.
func (c *CachedSink) Close() error {
	cacheErr := c.cache.Close()
	if err := c.primary.Close(); err != nil {
		return fmt.Errorf("error closing primary sink: %w", err)
	}
	if cacheErr != nil {
		return fmt.Errorf("error closing cache sink: %w", cacheErr)
	}
	return nil
}

func (c *CachedSink) writeCache(ctx context.Context, record *types.EnrichedPaymentRecord) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cacheTimeout)
	defer cancel()
	if err := c.cache.Put(writeCtx, record); err != nil {
		c.logger.Error().Err(err).Str("payment_id", record.ID).Msg("Failed to write to cache.")
	}
}
