package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration // Zero keeps records until evicted.
	KeyPrefix string
}

// RedisSink stores enriched payments as JSON strings in Redis.
type RedisSink struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
}

// NewRedisSink creates and connects a RedisSink.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisSink(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "payment:"
	}
	return &RedisSink{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisSink").Logger(),
		ttl:         cfg.TTL,
		prefix:      prefix,
	}, nil
}

// Put marshals the record and sets it with the configured TTL.
func (s *RedisSink) Put(ctx context.Context, record *types.EnrichedPaymentRecord) error {
	key := s.key(record.ID, record.TransactionID)
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}

	if err := s.redisClient.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set record in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully stored record in Redis.")
	return nil
}

// Get fetches and unmarshals a record. A redis.Nil miss maps to ErrNotFound.
func (s *RedisSink) Get(ctx context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error) {
	key := s.key(id, transactionID)
	cachedData, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during get.")
		return nil, fmt.Errorf("redis get for %s: %w", key, err)
	}

	var record types.EnrichedPaymentRecord
	if err := json.Unmarshal([]byte(cachedData), &record); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal stored record.")
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return &record, nil
}

// Close closes the Redis client connection.
func (s *RedisSink) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}

func (s *RedisSink) key(id, transactionID string) string {
	return s.prefix + Key(id, transactionID)
}
