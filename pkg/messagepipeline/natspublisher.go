package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConn is the subset of *nats.Conn used by NATSPublisher.
type NATSConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSConfig holds connection settings for NewNATSConn.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NewNATSConn connects to a NATS server, logging connection state changes.
func NewNATSConn(cfg NATSConfig, logger zerolog.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "payflow"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log := logger.With().Str("component", "NATSConn").Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected.")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected.")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// DefaultNATSFlushTimeout bounds a flush when the caller's context has no deadline.
const DefaultNATSFlushTimeout = 5 * time.Second

// NATSPublisher publishes to NATS subjects. Each Publish flushes so that the
// caller learns whether the server received the message.
type NATSPublisher struct {
	conn         NATSConn
	flushTimeout time.Duration
	logger       zerolog.Logger
}

// NewNATSPublisher creates a NATSPublisher. A non-positive flushTimeout uses
// DefaultNATSFlushTimeout.
func NewNATSPublisher(conn NATSConn, flushTimeout time.Duration, logger zerolog.Logger) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultNATSFlushTimeout
	}
	return &NATSPublisher{
		conn:         conn,
		flushTimeout: flushTimeout,
		logger:       logger.With().Str("component", "NATSPublisher").Logger(),
	}, nil
}

// Publish sends payload on the subject named by destination.
func (p *NATSPublisher) Publish(ctx context.Context, destination string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Publish(destination, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", destination, err)
	}
	// FlushWithContext rejects contexts without a deadline.
	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, p.flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush subject %s: %w", destination, err)
	}
	p.logger.Debug().Str("subject", destination).Msg("Message sent successfully.")
	return nil
}

// Stop drains the connection.
func (p *NATSPublisher) Stop(_ context.Context) error {
	return p.conn.Drain()
}
