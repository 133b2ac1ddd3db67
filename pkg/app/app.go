package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/archive"
	"github.com/illmade-knight/go-payflow/pkg/config"
	"github.com/illmade-knight/go-payflow/pkg/enrichment"
	"github.com/illmade-knight/go-payflow/pkg/ingestion"
	"github.com/illmade-knight/go-payflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-payflow/pkg/microservice"
	"github.com/illmade-knight/go-payflow/pkg/poller"
	"github.com/illmade-knight/go-payflow/pkg/sink"
	"github.com/illmade-knight/go-payflow/pkg/transactions"
	"github.com/illmade-knight/go-payflow/pkg/workerpool"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Options selects which halves of the service run and lets tests replace
// the external collaborators. A nil override means "build from config".
type Options struct {
	Ingest bool
	Poll   bool

	Sources   []ingestion.Source
	Sink      sink.Sink
	Store     transactions.Store
	Publisher messagepipeline.Publisher
	Archive   archive.Writer
}

// App owns every long-lived component and their start/stop order.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	clients *clients

	pool      *workerpool.Pool
	sink      sink.Sink
	service   *enrichment.Service
	adapter   *ingestion.Adapter
	batcher   *archive.Batcher
	pgPool    *pgxpool.Pool
	publisher messagepipeline.Publisher
	poller    *poller.Poller
	server    *microservice.BaseServer

	workCancel context.CancelFunc
	pollCancel context.CancelFunc
	pollerDone chan struct{}
	stopOnce   sync.Once
}

// New builds every component selected by opts. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options, logger zerolog.Logger) (_ *App, err error) {
	if !opts.Ingest && !opts.Poll {
		return nil, errors.New("nothing to run: enable ingestion or polling")
	}
	a := &App{
		cfg:     cfg,
		logger:  logger.With().Str("component", "App").Logger(),
		clients: &clients{cfg: cfg, logger: logger},
		pool: workerpool.New(workerpool.Config{
			NumWorkers: cfg.Workers.PoolSize,
			QueueSize:  cfg.Workers.QueueSize,
		}, logger),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if opts.Ingest {
		if err := a.buildIngest(ctx, opts, logger); err != nil {
			return nil, err
		}
	}
	if opts.Poll {
		if err := a.buildPoller(ctx, opts, logger); err != nil {
			return nil, err
		}
	}

	if cfg.HTTPPort != "" {
		a.server = microservice.NewBaseServer(logger, cfg.HTTPPort)
		if a.pgPool != nil {
			a.server.AddReadinessCheck("postgres", a.pgPool.Ping)
		}
	}
	return a, nil
}

func (a *App) buildIngest(ctx context.Context, opts Options, logger zerolog.Logger) error {
	a.sink = opts.Sink
	if a.sink == nil {
		s, err := a.clients.buildSink(ctx)
		if err != nil {
			return fmt.Errorf("failed to build sink: %w", err)
		}
		a.sink = s
	}

	writer := opts.Archive
	if writer == nil {
		w, err := a.clients.buildArchiveWriter(ctx)
		if err != nil {
			return fmt.Errorf("failed to build archive: %w", err)
		}
		writer = w
	}
	var serviceOpts []enrichment.ServiceOption
	if writer != nil {
		batcher, err := archive.NewBatcher(archive.BatcherConfig{
			BatchSize:     a.cfg.Archive.BatchSize,
			FlushInterval: a.cfg.Archive.FlushInterval,
		}, writer, logger)
		if err != nil {
			return err
		}
		a.batcher = batcher
		serviceOpts = append(serviceOpts, enrichment.WithArchiver(batcher))
	}

	service, err := enrichment.NewService(a.sink, a.pool, logger, serviceOpts...)
	if err != nil {
		return err
	}
	a.service = service

	sources := opts.Sources
	if sources == nil {
		sources, err = a.clients.buildSources(ctx)
		if err != nil {
			return fmt.Errorf("failed to build sources: %w", err)
		}
	}
	a.adapter, err = ingestion.NewAdapter(sources, service, logger)
	return err
}

func (a *App) buildPoller(ctx context.Context, opts Options, logger zerolog.Logger) error {
	store := opts.Store
	if store == nil {
		pgPool, err := transactions.NewPool(ctx, a.cfg.Postgres.DSN, a.cfg.Postgres.MaxConns)
		if err != nil {
			return err
		}
		a.pgPool = pgPool
		if a.cfg.Migration.Enabled {
			if err := transactions.RunMigrations(a.cfg.Postgres.DSN, logger); err != nil {
				return err
			}
		}
		pgStore, err := transactions.NewPostgresStore(pgPool, transactions.QueryStrategy(a.cfg.Poller.QueryStrategy), logger)
		if err != nil {
			return err
		}
		store = pgStore
	}

	a.publisher = opts.Publisher
	if a.publisher == nil {
		pub, err := a.clients.buildPublisher(ctx)
		if err != nil {
			return fmt.Errorf("failed to build publisher: %w", err)
		}
		a.publisher = pub
	}

	p, err := poller.New(poller.Config{
		Enabled:     a.cfg.Poller.Enabled,
		Interval:    a.cfg.Poller.Interval,
		Destination: a.cfg.Publish.Destination,
		ClaimRows:   a.cfg.Poller.ClaimRows,
		ClaimLease:  a.cfg.Poller.ClaimLease,
	}, store, a.publisher, a.pool, logger)
	if err != nil {
		return err
	}
	a.poller = p
	return nil
}

// Start runs the pool, the archive, the HTTP server, the ingestion adapter
// and the poller schedule. Background work gets a context that outlives ctx
// so that Stop can drain it.
func (a *App) Start(ctx context.Context) error {
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	a.workCancel = workCancel
	a.pool.Start(workCtx)
	if a.batcher != nil {
		a.batcher.Start(workCtx)
	}

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return err
		}
	}
	if a.adapter != nil {
		if err := a.adapter.Start(ctx); err != nil {
			return err
		}
	}
	if a.poller != nil {
		pollCtx, pollCancel := context.WithCancel(ctx)
		a.pollCancel = pollCancel
		a.pollerDone = make(chan struct{})
		go func() {
			defer close(a.pollerDone)
			a.poller.Run(pollCtx)
		}()
	}
	a.logger.Info().Bool("ingest", a.adapter != nil).Bool("poll", a.poller != nil).Msg("Payflow started.")
	return nil
}

// PollOnce runs a single poll cycle outside the schedule.
func (a *App) PollOnce(ctx context.Context) (int, error) {
	if a.poller == nil {
		return 0, errors.New("poller is not configured")
	}
	return a.poller.PollOnce(ctx)
}

// Stop shuts components down in dependency order: inputs first, then the
// pool and archive they feed, then clients. It is bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.logger.Info().Msg("Stopping payflow...")
		if a.pollCancel != nil {
			a.pollCancel()
			select {
			case <-a.pollerDone:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("poller: %w", ctx.Err()))
			}
		}
		if a.adapter != nil {
			if err := a.adapter.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("ingestion: %w", err))
			}
		}
		if err := a.pool.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
		if a.batcher != nil {
			if err := a.batcher.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("archive: %w", err))
			}
		}
		if a.publisher != nil {
			if err := a.publisher.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("publisher: %w", err))
			}
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}
		if a.workCancel != nil {
			a.workCancel()
		}
		if err := a.closeResources(); err != nil {
			errs = append(errs, err)
		}
		a.logger.Info().Msg("Payflow stopped.")
	})
	return errors.Join(errs...)
}

// Run starts the app, blocks until ctx is done and stops it within shutdownTimeout.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, a.Stop(stopCtx))
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Stop(stopCtx)
}

func (a *App) closeResources() error {
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if err := a.clients.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sink exposes the configured sink, mainly for tests.
func (a *App) Sink() sink.Sink {
	return a.sink
}

// HTTPPort returns the port the operational server listens on, or "" when it is off.
func (a *App) HTTPPort() string {
	if a.server == nil {
		return ""
	}
	return a.server.GetHTTPPort()
}
