package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("worker pool is stopped")

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context)

// Config holds configuration for a Pool.
type Config struct {
	NumWorkers int
	QueueSize  int
}

// Pool runs submitted tasks on a fixed set of goroutines fed by a bounded queue.
// A Pool is constructed once and handed to every component that needs
// background execution; there is no package-level pool.
type Pool struct {
	cfg    Config
	tasks  chan Task
	logger zerolog.Logger
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	started bool
}

// New creates a Pool. Workers do not run until Start is called.
func New(cfg Config, logger zerolog.Logger) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.NumWorkers * 2
	}
	return &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		logger: logger.With().Str("component", "WorkerPool").Logger(),
	}
}

// Start spawns the workers. Each task receives ctx, so cancelling it is the
// only way to interrupt work that is already running.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.logger.Info().Int("worker_count", p.cfg.NumWorkers).Int("queue_size", p.cfg.QueueSize).Msg("Starting worker pool...")
	p.wg.Add(p.cfg.NumWorkers)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		go p.worker(ctx, i)
	}
}

// Submit queues a task. It blocks while the queue is full until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	// The read lock keeps Stop from closing the channel under a pending send.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit task: %w", ctx.Err())
	}
}

// Stop rejects new submissions, lets workers drain the queue and waits for
// them, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.logger.Info().Msg("Stopping worker pool...")
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("All pool workers completed gracefully.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for pool workers to finish.")
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	p.logger.Debug().Int("worker_id", workerID).Msg("Pool worker started.")
	for task := range p.tasks {
		p.run(ctx, workerID, task)
	}
	p.logger.Debug().Int("worker_id", workerID).Msg("Task queue closed, worker exiting.")
}

// run isolates a panicking task so it cannot take the worker down with it.
func (p *Pool) run(ctx context.Context, workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker_id", workerID).Interface("panic", r).Msg("Task panicked.")
		}
	}()
	task(ctx)
}
