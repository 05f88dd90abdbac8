package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerPool drains the queue with a fixed number of goroutines. Workers
// block on the queue's wake signal with a poll ticker as a backstop, so
// entries left over from a crash are still picked up.
type WorkerPool struct {
	queue      *Queue
	repo       QueueRepository
	reconciler *Reconciler
	logger     zerolog.Logger

	workers      int
	pollInterval time.Duration
	procTimeout  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(queue *Queue, repo QueueRepository, reconciler *Reconciler, workers int, pollInterval, procTimeout time.Duration, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		queue:        queue,
		repo:         repo,
		reconciler:   reconciler,
		logger:       logger.With().Str("component", "ingest-workers").Logger(),
		workers:      workers,
		pollInterval: pollInterval,
		procTimeout:  procTimeout,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info().Int("workers", p.workers).Msg("starting queue workers")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight entries to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("queue workers stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error().Err(err).Int("worker", id).Msg("queue drain failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-p.queue.Wake():
		case <-ticker.C:
		}
	}
}

// drain claims and processes entries until the queue is empty.
func (p *WorkerPool) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e, err := p.repo.ClaimNext(ctx)
		if errors.Is(err, ErrEmpty) {
			return nil
		}
		if err != nil {
			return err
		}

		// A hung parse or lookup fails the entry instead of wedging
		// the worker.
		procCtx, cancel := context.WithTimeout(ctx, p.procTimeout)
		err = p.reconciler.Process(procCtx, e)
		cancel()
		if err != nil {
			p.logger.Error().Err(err).Stringer("entry_id", e.ID).Msg("failed to finalize entry")
		}
	}
}
