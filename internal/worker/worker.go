// Package worker drains the work queue and drives each delivered entry to a
// terminal job status in the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamecalm/job-processor/internal/domain"
	"github.com/tamecalm/job-processor/internal/registry"
)

// Pool is a fixed-size set of concurrent queue consumers. Each consumer
// pulls one delivery at a time, invokes the matching processor and writes
// the outcome back to the record store.
//
// A processor failure marks the job failed and hands the entry back to the
// queue's own retry policy, so a later automatic redelivery may overwrite
// the failed status with completed. The record store reflects the last
// observed outcome; there is no reconciliation against deliveries still in
// flight.
type Pool struct {
	queue    domain.Queue
	repo     domain.JobRepository
	registry *registry.Registry
	logger   zerolog.Logger

	concurrency int
	// retryDelay is the pause after a failed Receive, so a queue outage
	// does not turn the consumers into a hot loop.
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func New(queue domain.Queue, repo domain.JobRepository, reg *registry.Registry, concurrency int, logger zerolog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		queue:       queue,
		repo:        repo,
		registry:    reg,
		logger:      logger,
		concurrency: concurrency,
		retryDelay:  time.Second,
	}
}

// Start runs the consumer goroutines and blocks until ctx is cancelled and
// in-flight work has finished.
func (p *Pool) Start(ctx context.Context) error {
	p.logger.Info().
		Int("concurrency", p.concurrency).
		Strs("processors", p.registry.Names()).
		Msg("worker pool started")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(consumer int) {
			defer p.wg.Done()
			p.consume(ctx, consumer)
		}(i)
	}

	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
	return ctx.Err()
}

func (p *Pool) consume(ctx context.Context, consumer int) {
	logger := p.logger.With().Int("consumer", consumer).Logger()

	for {
		delivery, err := p.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}
		p.process(ctx, logger, delivery)
	}
}

// process drives one delivery to an outcome. Nothing here may take the
// consumer down: processor panics and storage errors are logged and folded
// into the job's status.
func (p *Pool) process(ctx context.Context, logger zerolog.Logger, delivery domain.Delivery) {
	entry := delivery.Entry()
	logger = logger.With().
		Str("job_id", entry.ID).
		Str("name", entry.Name).
		Int("attempt", entry.Attempt).
		Logger()
	logger.Info().Msg("processing job")

	proc, err := p.registry.Lookup(entry.Name)
	if err != nil {
		// No processor will ever exist for this delivery, so redelivery
		// is pointless: record the failure and consume the entry.
		logger.Error().Err(err).Msg("no processor registered")
		p.markFailed(ctx, logger, entry.ID, err)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			logger.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	start := time.Now()
	summary, err := p.invoke(ctx, logger, proc, entry)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		p.markFailed(ctx, logger, entry.ID, err)
		if failErr := delivery.Fail(ctx); failErr != nil {
			logger.Error().Err(failErr).Msg("queue fail report lost")
		}
		return
	}

	if err := p.repo.MarkCompleted(ctx, entry.ID, summary, time.Now().UTC()); err != nil {
		// The work is done but the record is stale; let the queue
		// redeliver so a later attempt can settle the record. Terminal
		// writes are idempotent, so re-running the outcome is safe.
		logger.Error().Err(err).Msg("record completion failed")
		if failErr := delivery.Fail(ctx); failErr != nil {
			logger.Error().Err(failErr).Msg("queue fail report lost")
		}
		return
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
	if err := delivery.Ack(ctx); err != nil {
		logger.Error().Err(err).Msg("ack failed")
	}
}

// invoke runs the processor with panic recovery, passing the pool logger
// down through ctx for progress reporting.
func (p *Pool) invoke(ctx context.Context, logger zerolog.Logger, proc registry.Processor, entry domain.QueueEntry) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return proc(logger.WithContext(ctx), entry)
}

func (p *Pool) markFailed(ctx context.Context, logger zerolog.Logger, id string, cause error) {
	if err := p.repo.MarkFailed(ctx, id, cause.Error(), time.Now().UTC()); err != nil {
		logger.Error().Err(err).Msg("record failure failed")
	}
}
