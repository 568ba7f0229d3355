// Package coordinator ties the record store to the work queue. The two
// systems fail independently and share no transaction, so Create enqueues
// under a deadline and compensates by deleting the fresh record when the
// queue never accepts the entry.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamecalm/job-processor/internal/domain"
)

// Config bounds the enqueue step of Create and Retry.
type Config struct {
	// EnqueueTimeout is the hard deadline across all enqueue attempts.
	EnqueueTimeout time.Duration

	// EnqueueAttempts is the number of immediate attempts made before the
	// operation is reported as a queue failure.
	EnqueueAttempts int

	// EnqueueDelay is the fixed pause between attempts.
	EnqueueDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 5 * time.Second
	}
	if c.EnqueueAttempts <= 0 {
		c.EnqueueAttempts = 3
	}
	if c.EnqueueDelay <= 0 {
		c.EnqueueDelay = 200 * time.Millisecond
	}
	return c
}

// Coordinator orchestrates create/retry/delete across the record store and
// the work queue. All dependencies are injected; it holds no global state
// and is safe for concurrent use.
type Coordinator struct {
	repo   domain.JobRepository
	queue  domain.Queue
	cfg    Config
	logger zerolog.Logger
}

func New(repo domain.JobRepository, queue domain.Queue, cfg Config, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo:   repo,
		queue:  queue,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Create persists a new active job and enqueues its work queue entry. When
// the queue does not accept the entry within the configured attempts and
// deadline, the record is deleted again so the caller observes a clean
// "job was never created" outcome.
func (c *Coordinator) Create(ctx context.Context, name string, payload json.RawMessage) (*domain.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidJob)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Status:    domain.JobStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := c.enqueue(ctx, job); err != nil {
		c.compensate(job.ID)
		return nil, err
	}

	c.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("job created")
	return job, nil
}

// Retry re-enqueues a failed job and transitions it back to active,
// clearing its result and failure timestamp. Jobs in any other state are
// rejected without mutation.
func (c *Coordinator) Retry(ctx context.Context, id string) (*domain.Job, error) {
	job, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("%w: cannot retry %s job", domain.ErrStateConflict, job.Status)
	}

	if err := c.enqueue(ctx, job); err != nil {
		return nil, err
	}
	if err := c.repo.MarkActive(ctx, id); err != nil {
		return nil, err
	}

	c.logger.Info().Str("job_id", id).Str("name", job.Name).Msg("job retried")

	job.Status = domain.JobStatusActive
	job.Result = nil
	job.FailedAt = nil
	return job, nil
}

// Delete removes any pending queue entry (best effort) and then the record,
// returning the record as it existed before deletion.
func (c *Coordinator) Delete(ctx context.Context, id string) (*domain.Job, error) {
	if err := c.queue.Remove(ctx, id); err != nil {
		// The entry may already have been consumed or the queue may be
		// briefly unreachable; record deletion still proceeds.
		c.logger.Warn().Err(err).Str("job_id", id).Msg("queue entry removal failed")
	}

	job, err := c.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("job_id", id).Msg("job deleted")
	return job, nil
}

// Get reads a single job record.
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return c.repo.GetByID(ctx, id)
}

// List reads job records newest-first, optionally filtered by status.
func (c *Coordinator) List(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	return c.repo.List(ctx, status, limit)
}

// enqueue submits the job's entry under the configured deadline, with a
// bounded number of immediate attempts to absorb transient queue
// unavailability. The last error is folded into ErrQueueUnavailable.
func (c *Coordinator) enqueue(ctx context.Context, job *domain.Job) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EnqueueTimeout)
	defer cancel()

	entry := domain.QueueEntry{ID: job.ID, Name: job.Name, Payload: job.Payload}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.EnqueueAttempts; attempt++ {
		lastErr = c.queue.Enqueue(ctx, entry)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == c.cfg.EnqueueAttempts {
			break
		}

		c.logger.Warn().Err(lastErr).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Msg("enqueue attempt failed")

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(c.cfg.EnqueueDelay):
			continue
		}
		break
	}

	return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, lastErr)
}

// compensate deletes the record created by a Create whose enqueue step
// ultimately failed. It runs on a fresh context so a cancelled caller
// cannot strand a half-created job.
func (c *Coordinator) compensate(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.repo.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Error().Err(err).Str("job_id", id).Msg("compensating delete failed")
		return
	}
	c.logger.Warn().Str("job_id", id).Msg("job creation rolled back: queue unavailable")
}
