package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamecalm/job-processor/internal/domain"
)

// maxListLimit caps GET /jobs responses regardless of the requested limit.
const maxListLimit = 200

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, name, payload, status, result, created_at, completed_at, failed_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, name, payload, status, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.Payload,
		job.Status,
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs newest-first, optionally filtered by status.
func (r *JobRepositoryPG) List(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes the record and returns it as it existed prior to deletion.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) (*domain.Job, error) {
	query := `DELETE FROM jobs WHERE id = $1 RETURNING ` + jobColumns + `;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// MarkCompleted records a successful outcome. COALESCE keeps the first
// completed_at so a redelivered completion does not move the timestamp. A
// failed job may become completed (queue redelivery succeeded after the
// last observed failure); a completed job keeps its original outcome.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, id, result string, at time.Time) error {
	query := `
UPDATE jobs
SET status       = 'completed',
    result       = CASE WHEN status = 'completed' THEN result ELSE $2 END,
    completed_at = COALESCE(completed_at, $3),
    failed_at    = NULL
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id, result, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed records a failure outcome. Completed jobs are immutable, so
// the update is skipped for them; repeating the same failure keeps the
// first failed_at.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, id, result string, at time.Time) error {
	query := `
UPDATE jobs
SET status    = 'failed',
    result    = $2,
    failed_at = COALESCE(failed_at, $3)
WHERE id = $1 AND status <> 'completed';
`
	tag, err := r.pool.Exec(ctx, query, id, result, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the job is gone or it already completed; both are
		// fine for an idempotent terminal write, but distinguish the
		// missing record for callers that care.
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

// MarkActive transitions a failed job back to active for retry.
func (r *JobRepositoryPG) MarkActive(ctx context.Context, id string) error {
	query := `
UPDATE jobs
SET status    = 'active',
    result    = NULL,
    failed_at = NULL
WHERE id = $1 AND status = 'failed';
`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStateConflict
	}
	return nil
}

func (r *JobRepositoryPG) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var status string
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&job.Payload,
		&status,
		&job.Result,
		&job.CreatedAt,
		&job.CompletedAt,
		&job.FailedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}
