package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamecalm/job-processor/internal/domain"
)

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: make(map[string]domain.Job)}
}

func (r *fakeRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (r *fakeRepo) List(_ context.Context, status domain.JobStatus, _ int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if status == "" || job.Status == status {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.jobs, id)
	return &job, nil
}

func (r *fakeRepo) MarkCompleted(_ context.Context, id, result string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusCompleted {
		job.Status = domain.JobStatusCompleted
		job.Result = &result
		job.CompletedAt = &at
		job.FailedAt = nil
	}
	r.jobs[id] = job
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id, result string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusCompleted {
		job.Status = domain.JobStatusFailed
		job.Result = &result
		if job.FailedAt == nil {
			job.FailedAt = &at
		}
	}
	r.jobs[id] = job
	return nil
}

func (r *fakeRepo) MarkActive(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed {
		return domain.ErrStateConflict
	}
	job.Status = domain.JobStatusActive
	job.Result = nil
	job.FailedAt = nil
	r.jobs[id] = job
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakeQueue struct {
	mu       sync.Mutex
	entries  []domain.QueueEntry
	removed  []string
	attempts int

	// failFirst makes the first n Enqueue calls fail.
	failFirst int
	// enqueueErr, when set, fails every Enqueue call.
	enqueueErr error
	// blockEnqueue makes Enqueue wait for ctx before failing with its error.
	blockEnqueue bool
	// removeErr, when set, fails Remove calls.
	removeErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, entry domain.QueueEntry) error {
	q.mu.Lock()
	q.attempts++
	n := q.attempts
	q.mu.Unlock()

	if q.blockEnqueue {
		<-ctx.Done()
		return ctx.Err()
	}
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if n <= q.failFirst {
		return fmt.Errorf("transient enqueue failure %d", n)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (domain.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	return q.removeErr
}

func (q *fakeQueue) enqueued() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueueEntry(nil), q.entries...)
}

func fastConfig() Config {
	return Config{
		EnqueueTimeout:  500 * time.Millisecond,
		EnqueueAttempts: 3,
		EnqueueDelay:    time.Millisecond,
	}
}

func newCoordinator(repo domain.JobRepository, queue domain.Queue) *Coordinator {
	return New(repo, queue, fastConfig(), zerolog.Nop())
}

func seedFailedJob(t *testing.T, repo *fakeRepo) domain.Job {
	t.Helper()
	result := "boom"
	failedAt := time.Now().UTC().Add(-time.Minute)
	job := domain.Job{
		ID:        "11111111-1111-1111-1111-111111111111",
		Name:      "sendEmail",
		Payload:   json.RawMessage(`{"recipient":"a@b.com"}`),
		Status:    domain.JobStatusFailed,
		Result:    &result,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		FailedAt:  &failedAt,
	}
	repo.jobs[job.ID] = job
	return job
}

func TestCreatePersistsAndEnqueues(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)

	job, err := c.Create(context.Background(), "sendEmail", json.RawMessage(`{"recipient":"a@b.com"}`))
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.Result)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, stored.Status)

	entries := queue.enqueued()
	require.Len(t, entries, 1)
	assert.Equal(t, job.ID, entries[0].ID)
	assert.Equal(t, "sendEmail", entries[0].Name)
}

func TestCreateDefaultsEmptyPayload(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)

	job, err := c.Create(context.Background(), "sleep", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(job.Payload))
}

func TestCreateRejectsEmptyName(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)

	_, err := c.Create(context.Background(), "  ", nil)
	require.ErrorIs(t, err, domain.ErrInvalidJob)
	assert.Zero(t, repo.count())
	assert.Empty(t, queue.enqueued())
}

func TestCreateCompensatesWhenQueueUnavailable(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{enqueueErr: errors.New("connection refused")}
	c := newCoordinator(repo, queue)

	_, err := c.Create(context.Background(), "sendEmail", nil)
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)

	// Dual-write invariant: no orphaned record may survive a failed enqueue.
	assert.Zero(t, repo.count())
	assert.Equal(t, 3, queue.attempts)
}

func TestCreateAbsorbsTransientEnqueueFailure(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{failFirst: 2}
	c := newCoordinator(repo, queue)

	job, err := c.Create(context.Background(), "sendEmail", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, queue.attempts)
	require.Len(t, queue.enqueued(), 1)

	_, err = repo.GetByID(context.Background(), job.ID)
	assert.NoError(t, err)
}

func TestCreateEnqueueDeadlineTriggersCompensation(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{blockEnqueue: true}
	c := New(repo, queue, Config{
		EnqueueTimeout:  30 * time.Millisecond,
		EnqueueAttempts: 3,
		EnqueueDelay:    time.Millisecond,
	}, zerolog.Nop())

	start := time.Now()
	_, err := c.Create(context.Background(), "sendEmail", nil)
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, repo.count())
}

func TestRetryFailedJob(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)
	seeded := seedFailedJob(t, repo)

	job, err := c.Retry(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.FailedAt)
	assert.Equal(t, seeded.CreatedAt, job.CreatedAt)

	stored, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, stored.Status)
	assert.Nil(t, stored.Result)
	assert.Nil(t, stored.FailedAt)

	entries := queue.enqueued()
	require.Len(t, entries, 1)
	assert.Equal(t, seeded.ID, entries[0].ID)
	assert.Equal(t, seeded.Name, entries[0].Name)
}

func TestRetryRejectsNonFailedJob(t *testing.T) {
	for _, status := range []domain.JobStatus{domain.JobStatusActive, domain.JobStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			repo := newFakeRepo()
			queue := &fakeQueue{}
			c := newCoordinator(repo, queue)

			job := domain.Job{
				ID:        "22222222-2222-2222-2222-222222222222",
				Name:      "sleep",
				Payload:   json.RawMessage(`{}`),
				Status:    status,
				CreatedAt: time.Now().UTC(),
			}
			repo.jobs[job.ID] = job

			_, err := c.Retry(context.Background(), job.ID)
			require.ErrorIs(t, err, domain.ErrStateConflict)

			stored, err := repo.GetByID(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.Empty(t, queue.enqueued())
		})
	}
}

func TestRetryNotFound(t *testing.T) {
	c := newCoordinator(newFakeRepo(), &fakeQueue{})
	_, err := c.Retry(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetryQueueUnavailableLeavesJobFailed(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{enqueueErr: errors.New("connection refused")}
	c := newCoordinator(repo, queue)
	seeded := seedFailedJob(t, repo)

	_, err := c.Retry(context.Background(), seeded.ID)
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)

	stored, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.NotNil(t, stored.FailedAt)
}

func TestDeleteReturnsPriorRecord(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)
	seeded := seedFailedJob(t, repo)

	job, err := c.Delete(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, job.ID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)

	assert.Equal(t, []string{seeded.ID}, queue.removed)
	assert.Zero(t, repo.count())
}

func TestDeleteNotFound(t *testing.T) {
	c := newCoordinator(newFakeRepo(), &fakeQueue{})
	_, err := c.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteProceedsWhenQueueRemovalFails(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{removeErr: errors.New("redis down")}
	c := newCoordinator(repo, queue)
	seeded := seedFailedJob(t, repo)

	job, err := c.Delete(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, job.ID)
	assert.Zero(t, repo.count())
}

func TestConcurrentCreatesProduceDistinctJobs(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	c := newCoordinator(repo, queue)

	const n = 25
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := c.Create(context.Background(), "sleep", nil)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate job ID %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, repo.count())
	assert.Len(t, queue.enqueued(), n)
}
