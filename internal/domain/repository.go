package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job records.
//
// MarkCompleted and MarkFailed are idempotent: applying the same terminal
// outcome twice leaves the record unchanged, and the first terminal
// timestamp is preserved. MarkFailed never overwrites a completed job;
// MarkCompleted may overwrite a failed one, reflecting a queue-level
// redelivery that later succeeded.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	// List returns jobs ordered by creation time, most recent first.
	// An empty status matches all states.
	List(ctx context.Context, status JobStatus, limit int) ([]Job, error)
	// Delete removes the record and returns it as it existed beforehand.
	Delete(ctx context.Context, id string) (*Job, error)
	MarkCompleted(ctx context.Context, id, result string, at time.Time) error
	MarkFailed(ctx context.Context, id, result string, at time.Time) error
	// MarkActive transitions a failed job back to active, clearing result
	// and failed_at. Returns ErrStateConflict if the job is not failed.
	MarkActive(ctx context.Context, id string) error
}

// Queue is the work queue client consumed by the coordinator and the
// worker pool. The queue engine itself is external; it owns delivery,
// per-entry retry with backoff, and stall detection.
type Queue interface {
	// Enqueue submits an entry keyed by its job ID. The entry is accepted
	// once Enqueue returns nil.
	Enqueue(ctx context.Context, entry QueueEntry) error
	// Receive blocks until an entry is ready for delivery or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
	// Remove drops any still-pending entry for id. Absence is not an
	// error; the entry may already have been consumed.
	Remove(ctx context.Context, id string) error
}

// Delivery is a single dequeued entry awaiting acknowledgement. Exactly one
// of Ack or Fail must be called per delivery.
type Delivery interface {
	Entry() QueueEntry
	// Ack marks the entry as consumed; it will not be delivered again.
	Ack(ctx context.Context) error
	// Fail hands the entry back to the queue's retry policy. The queue
	// redelivers it with backoff until its delivery budget is exhausted.
	Fail(ctx context.Context) error
}
