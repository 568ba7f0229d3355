package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is a known lifecycle state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusActive, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. A failed job can still
// re-enter active via an explicit retry; a completed job cannot.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a unit of asynchronous work tracked by the record store. Status,
// Result and the terminal timestamps are mutated only by the worker pool;
// the coordinator owns creation, retry and deletion.
type Job struct {
	ID          string
	Name        string
	Payload     json.RawMessage
	Status      JobStatus
	Result      *string
	CreatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// QueueEntry is the work queue's view of a dispatched job. It shares the
// job's ID and carries everything a worker needs to execute it. Attempt is
// the delivery count maintained by the queue, starting at 1 for the first
// delivery.
type QueueEntry struct {
	ID      string
	Name    string
	Payload json.RawMessage
	Attempt int
}
