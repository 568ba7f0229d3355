package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced job ID has no record.
	ErrNotFound = errors.New("job not found")

	// ErrStateConflict is returned when an operation is attempted against a
	// job whose current status does not allow it (e.g. retrying a job that
	// has not failed).
	ErrStateConflict = errors.New("job state conflict")

	// ErrQueueUnavailable is returned when the work queue did not accept an
	// entry within the configured deadline and attempts.
	ErrQueueUnavailable = errors.New("work queue unavailable")

	// ErrUnknownJobType is returned when no processor is registered for a
	// job's name.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrDuplicateProcessor is returned when two processors are registered
	// under the same name. Surfaced at startup, never at dispatch time.
	ErrDuplicateProcessor = errors.New("duplicate processor registration")

	// ErrInvalidJob is returned when a job submission fails validation
	// before reaching the coordinator.
	ErrInvalidJob = errors.New("invalid job")
)
