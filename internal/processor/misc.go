package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tamecalm/job-processor/internal/domain"
)

type sleepPayload struct {
	Seconds float64 `json:"seconds"`
}

// Sleep waits for the requested duration, respecting cancellation. Useful
// for observing worker concurrency and queue redelivery behaviour.
func Sleep(ctx context.Context, entry domain.QueueEntry) (string, error) {
	var p sleepPayload
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return "", fmt.Errorf("decode sleep payload: %w", err)
	}
	if p.Seconds <= 0 {
		p.Seconds = 1
	}
	d := time.Duration(p.Seconds * float64(time.Second))

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(d):
	}
	return fmt.Sprintf("slept %s", d), nil
}

// AlwaysFail returns an error on every delivery. It exercises the failure
// path end to end: failed status, queue redelivery with backoff, and the
// explicit retry endpoint.
func AlwaysFail(ctx context.Context, entry domain.QueueEntry) (string, error) {
	return "", fmt.Errorf("alwaysFail: simulated failure (delivery %d)", entry.Attempt)
}
