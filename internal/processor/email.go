// Package processor holds the processors shipped with the worker binary.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamecalm/job-processor/internal/domain"
)

type emailPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// SendEmail simulates delivering an email described by the entry payload.
// There is no real SMTP hop; the processor validates the payload, reports
// progress and returns a delivery summary.
func SendEmail(ctx context.Context, entry domain.QueueEntry) (string, error) {
	var p emailPayload
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return "", fmt.Errorf("decode email payload: %w", err)
	}
	if strings.TrimSpace(p.Recipient) == "" {
		return "", fmt.Errorf("email payload missing recipient")
	}

	logger := zerolog.Ctx(ctx)
	logger.Info().Str("recipient", p.Recipient).Msg("sendEmail: composing message")

	// Simulated transport latency, cancellable like a real SMTP dial.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}

	logger.Info().Str("recipient", p.Recipient).Msg("sendEmail: message handed to transport")
	return fmt.Sprintf("email sent to %s (subject %q)", p.Recipient, p.Subject), nil
}
