package ports

import (
	"context"

	"bulk-sms-dispatch/internal/domain"
)

// OutcomePublisher relays per-recipient outcomes to the billing system,
// which uses the error reason to decide credit reversal.
type OutcomePublisher interface {
	PublishOutcomes(ctx context.Context, senderID string, outcomes []domain.SendOutcome) error
}
