package ports

import (
	"context"

	"bulk-sms-dispatch/internal/domain"
)

// BulkResult is the gateway's answer to a multi-recipient send. The gateway
// sometimes returns a single batch identifier instead of one per recipient,
// so MessageIDs may be shorter than the recipient list.
type BulkResult struct {
	MessageIDs []string
}

// Gateway abstracts the external SMS provider.
type Gateway interface {
	// SendOne submits a single message. Gateway-reported failures become
	// unsuccessful outcomes, never errors; only the outcome's reason
	// distinguishes transport trouble from a gateway rejection.
	SendOne(ctx context.Context, to domain.PhoneNumber, message string) domain.SendOutcome

	// SendBulk submits one message to all recipients in a single call.
	// Any failure or ambiguous response is returned as an error so the
	// caller can fall back to individual sends.
	SendBulk(ctx context.Context, to []domain.PhoneNumber, message string) (BulkResult, error)

	// CheckStatus looks up the delivery state for a previously sent
	// message. Best effort: degrades to DeliveryPendingReport rather
	// than returning an error.
	CheckStatus(ctx context.Context, providerMessageID string, to domain.PhoneNumber) domain.DeliveryState
}
