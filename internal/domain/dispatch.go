package domain

import (
	"errors"
	"fmt"
	"time"
)

// PhoneNumber is a recipient number in the one canonical shape the gateway
// accepts: 12 digits, country code "90" followed by a 10-digit national
// number starting with "5". Produced only by the normalizer.
type PhoneNumber string

// DispatchRequest is a user-submitted batch: one message, many recipients.
// Immutable once accepted.
type DispatchRequest struct {
	SenderID   string
	Message    string
	Recipients []string // raw user input, normalized during orchestration
}

// SendOutcome is the per-recipient result of a dispatch attempt. Exactly one
// outcome is produced per recipient, failed normalization included.
type SendOutcome struct {
	Recipient         PhoneNumber
	Success           bool
	ProviderMessageID string
	ErrorReason       string
}

// Outcome reason classes. Billing parses these prefixes to decide credit
// reversal, so they must stay stable.
const (
	ReasonInvalidPhone       = "invalid_phone_format"
	ReasonGatewayRejected    = "gateway_rejected"
	ReasonGatewayUnreachable = "gateway_unreachable"
)

// JobStatus is the lifecycle state of an asynchronous dispatch job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"    // Created, no outcomes recorded yet
	JobProcessing JobStatus = "processing" // At least one batch recorded
	JobCompleted  JobStatus = "completed"  // All recipients accounted for
	JobFailed     JobStatus = "failed"     // Orchestration aborted mid-flight
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DispatchJob tracks progress of a large dispatch. Counters are monotonically
// non-decreasing until a terminal status.
type DispatchJob struct {
	ID                 string
	Total              int
	Completed          int
	SuccessCount       int
	FailCount          int
	CurrentBatch       int
	TotalBatches       int
	Percentage         int
	Status             JobStatus
	CreatedAt          time.Time
	EstimatedRemaining time.Duration
}

// NewDispatchJob creates a pending job with zeroed counters.
func NewDispatchJob(id string, total, totalBatches int) DispatchJob {
	return DispatchJob{
		ID:           id,
		Total:        total,
		TotalBatches: totalBatches,
		Status:       JobPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// DeliveryState is the normalized result of a best-effort delivery report
// lookup against the gateway.
type DeliveryState string

const (
	DeliveryQueued        DeliveryState = "queued"
	DeliveryDelivered     DeliveryState = "delivered"
	DeliveryUndelivered   DeliveryState = "undelivered"
	DeliveryPendingReport DeliveryState = "pending_report"
	DeliveryTimedOut      DeliveryState = "timed_out"
)

// Domain errors
var (
	ErrJobNotFound        = errors.New("dispatch job not found")
	ErrEmptyRecipients    = errors.New("at least one recipient is required")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrInvalidPhoneFormat = errors.New("invalid phone format")
)

// InvalidPhoneError carries the original input and its digit count so a
// rejected recipient can be diagnosed from the outcome alone.
type InvalidPhoneError struct {
	Raw    string
	Digits int
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone format: %q (%d digits)", e.Raw, e.Digits)
}

func (e *InvalidPhoneError) Unwrap() error {
	return ErrInvalidPhoneFormat
}
