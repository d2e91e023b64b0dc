package ports

import (
	"context"

	"bulk-sms-dispatch/internal/domain"
)

// JobStore persists dispatch jobs. Jobs may be pruned after completion, so
// Get returning domain.ErrJobNotFound is an expected condition for callers.
type JobStore interface {
	// Create persists a new job.
	Create(ctx context.Context, job domain.DispatchJob) error

	// Get returns a snapshot of the job, or domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (domain.DispatchJob, error)

	// Update applies fn to the stored job under a per-job write lock, so
	// concurrent progress reports for the same job never lose updates.
	Update(ctx context.Context, id string, fn func(*domain.DispatchJob) error) error
}
