package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bulk-sms-dispatch/internal/domain"
	"bulk-sms-dispatch/internal/ports"
)

// Tracker owns dispatch job lifecycle: pending -> processing -> {completed,
// failed}. Terminal states are final. Counter updates for one job serialize
// through the store's per-job write lock.
type Tracker struct {
	store ports.JobStore
	log   *slog.Logger
}

// NewTracker wires a Tracker to its store.
func NewTracker(store ports.JobStore, log *slog.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// CreateJob registers a pending job and returns it immediately, so a caller
// can start polling before the first outcome arrives.
func (t *Tracker) CreateJob(ctx context.Context, total, totalBatches int) (domain.DispatchJob, error) {
	job := domain.NewDispatchJob(uuid.NewString(), total, totalBatches)
	if err := t.store.Create(ctx, job); err != nil {
		return domain.DispatchJob{}, fmt.Errorf("create job: %w", err)
	}

	t.log.Info("dispatch job created", "job_id", job.ID, "total", total)
	return job, nil
}

// RecordProgress folds a batch of outcomes into the job's counters. The
// first call moves the job from pending to processing. Reports arriving
// after a terminal state are dropped.
func (t *Tracker) RecordProgress(ctx context.Context, jobID string, batch []domain.SendOutcome) error {
	return t.store.Update(ctx, jobID, func(j *domain.DispatchJob) error {
		if j.Status.Terminal() {
			return nil
		}
		if j.Status == domain.JobPending {
			j.Status = domain.JobProcessing
		}

		for _, o := range batch {
			if o.Success {
				j.SuccessCount++
			} else {
				j.FailCount++
			}
		}
		j.Completed += len(batch)
		if j.Completed > j.Total {
			j.Completed = j.Total
		}
		j.CurrentBatch++
		// The planned batch count assumes the fallback path; a pre-failed
		// batch can push past it, so the plan yields to what actually ran.
		if j.CurrentBatch > j.TotalBatches {
			j.TotalBatches = j.CurrentBatch
		}

		if j.Total > 0 {
			j.Percentage = j.Completed * 100 / j.Total
		}
		j.EstimatedRemaining = estimateRemaining(j.CreatedAt, j.Completed, j.Total)
		return nil
	})
}

// Finalize moves the job to its terminal state: completed when every
// recipient is accounted for (partial send failures included), failed only
// when orchestration aborted with recipients missing.
func (t *Tracker) Finalize(ctx context.Context, jobID string) error {
	return t.store.Update(ctx, jobID, func(j *domain.DispatchJob) error {
		if j.Status.Terminal() {
			return nil
		}
		if j.Completed >= j.Total {
			j.Status = domain.JobCompleted
		} else {
			j.Status = domain.JobFailed
		}
		// A bulk-path job finishes in fewer batches than planned; settle
		// the total on the count that actually ran.
		j.TotalBatches = j.CurrentBatch
		j.EstimatedRemaining = 0
		t.log.Info("dispatch job finalized",
			"job_id", j.ID, "status", j.Status,
			"success", j.SuccessCount, "fail", j.FailCount)
		return nil
	})
}

// GetProgress returns a read-only snapshot of the job. Unknown ids yield
// domain.ErrJobNotFound; pruned jobs look the same, so callers treat that
// as "no longer tracked" rather than a hard error.
func (t *Tracker) GetProgress(ctx context.Context, jobID string) (domain.DispatchJob, error) {
	return t.store.Get(ctx, jobID)
}

// estimateRemaining projects time left linearly from elapsed time and the
// remaining fraction. A progress hint, not a promise.
func estimateRemaining(createdAt time.Time, completed, total int) time.Duration {
	if completed <= 0 || completed >= total {
		return 0
	}
	elapsed := time.Since(createdAt)
	return elapsed * time.Duration(total-completed) / time.Duration(completed)
}
