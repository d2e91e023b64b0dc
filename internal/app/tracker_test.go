package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bulk-sms-dispatch/internal/adapters/jobstore/memory"
	"bulk-sms-dispatch/internal/domain"
)

func successBatch(n int) []domain.SendOutcome {
	out := make([]domain.SendOutcome, n)
	for i := range out {
		out[i] = domain.SendOutcome{Recipient: "905551112233", Success: true, ProviderMessageID: "1"}
	}
	return out
}

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	job, err := tr.CreateJob(ctx, 100, 5)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != domain.JobPending || job.Completed != 0 {
		t.Fatalf("new job = %+v, want pending with zero counters", job)
	}
	if job.ID == "" {
		t.Fatal("job id is empty")
	}

	if err := tr.RecordProgress(ctx, job.ID, successBatch(20)); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}

	got, err := tr.GetProgress(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if got.Status != domain.JobProcessing {
		t.Errorf("status = %s, want processing after first batch", got.Status)
	}
	if got.Completed != 20 || got.SuccessCount != 20 || got.CurrentBatch != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.Percentage != 20 {
		t.Errorf("percentage = %d, want 20", got.Percentage)
	}

	// Mixed batch advances fail counters too.
	batch := successBatch(19)
	batch = append(batch, domain.SendOutcome{Recipient: "905551112234", ErrorReason: domain.ReasonGatewayRejected})
	if err := tr.RecordProgress(ctx, job.ID, batch); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}

	got, _ = tr.GetProgress(ctx, job.ID)
	if got.Completed != 40 || got.SuccessCount != 39 || got.FailCount != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.EstimatedRemaining <= 0 {
		t.Errorf("estimated remaining = %v, want positive mid-flight", got.EstimatedRemaining)
	}
}

func TestTracker_FinalizeCompletedDespitePartialFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	job, _ := tr.CreateJob(ctx, 10, 1)

	batch := successBatch(7)
	for i := 0; i < 3; i++ {
		batch = append(batch, domain.SendOutcome{Recipient: "905551112234", ErrorReason: domain.ReasonGatewayRejected})
	}
	_ = tr.RecordProgress(ctx, job.ID, batch)

	if err := tr.Finalize(ctx, job.ID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, want completed (partial failure is still completed)", got.Status)
	}
	if got.EstimatedRemaining != 0 {
		t.Errorf("estimated remaining = %v, want 0 at terminal", got.EstimatedRemaining)
	}
}

func TestTracker_FinalizeFailedWhenUnaccounted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	job, _ := tr.CreateJob(ctx, 10, 1)
	_ = tr.RecordProgress(ctx, job.ID, successBatch(4))

	if err := tr.Finalize(ctx, job.ID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s, want failed when recipients are unaccounted", got.Status)
	}
}

func TestTracker_TerminalStateIsFinal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	job, _ := tr.CreateJob(ctx, 5, 1)
	_ = tr.RecordProgress(ctx, job.ID, successBatch(5))
	_ = tr.Finalize(ctx, job.ID)

	// Late reports and repeat finalizes are dropped.
	_ = tr.RecordProgress(ctx, job.ID, successBatch(3))
	_ = tr.Finalize(ctx, job.ID)

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.Status != domain.JobCompleted || got.Completed != 5 || got.SuccessCount != 5 {
		t.Fatalf("job mutated after terminal state: %+v", got)
	}
}

func TestTracker_CompletedNeverExceedsTotal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	job, _ := tr.CreateJob(ctx, 5, 1)
	_ = tr.RecordProgress(ctx, job.ID, successBatch(4))
	_ = tr.RecordProgress(ctx, job.ID, successBatch(4))

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.Completed != 5 {
		t.Fatalf("completed = %d, want clamped to total 5", got.Completed)
	}
	if got.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", got.Percentage)
	}
}

func TestTracker_BatchCountersStayConsistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	// A bulk-path job covers all recipients in one batch, far fewer than
	// the planned fallback count; pollers must not see 1 of 75.
	job, _ := tr.CreateJob(ctx, 1500, 75)
	_ = tr.RecordProgress(ctx, job.ID, successBatch(1500))
	_ = tr.Finalize(ctx, job.ID)

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.CurrentBatch != 1 || got.TotalBatches != 1 {
		t.Fatalf("batches = %d/%d, want 1/1 after a single-batch job", got.CurrentBatch, got.TotalBatches)
	}

	// A pre-failed batch adds one beyond the plan; the total keeps up so
	// current never exceeds it.
	job, _ = tr.CreateJob(ctx, 10, 1)
	_ = tr.RecordProgress(ctx, job.ID, successBatch(2)) // pre-failed invalid recipients
	_ = tr.RecordProgress(ctx, job.ID, successBatch(8))

	got, _ = tr.GetProgress(ctx, job.ID)
	if got.CurrentBatch != 2 || got.TotalBatches != 2 {
		t.Fatalf("batches = %d/%d, want 2/2 when a batch exceeds the plan", got.CurrentBatch, got.TotalBatches)
	}
	if got.CurrentBatch > got.TotalBatches {
		t.Fatalf("current batch %d exceeds total %d", got.CurrentBatch, got.TotalBatches)
	}
}

func TestTracker_ConcurrentWindowsLoseNoUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTracker(memory.New(), testLogger())

	const windows = 40
	const perWindow = 25
	job, _ := tr.CreateJob(ctx, windows*perWindow, windows)

	var wg sync.WaitGroup
	for i := 0; i < windows; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.RecordProgress(ctx, job.ID, successBatch(perWindow)); err != nil {
				t.Errorf("RecordProgress: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := tr.GetProgress(ctx, job.ID)
	if got.Completed != windows*perWindow {
		t.Fatalf("completed = %d, want %d", got.Completed, windows*perWindow)
	}
	if got.SuccessCount != windows*perWindow {
		t.Fatalf("success = %d, want %d", got.SuccessCount, windows*perWindow)
	}
	if got.CurrentBatch != windows {
		t.Fatalf("current batch = %d, want %d", got.CurrentBatch, windows)
	}
}

func TestTracker_UnknownJob(t *testing.T) {
	t.Parallel()

	tr := NewTracker(memory.New(), testLogger())

	_, err := tr.GetProgress(context.Background(), "gone")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("GetProgress error = %v, want ErrJobNotFound", err)
	}
}

func TestEstimateRemaining(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-10 * time.Second)

	// Half done after 10s: roughly 10s left.
	got := estimateRemaining(created, 50, 100)
	if got < 9*time.Second || got > 11*time.Second {
		t.Errorf("estimate = %v, want ~10s", got)
	}

	if estimateRemaining(created, 0, 100) != 0 {
		t.Error("estimate with no progress should be 0")
	}
	if estimateRemaining(created, 100, 100) != 0 {
		t.Error("estimate when done should be 0")
	}
}
