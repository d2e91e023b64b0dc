// Package app orchestrates bulk message dispatch: gateway attempts,
// fallback concurrency, and asynchronous job tracking.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"bulk-sms-dispatch/internal/domain"
	"bulk-sms-dispatch/internal/phone"
	"bulk-sms-dispatch/internal/ports"
)

// Options tunes the dispatch service. Zero fields get the production
// defaults.
type Options struct {
	AsyncThreshold     int           // recipient count at which dispatch goes async
	MaxMessageLen      int           // single-segment limit, in runes
	Window             int           // fallback concurrency window
	WindowPause        time.Duration // pause between fallback windows
	PerRecipientBudget time.Duration // sync wait budget per recipient
	SyncTimeoutFloor   time.Duration // minimum sync wait budget
}

func (o Options) withDefaults() Options {
	if o.AsyncThreshold <= 0 {
		o.AsyncThreshold = 1000
	}
	if o.MaxMessageLen <= 0 {
		o.MaxMessageLen = 180
	}
	if o.Window <= 0 {
		o.Window = 20
	}
	if o.WindowPause <= 0 {
		o.WindowPause = 200 * time.Millisecond
	}
	if o.PerRecipientBudget <= 0 {
		o.PerRecipientBudget = 250 * time.Millisecond
	}
	if o.SyncTimeoutFloor <= 0 {
		o.SyncTimeoutFloor = 10 * time.Second
	}
	return o
}

// DispatchService is the externally visible surface: submit a dispatch, poll
// its progress.
type DispatchService struct {
	gateway      ports.Gateway
	orchestrator *Orchestrator
	tracker      *Tracker
	billing      ports.OutcomePublisher // nil: relay disabled
	log          *slog.Logger
	opts         Options
}

// NewDispatchService wires the service with its dependencies. billing may be
// nil when the outcome relay is not configured.
func NewDispatchService(
	gateway ports.Gateway,
	store ports.JobStore,
	billing ports.OutcomePublisher,
	log *slog.Logger,
	opts Options,
) *DispatchService {
	opts = opts.withDefaults()
	return &DispatchService{
		gateway:      gateway,
		orchestrator: NewOrchestrator(gateway, opts.Window, opts.WindowPause, log),
		tracker:      NewTracker(store, log),
		billing:      billing,
		log:          log,
		opts:         opts,
	}
}

// SubmitResult is the answer to a dispatch submission: outcomes for the
// synchronous path, a job id for the asynchronous one.
type SubmitResult struct {
	Outcomes     []domain.SendOutcome
	SuccessCount int
	FailCount    int
	JobID        string
}

// Submit accepts a dispatch request. Small batches are processed while the
// caller waits, bounded by a budget scaled to the batch size; if the budget
// runs out the request is promoted to job tracking and the caller gets a job
// id instead, while the in-flight sends run to completion. Batches at or
// above the async threshold skip the wait entirely.
func (s *DispatchService) Submit(ctx context.Context, req domain.DispatchRequest) (SubmitResult, error) {
	if len(req.Recipients) == 0 {
		return SubmitResult{}, domain.ErrEmptyRecipients
	}
	if utf8.RuneCountInString(req.Message) > s.opts.MaxMessageLen {
		return SubmitResult{}, domain.ErrMessageTooLong
	}

	if len(req.Recipients) >= s.opts.AsyncThreshold {
		return s.submitAsync(ctx, req)
	}
	return s.submitSync(ctx, req)
}

// Progress returns a snapshot of an asynchronous job.
func (s *DispatchService) Progress(ctx context.Context, jobID string) (domain.DispatchJob, error) {
	return s.tracker.GetProgress(ctx, jobID)
}

// DeliveryStatus asks the gateway for the delivery state of a previously
// sent message. Best effort: the gateway degrades to pending_report rather
// than failing.
func (s *DispatchService) DeliveryStatus(ctx context.Context, providerMessageID, recipient string) (domain.DeliveryState, error) {
	p, err := phone.Normalize(recipient)
	if err != nil {
		return "", err
	}
	return s.gateway.CheckStatus(ctx, providerMessageID, p), nil
}

func (s *DispatchService) submitAsync(ctx context.Context, req domain.DispatchRequest) (SubmitResult, error) {
	job, err := s.tracker.CreateJob(ctx, len(req.Recipients), s.totalBatches(len(req.Recipients)))
	if err != nil {
		// The one fatal path: a dispatch that cannot be tracked must
		// not be started.
		return SubmitResult{}, fmt.Errorf("create dispatch job: %w", err)
	}

	go s.runJob(job.ID, req)

	s.log.Info("dispatch accepted for background processing",
		"job_id", job.ID, "recipients", len(req.Recipients), "sender", req.SenderID)
	return SubmitResult{JobID: job.ID}, nil
}

// runJob drives a tracked dispatch on a detached context: caller timeouts
// never cancel sends already in flight.
func (s *DispatchService) runJob(jobID string, req domain.DispatchRequest) {
	ctx := context.Background()

	sink := func(batch []domain.SendOutcome) {
		if err := s.tracker.RecordProgress(ctx, jobID, batch); err != nil {
			s.log.Error("record progress failed", "job_id", jobID, "err", err)
		}
	}

	outcomes := s.orchestrator.Dispatch(ctx, req, sink)

	if err := s.tracker.Finalize(ctx, jobID); err != nil {
		s.log.Error("finalize job failed", "job_id", jobID, "err", err)
	}

	s.relayOutcomes(ctx, req.SenderID, outcomes)
}

func (s *DispatchService) submitSync(ctx context.Context, req domain.DispatchRequest) (SubmitResult, error) {
	promo := &promotion{}
	done := make(chan []domain.SendOutcome, 1)

	go func() {
		dispatchCtx := context.WithoutCancel(ctx)
		outcomes := s.orchestrator.Dispatch(dispatchCtx, req, promo.sink)
		promo.finish(dispatchCtx, s.tracker)
		s.relayOutcomes(dispatchCtx, req.SenderID, outcomes)
		done <- outcomes
	}()

	budget := s.opts.PerRecipientBudget * time.Duration(len(req.Recipients))
	if budget < s.opts.SyncTimeoutFloor {
		budget = s.opts.SyncTimeoutFloor
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case outcomes := <-done:
		res := SubmitResult{Outcomes: outcomes}
		for _, o := range outcomes {
			if o.Success {
				res.SuccessCount++
			} else {
				res.FailCount++
			}
		}
		return res, nil

	case <-timer.C:
		// The gateway is slower than the budget allows. Promote the
		// in-flight dispatch to a tracked job and hand back its id;
		// sends already issued keep running.
		job, err := promo.promote(ctx, s.tracker,
			len(req.Recipients), s.totalBatches(len(req.Recipients)))
		if err != nil {
			return SubmitResult{}, fmt.Errorf("promote slow dispatch to job: %w", err)
		}
		s.log.Warn("sync dispatch exceeded budget, promoted to job",
			"job_id", job.ID, "recipients", len(req.Recipients), "budget", budget)
		return SubmitResult{JobID: job.ID}, nil
	}
}

func (s *DispatchService) totalBatches(recipients int) int {
	w := s.orchestrator.Window()
	return (recipients + w - 1) / w
}

func (s *DispatchService) relayOutcomes(ctx context.Context, senderID string, outcomes []domain.SendOutcome) {
	if s.billing == nil {
		return
	}
	// Best effort: billing reconciles from its own queue later; a relay
	// failure must not fail the dispatch.
	if err := s.billing.PublishOutcomes(ctx, senderID, outcomes); err != nil {
		s.log.Error("billing outcome relay failed", "sender", senderID, "err", err)
	}
}

// promotion buffers progress batches for a synchronous dispatch so the
// request can be promoted to a tracked job if the caller's wait budget runs
// out. Before promotion the batches just accumulate; after it they replay
// into the tracker and subsequent batches flow straight through.
type promotion struct {
	mu       sync.Mutex
	tracker  *Tracker
	jobID    string
	buffered [][]domain.SendOutcome
	finished bool
}

func (p *promotion) sink(batch []domain.SendOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jobID == "" {
		p.buffered = append(p.buffered, batch)
		return
	}
	_ = p.tracker.RecordProgress(context.Background(), p.jobID, batch)
}

func (p *promotion) promote(ctx context.Context, tracker *Tracker, total, totalBatches int) (domain.DispatchJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, err := tracker.CreateJob(ctx, total, totalBatches)
	if err != nil {
		return domain.DispatchJob{}, err
	}

	p.tracker = tracker
	p.jobID = job.ID
	for _, batch := range p.buffered {
		_ = tracker.RecordProgress(ctx, job.ID, batch)
	}
	p.buffered = nil

	// The dispatch may have finished between the timer firing and the
	// promotion; close the job out so pollers see a terminal state.
	if p.finished {
		_ = tracker.Finalize(ctx, job.ID)
	}
	return job, nil
}

func (p *promotion) finish(ctx context.Context, tracker *Tracker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finished = true
	if p.jobID != "" {
		_ = tracker.Finalize(ctx, p.jobID)
	}
}
