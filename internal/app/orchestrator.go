package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bulk-sms-dispatch/internal/domain"
	"bulk-sms-dispatch/internal/phone"
	"bulk-sms-dispatch/internal/ports"
)

// ProgressSink receives the outcomes of each processed batch. Supplied by
// the job tracker wiring; the orchestrator knows nothing about job identity.
type ProgressSink func(batch []domain.SendOutcome)

// Orchestrator turns a dispatch request into gateway calls: one bulk
// attempt, and on any failure or ambiguity a full per-recipient fallback in
// bounded concurrency windows.
type Orchestrator struct {
	gateway ports.Gateway
	log     *slog.Logger
	window  int
	pause   time.Duration
}

// NewOrchestrator wires an Orchestrator. Zero window or pause get the
// defaults (20 concurrent sends, 200ms between windows).
func NewOrchestrator(gateway ports.Gateway, window int, pause time.Duration, log *slog.Logger) *Orchestrator {
	if window <= 0 {
		window = 20
	}
	if pause <= 0 {
		pause = 200 * time.Millisecond
	}
	return &Orchestrator{gateway: gateway, log: log, window: window, pause: pause}
}

// Window returns the fallback concurrency window size.
func (o *Orchestrator) Window() int {
	return o.window
}

// target pairs a normalized number with its position in the input, so
// outcomes land back in request order.
type target struct {
	idx   int
	phone domain.PhoneNumber
}

// Dispatch produces exactly one outcome per recipient, in input order.
// Recipients that fail normalization pre-fail without a gateway call. The
// sink, when non-nil, fires once for the pre-failed batch, once for a
// successful bulk attempt, and once per window on the fallback path.
func (o *Orchestrator) Dispatch(ctx context.Context, req domain.DispatchRequest, sink ProgressSink) []domain.SendOutcome {
	outcomes := make([]domain.SendOutcome, len(req.Recipients))

	var targets []target
	var prefailed []domain.SendOutcome
	for i, raw := range req.Recipients {
		p, err := phone.Normalize(raw)
		if err != nil {
			outcomes[i] = domain.SendOutcome{
				Recipient:   domain.PhoneNumber(raw),
				ErrorReason: fmt.Sprintf("%s: %v", domain.ReasonInvalidPhone, err),
			}
			prefailed = append(prefailed, outcomes[i])
			continue
		}
		targets = append(targets, target{idx: i, phone: p})
	}

	if len(prefailed) > 0 {
		o.log.Warn("recipients rejected by normalizer",
			"rejected", len(prefailed), "total", len(req.Recipients))
		emit(sink, prefailed)
	}

	if len(targets) == 0 {
		return outcomes
	}

	if o.bulkAttempt(ctx, targets, req.Message, outcomes) {
		batch := make([]domain.SendOutcome, 0, len(targets))
		for _, t := range targets {
			batch = append(batch, outcomes[t.idx])
		}
		emit(sink, batch)
		return outcomes
	}

	o.fallback(ctx, targets, req.Message, outcomes, sink)
	return outcomes
}

// bulkAttempt tries the gateway's native multi-recipient call. It is
// all-or-nothing: a partially successful bulk response cannot be attributed
// per recipient, so any failure discards the attempt entirely.
func (o *Orchestrator) bulkAttempt(ctx context.Context, targets []target, message string, outcomes []domain.SendOutcome) bool {
	phones := make([]domain.PhoneNumber, 0, len(targets))
	for _, t := range targets {
		phones = append(phones, t.phone)
	}

	res, err := o.gateway.SendBulk(ctx, phones, message)
	if err != nil {
		o.log.Warn("bulk attempt failed, falling back to individual sends",
			"recipients", len(targets), "err", err)
		return false
	}
	if len(res.MessageIDs) == 0 {
		o.log.Warn("bulk attempt returned no message ids, falling back",
			"recipients", len(targets))
		return false
	}

	// Gateway quirk: some bulk responses return a single batch identifier
	// rather than per-recipient ids. Recipients without an explicit id
	// share the first one, which makes their later delivery-report
	// lookups approximate.
	first := res.MessageIDs[0]
	for i, t := range targets {
		id := first
		if i < len(res.MessageIDs) {
			id = res.MessageIDs[i]
		}
		outcomes[t.idx] = domain.SendOutcome{
			Recipient:         t.phone,
			Success:           true,
			ProviderMessageID: id,
		}
	}

	o.log.Info("bulk attempt succeeded", "recipients", len(targets), "ids", len(res.MessageIDs))
	return true
}

// fallback processes every recipient through individual sends, window
// goroutines at a time with a pause between windows to respect upstream
// rate limits. A failed send never aborts its siblings.
func (o *Orchestrator) fallback(ctx context.Context, targets []target, message string, outcomes []domain.SendOutcome, sink ProgressSink) {
	for start := 0; start < len(targets); start += o.window {
		end := min(start+o.window, len(targets))
		window := targets[start:end]

		var wg sync.WaitGroup
		for _, t := range window {
			wg.Add(1)
			go func(t target) {
				defer wg.Done()
				outcomes[t.idx] = o.gateway.SendOne(ctx, t.phone, message)
			}(t)
		}
		wg.Wait()

		batch := make([]domain.SendOutcome, 0, len(window))
		for _, t := range window {
			batch = append(batch, outcomes[t.idx])
		}
		emit(sink, batch)

		if end < len(targets) {
			time.Sleep(o.pause)
		}
	}
}

func emit(sink ProgressSink, batch []domain.SendOutcome) {
	if sink != nil && len(batch) > 0 {
		sink(batch)
	}
}
