package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bulk-sms-dispatch/internal/domain"
	"bulk-sms-dispatch/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway scripts gateway behavior for orchestrator and service tests.
type fakeGateway struct {
	mu          sync.Mutex
	bulkErr     error
	bulkIDs     []string
	failNumbers map[domain.PhoneNumber]bool
	sendDelay   time.Duration

	bulkCalls   int
	singleCalls []domain.PhoneNumber

	inFlight    int32
	maxInFlight int32
}

func (f *fakeGateway) SendOne(_ context.Context, to domain.PhoneNumber, _ string) domain.SendOutcome {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}

	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}

	f.mu.Lock()
	f.singleCalls = append(f.singleCalls, to)
	failed := f.failNumbers[to]
	n := len(f.singleCalls)
	f.mu.Unlock()

	if failed {
		return domain.SendOutcome{
			Recipient:   to,
			ErrorReason: domain.ReasonGatewayRejected + ": status=\"ERR\" id=0",
		}
	}
	return domain.SendOutcome{
		Recipient:         to,
		Success:           true,
		ProviderMessageID: fmt.Sprintf("single-%d", n),
	}
}

func (f *fakeGateway) SendBulk(_ context.Context, to []domain.PhoneNumber, _ string) (ports.BulkResult, error) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()

	if f.bulkErr != nil {
		return ports.BulkResult{}, f.bulkErr
	}
	ids := f.bulkIDs
	if ids == nil {
		ids = make([]string, 0, len(to))
		for i := range to {
			ids = append(ids, fmt.Sprintf("bulk-%d", i+1))
		}
	}
	return ports.BulkResult{MessageIDs: ids}, nil
}

func (f *fakeGateway) CheckStatus(context.Context, string, domain.PhoneNumber) domain.DeliveryState {
	return domain.DeliveryPendingReport
}

func recipients(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("90555%07d", i))
	}
	return out
}

func TestDispatch_BulkSuccessPerRecipientIDs(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o := NewOrchestrator(gw, 5, time.Millisecond, testLogger())

	req := domain.DispatchRequest{Message: "hi", Recipients: recipients(3)}

	var sinkCalls int
	outcomes := o.Dispatch(context.Background(), req, func([]domain.SendOutcome) { sinkCalls++ })

	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i, out := range outcomes {
		if !out.Success {
			t.Errorf("outcome %d failed: %q", i, out.ErrorReason)
		}
		if out.ProviderMessageID != fmt.Sprintf("bulk-%d", i+1) {
			t.Errorf("outcome %d id = %q", i, out.ProviderMessageID)
		}
	}
	if gw.bulkCalls != 1 || len(gw.singleCalls) != 0 {
		t.Errorf("bulk=%d single=%d, want bulk path only", gw.bulkCalls, len(gw.singleCalls))
	}
	if sinkCalls != 1 {
		t.Errorf("sink calls = %d, want 1 for the bulk path", sinkCalls)
	}
}

func TestDispatch_BulkReusesFirstIDWhenShort(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{bulkIDs: []string{"batch-99"}}
	o := NewOrchestrator(gw, 5, time.Millisecond, testLogger())

	outcomes := o.Dispatch(context.Background(),
		domain.DispatchRequest{Message: "hi", Recipients: recipients(4)}, nil)

	for i, out := range outcomes {
		if !out.Success {
			t.Errorf("outcome %d failed", i)
		}
		if out.ProviderMessageID != "batch-99" {
			t.Errorf("outcome %d id = %q, want batch-99", i, out.ProviderMessageID)
		}
	}
}

func TestDispatch_BulkFailureFallsBack(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{bulkErr: errors.New("connection reset")}
	o := NewOrchestrator(gw, 4, time.Millisecond, testLogger())

	req := domain.DispatchRequest{Message: "hi", Recipients: recipients(10)}

	var batches int
	outcomes := o.Dispatch(context.Background(), req, func([]domain.SendOutcome) { batches++ })

	if len(outcomes) != 10 {
		t.Fatalf("outcomes = %d, want 10", len(outcomes))
	}
	for i, out := range outcomes {
		if !out.Success {
			t.Errorf("outcome %d failed: %q", i, out.ErrorReason)
		}
	}
	// 10 recipients in windows of 4: no recipient sent twice.
	if len(gw.singleCalls) != 10 {
		t.Errorf("single calls = %d, want 10", len(gw.singleCalls))
	}
	seen := map[domain.PhoneNumber]int{}
	for _, p := range gw.singleCalls {
		seen[p]++
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("recipient %s sent %d times", p, n)
		}
	}
	if batches != 3 {
		t.Errorf("sink batches = %d, want 3 windows", batches)
	}
	if gw.maxInFlight > 4 {
		t.Errorf("max in-flight sends = %d, want <= window 4", gw.maxInFlight)
	}
}

func TestDispatch_InvalidRecipientsPreFail(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o := NewOrchestrator(gw, 5, time.Millisecond, testLogger())

	req := domain.DispatchRequest{
		Message:    "hi",
		Recipients: []string{"05551112233", "garbage", "905551112234", "123"},
	}

	outcomes := o.Dispatch(context.Background(), req, nil)
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want one per recipient", len(outcomes))
	}

	if !outcomes[0].Success || outcomes[0].Recipient != "905551112233" {
		t.Errorf("outcome 0 = %+v", outcomes[0])
	}
	if outcomes[1].Success || !strings.HasPrefix(outcomes[1].ErrorReason, domain.ReasonInvalidPhone) {
		t.Errorf("outcome 1 = %+v, want invalid_phone_format", outcomes[1])
	}
	if !outcomes[2].Success {
		t.Errorf("outcome 2 = %+v", outcomes[2])
	}
	if outcomes[3].Success || !strings.HasPrefix(outcomes[3].ErrorReason, domain.ReasonInvalidPhone) {
		t.Errorf("outcome 3 = %+v, want invalid_phone_format", outcomes[3])
	}
}

func TestDispatch_AllInvalidSkipsGateway(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o := NewOrchestrator(gw, 5, time.Millisecond, testLogger())

	var sinkBatch []domain.SendOutcome
	outcomes := o.Dispatch(context.Background(),
		domain.DispatchRequest{Message: "hi", Recipients: []string{"abc", "12"}},
		func(b []domain.SendOutcome) { sinkBatch = append(sinkBatch, b...) })

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if gw.bulkCalls != 0 || len(gw.singleCalls) != 0 {
		t.Errorf("gateway was called for all-invalid batch")
	}
	// Pre-failed entries still reach the sink so job counters close out.
	if len(sinkBatch) != 2 {
		t.Errorf("sink received %d outcomes, want 2", len(sinkBatch))
	}
}

func TestDispatch_FallbackIsolatesFailures(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		bulkErr: errors.New("gateway 502"),
		failNumbers: map[domain.PhoneNumber]bool{
			"905550000001": true,
			"905550000003": true,
		},
	}
	o := NewOrchestrator(gw, 3, time.Millisecond, testLogger())

	outcomes := o.Dispatch(context.Background(),
		domain.DispatchRequest{Message: "hi", Recipients: recipients(6)}, nil)

	var success, fail int
	for _, out := range outcomes {
		if out.Success {
			success++
		} else {
			fail++
		}
	}
	if success != 4 || fail != 2 {
		t.Fatalf("success=%d fail=%d, want 4/2", success, fail)
	}
}
