package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/gate/audit"
	"github.com/xraph/gate/decision"
)

type captureSink struct {
	mu       sync.Mutex
	appended []*decision.Decision
	fail     bool
}

func (s *captureSink) AppendDecisions(_ context.Context, decs []*decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.appended = append(s.appended, decs...)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

func TestRecordAndFlush(t *testing.T) {
	sink := &captureSink{}
	log := audit.New(sink, audit.WithBatchConfig(10, 10*time.Millisecond))

	ctx := context.Background()
	log.Start(ctx)

	for i := 0; i < 25; i++ {
		log.Record(ctx, decision.New(decision.KindQuota, true, decision.ReasonAllowed, "principal_1", "pro"))
	}

	log.Stop()

	if got := sink.count(); got != 25 {
		t.Errorf("expected 25 decisions flushed, got %d", got)
	}
}

func TestSinkFailureReportedNotRaised(t *testing.T) {
	sink := &captureSink{fail: true}
	log := audit.New(sink, audit.WithBatchConfig(1, 5*time.Millisecond))

	ctx := context.Background()
	log.Start(ctx)

	// Record must not fail or block even though the sink is down.
	log.Record(ctx, decision.New(decision.KindEntitlement, false, decision.ReasonInsufficientPlan, "principal_1", "free"))

	select {
	case err := <-log.Errors():
		if err == nil {
			t.Error("expected non-nil operational error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a reported sink failure")
	}

	log.Stop()
}

func TestBufferOverflowDropsWithoutBlocking(t *testing.T) {
	sink := &captureSink{}
	log := audit.New(sink, audit.WithBufferSize(1))
	// Worker intentionally not started: the buffer fills immediately.

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			log.Record(ctx, decision.New(decision.KindQuota, true, decision.ReasonAllowed, "principal_1", "pro"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	select {
	case <-log.Errors():
	default:
		t.Error("expected overflow to be reported on the error channel")
	}
}

func TestSinkFunc(t *testing.T) {
	var got int
	sink := audit.SinkFunc(func(_ context.Context, decs []*decision.Decision) error {
		got += len(decs)
		return nil
	})

	if err := sink.AppendDecisions(context.Background(), []*decision.Decision{
		decision.New(decision.KindQuota, true, decision.ReasonAllowed, "p", "free"),
	}); err != nil {
		t.Fatalf("AppendDecisions failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1 decision, got %d", got)
	}
}

func TestRecordHookFiresForAcceptedDecisions(t *testing.T) {
	sink := &captureSink{}

	var mu sync.Mutex
	var seen []*decision.Decision
	log := audit.New(sink,
		audit.WithBufferSize(1),
		audit.WithRecordHook(func(d *decision.Decision) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, d)
		}),
	)

	// No worker running: the second record overflows the buffer and is
	// dropped, so the hook must fire exactly once.
	ctx := context.Background()
	accepted := decision.New(decision.KindQuota, true, decision.ReasonAllowed, "principal_1", "pro")
	log.Record(ctx, accepted)
	log.Record(ctx, decision.New(decision.KindQuota, true, decision.ReasonAllowed, "principal_1", "pro"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(seen))
	}
	if seen[0].ID.String() != accepted.ID.String() {
		t.Errorf("hook saw decision %s, want %s", seen[0].ID, accepted.ID)
	}
}
