package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/gate"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/subscription"
)

func TestQueryDecisionsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	older := decision.New(decision.KindQuota, false, decision.ReasonQuotaExceeded, "acct_1", "free")
	older.Timestamp = now.Add(-time.Hour)
	newer := decision.New(decision.KindQuota, true, decision.ReasonAllowed, "acct_1", "free")
	newer.Timestamp = now

	if err := s.AppendDecisions(ctx, []*decision.Decision{older, newer}); err != nil {
		t.Fatalf("AppendDecisions failed: %v", err)
	}

	got, err := s.QueryDecisions(ctx, "acct_1", decision.QueryOpts{})
	if err != nil {
		t.Fatalf("QueryDecisions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d decisions, want 2", len(got))
	}
	if !got[0].Timestamp.After(got[1].Timestamp) {
		t.Errorf("decisions not newest first: got[0]=%s got[1]=%s",
			got[0].Timestamp, got[1].Timestamp)
	}
}

func TestQueryUsageNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	records := []*meter.UsageRecord{
		meter.NewUsageRecord("acct_1", 1, "/v1/a", now.Add(-2*time.Hour)),
		meter.NewUsageRecord("acct_1", 1, "/v1/b", now),
		meter.NewUsageRecord("acct_1", 1, "/v1/c", now.Add(-time.Hour)),
	}
	if err := s.AppendUsage(ctx, records); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}

	got, err := s.QueryUsage(ctx, "acct_1", meter.QueryOpts{})
	if err != nil {
		t.Fatalf("QueryUsage failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("records not newest first at index %d", i)
		}
	}

	// Pagination walks the same ordering.
	page, err := s.QueryUsage(ctx, "acct_1", meter.QueryOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("QueryUsage failed: %v", err)
	}
	if len(page) != 1 || page[0].Endpoint != "/v1/c" {
		t.Errorf("page = %+v, want the second-newest record /v1/c", page)
	}
}

func TestClosedStoreRejectsSubscriptionWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub := &subscription.Subscription{
		ID:          id.NewSubscriptionID(),
		PrincipalID: "acct_1",
		PlanSlug:    "free",
		Status:      subscription.StatusActive,
		PeriodStart: time.Now().UTC(),
	}
	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.UpdateSubscription(ctx, sub); !errors.Is(err, gate.ErrStoreClosed) {
		t.Errorf("UpdateSubscription after Close = %v, want ErrStoreClosed", err)
	}
	if err := s.CancelSubscription(ctx, sub.ID, time.Now().UTC()); !errors.Is(err, gate.ErrStoreClosed) {
		t.Errorf("CancelSubscription after Close = %v, want ErrStoreClosed", err)
	}
}
