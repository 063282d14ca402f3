package quota_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/quota"
)

// memMeterStore is an in-memory meter.Store for tracker tests. The
// fail flag simulates a store outage.
type memMeterStore struct {
	mu      sync.Mutex
	records []*meter.UsageRecord
	fail    bool
}

func (s *memMeterStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *memMeterStore) AppendUsage(_ context.Context, records []*meter.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *memMeterStore) SumUsage(_ context.Context, principalID string, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("store unavailable")
	}
	var sum int64
	for _, r := range s.records {
		if r.PrincipalID != principalID {
			continue
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		sum += r.Weight
	}
	return sum, nil
}

func (s *memMeterStore) QueryUsage(_ context.Context, principalID string, _ meter.QueryOpts) ([]*meter.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*meter.UsageRecord
	for _, r := range s.records {
		if r.PrincipalID == principalID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memMeterStore) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*meter.UsageRecord
	var purged int64
	for _, r := range s.records {
		if r.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return purged, nil
}

func (s *memMeterStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestRecordIncrementsCounters(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := tr.Record(ctx, "acct_1", 1, "/v1/export"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	monthly, err := tr.MonthlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("MonthlyUsage failed: %v", err)
	}
	if monthly != 3 {
		t.Errorf("monthly usage = %d, want 3", monthly)
	}

	hourly, err := tr.HourlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("HourlyUsage failed: %v", err)
	}
	if hourly != 3 {
		t.Errorf("hourly usage = %d, want 3", hourly)
	}
}

func TestCountersNeverDecreaseWithinWindow(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		if _, err := tr.Record(ctx, "acct_1", 1, "/v1/call"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		got, err := tr.MonthlyUsage(ctx, "acct_1")
		if err != nil {
			t.Fatalf("MonthlyUsage failed: %v", err)
		}
		if got < last {
			t.Fatalf("counter decreased: %d after %d", got, last)
		}
		last = got
	}
}

func TestConcurrentReservationsRespectLimit(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)
	tr.Start()
	defer tr.Stop()

	limits := catalog.UsageLimits{MonthlyCalls: 10, HourlyCalls: -1}
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rsv, err := tr.TryReserve(ctx, "acct_1", 1, limits, "/v1/call")
			if err != nil {
				t.Errorf("TryReserve failed: %v", err)
				return
			}
			if rsv.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("admitted %d reservations, want exactly 10", admitted)
	}
}

func TestDeniedReservationConsumesNothing(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)
	ctx := context.Background()

	limits := catalog.UsageLimits{MonthlyCalls: 2, HourlyCalls: -1}
	for i := 0; i < 2; i++ {
		rsv, err := tr.TryReserve(ctx, "acct_1", 1, limits, "/v1/call")
		if err != nil || !rsv.Allowed {
			t.Fatalf("reservation %d = (%+v, %v), want allowed", i, rsv, err)
		}
	}

	rsv, err := tr.TryReserve(ctx, "acct_1", 1, limits, "/v1/call")
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if rsv.Allowed {
		t.Fatal("reservation over the limit was admitted")
	}
	if rsv.Scope != quota.ScopeMonthly {
		t.Errorf("denial scope = %q, want monthly", rsv.Scope)
	}

	monthly, err := tr.MonthlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("MonthlyUsage failed: %v", err)
	}
	if monthly != 2 {
		t.Errorf("monthly usage after denied reservation = %d, want 2", monthly)
	}
}

func TestStopFlushesBufferedRecords(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store, quota.WithFlushConfig(100, time.Hour))
	tr.Start()

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if _, err := tr.Record(ctx, "acct_1", 1, "/v1/call"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	tr.Stop()

	if got := store.count(); got != 7 {
		t.Errorf("store holds %d records after Stop, want 7", got)
	}
}

func TestFullBufferFallsBackToSynchronousWrite(t *testing.T) {
	store := &memMeterStore{}
	// Worker never started, so the single buffer slot fills after one
	// record and the second must hit the store directly.
	tr := quota.NewTracker(store, quota.WithBufferSize(1))
	ctx := context.Background()

	if _, err := tr.Record(ctx, "acct_1", 1, "/v1/call"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := tr.Record(ctx, "acct_1", 1, "/v1/call"); err != nil {
		t.Fatalf("Record with full buffer failed: %v", err)
	}

	if got := store.count(); got != 1 {
		t.Errorf("store holds %d records, want 1 synchronous write", got)
	}
}

func TestRefreshRecomputesFromStore(t *testing.T) {
	store := &memMeterStore{}
	now := time.Now().UTC()

	// Seed durable history the cache has never seen.
	seed := []*meter.UsageRecord{
		meter.NewUsageRecord("acct_1", 5, "/v1/call", now.Add(-30*time.Minute)),
		meter.NewUsageRecord("acct_1", 2, "/v1/call", now.Add(-2*time.Hour)),
	}
	if err := store.AppendUsage(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	tr := quota.NewTracker(store)
	ctx := context.Background()

	monthly, err := tr.MonthlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("MonthlyUsage failed: %v", err)
	}
	hourly, err := tr.HourlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("HourlyUsage failed: %v", err)
	}

	wantMonthly := int64(0)
	for _, r := range seed {
		if !r.Timestamp.Before(meter.MonthStart(now)) {
			wantMonthly += r.Weight
		}
	}
	if monthly != wantMonthly {
		t.Errorf("monthly usage = %d, want %d from store", monthly, wantMonthly)
	}
	if hourly != 5 {
		t.Errorf("hourly usage = %d, want 5 (record outside the hour excluded)", hourly)
	}
}

func TestUsageErrorWhenStoreDown(t *testing.T) {
	store := &memMeterStore{}
	store.setFail(true)

	tr := quota.NewTracker(store)
	if _, err := tr.MonthlyUsage(context.Background(), "acct_1"); err == nil {
		t.Fatal("expected error when store is unreachable")
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)
	ctx := context.Background()

	if _, err := tr.Record(ctx, "acct_1", 1, "/v1/call"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := tr.MonthlyUsage(ctx, "acct_1"); err != nil {
		t.Fatalf("MonthlyUsage failed: %v", err)
	}

	// Writes landing behind the cache's back become visible after an
	// invalidation.
	extra := meter.NewUsageRecord("acct_1", 4, "/v1/import", time.Now().UTC())
	if err := store.AppendUsage(ctx, []*meter.UsageRecord{extra}); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}

	tr.Invalidate("acct_1")
	monthly, err := tr.MonthlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("MonthlyUsage failed: %v", err)
	}
	if monthly < 4 {
		t.Errorf("monthly usage = %d, want at least the out-of-band 4", monthly)
	}
}

func TestUsageForPastWindowSummedFromStore(t *testing.T) {
	store := &memMeterStore{}
	tr := quota.NewTracker(store)
	ctx := context.Background()
	now := time.Now().UTC()

	old := meter.NewUsageRecord("acct_1", 5, "/v1/export", now.Add(-72*time.Hour))
	recent := meter.NewUsageRecord("acct_1", 2, "/v1/export", now.Add(-2*time.Hour))
	if err := store.AppendUsage(ctx, []*meter.UsageRecord{old, recent}); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}

	// A window that matches neither cached counter is summed straight
	// from the store, never served from the trailing-hour figure.
	got, err := tr.Usage(ctx, "acct_1", now.Add(-96*time.Hour))
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if got != 7 {
		t.Errorf("96h window usage = %d, want 7", got)
	}

	got, err = tr.Usage(ctx, "acct_1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if got != 2 {
		t.Errorf("24h window usage = %d, want 2", got)
	}

	hourly, err := tr.HourlyUsage(ctx, "acct_1")
	if err != nil {
		t.Fatalf("HourlyUsage failed: %v", err)
	}
	if hourly != 0 {
		t.Errorf("hourly usage = %d, want 0", hourly)
	}
}
