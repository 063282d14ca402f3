package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/meter"
)

// ErrTrackerStopped is returned when usage is recorded after Stop.
var ErrTrackerStopped = errors.New("usage tracker stopped")

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultBufferSize    = 4096
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultSweepInterval = time.Minute
)

// Scope identifies which limit window a reservation was judged
// against.
type Scope string

const (
	ScopeMonthly Scope = "monthly"
	ScopeHourly  Scope = "hourly"
)

// Reservation is the outcome of an atomic reserve attempt. When the
// attempt is denied, Scope names the window that was exhausted and
// ResetTime the earliest instant the window can admit again.
type Reservation struct {
	Allowed   bool
	Scope     Scope
	Used      int64
	Limit     int64
	Remaining int64
	ResetTime time.Time
}

// Tracker maintains per-principal usage counters backed by the durable
// meter store. Counters live in a write-through cache: every recorded
// event increments the cached counters immediately and is persisted
// asynchronously, and cached values are recomputed from the store once
// they exceed the TTL. The store stays authoritative; the cache only
// buys speed.
type Tracker struct {
	store  meter.Store
	cache  *counterCache
	logger *slog.Logger

	ttl           time.Duration
	bufferSize    int
	batchSize     int
	flushInterval time.Duration
	sweepInterval time.Duration

	onFlush func(count int, elapsed time.Duration)

	buffer   chan *meter.UsageRecord
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger used for flush and refresh
// diagnostics.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithCacheTTL sets how long cached counters are trusted before being
// recomputed from the store.
func WithCacheTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithFlushConfig tunes the asynchronous persistence worker.
func WithFlushConfig(batchSize int, interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		if batchSize > 0 {
			t.batchSize = batchSize
		}
		if interval > 0 {
			t.flushInterval = interval
		}
	}
}

// WithBufferSize sets the capacity of the pending-record buffer.
func WithBufferSize(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

// WithFlushHook registers a callback invoked after each successful
// flush with the batch size and elapsed persistence time.
func WithFlushHook(fn func(count int, elapsed time.Duration)) TrackerOption {
	return func(t *Tracker) {
		t.onFlush = fn
	}
}

// NewTracker builds a Tracker over the given durable store. Start must
// be called before recorded usage is persisted.
func NewTracker(store meter.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:         store,
		cache:         newCounterCache(),
		logger:        slog.Default(),
		ttl:           defaultCacheTTL,
		bufferSize:    defaultBufferSize,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.buffer = make(chan *meter.UsageRecord, t.bufferSize)
	t.stopChan = make(chan struct{})
	return t
}

// Start launches the flush and sweep workers.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true

	t.wg.Add(2)
	go t.flushWorker()
	go t.sweepWorker()
}

// Stop drains the buffer, persists everything pending, and shuts the
// workers down. Safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.stopOnce.Do(func() { close(t.stopChan) })
	t.wg.Wait()
}

// Record captures a usage event: the cached counters are incremented
// immediately and the record is queued for durable persistence. When
// the buffer is full the record is written to the store synchronously
// instead so no usage is ever lost silently.
func (t *Tracker) Record(ctx context.Context, principalID string, weight int64, endpoint string) (*meter.UsageRecord, error) {
	if principalID == "" {
		return nil, errors.New("principal id is required")
	}
	if weight <= 0 {
		weight = 1
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, ErrTrackerStopped
	}
	t.mu.Unlock()

	now := time.Now().UTC()
	rec := meter.NewUsageRecord(principalID, weight, endpoint, now)

	e := t.cache.get(principalID)
	e.mu.Lock()
	t.rollMonth(e, now)
	e.monthly += weight
	e.hourly += weight
	e.pending += weight
	e.touchedAt = now
	e.mu.Unlock()

	select {
	case t.buffer <- rec:
	default:
		// Buffer saturated; fall back to a synchronous write rather
		// than dropping usage.
		t.logger.Warn("usage buffer full, persisting synchronously",
			slog.String("principal_id", principalID))
		if err := t.store.AppendUsage(ctx, []*meter.UsageRecord{rec}); err != nil {
			t.settle([]*meter.UsageRecord{rec})
			return nil, fmt.Errorf("append usage: %w", err)
		}
		t.settle([]*meter.UsageRecord{rec})
	}

	return rec, nil
}

// Usage returns the usage accrued in the window [windowStart, now).
// The two windows the limiter consults are served from the cached
// counters: the start of the current UTC calendar month maps to the
// monthly counter and a start one hour ago maps to the hourly counter.
// Any other window is summed from the store directly; those figures
// reflect flushed records only, not weight still in the buffer.
func (t *Tracker) Usage(ctx context.Context, principalID string, windowStart time.Time) (int64, error) {
	now := time.Now().UTC()
	start := windowStart.UTC()

	if start.Equal(meter.MonthStart(now)) {
		return t.counter(ctx, principalID, ScopeMonthly)
	}
	// Tolerate clock reads between the caller computing now-1h and us.
	if delta := now.Sub(start); delta >= time.Hour && delta < time.Hour+time.Second {
		return t.counter(ctx, principalID, ScopeHourly)
	}
	return t.store.SumUsage(ctx, principalID, start, now)
}

// counter returns the cached counter for the scope, recomputing it
// from the store first when it is past the TTL.
func (t *Tracker) counter(ctx context.Context, principalID string, scope Scope) (int64, error) {
	now := time.Now().UTC()
	e := t.cache.get(principalID)

	e.mu.Lock()
	defer e.mu.Unlock()

	t.rollMonth(e, now)
	if err := t.refreshLocked(ctx, e, principalID, now); err != nil {
		return 0, err
	}
	e.touchedAt = now

	if scope == ScopeMonthly {
		return e.monthly, nil
	}
	return e.hourly, nil
}

// MonthlyUsage returns the counter for the current UTC calendar month.
func (t *Tracker) MonthlyUsage(ctx context.Context, principalID string) (int64, error) {
	return t.counter(ctx, principalID, ScopeMonthly)
}

// HourlyUsage returns the counter for the trailing 60-minute window.
func (t *Tracker) HourlyUsage(ctx context.Context, principalID string) (int64, error) {
	return t.counter(ctx, principalID, ScopeHourly)
}

// TryReserve checks the monthly then the hourly limit and, only if
// both admit the weight, increments the counters and queues the usage
// record. Check and increment happen under the principal's lock, so
// concurrent reservations against a nearly-exhausted limit can never
// admit more than the limit allows.
func (t *Tracker) TryReserve(ctx context.Context, principalID string, weight int64, limits catalog.UsageLimits, endpoint string) (Reservation, error) {
	if weight <= 0 {
		weight = 1
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return Reservation{}, ErrTrackerStopped
	}
	t.mu.Unlock()

	now := time.Now().UTC()
	e := t.cache.get(principalID)

	e.mu.Lock()
	t.rollMonth(e, now)
	if err := t.refreshLocked(ctx, e, principalID, now); err != nil {
		e.mu.Unlock()
		return Reservation{}, err
	}
	e.touchedAt = now

	// Monthly before hourly: exhausting the month is the stronger,
	// longer-lived condition and must mask the hourly one.
	if limits.MonthlyCalls >= 0 && e.monthly+weight > limits.MonthlyCalls {
		res := Reservation{
			Scope:     ScopeMonthly,
			Used:      e.monthly,
			Limit:     limits.MonthlyCalls,
			ResetTime: meter.NextMonthStart(now),
		}
		e.mu.Unlock()
		return res, nil
	}
	if limits.HourlyCalls >= 0 && e.hourly+weight > limits.HourlyCalls {
		res := Reservation{
			Scope:     ScopeHourly,
			Used:      e.hourly,
			Limit:     limits.HourlyCalls,
			ResetTime: now.Add(time.Hour),
		}
		e.mu.Unlock()
		return res, nil
	}

	e.monthly += weight
	e.hourly += weight
	e.pending += weight
	res := Reservation{
		Allowed:   true,
		Scope:     ScopeMonthly,
		Used:      e.monthly,
		Limit:     limits.MonthlyCalls,
		Remaining: remaining(limits.MonthlyCalls, e.monthly),
		ResetTime: meter.NextMonthStart(now),
	}
	e.mu.Unlock()

	rec := meter.NewUsageRecord(principalID, weight, endpoint, now)
	select {
	case t.buffer <- rec:
	case <-t.stopChan:
		// Shutting down; persist inline so the reservation stays
		// accounted for.
		if err := t.store.AppendUsage(ctx, []*meter.UsageRecord{rec}); err != nil {
			t.logger.Error("failed to persist usage during shutdown", slog.Any("error", err))
		}
		t.settle([]*meter.UsageRecord{rec})
	}

	return res, nil
}

// Invalidate drops the cached counters for a principal, forcing the
// next read to recompute from the store.
func (t *Tracker) Invalidate(principalID string) {
	if e, ok := t.cache.peek(principalID); ok {
		e.mu.Lock()
		e.refreshedAt = time.Time{}
		e.mu.Unlock()
	}
}

// CachedPrincipals reports how many principals currently have cached
// counters.
func (t *Tracker) CachedPrincipals() int {
	return t.cache.size()
}

// rollMonth resets the monthly counter when the entry's anchor is no
// longer the current calendar month. Caller holds e.mu.
func (t *Tracker) rollMonth(e *counters, now time.Time) {
	anchor := meter.MonthStart(now)
	if !e.monthAnchor.Equal(anchor) {
		e.monthAnchor = anchor
		e.monthly = 0
		// Force a recompute so the hourly window re-anchors too.
		e.refreshedAt = time.Time{}
	}
}

// refreshLocked recomputes both counters from the store when the entry
// is past the TTL. Weight recorded in-process but not yet flushed is
// added back on top so counters never regress. Caller holds e.mu.
func (t *Tracker) refreshLocked(ctx context.Context, e *counters, principalID string, now time.Time) error {
	if !e.refreshedAt.IsZero() && now.Sub(e.refreshedAt) < t.ttl {
		return nil
	}

	monthly, err := t.store.SumUsage(ctx, principalID, meter.MonthStart(now), meter.NextMonthStart(now))
	if err != nil {
		return fmt.Errorf("sum monthly usage: %w", err)
	}
	hourly, err := t.store.SumUsage(ctx, principalID, now.Add(-time.Hour), now)
	if err != nil {
		return fmt.Errorf("sum hourly usage: %w", err)
	}

	e.monthly = monthly + e.pending
	e.hourly = hourly + e.pending
	e.refreshedAt = now
	return nil
}

// settle marks records as no longer pending after a flush attempt has
// concluded, whether or not it succeeded. A failed flush is reported,
// not retried; the next TTL refresh reconciles against the store.
func (t *Tracker) settle(records []*meter.UsageRecord) {
	for _, rec := range records {
		e, ok := t.cache.peek(rec.PrincipalID)
		if !ok {
			continue
		}
		e.mu.Lock()
		e.pending -= rec.Weight
		if e.pending < 0 {
			e.pending = 0
		}
		e.mu.Unlock()
	}
}

func (t *Tracker) flushWorker() {
	defer t.wg.Done()

	batch := make([]*meter.UsageRecord, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := t.store.AppendUsage(context.Background(), batch); err != nil {
			t.logger.Error("failed to flush usage records",
				slog.Int("count", len(batch)),
				slog.Any("error", err))
		} else if t.onFlush != nil {
			t.onFlush(len(batch), time.Since(start))
		}
		t.settle(batch)
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-t.buffer:
			batch = append(batch, rec)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.stopChan:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case rec := <-t.buffer:
					batch = append(batch, rec)
					if len(batch) >= t.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (t *Tracker) sweepWorker() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := t.cache.sweep(time.Now().UTC(), t.ttl); evicted > 0 {
				t.logger.Debug("evicted idle usage counters", slog.Int("count", evicted))
			}
		case <-t.stopChan:
			return
		}
	}
}

func remaining(limit, used int64) int64 {
	if limit < 0 {
		return -1
	}
	r := limit - used
	if r < 0 {
		return 0
	}
	return r
}
