// Package quota enforces usage budgets: a write-through counter cache
// over the durable usage log, and a limiter that admits or rejects
// calls against per-plan monthly and hourly ceilings.
//
// Limit checks run monthly before hourly, so an exhausted month masks
// any hourly condition. When the durable store is unreachable the
// limiter degrades according to its policy instead of failing the
// request path; fail-open is the default.
package quota

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/gate/audit"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/meter"
)

// Policy controls limiter behavior when usage counters cannot be
// computed because the durable store is unreachable.
type Policy int

const (
	// FailOpen admits traffic during a store outage. A paying caller
	// is never blocked by our infrastructure trouble; the worst case
	// is brief over-admission bounded by the outage length.
	FailOpen Policy = iota

	// FailClosed rejects traffic during a store outage.
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// Result is the outcome of a quota evaluation.
type Result struct {
	Allowed   bool            `json:"allowed"`
	Reason    decision.Reason `json:"reason"`
	Limit     int64           `json:"limit"`
	Remaining int64           `json:"remaining"`
	ResetTime time.Time       `json:"reset_time"`

	// Degraded marks a result produced without live counters because
	// the store was unreachable.
	Degraded bool `json:"degraded,omitempty"`
}

// Limiter admits or rejects calls against the usage limits of the
// caller's plan. Every evaluation, passed or denied, lands on the
// audit trail.
type Limiter struct {
	catalog *catalog.Catalog
	tracker *Tracker
	auditor *audit.Log
	logger  *slog.Logger
	policy  Policy
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPolicy sets the degraded-mode policy. The default is FailOpen.
func WithPolicy(p Policy) LimiterOption {
	return func(l *Limiter) { l.policy = p }
}

// NewLimiter builds a Limiter over the catalog and tracker, recording
// decisions through the given audit log.
func NewLimiter(c *catalog.Catalog, tracker *Tracker, auditor *audit.Log, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		catalog: c,
		tracker: tracker,
		auditor: auditor,
		logger:  slog.Default(),
		policy:  FailOpen,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Policy reports the configured degraded-mode policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Check evaluates the limits without consuming any budget. Suitable
// for the two-step check-then-record integration; under concurrency
// prefer Reserve, which checks and consumes atomically.
func (l *Limiter) Check(ctx context.Context, principalID, planSlug string) Result {
	now := time.Now().UTC()

	plan, err := l.catalog.Get(planSlug)
	if err != nil {
		return l.misconfigured(ctx, principalID, planSlug, now)
	}
	limits := plan.Limits

	monthly, err := l.tracker.MonthlyUsage(ctx, principalID)
	if err != nil {
		return l.degraded(ctx, principalID, planSlug, limits, now, err)
	}
	if limits.MonthlyCalls >= 0 && monthly >= limits.MonthlyCalls {
		res := Result{
			Reason:    decision.ReasonQuotaExceeded,
			Limit:     limits.MonthlyCalls,
			Remaining: 0,
			ResetTime: meter.NextMonthStart(now),
		}
		l.record(ctx, principalID, planSlug, res)
		return res
	}

	hourly, err := l.tracker.HourlyUsage(ctx, principalID)
	if err != nil {
		return l.degraded(ctx, principalID, planSlug, limits, now, err)
	}
	if limits.HourlyCalls >= 0 && hourly >= limits.HourlyCalls {
		res := Result{
			Reason:    decision.ReasonRateLimited,
			Limit:     limits.HourlyCalls,
			Remaining: 0,
			ResetTime: now.Add(time.Hour),
		}
		l.record(ctx, principalID, planSlug, res)
		return res
	}

	res := Result{
		Allowed:   true,
		Reason:    decision.ReasonAllowed,
		Limit:     limits.MonthlyCalls,
		Remaining: remaining(limits.MonthlyCalls, monthly),
		ResetTime: meter.NextMonthStart(now),
	}
	l.record(ctx, principalID, planSlug, res)
	return res
}

// Reserve checks the limits and, if both admit, consumes weight from
// the budget in one atomic step. Use this on the hot path: concurrent
// reservations against a nearly-exhausted limit can never admit more
// than the limit allows.
func (l *Limiter) Reserve(ctx context.Context, principalID, planSlug string, weight int64, endpoint string) Result {
	now := time.Now().UTC()

	plan, err := l.catalog.Get(planSlug)
	if err != nil {
		return l.misconfigured(ctx, principalID, planSlug, now)
	}
	limits := plan.Limits

	rsv, err := l.tracker.TryReserve(ctx, principalID, weight, limits, endpoint)
	if err != nil {
		return l.degraded(ctx, principalID, planSlug, limits, now, err)
	}

	res := Result{
		Allowed:   rsv.Allowed,
		Limit:     rsv.Limit,
		Remaining: rsv.Remaining,
		ResetTime: rsv.ResetTime,
	}
	switch {
	case rsv.Allowed:
		res.Reason = decision.ReasonAllowed
	case rsv.Scope == ScopeMonthly:
		res.Reason = decision.ReasonQuotaExceeded
	default:
		res.Reason = decision.ReasonRateLimited
	}

	l.record(ctx, principalID, planSlug, res)
	return res
}

// misconfigured denies for an unknown plan slug. This is an operator
// problem, not a caller problem, so it is logged loudly and audited
// with its own reason rather than surfaced as an error.
func (l *Limiter) misconfigured(ctx context.Context, principalID, planSlug string, now time.Time) Result {
	l.logger.Warn("quota check against unknown plan",
		"plan", planSlug,
		"principal_id", principalID)

	res := Result{
		Reason:    decision.ReasonMisconfigured,
		ResetTime: meter.NextMonthStart(now),
	}
	l.record(ctx, principalID, planSlug, res)
	return res
}

// degraded applies the outage policy when counters cannot be computed.
// Remaining reports the full monthly limit: with no counters to trust,
// claiming anything tighter would be fiction.
func (l *Limiter) degraded(ctx context.Context, principalID, planSlug string, limits catalog.UsageLimits, now time.Time, cause error) Result {
	l.logger.Error("usage store unreachable, applying degraded policy",
		"policy", l.policy.String(),
		"principal_id", principalID,
		"error", cause)

	res := Result{
		Allowed:   l.policy == FailOpen,
		Reason:    decision.ReasonStoreUnavailable,
		Limit:     limits.MonthlyCalls,
		Remaining: limits.MonthlyCalls,
		ResetTime: meter.NextMonthStart(now),
		Degraded:  true,
	}
	l.record(ctx, principalID, planSlug, res)
	return res
}

func (l *Limiter) record(ctx context.Context, principalID, planSlug string, res Result) {
	if l.auditor == nil {
		return
	}

	d := decision.New(decision.KindQuota, res.Allowed, res.Reason, principalID, planSlug)
	d.Metadata = map[string]string{
		"limit":     strconv.FormatInt(res.Limit, 10),
		"remaining": strconv.FormatInt(res.Remaining, 10),
	}
	if res.Degraded {
		d.Metadata["degraded"] = "true"
		d.Metadata["policy"] = l.policy.String()
	}
	l.auditor.Record(ctx, d)
}
