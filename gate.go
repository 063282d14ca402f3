package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/gate/audit"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/entitlement"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/plugin"
	"github.com/xraph/gate/quota"
	"github.com/xraph/gate/store"
	"github.com/xraph/gate/subscription"
	"github.com/xraph/gate/types"
)

// Engine is the main admission-control engine. It decides, per call,
// whether a principal may proceed: a static entitlement check against
// the plan catalog, then a usage-quota check against the monthly and
// hourly limits of the plan.
type Engine struct {
	catalog *catalog.Catalog
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	auditor   *audit.Log
	tracker   *quota.Tracker
	limiter   *quota.Limiter
	evaluator *entitlement.Evaluator

	// Configuration
	usageCacheTTL  time.Duration
	flushBatchSize int
	flushInterval  time.Duration
	auditBatchSize int
	auditInterval  time.Duration
	policy         quota.Policy
	disableMigrate bool

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a new Engine over the given catalog and store.
func New(c *catalog.Catalog, s store.Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:        c,
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		usageCacheTTL:  5 * time.Minute,
		flushBatchSize: 100,
		flushInterval:  5 * time.Second,
		auditBatchSize: 100,
		auditInterval:  2 * time.Second,
		policy:         quota.FailOpen,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.auditor = audit.New(s,
		audit.WithLogger(e.logger),
		audit.WithBatchConfig(e.auditBatchSize, e.auditInterval),
		audit.WithRecordHook(func(d *decision.Decision) {
			e.plugins.EmitDecisionRecorded(context.Background(), d)
		}),
	)
	e.tracker = quota.NewTracker(s,
		quota.WithTrackerLogger(e.logger),
		quota.WithCacheTTL(e.usageCacheTTL),
		quota.WithFlushConfig(e.flushBatchSize, e.flushInterval),
		quota.WithFlushHook(func(count int, elapsed time.Duration) {
			e.plugins.EmitUsageFlushed(context.Background(), count, elapsed)
		}),
	)
	e.limiter = quota.NewLimiter(c, e.tracker, e.auditor,
		quota.WithLimiterLogger(e.logger),
		quota.WithPolicy(e.policy),
	)
	e.evaluator = entitlement.New(c, e.auditor,
		entitlement.WithLogger(e.logger),
	)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithUsageCacheTTL sets how long cached usage counters are trusted
// before being recomputed from the store.
func WithUsageCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.usageCacheTTL = ttl
		}
	}
}

// WithFlushConfig configures usage persistence parameters.
func WithFlushConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		if batchSize > 0 {
			e.flushBatchSize = batchSize
		}
		if flushInterval > 0 {
			e.flushInterval = flushInterval
		}
	}
}

// WithAuditConfig configures decision persistence parameters.
func WithAuditConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		if batchSize > 0 {
			e.auditBatchSize = batchSize
		}
		if flushInterval > 0 {
			e.auditInterval = flushInterval
		}
	}
}

// WithLimitPolicy sets the degraded-mode policy applied during store
// outages. The default is quota.FailOpen.
func WithLimitPolicy(p quota.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMigrateDisabled skips the store migration on Start. Useful when
// the schema is managed externally.
func WithMigrateDisabled() Option {
	return func(e *Engine) { e.disableMigrate = true }
}

// Start migrates the store and launches the background workers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if !e.disableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.auditor.Start(ctx)
	e.tracker.Start()
	e.started = true

	e.logger.Info("gate engine started",
		"catalog_version", e.catalog.Version(),
		"plans", len(e.catalog.Plans()),
		"cache_ttl", e.usageCacheTTL,
		"policy", e.policy.String(),
	)

	return nil
}

// Stop drains pending usage and audit batches and shuts the engine
// down. Safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	e.tracker.Stop()
	e.auditor.Stop()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Catalog returns the engine's plan catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// AuditErrors exposes the audit log's operational error channel.
func (e *Engine) AuditErrors() <-chan error { return e.auditor.Errors() }

// Request describes one gated call.
type Request struct {
	// PrincipalID identifies the caller. Required.
	PrincipalID string

	// PlanSlug pins the evaluation to a specific plan. When empty the
	// plan is resolved from the principal's active subscription, and
	// principals without one fall back to the lowest catalog tier.
	PlanSlug string

	// Feature, when set, is checked against the plan's feature grants.
	Feature catalog.Feature

	// ModuleID, when set, is checked against the plan's module grants.
	ModuleID string

	// Endpoint labels the usage record written for admitted calls.
	Endpoint string

	// Weight is the usage cost of the call. Zero means one.
	Weight int64
}

// Response is the engine's verdict on a Request.
type Response struct {
	Allowed bool            `json:"allowed"`
	Reason  decision.Reason `json:"reason"`

	// PlanSlug is the plan the request was evaluated against.
	PlanSlug string `json:"plan_slug"`

	// RequiredPlan names the minimum tier that would grant a denied
	// feature or module, when one exists.
	RequiredPlan string `json:"required_plan,omitempty"`

	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`

	// Degraded marks a verdict produced without live usage counters.
	Degraded bool `json:"degraded,omitempty"`
}

// Evaluate runs the full gate for one call: plan resolution, static
// entitlement, then atomic quota reservation. Usage is consumed only
// when every stage admits. Business denials come back in the Response;
// the error return is reserved for invalid input.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Response, error) {
	if req.PrincipalID == "" {
		return nil, ErrInvalidInput
	}

	planSlug, degraded := e.resolvePlan(ctx, req)
	if degraded && e.policy == quota.FailClosed {
		return &Response{
			Reason:   decision.ReasonStoreUnavailable,
			PlanSlug: planSlug,
			Degraded: true,
		}, nil
	}

	if req.Feature != "" {
		res := e.evaluator.CheckFeature(ctx, req.PrincipalID, planSlug, req.Feature)
		e.plugins.EmitEntitlementChecked(ctx, res)
		if !res.Allowed {
			return &Response{
				Reason:       res.Reason,
				PlanSlug:     planSlug,
				RequiredPlan: res.RequiredPlan,
				Degraded:     degraded,
			}, nil
		}
	}

	if req.ModuleID != "" {
		res := e.evaluator.CheckModule(ctx, req.PrincipalID, planSlug, req.ModuleID)
		e.plugins.EmitEntitlementChecked(ctx, res)
		if !res.Allowed {
			return &Response{
				Reason:       res.Reason,
				PlanSlug:     planSlug,
				RequiredPlan: res.RequiredPlan,
				Degraded:     degraded,
			}, nil
		}
	}

	lim := e.limiter.Reserve(ctx, req.PrincipalID, planSlug, req.Weight, req.Endpoint)
	switch lim.Reason {
	case decision.ReasonQuotaExceeded:
		e.plugins.EmitQuotaExceeded(ctx, req.PrincipalID, lim.Limit-lim.Remaining, lim.Limit)
	case decision.ReasonRateLimited:
		e.plugins.EmitRateLimited(ctx, req.PrincipalID, lim.Limit-lim.Remaining, lim.Limit)
	case decision.ReasonStoreUnavailable:
		e.plugins.EmitStoreDegraded(ctx, req.PrincipalID, ErrStoreUnavailable)
	}

	return &Response{
		Allowed:   lim.Allowed,
		Reason:    lim.Reason,
		PlanSlug:  planSlug,
		Limit:     lim.Limit,
		Remaining: lim.Remaining,
		ResetTime: lim.ResetTime,
		Degraded:  degraded || lim.Degraded,
	}, nil
}

// resolvePlan picks the plan slug for a request. Principals without an
// evaluable subscription get the lowest catalog tier; a store failure
// during the lookup reports degraded so the caller's policy applies.
func (e *Engine) resolvePlan(ctx context.Context, req Request) (slug string, degraded bool) {
	if req.PlanSlug != "" {
		return req.PlanSlug, false
	}

	sub, err := e.store.GetActiveSubscription(ctx, req.PrincipalID)
	if err == nil {
		return sub.PlanSlug, false
	}
	if IsNotFound(err) {
		return e.catalog.Lowest().Slug, false
	}

	e.logger.Error("subscription lookup failed, falling back to lowest tier",
		"principal_id", req.PrincipalID,
		"error", err)
	e.plugins.EmitStoreDegraded(ctx, req.PrincipalID, err)
	return e.catalog.Lowest().Slug, true
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// CheckFeature decides whether the principal's plan grants a feature,
// without touching any quota.
func (e *Engine) CheckFeature(ctx context.Context, principalID string, feature catalog.Feature) (entitlement.Result, error) {
	if principalID == "" {
		return entitlement.Result{}, ErrInvalidInput
	}
	planSlug, _ := e.resolvePlan(ctx, Request{PrincipalID: principalID})
	res := e.evaluator.CheckFeature(ctx, principalID, planSlug, feature)
	e.plugins.EmitEntitlementChecked(ctx, res)
	return res, nil
}

// CheckModule decides whether the principal's plan grants access to a
// module.
func (e *Engine) CheckModule(ctx context.Context, principalID, moduleID string) (entitlement.Result, error) {
	if principalID == "" {
		return entitlement.Result{}, ErrInvalidInput
	}
	planSlug, _ := e.resolvePlan(ctx, Request{PrincipalID: principalID})
	res := e.evaluator.CheckModule(ctx, principalID, planSlug, moduleID)
	e.plugins.EmitEntitlementChecked(ctx, res)
	return res, nil
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// RecordUsage captures a usage event without gating it. Counters are
// incremented immediately; persistence is asynchronous.
func (e *Engine) RecordUsage(ctx context.Context, principalID string, weight int64, endpoint string) error {
	rec, err := e.tracker.Record(ctx, principalID, weight, endpoint)
	if err != nil {
		return err
	}
	e.plugins.EmitUsageRecorded(ctx, rec)
	return nil
}

// MonthlyUsage returns the principal's usage in the current UTC
// calendar month.
func (e *Engine) MonthlyUsage(ctx context.Context, principalID string) (int64, error) {
	return e.tracker.MonthlyUsage(ctx, principalID)
}

// HourlyUsage returns the principal's usage in the trailing 60-minute
// window.
func (e *Engine) HourlyUsage(ctx context.Context, principalID string) (int64, error) {
	return e.tracker.HourlyUsage(ctx, principalID)
}

// Remaining returns the principal's remaining monthly budget.
func (e *Engine) Remaining(ctx context.Context, principalID string) (int64, error) {
	planSlug, _ := e.resolvePlan(ctx, Request{PrincipalID: principalID})
	plan, err := e.catalog.Get(planSlug)
	if err != nil {
		return 0, err
	}
	if plan.Limits.MonthlyCalls < 0 {
		return -1, nil
	}
	used, err := e.tracker.MonthlyUsage(ctx, principalID)
	if err != nil {
		return 0, err
	}
	if used >= plan.Limits.MonthlyCalls {
		return 0, nil
	}
	return plan.Limits.MonthlyCalls - used, nil
}

// InvalidateUsage drops the cached counters for a principal, forcing
// the next evaluation to recompute from the store.
func (e *Engine) InvalidateUsage(principalID string) {
	e.tracker.Invalidate(principalID)
}

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// CreateSubscription creates a subscription. Intended for the billing
// webhook integration; the gate core itself only reads subscriptions.
func (e *Engine) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.PrincipalID == "" {
		return ErrInvalidInput
	}
	if _, err := e.catalog.Get(sub.PlanSlug); err != nil {
		return err
	}

	if sub.ID == (id.SubscriptionID{}) {
		sub.ID = id.NewSubscriptionID()
	}
	sub.Entity = types.NewEntity()
	if sub.Status == "" {
		sub.Status = subscription.StatusActive
	}
	if sub.PeriodStart.IsZero() {
		sub.PeriodStart = time.Now().UTC()
		sub.PeriodEnd = sub.PeriodStart.AddDate(0, 1, 0)
	}

	return e.store.CreateSubscription(ctx, sub)
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetActiveSubscription retrieves the principal's evaluable
// subscription.
func (e *Engine) GetActiveSubscription(ctx context.Context, principalID string) (*subscription.Subscription, error) {
	return e.store.GetActiveSubscription(ctx, principalID)
}

// UpdateSubscription replaces a subscription row.
func (e *Engine) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if _, err := e.catalog.Get(sub.PlanSlug); err != nil {
		return err
	}
	return e.store.UpdateSubscription(ctx, sub)
}

// CancelSubscription cancels a subscription, immediately or at period
// end.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID, immediately bool) error {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	cancelAt := sub.PeriodEnd
	if immediately {
		cancelAt = time.Now().UTC()
	}

	return e.store.CancelSubscription(ctx, subID, cancelAt)
}

// ──────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────

// Decisions returns the principal's recorded gate decisions, newest
// first.
func (e *Engine) Decisions(ctx context.Context, principalID string, opts decision.QueryOpts) ([]*decision.Decision, error) {
	return e.store.QueryDecisions(ctx, principalID, opts)
}

// UsageRecords returns the principal's raw usage records.
func (e *Engine) UsageRecords(ctx context.Context, principalID string, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	return e.store.QueryUsage(ctx, principalID, opts)
}
