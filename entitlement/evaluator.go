// Package entitlement decides static feature and module access from the
// plan catalog.
//
// The evaluator never raises business denials as errors: unknown plans
// and unknown features degrade to a denial with a misconfigured reason,
// logged at warning severity for operator attention, so callers cannot
// crash on stale plan identifiers.
package entitlement

import (
	"context"
	"log/slog"

	"github.com/xraph/gate/audit"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/decision"
)

// Result is the outcome of a static entitlement check.
type Result struct {
	Allowed      bool            `json:"allowed"`
	Reason       decision.Reason `json:"reason"`
	Feature      catalog.Feature `json:"feature,omitempty"`
	ModuleID     string          `json:"module_id,omitempty"`
	CurrentPlan  string          `json:"current_plan"`
	RequiredPlan string          `json:"required_plan,omitempty"`
}

// Evaluator checks feature flags and module allowlists against the
// catalog and records every outcome on the audit trail.
type Evaluator struct {
	catalog *catalog.Catalog
	auditor *audit.Log
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// New creates an Evaluator over the given catalog, recording decisions
// through the given audit log.
func New(c *catalog.Catalog, auditor *audit.Log, opts ...Option) *Evaluator {
	e := &Evaluator{
		catalog: c,
		auditor: auditor,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CheckFeature decides whether planSlug grants the feature. The result
// carries the minimum plan that would grant it so callers can surface
// an upgrade path. Unknown plan or feature degrades to a misconfigured
// denial; the decision is audited either way before returning.
func (e *Evaluator) CheckFeature(ctx context.Context, principalID, planSlug string, feature catalog.Feature) Result {
	res := Result{
		Feature:     feature,
		CurrentPlan: planSlug,
	}

	required := e.catalog.MinimumPlanFor(feature)
	if required != nil {
		res.RequiredPlan = required.Slug
	}

	if !e.catalog.KnownFeature(feature) {
		res.Reason = decision.ReasonMisconfigured
		e.logger.Warn("entitlement check against unknown feature",
			"feature", feature,
			"plan", planSlug,
			"principal_id", principalID,
		)
		e.record(ctx, principalID, res)
		return res
	}

	current, err := e.catalog.Get(planSlug)
	if err != nil {
		res.Reason = decision.ReasonMisconfigured
		e.logger.Warn("entitlement check against unknown plan",
			"plan", planSlug,
			"feature", feature,
			"principal_id", principalID,
		)
		e.record(ctx, principalID, res)
		return res
	}

	switch {
	case required == nil:
		// No published tier grants the feature.
		res.Reason = decision.ReasonMisconfigured
		e.logger.Warn("feature granted by no plan tier",
			"feature", feature,
			"catalog_version", e.catalog.Version(),
		)
	case current.TierRank >= required.TierRank:
		res.Allowed = true
		res.Reason = decision.ReasonAllowed
	default:
		res.Reason = decision.ReasonInsufficientPlan
	}

	e.record(ctx, principalID, res)
	return res
}

// CheckModule decides whether planSlug may access the module: allowed
// when the plan grants all modules or the allowlist contains moduleID.
func (e *Evaluator) CheckModule(ctx context.Context, principalID, planSlug, moduleID string) Result {
	res := Result{
		ModuleID:    moduleID,
		CurrentPlan: planSlug,
	}

	current, err := e.catalog.Get(planSlug)
	if err != nil {
		res.Reason = decision.ReasonMisconfigured
		e.logger.Warn("module check against unknown plan",
			"plan", planSlug,
			"module_id", moduleID,
			"principal_id", principalID,
		)
		e.record(ctx, principalID, res)
		return res
	}

	if current.AllowsModule(moduleID) {
		res.Allowed = true
		res.Reason = decision.ReasonAllowed
	} else {
		res.Reason = decision.ReasonInsufficientPlan
		if min := e.minimumPlanForModule(moduleID); min != nil {
			res.RequiredPlan = min.Slug
		}
	}

	e.record(ctx, principalID, res)
	return res
}

// minimumPlanForModule returns the lowest tier whose grant covers the
// module, or nil when none does.
func (e *Evaluator) minimumPlanForModule(moduleID string) *catalog.Plan {
	for _, p := range e.catalog.Plans() {
		if p.AllowsModule(moduleID) {
			return p
		}
	}
	return nil
}

// record appends the decision to the audit trail. Recording is part of
// the evaluation contract, not optional, but can never change the
// outcome.
func (e *Evaluator) record(ctx context.Context, principalID string, res Result) {
	if e.auditor == nil {
		return
	}

	d := decision.New(decision.KindEntitlement, res.Allowed, res.Reason, principalID, res.CurrentPlan)
	d.Feature = string(res.Feature)
	d.ModuleID = res.ModuleID
	if res.RequiredPlan != "" {
		d.Metadata = map[string]string{"required_plan": res.RequiredPlan}
	}

	e.auditor.Record(ctx, d)
}
