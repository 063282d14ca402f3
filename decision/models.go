// Package decision defines the append-only gate decision record and the
// reason-code taxonomy shared by the evaluator and the limiter.
package decision

import (
	"context"
	"time"

	"github.com/xraph/gate/id"
)

// Kind distinguishes static entitlement decisions from dynamic quota
// decisions.
type Kind string

const (
	KindEntitlement Kind = "entitlement"
	KindQuota       Kind = "quota"
)

// Reason classifies a gate outcome. Denials are business-expected
// results carried in structured responses, never raised as errors.
type Reason string

const (
	// ReasonAllowed marks a passed gate.
	ReasonAllowed Reason = "allowed"

	// ReasonInsufficientPlan means the static entitlement was denied;
	// recoverable only by upgrading, never retried automatically.
	ReasonInsufficientPlan Reason = "insufficient_plan"

	// ReasonQuotaExceeded means the monthly budget is exhausted until
	// the period resets.
	ReasonQuotaExceeded Reason = "quota_exceeded"

	// ReasonRateLimited means the hourly burst ceiling was hit; callers
	// may retry after the indicated reset time.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonMisconfigured means an unknown plan or feature was
	// presented. Treated as denial and logged at higher severity for
	// operator attention.
	ReasonMisconfigured Reason = "misconfigured"

	// ReasonStoreUnavailable flags a degraded evaluation: durable
	// storage could not be consulted and the configured policy decided
	// the outcome.
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Retryable reports whether a caller may retry after a delay.
func (r Reason) Retryable() bool {
	return r == ReasonRateLimited
}

// Decision is one append-only audit fact: a single allow/deny
// evaluation, recorded for both outcomes. Decisions are never a source
// of truth for entitlement or quota state.
type Decision struct {
	ID          id.DecisionID     `json:"id"`
	Kind        Kind              `json:"kind"`
	Passed      bool              `json:"passed"`
	Reason      Reason            `json:"reason"`
	PrincipalID string            `json:"principal_id"`
	PlanSlug    string            `json:"plan_slug"`
	Feature     string            `json:"feature,omitempty"`
	ModuleID    string            `json:"module_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New builds a decision stamped with a fresh ID and the current time.
func New(kind Kind, passed bool, reason Reason, principalID, planSlug string) *Decision {
	return &Decision{
		ID:          id.NewDecisionID(),
		Kind:        kind,
		Passed:      passed,
		Reason:      reason,
		PrincipalID: principalID,
		PlanSlug:    planSlug,
		Timestamp:   time.Now().UTC(),
	}
}

// Store is the durable decision sink. Append-only: no update or delete
// path exists in the gate core.
type Store interface {
	AppendDecisions(ctx context.Context, decisions []*Decision) error
	QueryDecisions(ctx context.Context, principalID string, opts QueryOpts) ([]*Decision, error)
	PurgeDecisions(ctx context.Context, before time.Time) (int64, error)
}

type QueryOpts struct {
	Kind   Kind
	Passed *bool
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
