// Package subscription defines the subscription state consumed by the gate.
//
// Subscription rows are written by an external billing-webhook collaborator
// through the store interface; the gate core only ever reads them. A
// principal has at most one Active subscription at a time; superseded rows
// are retained for history and excluded from evaluation.
package subscription

import (
	"time"

	"github.com/xraph/gate/id"
	"github.com/xraph/gate/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

type Subscription struct {
	types.Entity
	ID          id.SubscriptionID `json:"id"`
	PrincipalID string            `json:"principal_id"`
	PlanSlug    string            `json:"plan_slug"`
	Status      Status            `json:"status"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	CanceledAt  *time.Time        `json:"canceled_at,omitempty"`
	CancelAt    *time.Time        `json:"cancel_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Evaluable reports whether the subscription counts toward gate
// evaluation. PastDue and Canceled principals fall back to the lowest
// catalog tier.
func (s *Subscription) Evaluable() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}
