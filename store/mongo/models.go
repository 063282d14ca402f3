package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/subscription"
	"github.com/xraph/gate/types"
)

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:gate_subscriptions"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	PrincipalID string            `grove:"principal_id" bson:"principal_id"`
	PlanSlug    string            `grove:"plan_slug"    bson:"plan_slug"`
	Status      string            `grove:"status"       bson:"status"`
	PeriodStart time.Time         `grove:"period_start" bson:"period_start"`
	PeriodEnd   time.Time         `grove:"period_end"   bson:"period_end"`
	CanceledAt  *time.Time        `grove:"canceled_at"  bson:"canceled_at,omitempty"`
	CancelAt    *time.Time        `grove:"cancel_at"    bson:"cancel_at,omitempty"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"   bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          s.ID.String(),
		PrincipalID: s.PrincipalID,
		PlanSlug:    s.PlanSlug,
		Status:      string(s.Status),
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
		CanceledAt:  s.CanceledAt,
		CancelAt:    s.CancelAt,
		Metadata:    s.Metadata,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          subID,
		PrincipalID: m.PrincipalID,
		PlanSlug:    m.PlanSlug,
		Status:      subscription.Status(m.Status),
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		CanceledAt:  m.CanceledAt,
		CancelAt:    m.CancelAt,
		Metadata:    m.Metadata,
	}, nil
}

// ==================== Usage models ====================

type usageRecordModel struct {
	grove.BaseModel `grove:"table:gate_usage_events"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	PrincipalID    string            `grove:"principal_id"    bson:"principal_id"`
	Weight         int64             `grove:"weight"          bson:"weight"`
	Endpoint       string            `grove:"endpoint"        bson:"endpoint"`
	Timestamp      time.Time         `grove:"timestamp"       bson:"timestamp"`
	IdempotencyKey string            `grove:"idempotency_key" bson:"idempotency_key,omitempty"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
}

func toUsageRecordModel(r *meter.UsageRecord) *usageRecordModel {
	return &usageRecordModel{
		ID:             r.ID.String(),
		PrincipalID:    r.PrincipalID,
		Weight:         r.Weight,
		Endpoint:       r.Endpoint,
		Timestamp:      r.Timestamp,
		IdempotencyKey: r.IdempotencyKey,
		Metadata:       r.Metadata,
	}
}

func fromUsageRecordModel(m *usageRecordModel) (*meter.UsageRecord, error) {
	recID, err := id.ParseUsageRecordID(m.ID)
	if err != nil {
		return nil, err
	}

	return &meter.UsageRecord{
		ID:             recID,
		PrincipalID:    m.PrincipalID,
		Weight:         m.Weight,
		Endpoint:       m.Endpoint,
		Timestamp:      m.Timestamp,
		IdempotencyKey: m.IdempotencyKey,
		Metadata:       m.Metadata,
	}, nil
}

// ==================== Decision models ====================

type decisionModel struct {
	grove.BaseModel `grove:"table:gate_decisions"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	Kind        string            `grove:"kind"         bson:"kind"`
	Passed      bool              `grove:"passed"       bson:"passed"`
	Reason      string            `grove:"reason"       bson:"reason"`
	PrincipalID string            `grove:"principal_id" bson:"principal_id"`
	PlanSlug    string            `grove:"plan_slug"    bson:"plan_slug"`
	Feature     string            `grove:"feature"      bson:"feature,omitempty"`
	ModuleID    string            `grove:"module_id"    bson:"module_id,omitempty"`
	Timestamp   time.Time         `grove:"timestamp"    bson:"timestamp"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
}

func toDecisionModel(d *decision.Decision) *decisionModel {
	return &decisionModel{
		ID:          d.ID.String(),
		Kind:        string(d.Kind),
		Passed:      d.Passed,
		Reason:      string(d.Reason),
		PrincipalID: d.PrincipalID,
		PlanSlug:    d.PlanSlug,
		Feature:     d.Feature,
		ModuleID:    d.ModuleID,
		Timestamp:   d.Timestamp,
		Metadata:    d.Metadata,
	}
}

func fromDecisionModel(m *decisionModel) (*decision.Decision, error) {
	decID, err := id.ParseDecisionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &decision.Decision{
		ID:          decID,
		Kind:        decision.Kind(m.Kind),
		Passed:      m.Passed,
		Reason:      decision.Reason(m.Reason),
		PrincipalID: m.PrincipalID,
		PlanSlug:    m.PlanSlug,
		Feature:     m.Feature,
		ModuleID:    m.ModuleID,
		Timestamp:   m.Timestamp,
		Metadata:    m.Metadata,
	}, nil
}
