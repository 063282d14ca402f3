package postgres

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

	ID          string            `grove:"id,pk"`
	PrincipalID string            `grove:"principal_id"`
	PlanSlug    string            `grove:"plan_slug"`
	Status      string            `grove:"status"`
	PeriodStart time.Time         `grove:"period_start"`
	PeriodEnd   time.Time         `grove:"period_end"`
	CanceledAt  *time.Time        `grove:"canceled_at"`
	CancelAt    *time.Time        `grove:"cancel_at"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
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

	ID             string            `grove:"id,pk"`
	PrincipalID    string            `grove:"principal_id"`
	Weight         int64             `grove:"weight"`
	Endpoint       string            `grove:"endpoint"`
	Timestamp      time.Time         `grove:"timestamp"`
	IdempotencyKey string            `grove:"idempotency_key"`
	Metadata       map[string]string `grove:"metadata,type:jsonb"`
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

	ID          string            `grove:"id,pk"`
	Kind        string            `grove:"kind"`
	Passed      bool              `grove:"passed"`
	Reason      string            `grove:"reason"`
	PrincipalID string            `grove:"principal_id"`
	PlanSlug    string            `grove:"plan_slug"`
	Feature     string            `grove:"feature"`
	ModuleID    string            `grove:"module_id"`
	Timestamp   time.Time         `grove:"timestamp"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
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
