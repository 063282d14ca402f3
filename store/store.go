// Package store defines the unified storage interface for all Gate
// entities.
package store

import (
	"context"
	"time"

	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/subscription"
)

// Store is the unified storage interface for all Gate entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Plans are deliberately absent: the plan catalog is static configuration
// held by catalog.Catalog, not persisted state.
type Store interface {
	// Subscription methods. The gate core reads GetActiveSubscription;
	// the write methods are the surface for the billing-webhook
	// collaborator.
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, principalID string) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, principalID string, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time) error

	// Usage methods. Append-only event log; SumUsage aggregates the
	// half-open interval [from, to).
	AppendUsage(ctx context.Context, records []*meter.UsageRecord) error
	SumUsage(ctx context.Context, principalID string, from, to time.Time) (int64, error)
	QueryUsage(ctx context.Context, principalID string, opts meter.QueryOpts) ([]*meter.UsageRecord, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)

	// Decision methods. Append-only audit trail.
	AppendDecisions(ctx context.Context, decisions []*decision.Decision) error
	QueryDecisions(ctx context.Context, principalID string, opts decision.QueryOpts) ([]*decision.Decision, error)
	PurgeDecisions(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
