package subscription

import (
	"context"
	"time"

	"github.com/xraph/gate/id"
)

// Store is the subscription persistence boundary. The gate core calls
// GetActive only; the remaining methods are the write surface used by
// the billing-webhook collaborator.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetActive(ctx context.Context, principalID string) (*Subscription, error)
	List(ctx context.Context, principalID string, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Cancel(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
