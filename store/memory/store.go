// Package memory provides an in-memory Store for tests and local
// development. Not durable: everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/gate"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/meter"
	"github.com/xraph/gate/subscription"
)

type Store struct {
	mu sync.RWMutex

	// Subscription storage
	subscriptions map[string]*subscription.Subscription

	// Usage events storage
	usage []*meter.UsageRecord

	// Idempotency index over usage records
	usageKeys map[string]bool

	// Decision storage
	decisions []*decision.Decision

	closed bool
}

func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		usage:         make([]*meter.UsageRecord, 0),
		usageKeys:     make(map[string]bool),
		decisions:     make([]*decision.Decision, 0),
	}
}

// Subscription store implementation

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gate.ErrStoreClosed
	}
	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return gate.ErrSubscriptionExists
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub, nil
	}
	return nil, gate.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(_ context.Context, principalID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.PrincipalID != principalID || !sub.Evaluable() {
			continue
		}
		if latest == nil || sub.PeriodStart.After(latest.PeriodStart) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, gate.ErrNoActiveSubscription
	}
	return latest, nil
}

func (s *Store) ListSubscriptions(_ context.Context, principalID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.PrincipalID != principalID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart.After(result[j].PeriodStart)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gate.ErrStoreClosed
	}
	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return gate.ErrSubscriptionNotFound
	}
	sub.Touch()
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, cancelAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gate.ErrStoreClosed
	}
	sub, exists := s.subscriptions[subID.String()]
	if !exists {
		return gate.ErrSubscriptionNotFound
	}
	now := time.Now().UTC()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &now
	sub.CancelAt = &cancelAt
	sub.Touch()
	return nil
}

// Usage store implementation

func (s *Store) AppendUsage(_ context.Context, records []*meter.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gate.ErrStoreClosed
	}
	for _, rec := range records {
		if rec.IdempotencyKey != "" {
			if s.usageKeys[rec.IdempotencyKey] {
				continue
			}
			s.usageKeys[rec.IdempotencyKey] = true
		}
		s.usage = append(s.usage, rec)
	}
	return nil
}

func (s *Store) SumUsage(_ context.Context, principalID string, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, rec := range s.usage {
		if rec.PrincipalID != principalID {
			continue
		}
		// Half-open interval: from inclusive, to exclusive.
		if rec.Timestamp.Before(from) || !rec.Timestamp.Before(to) {
			continue
		}
		sum += rec.Weight
	}
	return sum, nil
}

func (s *Store) QueryUsage(_ context.Context, principalID string, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*meter.UsageRecord, 0)
	for _, rec := range s.usage {
		if rec.PrincipalID != principalID {
			continue
		}
		if opts.Endpoint != "" && rec.Endpoint != opts.Endpoint {
			continue
		}
		if !opts.Start.IsZero() && rec.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !rec.Timestamp.Before(opts.End) {
			continue
		}
		result = append(result, rec)
	}
	// Newest first, matching the SQL and mongo backends.
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*meter.UsageRecord, 0, len(s.usage))
	var purged int64
	for _, rec := range s.usage {
		if rec.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	s.usage = kept
	return purged, nil
}

// Decision store implementation

func (s *Store) AppendDecisions(_ context.Context, decisions []*decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gate.ErrStoreClosed
	}
	s.decisions = append(s.decisions, decisions...)
	return nil
}

func (s *Store) QueryDecisions(_ context.Context, principalID string, opts decision.QueryOpts) ([]*decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*decision.Decision, 0)
	for _, d := range s.decisions {
		if d.PrincipalID != principalID {
			continue
		}
		if opts.Kind != "" && d.Kind != opts.Kind {
			continue
		}
		if opts.Passed != nil && d.Passed != *opts.Passed {
			continue
		}
		if !opts.Start.IsZero() && d.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !d.Timestamp.Before(opts.End) {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeDecisions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*decision.Decision, 0, len(s.decisions))
	var purged int64
	for _, d := range s.decisions {
		if d.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, d)
	}
	s.decisions = kept
	return purged, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
