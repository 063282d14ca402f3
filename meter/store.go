package meter

import (
	"context"
	"time"
)

// Store is the durable usage event log. It is the single source of
// truth for usage; in-process counters are a cache in front of it and
// are never authoritative.
type Store interface {
	// AppendUsage persists a batch of usage records.
	AppendUsage(ctx context.Context, records []*UsageRecord) error

	// SumUsage returns the total weight of records for the principal in
	// the half-open interval [from, to).
	SumUsage(ctx context.Context, principalID string, from, to time.Time) (int64, error)

	// QueryUsage returns raw records for inspection and debugging.
	QueryUsage(ctx context.Context, principalID string, opts QueryOpts) ([]*UsageRecord, error)

	// PurgeUsage deletes records older than the cutoff. Retention
	// policy is external to the gate core.
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)
}

type QueryOpts struct {
	Endpoint string
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}
