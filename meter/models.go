// Package meter defines the append-only usage event log and the UTC
// window math used for quota accounting.
package meter

import (
	"time"

	"github.com/xraph/gate/id"
)

// UsageRecord is one metered call. Records are append-only; nothing in
// the gate core updates or deletes them (retention runs externally via
// the store's purge method).
type UsageRecord struct {
	ID             id.UsageRecordID  `json:"id"`
	PrincipalID    string            `json:"principal_id"`
	Weight         int64             `json:"weight"`
	Endpoint       string            `json:"endpoint"`
	Timestamp      time.Time         `json:"timestamp"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewUsageRecord builds a record for one metered call. The timestamp
// is normalized to UTC so window math never sees a local zone.
func NewUsageRecord(principalID string, weight int64, endpoint string, at time.Time) *UsageRecord {
	if weight <= 0 {
		weight = 1
	}
	return &UsageRecord{
		ID:          id.NewUsageRecordID(),
		PrincipalID: principalID,
		Weight:      weight,
		Endpoint:    endpoint,
		Timestamp:   at.UTC(),
	}
}
