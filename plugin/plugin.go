// Package plugin provides an extensible plugin system for Gate.
// Plugins can hook into gate lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called after every static entitlement check,
// allowed or denied.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, result interface{}) error
}

// OnQuotaExceeded is called when a monthly budget denial occurs.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, principalID string, used, limit int64) error
}

// OnRateLimited is called when an hourly burst denial occurs.
type OnRateLimited interface {
	Plugin
	OnRateLimited(ctx context.Context, principalID string, used, limit int64) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called when a usage record is accepted.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, record interface{}) error
}

// OnUsageFlushed is called when buffered usage records reach the store.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Audit hooks
// ──────────────────────────────────────────────────

// OnDecisionRecorded is called for every gate decision appended to the
// audit trail.
type OnDecisionRecorded interface {
	Plugin
	OnDecisionRecorded(ctx context.Context, dec interface{}) error
}

// ──────────────────────────────────────────────────
// Degradation hooks
// ──────────────────────────────────────────────────

// OnStoreDegraded is called when durable storage could not be consulted
// and the fail-open/fail-closed policy decided a gate outcome.
type OnStoreDegraded interface {
	Plugin
	OnStoreDegraded(ctx context.Context, principalID string, err error) error
}
