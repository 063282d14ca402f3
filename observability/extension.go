// Package observability provides a metrics extension for Gate that
// records gate decision counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/gate/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded      = (*MetricsExtension)(nil)
	_ plugin.OnRateLimited        = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed       = (*MetricsExtension)(nil)
	_ plugin.OnDecisionRecorded   = (*MetricsExtension)(nil)
	_ plugin.OnStoreDegraded      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide gate metrics. Register it as a
// Gate plugin to automatically track admission decisions.
type MetricsExtension struct {
	factory MetricFactory

	// Entitlement metrics
	EntitlementChecks Counter

	// Quota metrics
	QuotaDenials     Counter
	RateLimitDenials Counter

	// Usage metrics
	UsageRecorded     Counter
	UsageBatchSize    Histogram
	UsageFlushLatency Histogram

	// Audit metrics
	DecisionsRecorded Counter

	// Degradation metrics
	StoreDegradations Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Entitlement metrics
		EntitlementChecks: factory.Counter("gate.entitlement.checks"),

		// Quota metrics
		QuotaDenials:     factory.Counter("gate.quota.denied"),
		RateLimitDenials: factory.Counter("gate.ratelimit.denied"),

		// Usage metrics
		UsageRecorded:     factory.Counter("gate.usage.recorded"),
		UsageBatchSize:    factory.Histogram("gate.usage.batch.size"),
		UsageFlushLatency: factory.Histogram("gate.usage.flush.latency_ms"),

		// Audit metrics
		DecisionsRecorded: factory.Counter("gate.decisions.recorded"),

		// Degradation metrics
		StoreDegradations: factory.Counter("gate.store.degraded"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, _ interface{}) error {
	m.EntitlementChecks.Inc()
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _ string, _, _ int64) error {
	m.QuotaDenials.Inc()
	return nil
}

// OnRateLimited implements plugin.OnRateLimited.
func (m *MetricsExtension) OnRateLimited(_ context.Context, _ string, _, _ int64) error {
	m.RateLimitDenials.Inc()
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, _ interface{}) error {
	m.UsageRecorded.Inc()
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.UsageBatchSize.Observe(float64(count))
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnDecisionRecorded implements plugin.OnDecisionRecorded.
func (m *MetricsExtension) OnDecisionRecorded(_ context.Context, _ interface{}) error {
	m.DecisionsRecorded.Inc()
	return nil
}

// OnStoreDegraded implements plugin.OnStoreDegraded.
func (m *MetricsExtension) OnStoreDegraded(_ context.Context, _ string, _ error) error {
	m.StoreDegradations.Inc()
	return nil
}
