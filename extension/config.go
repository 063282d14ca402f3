package extension

import "time"

// Config holds the Gate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.gate" or "gate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// FailClosed denies requests when the usage store is unreachable.
	// The default is fail-open: a store outage admits traffic rather
	// than blocking paying callers.
	FailClosed bool `json:"fail_closed" mapstructure:"fail_closed" yaml:"fail_closed"`

	// FlushBatchSize is the number of usage events to buffer before
	// flushing to the store (default: 100).
	FlushBatchSize int `json:"flush_batch_size" mapstructure:"flush_batch_size" yaml:"flush_batch_size"`

	// FlushInterval is how frequently the usage buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	FlushInterval time.Duration `json:"flush_interval" mapstructure:"flush_interval" yaml:"flush_interval"`

	// UsageCacheTTL controls how long cached usage counters are trusted
	// before re-reading aggregates from the store (default: 5m).
	UsageCacheTTL time.Duration `json:"usage_cache_ttl" mapstructure:"usage_cache_ttl" yaml:"usage_cache_ttl"`

	// AuditBatchSize is the number of gate decisions to buffer before
	// flushing the audit log (default: 100).
	AuditBatchSize int `json:"audit_batch_size" mapstructure:"audit_batch_size" yaml:"audit_batch_size"`

	// AuditFlushInterval is how frequently buffered decisions are
	// written even if the batch size has not been reached (default: 2s).
	AuditFlushInterval time.Duration `json:"audit_flush_interval" mapstructure:"audit_flush_interval" yaml:"audit_flush_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushBatchSize:     100,
		FlushInterval:      5 * time.Second,
		UsageCacheTTL:      5 * time.Minute,
		AuditBatchSize:     100,
		AuditFlushInterval: 2 * time.Second,
	}
}
