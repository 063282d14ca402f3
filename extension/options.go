package extension

import (
	"time"

	gate "github.com/xraph/gate"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/plugin"
	"github.com/xraph/gate/store"
)

// Option configures the Gate Forge extension.
type Option func(*Extension)

// WithCatalog sets the plan catalog for the gate engine. A catalog is
// required: plan definitions are code, not configuration.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Extension) {
		e.catalog = c
	}
}

// WithStore sets the store for the gate engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGateOption passes a gate.Option through to the underlying engine.
func WithGateOption(opt gate.Option) Option {
	return func(e *Extension) {
		e.gateOpts = append(e.gateOpts, opt)
	}
}

// WithPlugin registers a gate plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gateOpts = append(e.gateOpts, gate.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithFailClosed denies requests when the usage store is unreachable.
func WithFailClosed() Option {
	return func(e *Extension) { e.config.FailClosed = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFlushBatchSize sets the number of usage events to buffer before flushing.
func WithFlushBatchSize(size int) Option {
	return func(e *Extension) { e.config.FlushBatchSize = size }
}

// WithFlushInterval sets how frequently the usage buffer is flushed.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.FlushInterval = d }
}

// WithUsageCacheTTL sets how long cached usage counters are trusted.
func WithUsageCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.UsageCacheTTL = d }
}

// WithAuditBatchSize sets the number of decisions to buffer before flushing.
func WithAuditBatchSize(size int) Option {
	return func(e *Extension) { e.config.AuditBatchSize = size }
}

// WithAuditFlushInterval sets how frequently buffered decisions are written.
func WithAuditFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.AuditFlushInterval = d }
}
