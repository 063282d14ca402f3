// Package extension provides the Forge extension adapter for Gate.
//
// It implements the forge.Extension interface to integrate Gate
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.gate" or "gate" keys.
// The plan catalog itself is always provided programmatically (via
// WithCatalog): plan definitions are code, not configuration.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	gate "github.com/xraph/gate"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/quota"
	"github.com/xraph/gate/store"
	"github.com/xraph/gate/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "gate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement and usage-quota admission control"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Gate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	catalog  *catalog.Catalog
	engine   *gate.Engine
	store    store.Store
	gateOpts []gate.Option
}

// New creates a new Gate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Gate engine.
// This is nil until Register is called.
func (e *Extension) Engine() *gate.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the gate engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if e.catalog == nil {
		return errors.New("gate: no plan catalog provided; use extension.WithCatalog")
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build gate options from resolved config.
	opts := e.buildGateOpts()

	eng := gate.New(e.catalog, e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*gate.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("gate: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("gate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildGateOpts constructs gate.Option values from the resolved config.
func (e *Extension) buildGateOpts() []gate.Option {
	opts := make([]gate.Option, 0, len(e.gateOpts)+5)

	opts = append(opts, gate.WithFlushConfig(e.config.FlushBatchSize, e.config.FlushInterval))
	opts = append(opts, gate.WithAuditConfig(e.config.AuditBatchSize, e.config.AuditFlushInterval))
	opts = append(opts, gate.WithUsageCacheTTL(e.config.UsageCacheTTL))

	if e.config.FailClosed {
		opts = append(opts, gate.WithLimitPolicy(quota.FailClosed))
	}
	if e.config.DisableMigrate {
		opts = append(opts, gate.WithMigrateDisabled())
	}

	// Append any pass-through gate options.
	opts = append(opts, e.gateOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("gate: configuration is required but not found in config files; " +
				"ensure 'extensions.gate' or 'gate' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("gate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("fail_closed", e.config.FailClosed),
		forge.F("flush_batch_size", e.config.FlushBatchSize),
		forge.F("flush_interval", e.config.FlushInterval),
		forge.F("usage_cache_ttl", e.config.UsageCacheTTL),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.gate" first (namespaced pattern).
	if cm.IsSet("extensions.gate") {
		if err := cm.Bind("extensions.gate", &cfg); err == nil {
			e.Logger().Debug("gate: loaded config from file",
				forge.F("key", "extensions.gate"),
			)
			return cfg, true
		}
		e.Logger().Warn("gate: failed to bind extensions.gate config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "gate" key.
	if cm.IsSet("gate") {
		if err := cm.Bind("gate", &cfg); err == nil {
			e.Logger().Debug("gate: loaded config from file",
				forge.F("key", "gate"),
			)
			return cfg, true
		}
		e.Logger().Warn("gate: failed to bind gate config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.FlushBatchSize == 0 {
		cfg.FlushBatchSize = defaults.FlushBatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.UsageCacheTTL == 0 {
		cfg.UsageCacheTTL = defaults.UsageCacheTTL
	}
	if cfg.AuditBatchSize == 0 {
		cfg.AuditBatchSize = defaults.AuditBatchSize
	}
	if cfg.AuditFlushInterval == 0 {
		cfg.AuditFlushInterval = defaults.AuditFlushInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.FailClosed {
		yamlConfig.FailClosed = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.FlushBatchSize == 0 && programmaticConfig.FlushBatchSize != 0 {
		yamlConfig.FlushBatchSize = programmaticConfig.FlushBatchSize
	}
	if yamlConfig.FlushInterval == 0 && programmaticConfig.FlushInterval != 0 {
		yamlConfig.FlushInterval = programmaticConfig.FlushInterval
	}
	if yamlConfig.UsageCacheTTL == 0 && programmaticConfig.UsageCacheTTL != 0 {
		yamlConfig.UsageCacheTTL = programmaticConfig.UsageCacheTTL
	}
	if yamlConfig.AuditBatchSize == 0 && programmaticConfig.AuditBatchSize != 0 {
		yamlConfig.AuditBatchSize = programmaticConfig.AuditBatchSize
	}
	if yamlConfig.AuditFlushInterval == 0 && programmaticConfig.AuditFlushInterval != 0 {
		yamlConfig.AuditFlushInterval = programmaticConfig.AuditFlushInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
