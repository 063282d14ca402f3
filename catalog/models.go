package catalog

import (
	"github.com/xraph/gate/id"
	"github.com/xraph/gate/types"
)

// Feature is a named capability gated by entitlement. The set of valid
// features is closed at catalog construction: a plan flagging a feature
// outside the declared universe fails New rather than producing silent
// misconfigured denials at evaluation time.
type Feature string

// Format is an export format a plan may permit.
type Format string

// Common export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatZIP  Format = "zip"
)

// UsageLimits holds the numeric usage ceilings for a plan.
// A limit of -1 means unlimited.
type UsageLimits struct {
	// MonthlyCalls is the budget for the current calendar month (UTC).
	MonthlyCalls int64 `json:"monthly_calls"`

	// HourlyCalls is the burst budget for the trailing 60 minutes.
	HourlyCalls int64 `json:"hourly_calls"`

	// ExportFormats lists the formats the plan may export to.
	ExportFormats []Format `json:"export_formats,omitempty"`
}

// ModuleGrant describes which modules a plan may access: either all of
// them, or an explicit allowlist.
type ModuleGrant struct {
	All bool            `json:"all"`
	IDs map[string]bool `json:"ids,omitempty"`
}

// AllModules grants access to every module.
func AllModules() ModuleGrant {
	return ModuleGrant{All: true}
}

// Modules grants access to the listed module IDs only.
func Modules(ids ...string) ModuleGrant {
	g := ModuleGrant{IDs: make(map[string]bool, len(ids))}
	for _, m := range ids {
		g.IDs[m] = true
	}
	return g
}

// Contains reports whether the grant covers the given module ID.
func (g ModuleGrant) Contains(moduleID string) bool {
	if g.All {
		return true
	}
	return g.IDs[moduleID]
}

// Plan is a published subscription tier. Plans are immutable once a
// catalog is built from them; operators publish a new catalog version
// to change tiers.
type Plan struct {
	types.Entity
	ID       id.PlanID        `json:"id"`
	Slug     string           `json:"slug"`
	Name     string           `json:"name"`
	TierRank int              `json:"tier_rank"`
	Features map[Feature]bool `json:"features"`
	Modules  ModuleGrant      `json:"modules"`
	Limits   UsageLimits      `json:"limits"`
}

// Grants reports whether the plan enables the given feature flag.
func (p *Plan) Grants(f Feature) bool {
	return p.Features[f]
}

// AllowsModule reports whether the plan may access the given module.
func (p *Plan) AllowsModule(moduleID string) bool {
	return p.Modules.Contains(moduleID)
}

// AllowsFormat reports whether the plan may export to the given format.
func (p *Plan) AllowsFormat(f Format) bool {
	for _, allowed := range p.Limits.ExportFormats {
		if allowed == f {
			return true
		}
	}
	return false
}
