// Package gate provides a composable admission-control engine for Go
// applications: per-principal entitlement evaluation plus usage-quota
// enforcement, gated on tiered subscription plans.
//
// Gate is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - Static entitlement checks against a versioned plan catalog
//   - Monthly and hourly usage enforcement with a write-through
//     counter cache in front of durable storage
//   - Atomic check-and-reserve so concurrent calls near a limit can
//     never over-admit
//   - Configurable fail-open or fail-closed behavior during store
//     outages
//   - A fire-and-forget audit trail recording every allow and deny
//
// # Quick Start
//
// Build a plan catalog, pick a store, and create the engine:
//
//	import (
//	    "github.com/xraph/gate"
//	    "github.com/xraph/gate/catalog"
//	    "github.com/xraph/gate/store/memory"
//	)
//
//	cat := catalog.MustNew("2025-01",
//	    []catalog.Feature{"api_access", "can_export_pdf"},
//	    &catalog.Plan{
//	        Slug:     "free",
//	        TierRank: 0,
//	        Features: map[catalog.Feature]bool{"api_access": true},
//	        Modules:  catalog.Modules("core"),
//	        Limits:   catalog.UsageLimits{MonthlyCalls: 100, HourlyCalls: 10},
//	    },
//	    &catalog.Plan{
//	        Slug:     "pro",
//	        TierRank: 1,
//	        Features: map[catalog.Feature]bool{"api_access": true, "can_export_pdf": true},
//	        Modules:  catalog.AllModules(),
//	        Limits:   catalog.UsageLimits{MonthlyCalls: 100000, HourlyCalls: 5000},
//	    },
//	)
//
//	engine := gate.New(cat, memory.New())
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// Gate a call with one Evaluate:
//
//	resp, err := engine.Evaluate(ctx, gate.Request{
//	    PrincipalID: "acct_123",
//	    Feature:     "api_access",
//	    Endpoint:    "/v1/export",
//	})
//	if err != nil {
//	    return err
//	}
//	if !resp.Allowed {
//	    // resp.Reason says why; resp.RequiredPlan names the upgrade
//	    // path for plan denials, resp.ResetTime when quota denials
//	    // clear.
//	}
//
// # Evaluation Order
//
// Evaluate always runs static entitlement before quota, and the
// monthly budget before the hourly ceiling, so the reported reason is
// the most durable applicable denial. Denials are results, not errors:
// the error return fires only on invalid input.
//
// # Degraded Mode
//
// When the durable store cannot be reached, the engine keeps serving
// using its policy (fail-open by default) and marks every affected
// verdict Degraded. Counters reconcile from the store once it returns.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	gdec_01h455vb4pex5vsknk084sn02q  // Decision ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package gate
