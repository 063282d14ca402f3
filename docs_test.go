package gate_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/gate"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/store/memory"
	"github.com/xraph/gate/subscription"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		cat := catalog.MustNew("2025-01",
			[]catalog.Feature{"api_access", "can_export_pdf"},
			&catalog.Plan{
				Slug:     "free",
				Name:     "Free",
				TierRank: 0,
				Features: map[catalog.Feature]bool{"api_access": true},
				Modules:  catalog.Modules("core"),
				Limits:   catalog.UsageLimits{MonthlyCalls: 100, HourlyCalls: 10},
			},
			&catalog.Plan{
				Slug:     "pro",
				Name:     "Pro",
				TierRank: 1,
				Features: map[catalog.Feature]bool{"api_access": true, "can_export_pdf": true},
				Modules:  catalog.AllModules(),
				Limits:   catalog.UsageLimits{MonthlyCalls: 100000, HourlyCalls: 5000},
			},
		)

		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize the engine
		engine := gate.New(cat, store,
			gate.WithLogger(slog.Default()),
			gate.WithFlushConfig(100, 5*time.Second),
			gate.WithUsageCacheTTL(5*time.Minute),
		)

		// Start the engine
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// Subscribe a principal to the pro tier
		sub := &subscription.Subscription{
			PrincipalID: "acct_123",
			PlanSlug:    "pro",
			Status:      subscription.StatusActive,
		}
		if err := engine.CreateSubscription(ctx, sub); err != nil {
			t.Fatal(err)
		}

		// Gate a call
		resp, err := engine.Evaluate(ctx, gate.Request{
			PrincipalID: "acct_123",
			Feature:     "can_export_pdf",
			Endpoint:    "/v1/export",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !resp.Allowed {
			t.Fatalf("pro principal denied: %s", resp.Reason)
		}
		log.Printf("allowed, %d calls remaining this month\n", resp.Remaining)

		// Principals without a subscription fall back to the lowest tier
		resp, err = engine.Evaluate(ctx, gate.Request{
			PrincipalID: "acct_anonymous",
			Feature:     "can_export_pdf",
		})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Allowed {
			t.Fatal("free-tier principal was granted a pro feature")
		}
		if resp.RequiredPlan != "pro" {
			t.Fatalf("required plan = %q, want pro", resp.RequiredPlan)
		}
	})
}
