package entitlement_test

import (
	"context"
	"sync"
	"testing"

	"github.com/xraph/gate/audit"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/entitlement"
)

const (
	featExportPDF catalog.Feature = "can_export_pdf"
	featAPIAccess catalog.Feature = "api_access"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("v1",
		[]catalog.Feature{featExportPDF, featAPIAccess},
		&catalog.Plan{
			Slug:     "free",
			TierRank: 0,
			Features: map[catalog.Feature]bool{featAPIAccess: true},
			Modules:  catalog.Modules("core"),
			Limits:   catalog.UsageLimits{MonthlyCalls: 100, HourlyCalls: 10},
		},
		&catalog.Plan{
			Slug:     "pro",
			TierRank: 2,
			Features: map[catalog.Feature]bool{featAPIAccess: true, featExportPDF: true},
			Modules:  catalog.AllModules(),
			Limits:   catalog.UsageLimits{MonthlyCalls: 100000, HourlyCalls: 5000},
		},
	)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return c
}

type memorySink struct {
	mu   sync.Mutex
	decs []*decision.Decision
}

func (s *memorySink) AppendDecisions(_ context.Context, decs []*decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decs = append(s.decs, decs...)
	return nil
}

func newEvaluator(t *testing.T) (*entitlement.Evaluator, *audit.Log) {
	t.Helper()
	log := audit.New(&memorySink{})
	return entitlement.New(testCatalog(t), log), log
}

func TestCheckFeatureDeniedOnLowerTier(t *testing.T) {
	e, _ := newEvaluator(t)

	res := e.CheckFeature(context.Background(), "principal_1", "free", featExportPDF)

	if res.Allowed {
		t.Error("free plan must not export pdf")
	}
	if res.Reason != decision.ReasonInsufficientPlan {
		t.Errorf("reason = %q, want %q", res.Reason, decision.ReasonInsufficientPlan)
	}
	if res.RequiredPlan != "pro" {
		t.Errorf("required plan = %q, want pro", res.RequiredPlan)
	}
	if res.CurrentPlan != "free" {
		t.Errorf("current plan = %q, want free", res.CurrentPlan)
	}
}

func TestCheckFeatureAllowedOnSufficientTier(t *testing.T) {
	e, _ := newEvaluator(t)

	res := e.CheckFeature(context.Background(), "principal_1", "pro", featExportPDF)

	if !res.Allowed {
		t.Error("pro plan must export pdf")
	}
	if res.Reason != decision.ReasonAllowed {
		t.Errorf("reason = %q, want %q", res.Reason, decision.ReasonAllowed)
	}
}

func TestCheckFeatureUnknownPlanDegradesToDenial(t *testing.T) {
	e, _ := newEvaluator(t)

	res := e.CheckFeature(context.Background(), "principal_1", "enterprise", featExportPDF)

	if res.Allowed {
		t.Error("unknown plan must be denied, not allowed")
	}
	if res.Reason != decision.ReasonMisconfigured {
		t.Errorf("reason = %q, want %q", res.Reason, decision.ReasonMisconfigured)
	}
	// The lowest tier granting the feature is still reported.
	if res.RequiredPlan != "pro" {
		t.Errorf("required plan = %q, want pro", res.RequiredPlan)
	}
}

func TestCheckFeatureUnknownFeature(t *testing.T) {
	e, _ := newEvaluator(t)

	res := e.CheckFeature(context.Background(), "principal_1", "pro", "made_up")

	if res.Allowed {
		t.Error("unknown feature must be denied")
	}
	if res.Reason != decision.ReasonMisconfigured {
		t.Errorf("reason = %q, want %q", res.Reason, decision.ReasonMisconfigured)
	}
}

func TestIdempotentDenial(t *testing.T) {
	e, _ := newEvaluator(t)
	ctx := context.Background()

	first := e.CheckFeature(ctx, "principal_1", "free", featExportPDF)
	second := e.CheckFeature(ctx, "principal_1", "free", featExportPDF)

	if first.Reason != second.Reason || first.RequiredPlan != second.RequiredPlan {
		t.Errorf("re-issued denial differs: %+v vs %+v", first, second)
	}
}

func TestCheckModule(t *testing.T) {
	e, _ := newEvaluator(t)
	ctx := context.Background()

	if res := e.CheckModule(ctx, "principal_1", "free", "core"); !res.Allowed {
		t.Error("free plan allows the core module")
	}

	res := e.CheckModule(ctx, "principal_1", "free", "reports")
	if res.Allowed {
		t.Error("free plan must not access the reports module")
	}
	if res.Reason != decision.ReasonInsufficientPlan {
		t.Errorf("reason = %q, want %q", res.Reason, decision.ReasonInsufficientPlan)
	}
	if res.RequiredPlan != "pro" {
		t.Errorf("required plan = %q, want pro", res.RequiredPlan)
	}

	if res := e.CheckModule(ctx, "principal_1", "pro", "reports"); !res.Allowed {
		t.Error("pro plan grants all modules")
	}
}

func TestEveryOutcomeIsAudited(t *testing.T) {
	sink := &memorySink{}
	log := audit.New(sink)
	ctx := context.Background()
	log.Start(ctx)

	e := entitlement.New(testCatalog(t), log)
	e.CheckFeature(ctx, "principal_1", "pro", featExportPDF)  // allowed
	e.CheckFeature(ctx, "principal_1", "free", featExportPDF) // denied
	e.CheckModule(ctx, "principal_1", "free", "reports")      // denied

	log.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.decs) != 3 {
		t.Fatalf("expected 3 audited decisions, got %d", len(sink.decs))
	}
	for _, d := range sink.decs {
		if d.Kind != decision.KindEntitlement {
			t.Errorf("decision kind = %q, want %q", d.Kind, decision.KindEntitlement)
		}
	}
}
