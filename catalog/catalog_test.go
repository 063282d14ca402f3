package catalog_test

import (
	"errors"
	"testing"

	"github.com/xraph/gate/catalog"
)

const (
	featExportPDF   catalog.Feature = "can_export_pdf"
	featAPIAccess   catalog.Feature = "api_access"
	featCustomRoles catalog.Feature = "custom_roles"
)

var universe = []catalog.Feature{featExportPDF, featAPIAccess, featCustomRoles}

func testPlans() []*catalog.Plan {
	return []*catalog.Plan{
		{
			Slug:     "free",
			Name:     "Free",
			TierRank: 0,
			Features: map[catalog.Feature]bool{featAPIAccess: true},
			Modules:  catalog.Modules("core"),
			Limits:   catalog.UsageLimits{MonthlyCalls: 100, HourlyCalls: 10},
		},
		{
			Slug:     "starter",
			Name:     "Starter",
			TierRank: 1,
			Features: map[catalog.Feature]bool{featAPIAccess: true},
			Modules:  catalog.Modules("core", "reports"),
			Limits:   catalog.UsageLimits{MonthlyCalls: 1000, HourlyCalls: 100},
		},
		{
			Slug:     "pro",
			Name:     "Pro",
			TierRank: 2,
			Features: map[catalog.Feature]bool{
				featAPIAccess:   true,
				featExportPDF:   true,
				featCustomRoles: true,
			},
			Modules: catalog.AllModules(),
			Limits: catalog.UsageLimits{
				MonthlyCalls:  100000,
				HourlyCalls:   5000,
				ExportFormats: []catalog.Format{catalog.FormatJSON, catalog.FormatCSV, catalog.FormatPDF},
			},
		},
	}
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("v1", universe, testPlans()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestGet(t *testing.T) {
	c := mustCatalog(t)

	p, err := c.Get("pro")
	if err != nil {
		t.Fatalf("Get(pro) failed: %v", err)
	}
	if p.TierRank != 2 {
		t.Errorf("expected rank 2, got %d", p.TierRank)
	}

	_, err = c.Get("enterprise")
	if !errors.Is(err, catalog.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	c := mustCatalog(t)
	free, _ := c.Get("free")
	pro, _ := c.Get("pro")

	if got := c.Compare(free, pro); got != -1 {
		t.Errorf("Compare(free, pro) = %d, want -1", got)
	}
	if got := c.Compare(pro, free); got != 1 {
		t.Errorf("Compare(pro, free) = %d, want 1", got)
	}
	if got := c.Compare(pro, pro); got != 0 {
		t.Errorf("Compare(pro, pro) = %d, want 0", got)
	}
}

func TestLowest(t *testing.T) {
	c := mustCatalog(t)
	if c.Lowest().Slug != "free" {
		t.Errorf("Lowest() = %q, want free", c.Lowest().Slug)
	}
}

func TestMinimumPlanFor(t *testing.T) {
	c := mustCatalog(t)

	if p := c.MinimumPlanFor(featExportPDF); p == nil || p.Slug != "pro" {
		t.Errorf("MinimumPlanFor(export_pdf) = %v, want pro", p)
	}
	if p := c.MinimumPlanFor(featAPIAccess); p == nil || p.Slug != "free" {
		t.Errorf("MinimumPlanFor(api_access) = %v, want free", p)
	}
	if p := c.MinimumPlanFor("nonexistent"); p != nil {
		t.Errorf("MinimumPlanFor(nonexistent) = %v, want nil", p)
	}
}

func TestMonotonicityViolationRejected(t *testing.T) {
	plans := testPlans()
	// Enable a feature at rank 1 that rank 2 does not carry.
	plans[1].Features = map[catalog.Feature]bool{featAPIAccess: true, featCustomRoles: true}
	plans[2].Features = map[catalog.Feature]bool{featAPIAccess: true, featExportPDF: true}

	if _, err := catalog.New("v1", universe, plans...); err == nil {
		t.Fatal("expected monotonicity violation error")
	}
}

func TestMonotonicityHolds(t *testing.T) {
	c := mustCatalog(t)
	plans := c.Plans()

	for i := 0; i < len(plans)-1; i++ {
		for f, enabled := range plans[i].Features {
			if enabled && !plans[i+1].Features[f] {
				t.Errorf("feature %q enabled at %q but not at %q", f, plans[i].Slug, plans[i+1].Slug)
			}
		}
	}
}

func TestUnknownFeatureRejected(t *testing.T) {
	plans := testPlans()
	plans[0].Features["made_up_flag"] = true

	if _, err := catalog.New("v1", universe, plans...); err == nil {
		t.Fatal("expected unknown feature error")
	}
}

func TestDuplicateSlugRejected(t *testing.T) {
	plans := testPlans()
	plans[1].Slug = "free"
	plans[1].TierRank = 5

	if _, err := catalog.New("v1", universe, plans...); err == nil {
		t.Fatal("expected duplicate slug error")
	}
}

func TestDuplicateRankRejected(t *testing.T) {
	plans := testPlans()
	plans[1].TierRank = 0

	if _, err := catalog.New("v1", universe, plans...); err == nil {
		t.Fatal("expected duplicate rank error")
	}
}

func TestModuleGrant(t *testing.T) {
	c := mustCatalog(t)
	free, _ := c.Get("free")
	pro, _ := c.Get("pro")

	if !free.AllowsModule("core") {
		t.Error("free should allow core module")
	}
	if free.AllowsModule("reports") {
		t.Error("free should not allow reports module")
	}
	if !pro.AllowsModule("anything") {
		t.Error("pro grants all modules")
	}
}

func TestExportFormats(t *testing.T) {
	c := mustCatalog(t)
	free, _ := c.Get("free")
	pro, _ := c.Get("pro")

	if free.AllowsFormat(catalog.FormatPDF) {
		t.Error("free should not allow pdf export")
	}
	if !pro.AllowsFormat(catalog.FormatPDF) {
		t.Error("pro should allow pdf export")
	}
}
