// Package catalog provides the static, versioned table of plan tiers.
//
// A Catalog is built once from configuration and never mutated; tier
// comparisons, feature lookups, and limit lookups are all pure reads.
// Construction validates the plan set so that a misconfigured catalog
// (unknown feature flags, duplicate ranks, or broken tier monotonicity)
// fails loudly at startup instead of corrupting gate decisions at runtime.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrPlanNotFound is returned by Get for an unknown plan slug.
// The root gate package re-exports it as gate.ErrPlanNotFound.
var ErrPlanNotFound = errors.New("plan not found")

// Catalog is an immutable, versioned set of plans ordered by tier rank.
type Catalog struct {
	version  string
	features map[Feature]bool
	bySlug   map[string]*Plan
	byRank   []*Plan // ascending TierRank
}

// New builds a Catalog from the declared feature universe and plan set.
// It returns an error when:
//   - a plan flags a feature outside the universe,
//   - two plans share a slug or a tier rank,
//   - the monotonicity invariant is violated (a feature enabled at a
//     lower rank must be enabled at every higher rank).
func New(version string, features []Feature, plans ...*Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog: version %q has no plans", version)
	}

	universe := make(map[Feature]bool, len(features))
	for _, f := range features {
		universe[f] = true
	}

	c := &Catalog{
		version:  version,
		features: universe,
		bySlug:   make(map[string]*Plan, len(plans)),
		byRank:   make([]*Plan, 0, len(plans)),
	}

	ranks := make(map[int]string, len(plans))
	for _, p := range plans {
		if p.Slug == "" {
			return nil, fmt.Errorf("catalog: plan %q has empty slug", p.Name)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate plan slug %q", p.Slug)
		}
		if other, dup := ranks[p.TierRank]; dup {
			return nil, fmt.Errorf("catalog: plans %q and %q share tier rank %d", other, p.Slug, p.TierRank)
		}
		for f := range p.Features {
			if !universe[f] {
				return nil, fmt.Errorf("catalog: plan %q flags unknown feature %q", p.Slug, f)
			}
		}

		ranks[p.TierRank] = p.Slug
		c.bySlug[p.Slug] = p
		c.byRank = append(c.byRank, p)
	}

	sort.Slice(c.byRank, func(i, j int) bool {
		return c.byRank[i].TierRank < c.byRank[j].TierRank
	})

	if err := c.checkMonotonicity(); err != nil {
		return nil, err
	}

	return c, nil
}

// MustNew is like New but panics on error. Use for catalogs built from
// compiled-in configuration.
func MustNew(version string, features []Feature, plans ...*Plan) *Catalog {
	c, err := New(version, features, plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// checkMonotonicity verifies that every feature enabled at a lower rank
// stays enabled at all higher ranks. A violating plan set is a
// configuration error, never masked at evaluation time.
func (c *Catalog) checkMonotonicity() error {
	for i := 0; i < len(c.byRank)-1; i++ {
		lower, higher := c.byRank[i], c.byRank[i+1]
		for f, enabled := range lower.Features {
			if enabled && !higher.Features[f] {
				return fmt.Errorf(
					"catalog: feature %q enabled at tier %q (rank %d) but not at %q (rank %d)",
					f, lower.Slug, lower.TierRank, higher.Slug, higher.TierRank,
				)
			}
		}
	}
	return nil
}

// Version reports the configuration version the catalog was built from.
func (c *Catalog) Version() string { return c.version }

// KnownFeature reports whether f belongs to the declared feature universe.
func (c *Catalog) KnownFeature(f Feature) bool { return c.features[f] }

// Get returns the plan with the given slug.
func (c *Catalog) Get(slug string) (*Plan, error) {
	if p, ok := c.bySlug[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("catalog: %w: %q", ErrPlanNotFound, slug)
}

// Lowest returns the plan with the lowest tier rank. Principals without
// an active subscription are evaluated against this plan.
func (c *Catalog) Lowest() *Plan {
	return c.byRank[0]
}

// Plans returns all plans in ascending tier-rank order.
func (c *Catalog) Plans() []*Plan {
	out := make([]*Plan, len(c.byRank))
	copy(out, c.byRank)
	return out
}

// Compare orders two plans by tier rank: -1 when a is lower, 0 when
// equal, 1 when a is higher.
func (c *Catalog) Compare(a, b *Plan) int {
	switch {
	case a.TierRank < b.TierRank:
		return -1
	case a.TierRank > b.TierRank:
		return 1
	default:
		return 0
	}
}

// MinimumPlanFor returns the lowest-ranked plan that grants the feature,
// or nil when no plan grants it.
func (c *Catalog) MinimumPlanFor(f Feature) *Plan {
	for _, p := range c.byRank {
		if p.Grants(f) {
			return p
		}
	}
	return nil
}
