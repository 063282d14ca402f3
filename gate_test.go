package gate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/xraph/gate"
	"github.com/xraph/gate/catalog"
	"github.com/xraph/gate/decision"
	"github.com/xraph/gate/store/memory"
)

// decisionWatcher collects decisions handed to the DecisionRecorded
// hook.
type decisionWatcher struct {
	mu   sync.Mutex
	seen []*decision.Decision
}

func (w *decisionWatcher) Name() string { return "decision-watcher" }

func (w *decisionWatcher) OnDecisionRecorded(_ context.Context, dec interface{}) error {
	d, ok := dec.(*decision.Decision)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, d)
	return nil
}

func (w *decisionWatcher) decisions() []*decision.Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*decision.Decision, len(w.seen))
	copy(out, w.seen)
	return out
}

func TestDecisionRecordedHookObservesEvaluations(t *testing.T) {
	cat := catalog.MustNew("2025-01",
		[]catalog.Feature{"api_access"},
		&catalog.Plan{
			Slug:     "free",
			Name:     "Free",
			TierRank: 0,
			Features: map[catalog.Feature]bool{"api_access": true},
			Modules:  catalog.Modules("core"),
			Limits:   catalog.UsageLimits{MonthlyCalls: 100, HourlyCalls: 10},
		},
	)

	watcher := &decisionWatcher{}
	engine := gate.New(cat, memory.New(), gate.WithPlugin(watcher))

	resp, err := engine.Evaluate(context.Background(), gate.Request{
		PrincipalID: "acct_1",
		Feature:     "api_access",
		Endpoint:    "/v1/call",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !resp.Allowed {
		t.Fatalf("evaluation denied: %s", resp.Reason)
	}

	seen := watcher.decisions()
	if len(seen) == 0 {
		t.Fatal("no decisions reached the DecisionRecorded hook")
	}
	kinds := make(map[decision.Kind]bool)
	for _, d := range seen {
		if d.PrincipalID != "acct_1" {
			t.Errorf("decision for principal %q, want acct_1", d.PrincipalID)
		}
		kinds[d.Kind] = true
	}
	if !kinds[decision.KindEntitlement] || !kinds[decision.KindQuota] {
		t.Errorf("hook saw kinds %v, want both entitlement and quota", kinds)
	}
}
