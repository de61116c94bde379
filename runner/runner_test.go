package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/budget"
	"github.com/cdubventures/spec-harvester/catalog"
	"github.com/cdubventures/spec-harvester/consensus"
	"github.com/cdubventures/spec-harvester/frontier"
	"github.com/cdubventures/spec-harvester/rules"
	"github.com/cdubventures/spec-harvester/sourceintel"
)

func testCatalog() *catalog.Index {
	return catalog.NewIndex([]catalog.Row{
		{Category: "mouse", Brand: "razer", Model: "viper v2 pro", Variant: ""},
	})
}

func sparseRules() *rules.Set {
	return rules.New("mouse", "1.0.0", map[string]rules.FieldRule{
		"weight_g": {
			Field:         "weight_g",
			RequiredLevel: rules.Expected,
			Contract:      rules.Contract{Type: rules.TypeNumber, Range: &rules.Range{Min: 10, Max: 200}},
			Evidence:      rules.EvidencePolicy{Required: false},
		},
	})
}

func requiredRules() *rules.Set {
	return rules.New("mouse", "1.0.0", map[string]rules.FieldRule{
		"weight_g": {
			Field:         "weight_g",
			RequiredLevel: rules.Required,
			Contract:      rules.Contract{Type: rules.TypeNumber, Range: &rules.Range{Min: 10, Max: 200}},
			Evidence:      rules.EvidencePolicy{Required: false},
		},
	})
}

func TestRunIdentityRejected(t *testing.T) {
	r := New(Deps{Category: "mouse", Rules: sparseRules(), Catalog: testCatalog()})
	_, err := r.Run(context.Background(), harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro", Variant: "bogus-variant",
	})
	if !errors.Is(err, harvester.ErrIdentityRejected) {
		t.Fatalf("expected ErrIdentityRejected, got %v", err)
	}
}

func TestRunRulesNotLoaded(t *testing.T) {
	r := New(Deps{Category: "mouse", Catalog: testCatalog()})
	_, err := r.Run(context.Background(), harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro",
	})
	if !errors.Is(err, harvester.ErrRulesNotLoaded) {
		t.Fatalf("expected ErrRulesNotLoaded, got %v", err)
	}
}

// With no Sources resolver and a field set that has no required/critical
// entries, the first round's summary already clears UberStopDecision's bar.
func TestRunStopsRequiredAndCriticalSatisfiedWithNoGaps(t *testing.T) {
	r := New(Deps{Category: "mouse", Rules: sparseRules(), Catalog: testCatalog()})
	out, err := r.Run(context.Background(), harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != frontier.StopRequiredAndCriticalSatisfied {
		t.Fatalf("got stop reason %q, want %q", out.StopReason, frontier.StopRequiredAndCriticalSatisfied)
	}
}

// A required field with no source list and no fetcher can never be
// resolved, so the run keeps looping until diminishing returns fires.
func TestRunStopsOnDiminishingReturns(t *testing.T) {
	r := New(Deps{Category: "mouse", Rules: requiredRules(), Catalog: testCatalog()})
	out, err := r.Run(context.Background(), harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != frontier.StopDiminishingReturns {
		t.Fatalf("got stop reason %q, want %q", out.StopReason, frontier.StopDiminishingReturns)
	}
}

func TestRunStopsOnSignalTermination(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Deps{Category: "mouse", Rules: requiredRules(), Catalog: testCatalog()})
	out, err := r.Run(ctx, harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != frontier.StopSignalTerminated {
		t.Fatalf("got stop reason %q, want %q", out.StopReason, frontier.StopSignalTerminated)
	}
}

func TestRunStopsOnBudgetExhaustion(t *testing.T) {
	base := time.Unix(1700000000, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(time.Hour)
	}

	r := New(Deps{
		Category: "mouse",
		Rules:    requiredRules(),
		Catalog:  testCatalog(),
		Limits:   budget.Limits{MaxTimePerProduct: time.Minute},
		Clock:    clock,
	})
	out, err := r.Run(context.Background(), harvester.Identity{
		Category: "mouse", Brand: "razer", Model: "viper v2 pro",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != frontier.StopBudgetExhausted {
		t.Fatalf("got stop reason %q, want %q", out.StopReason, frontier.StopBudgetExhausted)
	}
}

func TestMarkConsensusWinnersFlagsWinningDomain(t *testing.T) {
	domains := []sourceintel.Outcome{
		{RootDomain: "razer.com", Attempted: true, Succeeded: true},
		{RootDomain: "rtings.com", Attempted: true, Succeeded: true},
	}
	record := harvester.Record{
		Provenance: map[string]harvester.Provenance{
			"weight_g": {
				Evidence: []harvester.EvidenceRef{{SourceID: "razer.com"}},
			},
		},
	}

	markConsensusWinners(domains, record)

	if !domains[0].WonConsensus {
		t.Error("expected razer.com to be flagged as a consensus winner")
	}
	if domains[1].WonConsensus {
		t.Error("expected rtings.com to not be flagged as a consensus winner")
	}
}

func TestBuildSummaryTracksMissingAndBelowTargetFields(t *testing.T) {
	ruleSet := requiredRules()
	record := harvester.Record{
		Fields:     map[string]harvester.FieldValue{},
		Provenance: map[string]harvester.Provenance{},
	}

	summary := buildSummary(record, ruleSet)
	if summary.Validated {
		t.Error("expected Validated=false when the required field is missing")
	}
	if len(summary.MissingRequiredFields) != 1 || summary.MissingRequiredFields[0] != "weight_g" {
		t.Fatalf("got missing required fields %v", summary.MissingRequiredFields)
	}

	record.Fields["weight_g"] = harvester.Known(59.0)
	record.Provenance["weight_g"] = harvester.Provenance{Confidence: consensus.PassTarget}
	summary = buildSummary(record, ruleSet)
	if !summary.Validated {
		t.Errorf("expected Validated=true once the required field clears the pass target, got %+v", summary)
	}
	if summary.CoverageOverall != 1.0 {
		t.Errorf("got coverage %v, want 1.0", summary.CoverageOverall)
	}
}
