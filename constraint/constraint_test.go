package constraint

import (
	"testing"

	harvester "github.com/cdubventures/spec-harvester"
)

// §8 scenario 3: a field the normalizer flagged ReasonCompoundRangeConflict
// must surface as a compound_range_conflict contradiction that forces red,
// independent of any per-source confidence.
func TestSolve_CompoundRangeConflictForcesRed(t *testing.T) {
	fields := map[string]harvester.FieldValue{
		"dpi": harvester.Unknown(harvester.ReasonCompoundRangeConflict),
	}
	contradictions := Solve(fields, nil, []string{"dpi"})
	if len(contradictions) != 1 {
		t.Fatalf("Solve() = %d contradictions, want 1", len(contradictions))
	}
	if contradictions[0].Code != "compound_range_conflict" {
		t.Fatalf("contradiction code = %q, want compound_range_conflict", contradictions[0].Code)
	}
	if contradictions[0].Severity != harvester.SeverityError {
		t.Fatalf("contradiction severity = %q, want error", contradictions[0].Severity)
	}
	if !ForcesRed("dpi", contradictions) {
		t.Fatalf("ForcesRed(dpi) = false, want true")
	}
	if ForcesRed("weight", contradictions) {
		t.Fatalf("ForcesRed(weight) = true, want false (not in contradiction's Fields)")
	}
}

func TestSolve_CrossFieldRuleTriggered(t *testing.T) {
	fields := map[string]harvester.FieldValue{
		"connectivity":  harvester.Known("Wireless"),
		"battery_hours": harvester.Unknown(harvester.ReasonMissingEvidence),
	}
	contradictions := Solve(fields, DefaultRules(), nil)
	if len(contradictions) != 1 {
		t.Fatalf("Solve() = %d contradictions, want 1", len(contradictions))
	}
	got := contradictions[0]
	if got.Code != "wireless_requires_battery_hours" {
		t.Fatalf("contradiction code = %q, want wireless_requires_battery_hours", got.Code)
	}
	if got.Severity != harvester.SeverityWarn {
		t.Fatalf("contradiction severity = %q, want warn", got.Severity)
	}
}

func TestSolve_CrossFieldRuleSatisfied(t *testing.T) {
	fields := map[string]harvester.FieldValue{
		"connectivity":  harvester.Known("Wireless"),
		"battery_hours": harvester.Known(40.0),
	}
	if got := Solve(fields, DefaultRules(), nil); len(got) != 0 {
		t.Fatalf("Solve() = %d contradictions, want 0 (battery_hours resolved)", len(got))
	}
}

func TestSolve_CrossFieldRuleNotTriggered(t *testing.T) {
	fields := map[string]harvester.FieldValue{
		"connectivity":  harvester.Known("Wired"),
		"battery_hours": harvester.Unknown(harvester.ReasonMissingEvidence),
	}
	if got := Solve(fields, DefaultRules(), nil); len(got) != 0 {
		t.Fatalf("Solve() = %d contradictions, want 0 (trigger not wireless)", len(got))
	}
}

func TestForcesRed_NoContradictions(t *testing.T) {
	if ForcesRed("dpi", nil) {
		t.Fatalf("ForcesRed(dpi, nil) = true, want false")
	}
}
