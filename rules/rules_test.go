package rules

import "testing"

func sampleSet() *Set {
	return New("mouse", "1.0.0", map[string]FieldRule{
		"dpi": {
			Field:         "dpi",
			RequiredLevel: Required,
			Difficulty:    Medium,
			Contract:      Contract{Type: TypeNumber, Unit: "dpi", Range: &Range{Min: 100, Max: 30000}},
			Evidence:      EvidencePolicy{Required: true, MinEvidenceRefs: 1},
		},
		"switch_type": {
			Field:         "switch_type",
			RequiredLevel: Expected,
			Difficulty:    Easy,
			Contract: Contract{
				Type:    TypeString,
				Enum:    []string{"Omron", "Kailh", "Huano"},
				Aliases: map[string]string{"omron d2fc": "Omron"},
			},
		},
	})
}

func TestNormalizeCandidateRange(t *testing.T) {
	s := sampleSet()
	res := s.NormalizeCandidate("dpi", float64(28000))
	if !res.OK || res.Normalized.(float64) != 28000 {
		t.Fatalf("expected in-range dpi to pass, got %+v", res)
	}
	res = s.NormalizeCandidate("dpi", float64(50000))
	if res.OK || res.Reason != "out_of_range" {
		t.Fatalf("expected out_of_range, got %+v", res)
	}
}

func TestNormalizeCandidateEnumAlias(t *testing.T) {
	s := sampleSet()
	res := s.NormalizeCandidate("switch_type", "omron d2fc")
	if !res.OK || res.Normalized.(string) != "Omron" {
		t.Fatalf("expected alias resolution to Omron, got %+v", res)
	}
	res = s.NormalizeCandidate("switch_type", "NoSuchSwitch")
	if res.OK {
		t.Fatal("expected unknown enum value to fail")
	}
}

func TestNormalizeCandidateIdempotent(t *testing.T) {
	s := sampleSet()
	first := s.NormalizeCandidate("dpi", float64(16000))
	second := s.NormalizeCandidate("dpi", first.Normalized)
	if first.Normalized != second.Normalized {
		t.Fatalf("normalize_candidate not idempotent: %v != %v", first.Normalized, second.Normalized)
	}
}

func TestClassifyVersionChange(t *testing.T) {
	prev := New("mouse", "1.0.0", map[string]FieldRule{
		"dpi":    {Field: "dpi"},
		"weight": {Field: "weight"},
	})
	next := New("mouse", "1.1.0", map[string]FieldRule{
		"dpi":    {Field: "dpi"},
		"sensor": {Field: "sensor"},
	})
	change := ClassifyVersionChange(prev, next)
	if change.Bump != "major" {
		t.Fatalf("removing a field must force a major bump, got %q", change.Bump)
	}
	if len(change.Added) != 1 || change.Added[0] != "sensor" {
		t.Fatalf("expected sensor to be added, got %v", change.Added)
	}
	if len(change.Removed) != 1 || change.Removed[0] != "weight" {
		t.Fatalf("expected weight to be removed, got %v", change.Removed)
	}
}

func TestClassifyVersionChangeMinorOnly(t *testing.T) {
	prev := New("mouse", "1.0.0", map[string]FieldRule{"dpi": {Field: "dpi"}})
	next := New("mouse", "1.1.0", map[string]FieldRule{"dpi": {Field: "dpi"}, "sensor": {Field: "sensor"}})
	if got := ClassifyVersionChange(prev, next).Bump; got != "minor" {
		t.Fatalf("adding a field with nothing removed must be minor, got %q", got)
	}
}

func TestApplyKeyMigrationsRename(t *testing.T) {
	plan := MigrationPlan{Ops: []MigrationOp{{Op: "rename", From: []string{"dpi_max"}, To: "dpi"}}}
	rec := map[string]any{"dpi_max": float64(16000)}
	out := ApplyKeyMigrations(rec, plan)
	if out["dpi"] != float64(16000) {
		t.Fatalf("expected renamed field, got %+v", out)
	}
	if _, ok := out["dpi_max"]; ok {
		t.Fatal("old key should be removed after rename")
	}
}

func TestApplyKeyMigrationsIdempotent(t *testing.T) {
	plan := MigrationPlan{Ops: []MigrationOp{
		{Op: "rename", From: []string{"dpi_max"}, To: "dpi"},
		{Op: "merge", From: []string{"colors", "extra_colors"}, To: "colors"},
		{Op: "deprecate", From: []string{"legacy_field"}},
	}}
	rec := map[string]any{
		"dpi_max":      float64(16000),
		"colors":       []any{"black"},
		"extra_colors": []any{"white"},
		"legacy_field": "x",
	}
	once := ApplyKeyMigrations(rec, plan)
	twice := ApplyKeyMigrations(once, plan)

	if len(once) != len(twice) {
		t.Fatalf("migration not idempotent in key count: %+v vs %+v", once, twice)
	}
	for k, v := range once {
		if twice[k] == nil && v != nil {
			t.Fatalf("key %q missing after second application", k)
		}
	}
}

func TestApplyKeyMigrationsMergePrefersNonEmpty(t *testing.T) {
	plan := MigrationPlan{Ops: []MigrationOp{{Op: "merge", From: []string{"a", "b"}, To: "merged"}}}
	rec := map[string]any{"a": "", "b": "value"}
	out := ApplyKeyMigrations(rec, plan)
	if out["merged"] != "value" {
		t.Fatalf("expected merge to prefer non-empty operand, got %+v", out["merged"])
	}
}
