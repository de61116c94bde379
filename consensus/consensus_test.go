package consensus

import (
	"testing"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/rules"
)

func approvedSource(rootDomain string, tier harvester.Tier) harvester.Source {
	return harvester.Source{Host: rootDomain, RootDomain: rootDomain, Tier: tier, ApprovedDomain: true}
}

func unapprovedSource(rootDomain string) harvester.Source {
	return harvester.Source{Host: rootDomain, RootDomain: rootDomain, Tier: harvester.TierDatabase, ApprovedDomain: false}
}

func criticalRule(field string, requiredEvidence bool) rules.FieldRule {
	return rules.FieldRule{
		Field: field,
		Contract: rules.Contract{
			Type:  rules.TypeString,
			Shape: rules.ShapeScalar,
		},
		Evidence: rules.EvidencePolicy{
			Required:        requiredEvidence,
			MinEvidenceRefs: 1,
		},
	}
}

// §8 scenario 1: three approved-domain sources all supply the same sensor
// value -> consensus sensor=that value, agreement=unanimous.
func TestResolve_HappyPathUnanimous(t *testing.T) {
	rule := criticalRule("sensor", true)
	candidates := []harvester.Candidate{
		{Field: "sensor", Value: "Focus Pro 35K", Method: "spec_table_match", Source: approvedSource("brand-a.com", harvester.TierManufacturer), Confidence: 0.9, EvidenceRefs: []string{"s1"}},
		{Field: "sensor", Value: "Focus Pro 35K", Method: "pdf_kv", Source: approvedSource("lab-b.com", harvester.TierLab), Confidence: 0.85, EvidenceRefs: []string{"s2"}},
		{Field: "sensor", Value: "Focus Pro 35K", Method: "llm_extract", Source: approvedSource("store-c.com", harvester.TierRetailer), Confidence: 0.8, EvidenceRefs: []string{"s3"}},
	}

	result := Resolve(rule, 3, candidates)

	if result.Value.Unk {
		t.Fatalf("Resolve() = unk (reason=%s), want known sensor value", result.Value.Reason)
	}
	if result.Value.Value != "Focus Pro 35K" {
		t.Fatalf("Resolve() value = %v, want Focus Pro 35K", result.Value.Value)
	}
	if result.Provenance.AgreementLabel != harvester.AgreementUnanimous {
		t.Fatalf("AgreementLabel = %s, want unanimous", result.Provenance.AgreementLabel)
	}
	if len(result.Trace.ApprovedDomains) != 3 {
		t.Fatalf("ApprovedDomains = %v, want 3 distinct approved domains", result.Trace.ApprovedDomains)
	}
}

// §8 scenario 2: two approved + one unapproved for a critical field with
// approved-required=3 -> sensor=unk with missing_evidence.
func TestResolve_MissingEvidenceBelowRequiredK(t *testing.T) {
	rule := criticalRule("sensor", true)
	candidates := []harvester.Candidate{
		{Field: "sensor", Value: "Focus Pro 35K", Method: "spec_table_match", Source: approvedSource("brand-a.com", harvester.TierManufacturer), Confidence: 0.9, EvidenceRefs: []string{"s1"}},
		{Field: "sensor", Value: "Focus Pro 35K", Method: "pdf_kv", Source: approvedSource("lab-b.com", harvester.TierLab), Confidence: 0.85, EvidenceRefs: []string{"s2"}},
		{Field: "sensor", Value: "Focus Pro 35K", Method: "llm_extract", Source: unapprovedSource("wiki-aggregator.example"), Confidence: 0.7, EvidenceRefs: []string{"s3"}},
	}

	result := Resolve(rule, 3, candidates)

	if !result.Value.Unk {
		t.Fatalf("Resolve() = known %v, want unk", result.Value.Value)
	}
	if result.Value.Reason != harvester.ReasonMissingEvidence {
		t.Fatalf("Resolve() reason = %s, want missing_evidence", result.Value.Reason)
	}
	if len(result.Trace.ApprovedDomains) != 2 {
		t.Fatalf("ApprovedDomains = %v, want 2 (unapproved source excluded)", result.Trace.ApprovedDomains)
	}
}

func TestResolve_NotEvidenceRequiredSkipsGate(t *testing.T) {
	rule := criticalRule("color", false)
	candidates := []harvester.Candidate{
		{Field: "color", Value: "Black", Method: "llm_extract", Source: unapprovedSource("forum.example"), Confidence: 0.6, EvidenceRefs: []string{"s1"}},
	}
	result := Resolve(rule, 3, candidates)
	if result.Value.Unk {
		t.Fatalf("Resolve() = unk, want known (evidence not required for this field)")
	}
}

func TestBelowPassTarget(t *testing.T) {
	if BelowPassTarget(0.6) {
		t.Fatalf("BelowPassTarget(0.6) = true, want false (PassTarget is inclusive)")
	}
	if !BelowPassTarget(0.59) {
		t.Fatalf("BelowPassTarget(0.59) = false, want true")
	}
}

func TestResolve_ListUnionMergesNumeric(t *testing.T) {
	rule := rules.FieldRule{
		Field: "supported_polling_rates_hz",
		Contract: rules.Contract{
			Type:      rules.TypeList,
			ListUnion: true,
		},
	}
	candidates := []harvester.Candidate{
		{Field: "supported_polling_rates_hz", Value: 1000.0, Source: approvedSource("brand-a.com", harvester.TierManufacturer), Confidence: 0.9, EvidenceRefs: []string{"s1"}},
		{Field: "supported_polling_rates_hz", Value: 500.0, Source: approvedSource("brand-a.com", harvester.TierManufacturer), Confidence: 0.9, EvidenceRefs: []string{"s2"}},
		{Field: "supported_polling_rates_hz", Value: 1000.0, Source: approvedSource("lab-b.com", harvester.TierLab), Confidence: 0.8, EvidenceRefs: []string{"s3"}},
	}
	result := Resolve(rule, 0, candidates)
	got, ok := result.Value.Value.([]float64)
	if !ok {
		t.Fatalf("Resolve() value is %T, want []float64", result.Value.Value)
	}
	if len(got) != 2 || got[0] != 1000 || got[1] != 500 {
		t.Fatalf("Resolve() = %v, want [1000 500] (deduped, descending)", got)
	}
}
