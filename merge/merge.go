// Package merge implements the Candidate Merger: per field, it classifies
// how the contributing deterministic/LLM/component-prior candidates agree
// (unanimous | within_tolerance | source_dependent | conflict) and flags
// needs-review.
//
// Agreement classification is grounded on reasoning/confidence.go's
// weighted multi-factor scoring shape (ComputeConfidence = weighted sum of
// sub-scores), generalized from "one answer, many confidence factors" to
// "one field, many candidate values, classify their agreement".
package merge

import (
	"fmt"
	"sort"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/rules"
)

// conflictScoreEpsilon is the minimum score gap below which a conflict
// resolution is flagged needs_review (§4.10: "needs_review=true when
// score gap < ε").
const conflictScoreEpsilon = 0.05

// Group is the merged outcome for one field: its classified agreement
// label, the surviving candidates (all of them for source_dependent, the
// selected one otherwise), and whether it needs human review.
type Group struct {
	Field          string
	AgreementLabel harvester.AgreementLabel
	Candidates     []harvester.Candidate
	NeedsReview    bool
}

// Merge classifies agreement across candidates for one field, given its
// compiled rule (for source_dependent / tolerance / selection policy).
func Merge(rule rules.FieldRule, candidates []harvester.Candidate) Group {
	if len(candidates) == 0 {
		return Group{Field: rule.Field, AgreementLabel: harvester.AgreementConflict, NeedsReview: true}
	}

	if rule.Contract.SourceDependent {
		return Group{
			Field:          rule.Field,
			AgreementLabel: harvester.AgreementSourceDependent,
			Candidates:     candidates,
			NeedsReview:    true,
		}
	}

	if allEqual(candidates) {
		return Group{Field: rule.Field, AgreementLabel: harvester.AgreementUnanimous, Candidates: candidates}
	}

	if rule.Contract.Type == rules.TypeNumber {
		if within, ok := allWithinTolerance(candidates, rule.ToleranceRatio()); ok && within {
			return Group{Field: rule.Field, AgreementLabel: harvester.AgreementWithinTolerance, Candidates: candidates}
		}
	}

	selected, gap := selectBySelectionPolicy(candidates, rule.Contract.SelectionPolicy)
	return Group{
		Field:          rule.Field,
		AgreementLabel: harvester.AgreementConflict,
		Candidates:     []harvester.Candidate{selected},
		NeedsReview:    gap < conflictScoreEpsilon,
	}
}

func allEqual(candidates []harvester.Candidate) bool {
	first := fmt.Sprintf("%v", candidates[0].Value)
	for _, c := range candidates[1:] {
		if fmt.Sprintf("%v", c.Value) != first {
			return false
		}
	}
	return true
}

func allWithinTolerance(candidates []harvester.Candidate, epsilon float64) (bool, bool) {
	var values []float64
	for _, c := range candidates {
		f, ok := asFloat(c.Value)
		if !ok {
			return false, false
		}
		values = append(values, f)
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == 0 {
		return max == 0, true
	}
	return (max-min)/min <= epsilon, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// methodRank orders extraction methods by reliability, used as the
// "method" tie-break step of the default selection policy.
var methodRank = map[string]int{
	"json_ld":           0,
	"microdata":         1,
	"rdfa":              2,
	"opengraph":         3,
	"network_json":      4,
	"spec_table_match":  5,
	"parse_template":     6,
	"pdf_kv":            7,
	"pdf_table":         8,
	"component_db":      9,
	"llm_extract":       10,
}

// selectBySelectionPolicy picks the winning candidate under a
// tier -> method -> confidence -> recency policy (the default when the
// rule declares none), returning the selected candidate and the score gap
// to the runner-up (used to flag needs_review on thin margins).
func selectBySelectionPolicy(candidates []harvester.Candidate, policy []string) (harvester.Candidate, float64) {
	if len(policy) == 0 {
		policy = []string{"tier", "method", "confidence", "recency"}
	}
	ranked := append([]harvester.Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j], policy)
	})
	if len(ranked) == 1 {
		return ranked[0], 1
	}
	gap := score(ranked[0]) - score(ranked[1])
	if gap < 0 {
		gap = -gap
	}
	return ranked[0], gap
}

// less implements the comparator "a should sort before b" for the given
// policy field order, falling back to ascending snippet_id (the first
// evidence ref) as the final deterministic tie-break per SPEC_FULL.md §9.
func less(a, b harvester.Candidate, policy []string) bool {
	for _, key := range policy {
		switch key {
		case "tier":
			if a.Source.Tier != b.Source.Tier {
				return a.Source.Tier < b.Source.Tier
			}
		case "method":
			ra, rb := methodRank[a.Method], methodRank[b.Method]
			if ra != rb {
				return ra < rb
			}
		case "confidence":
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
		case "recency":
			// No explicit timestamp on Candidate; recency ties fall
			// through to the final snippet_id tie-break below.
		}
	}
	return firstRef(a) < firstRef(b)
}

func firstRef(c harvester.Candidate) string {
	if len(c.EvidenceRefs) == 0 {
		return ""
	}
	return c.EvidenceRefs[0]
}

// score is a coarse scalar used only to measure the winner/runner-up gap,
// not for ordering (ordering is the lexicographic `less` above).
func score(c harvester.Candidate) float64 {
	return float64(4-int(c.Source.Tier))*0.25 + c.Confidence*0.5
}
