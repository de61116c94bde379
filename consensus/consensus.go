// Package consensus implements the Consensus Engine: across sources, it
// produces each field's winning value under tier/method/approved-domain
// rules, emits per-field provenance, and identifies fields below the pass
// target.
//
// Selection-policy tie-break and list-union reduction are grounded on
// retrieval/rrf.go's reciprocal-rank-fusion idiom: where RRF fuses
// vector/FTS/graph rankings of chunks, consensus fuses tier/method/
// confidence/recency rankings of field candidates. Per-field provenance
// construction (<=N evidence refs, distinct sources preferred) mirrors
// retrieval.Engine.Search's trace-building (SearchTrace + PerResult) —
// Trace here follows the same "record every stage's contribution" shape.
package consensus

import (
	"sort"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/merge"
	"github.com/cdubventures/spec-harvester/rules"
)

// MaxProvenanceRefs bounds how many evidence refs a provenance entry
// carries, preferring distinct sources (§4.11 point 5).
const MaxProvenanceRefs = 5

// PassTarget is the minimum final confidence a field must clear to count
// as satisfied for critical/required reporting (§4.11).
const PassTarget = 0.6

// Trace records per-field consensus diagnostics, mirroring
// retrieval.SearchTrace's "record every stage's contribution" shape.
type Trace struct {
	Field              string
	ApprovedDomains    []string
	RequiredDomainCount int
	AgreementScore     float64
	AgreementLabel     harvester.AgreementLabel
}

// Result is the consensus outcome for one field.
type Result struct {
	Field      string
	Value      harvester.FieldValue
	Provenance harvester.Provenance
	Trace      Trace
}

// Resolve runs consensus for one field given every accepted (post-verify)
// candidate contributing to it.
func Resolve(rule rules.FieldRule, requiredK int, candidates []harvester.Candidate) Result {
	approved := approvedDomains(candidates)
	if rule.Evidence.Required && len(approved) < requiredK {
		return Result{
			Field: rule.Field,
			Value: harvester.Unknown(harvester.ReasonMissingEvidence),
			Trace: Trace{Field: rule.Field, ApprovedDomains: approved, RequiredDomainCount: requiredK},
		}
	}

	if rule.Contract.ListUnion {
		return resolveListUnion(rule, candidates, approved, requiredK)
	}

	group := merge.Merge(rule, candidates)
	if len(group.Candidates) == 0 {
		return Result{
			Field: rule.Field,
			Value: harvester.Unknown(harvester.ReasonMissingEvidence),
			Trace: Trace{Field: rule.Field, ApprovedDomains: approved, RequiredDomainCount: requiredK, AgreementLabel: group.AgreementLabel},
		}
	}

	winner := group.Candidates[0]
	agreementScore := computeAgreementScore(winner, candidates)
	confidence := winner.Confidence * agreementScore

	prov := harvester.Provenance{
		Value:          winner.Value,
		Evidence:       buildEvidence(group.Candidates),
		Confidence:     confidence,
		AgreementLabel: group.AgreementLabel,
		NeedsReview:    group.NeedsReview,
	}
	return Result{
		Field:      rule.Field,
		Value:      harvester.Known(winner.Value),
		Provenance: prov,
		Trace: Trace{
			Field:              rule.Field,
			ApprovedDomains:    approved,
			RequiredDomainCount: requiredK,
			AgreementScore:     agreementScore,
			AgreementLabel:     group.AgreementLabel,
		},
	}
}

// resolveListUnion reduces candidates for a list_union=true field: numeric
// lists are merged sorted-descending and deduplicated; string lists keep a
// stable first-seen order (§4.11 point 3).
func resolveListUnion(rule rules.FieldRule, candidates []harvester.Candidate, approved []string, requiredK int) Result {
	numeric, allNumeric := unionNumeric(candidates)
	var value any
	if allNumeric {
		value = numeric
	} else {
		value = unionStrings(candidates)
	}
	prov := harvester.Provenance{
		Value:          value,
		Evidence:       buildEvidence(candidates),
		Confidence:     averageConfidence(candidates),
		AgreementLabel: harvester.AgreementUnanimous,
	}
	return Result{
		Field: rule.Field,
		Value: harvester.Known(value),
		Provenance: prov,
		Trace: Trace{Field: rule.Field, ApprovedDomains: approved, RequiredDomainCount: requiredK, AgreementLabel: harvester.AgreementUnanimous},
	}
}

func unionNumeric(candidates []harvester.Candidate) ([]float64, bool) {
	seen := map[float64]bool{}
	var out []float64
	for _, c := range candidates {
		f, ok := asFloat(c.Value)
		if !ok {
			return nil, false
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out, true
}

func unionStrings(candidates []harvester.Candidate) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		s, ok := c.Value.(string)
		if !ok {
			continue
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func averageConfidence(candidates []harvester.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candidates {
		sum += c.Confidence
	}
	return sum / float64(len(candidates))
}

func approvedDomains(candidates []harvester.Candidate) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		if c.Source.ApprovedDomain && !seen[c.Source.RootDomain] {
			seen[c.Source.RootDomain] = true
			out = append(out, c.Source.RootDomain)
		}
	}
	sort.Strings(out)
	return out
}

// computeAgreementScore is the share of contributing sources supporting
// the winning value (§4.11 point 4).
func computeAgreementScore(winner harvester.Candidate, all []harvester.Candidate) float64 {
	if len(all) == 0 {
		return 0
	}
	support := 0
	seenDomain := map[string]bool{}
	for _, c := range all {
		if !seenDomain[c.Source.RootDomain] {
			seenDomain[c.Source.RootDomain] = true
		}
	}
	distinctSources := len(seenDomain)
	if distinctSources == 0 {
		distinctSources = len(all)
	}
	supportingDomains := map[string]bool{}
	for _, c := range all {
		if equalValue(c.Value, winner.Value) {
			support++
			supportingDomains[c.Source.RootDomain] = true
		}
	}
	if len(supportingDomains) > 0 {
		return float64(len(supportingDomains)) / float64(distinctSources)
	}
	return float64(support) / float64(len(all))
}

func equalValue(a, b any) bool {
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if aok && bok {
		return fa == fb
	}
	return a == b
}

// buildEvidence assembles up to MaxProvenanceRefs evidence refs from the
// winning candidate group, preferring distinct sources.
func buildEvidence(candidates []harvester.Candidate) []harvester.EvidenceRef {
	var out []harvester.EvidenceRef
	seenSource := map[string]bool{}
	for _, c := range candidates {
		if len(out) >= MaxProvenanceRefs {
			break
		}
		if len(c.EvidenceRefs) == 0 {
			continue
		}
		if seenSource[c.Source.RootDomain] {
			continue
		}
		seenSource[c.Source.RootDomain] = true
		out = append(out, harvester.EvidenceRef{
			URL:         "",
			SourceID:    c.Source.RootDomain,
			Tier:        c.Source.Tier,
			SnippetID:   c.EvidenceRefs[0],
			SnippetHash: c.SnippetHash,
			Quote:       c.Quote,
			QuoteSpan:   c.QuoteSpan,
			Method:      c.Method,
		})
	}
	return out
}

// BelowPassTarget reports whether a field's final confidence fails to
// clear PassTarget.
func BelowPassTarget(confidence float64) bool {
	return confidence < PassTarget
}
