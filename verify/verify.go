// Package verify implements the Evidence Auditor: for each candidate it
// checks that every referenced snippet exists, that the snippet's content
// hash still matches, and that the candidate's quote occurs in the
// snippet's normalized text (auto-repairing exact numeric quotes), then
// resolves multi-candidate conflicts per field.
//
// Grounded on reasoning/validator.go + reasoning/citation.go: the teacher
// already validates that an LLM answer's citations resolve to real chunks
// (validateCitations, matchCitationToChunk, ExtractCitations's regex
// table). This generalizes that shape from "does the prose cite a real
// chunk" to "does the candidate's evidence ref resolve to a hash-stable
// snippet and does the quote occur in it" — the numeric auto-repair is new
// but modeled on citation.matchCitationToChunk's fmt.Sscanf page/source
// number parsing.
package verify

import (
	"fmt"
	"strconv"
	"strings"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/evidence"
)

// Outcome is the per-candidate verdict.
type Outcome string

const (
	OutcomeAccept Outcome = "ACCEPT"
	OutcomeReject Outcome = "REJECT"
)

// Result is one candidate's verification outcome.
type Result struct {
	Candidate harvester.Candidate
	Outcome   Outcome
	Reason    harvester.UnknownReason // populated when Outcome == REJECT
	Ref       *harvester.EvidenceRef  // populated when Outcome == ACCEPT
}

// SnippetLookup resolves a snippet id to its current stored snippet,
// against which hash and quote are re-verified (the snippet the candidate
// was bound to may have drifted since extraction, e.g. across rounds).
type SnippetLookup func(snippetID string) (evidence.Snippet, bool)

// VerifyCandidate runs the full auditor check on one candidate (§4.8):
//  1. evidence_refs non-empty -> else missing_evidence_refs
//  2. every referenced snippet exists -> else missing_evidence_refs
//  3. a non-empty snippet_hash matches the first snippet's current hash
//     -> else snippet_hash_mismatch (an empty snippet_hash is not checked)
//  4. quote occurs in the first snippet's normalized_text -> else
//     value_not_in_snippet, with a numeric auto-repair attempt first.
func VerifyCandidate(c harvester.Candidate, lookup SnippetLookup) Result {
	if len(c.EvidenceRefs) == 0 {
		return Result{Candidate: c, Outcome: OutcomeReject, Reason: harvester.ReasonMissingEvidenceRefs}
	}
	for _, id := range c.EvidenceRefs[1:] {
		if _, ok := lookup(id); !ok {
			return Result{Candidate: c, Outcome: OutcomeReject, Reason: harvester.ReasonMissingEvidenceRefs}
		}
	}

	snippetID := c.EvidenceRefs[0]
	snip, ok := lookup(snippetID)
	if !ok {
		return Result{Candidate: c, Outcome: OutcomeReject, Reason: harvester.ReasonMissingEvidenceRefs}
	}

	currentHash := evidence.Hash(snip.NormalizedText)
	if c.SnippetHash != "" && c.SnippetHash != currentHash {
		return Result{Candidate: c, Outcome: OutcomeReject, Reason: harvester.ReasonSnippetHashMismatch}
	}

	quote, span, ok := resolveQuote(c.Value, c.Quote, snip.NormalizedText)
	if !ok {
		return Result{Candidate: c, Outcome: OutcomeReject, Reason: harvester.ReasonValueNotInSnippet}
	}

	ref := harvester.EvidenceRef{
		ID:          fmt.Sprintf("ev_%s_%s", c.Field, snip.ID),
		URL:         snip.URL,
		SourceID:    snip.SourceID,
		Tier:        c.Source.Tier,
		SnippetID:   snip.ID,
		SnippetHash: currentHash,
		Quote:       quote,
		QuoteSpan:   span,
		Method:      c.Method,
	}
	return Result{Candidate: c, Outcome: OutcomeAccept, Ref: &ref}
}

// resolveQuote checks that quote occurs verbatim in text; failing that, if
// value renders as a numeric token that DOES occur in text, the quote is
// auto-repaired to that numeric token (§4.8, §7 "auto-repair exact numeric
// quote").
func resolveQuote(value any, quote, text string) (string, *harvester.QuoteSpan, bool) {
	if quote != "" {
		if idx := strings.Index(text, quote); idx >= 0 {
			return quote, &harvester.QuoteSpan{Start: idx, End: idx + len(quote)}, true
		}
	}
	if numTok, ok := numericToken(value); ok {
		if idx := strings.Index(text, numTok); idx >= 0 {
			return numTok, &harvester.QuoteSpan{Start: idx, End: idx + len(numTok)}, true
		}
	}
	return "", nil, false
}

// numericToken renders value as the bare numeric string the auto-repair
// searches for (mirrors citation.go's fmt.Sscanf-based numeric parsing,
// inverted: render-then-search rather than parse-then-match).
func numericToken(value any) (string, bool) {
	switch v := value.(type) {
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case string:
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return v, true
		}
	}
	return "", false
}

// FieldVerdict is the multi-candidate resolution outcome for one field
// after every contributing candidate has been individually verified.
type FieldVerdict string

const (
	VerdictAccept   FieldVerdict = "ACCEPT"
	VerdictConflict FieldVerdict = "CONFLICT"
)

// ResolveField applies §4.8's multi-candidate rule: if >=2 accepted
// candidates carry different values, the field is CONFLICT with reason
// multiple_supported_values; if every accepted candidate agrees (or there
// is at most one), it's ACCEPT.
func ResolveField(accepted []Result) (FieldVerdict, string) {
	values := map[string]bool{}
	for _, r := range accepted {
		values[fmt.Sprintf("%v", r.Candidate.Value)] = true
	}
	if len(values) >= 2 {
		return VerdictConflict, "multiple_supported_values"
	}
	return VerdictAccept, ""
}

// VerifyAll runs VerifyCandidate over every candidate for a field and
// returns every candidate's Result (accepted and rejected) plus the
// multi-candidate verdict over the accepted ones.
func VerifyAll(candidates []harvester.Candidate, lookup SnippetLookup) ([]Result, FieldVerdict, string) {
	var all, accepted []Result
	for _, c := range candidates {
		res := VerifyCandidate(c, lookup)
		all = append(all, res)
		if res.Outcome == OutcomeAccept {
			accepted = append(accepted, res)
		}
	}
	verdict, reason := ResolveField(accepted)
	return all, verdict, reason
}
