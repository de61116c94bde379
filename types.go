package harvester

// Tier ranks a source root domain's trust level (§3): manufacturer=1,
// lab/review=2, retailer/store=3, database/community/aggregator=4.
type Tier int

const (
	TierManufacturer Tier = 1
	TierLab          Tier = 2
	TierRetailer     Tier = 3
	TierDatabase     Tier = 4
)

// Name returns the tier's canonical lowercase name.
func (t Tier) Name() string {
	switch t {
	case TierManufacturer:
		return "manufacturer"
	case TierLab:
		return "lab"
	case TierRetailer:
		return "retailer"
	case TierDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// TierFromDomainKind maps a source-kind string (as named in rules and
// source lists: manufacturer, lab, review, retailer, store, database,
// community, aggregator) onto its integer tier.
func TierFromDomainKind(kind string) Tier {
	switch kind {
	case "manufacturer":
		return TierManufacturer
	case "lab", "review":
		return TierLab
	case "retailer", "store":
		return TierRetailer
	case "database", "community", "aggregator":
		return TierDatabase
	default:
		return TierDatabase
	}
}

// Source describes the origin of one candidate or evidence reference.
type Source struct {
	Host           string `json:"host"`
	RootDomain     string `json:"root_domain"`
	Tier           Tier   `json:"tier"`
	TierName       string `json:"tier_name"`
	ApprovedDomain bool   `json:"approved_domain"`
}

// QuoteSpan locates a quote's character offsets within its snippet's
// normalized_text, populated when the auditor auto-repairs a numeric quote.
type QuoteSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Candidate is a proposed (field, value) extracted from one source, with
// its method, source descriptor, confidence, and evidence binding (§3).
type Candidate struct {
	Field        string    `json:"field"`
	Value        any       `json:"value"`
	Method       string    `json:"method"`
	Source       Source    `json:"source"`
	Confidence   float64   `json:"confidence"`
	EvidenceRefs []string  `json:"evidence_refs"` // snippet ids
	SnippetHash  string    `json:"snippet_hash"`
	Quote        string    `json:"quote"`
	QuoteSpan    *QuoteSpan `json:"quote_span,omitempty"`
}

// EvidenceRef is a verified citation backing a winning field value (§3).
type EvidenceRef struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	SourceID    string     `json:"source_id"`
	Tier        Tier       `json:"tier"`
	SnippetID   string     `json:"snippet_id"`
	SnippetHash string     `json:"snippet_hash"`
	Quote       string     `json:"quote"`
	QuoteSpan   *QuoteSpan `json:"quote_span,omitempty"`
	Method      string     `json:"method"`
}

// UnknownReason is a typed code explaining why a field is unk (§3).
type UnknownReason string

const (
	ReasonParseFailure             UnknownReason = "parse_failure"
	ReasonOutOfRange               UnknownReason = "out_of_range"
	ReasonCompoundRangeConflict    UnknownReason = "compound_range_conflict"
	ReasonMissingEvidence          UnknownReason = "missing_evidence"
	ReasonValueNotInSnippet        UnknownReason = "value_not_in_snippet"
	ReasonSnippetHashMismatch      UnknownReason = "snippet_hash_mismatch"
	ReasonSourceDependentUnresolved UnknownReason = "source_dependent_unresolved"
	ReasonMissingEvidenceRefs      UnknownReason = "missing_evidence_refs"
)

// UnkToken is the sentinel stored-value token for an unresolved field.
const UnkToken = "unk"

// FieldValue is a mapping target: either a typed canonical value, or the
// unk sentinel with a typed reason (§3).
type FieldValue struct {
	Unk    bool          `json:"unk"`
	Value  any           `json:"value,omitempty"`
	Reason UnknownReason `json:"unknown_reason,omitempty"`
}

// Unknown builds a FieldValue carrying the unk sentinel and reason.
func Unknown(reason UnknownReason) FieldValue {
	return FieldValue{Unk: true, Reason: reason}
}

// Known builds a FieldValue carrying a resolved canonical value.
func Known(v any) FieldValue {
	return FieldValue{Value: v}
}

// AgreementLabel classifies how a field's contributing candidates agree
// after normalization (§4.10).
type AgreementLabel string

const (
	AgreementUnanimous      AgreementLabel = "unanimous"
	AgreementWithinTolerance AgreementLabel = "within_tolerance"
	AgreementSourceDependent AgreementLabel = "source_dependent"
	AgreementConflict        AgreementLabel = "conflict"
)

// Provenance is the per-field record of the winning value plus its
// supporting evidence (§3).
type Provenance struct {
	Value          any            `json:"value,omitempty"`
	Evidence       []EvidenceRef  `json:"evidence"`
	Confidence     float64        `json:"confidence"`
	AgreementLabel AgreementLabel `json:"agreement_label"`
	NeedsReview    bool           `json:"needs_review"`
}

// Severity classifies a constraint contradiction's impact.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Contradiction is one cross-field or compound-range constraint failure
// emitted by the Constraint Solver (§4.12).
type Contradiction struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Fields   []string `json:"fields"`
}

// FieldReasoning records why a field ended up unk, for the summary's
// field_reasoning map.
type FieldReasoning struct {
	UnknownReason UnknownReason `json:"unknown_reason"`
}

// LLMSummary rolls up LLM usage for one product run.
type LLMSummary struct {
	CostUSDRun float64 `json:"cost_usd_run"`
}

// Summary is the per-run rollup attached to a canonical product record.
type Summary struct {
	Validated                      bool                      `json:"validated"`
	Confidence                     float64                   `json:"confidence"`
	CoverageOverall                float64                   `json:"coverage_overall"`
	CompletenessRequired           float64                   `json:"completeness_required"`
	MissingRequiredFields          []string                  `json:"missing_required_fields"`
	CriticalFieldsBelowPassTarget  []string                  `json:"critical_fields_below_pass_target"`
	FieldsBelowPassTarget          []string                  `json:"fields_below_pass_target"`
	LLM                            LLMSummary                `json:"llm"`
	FieldReasoning                 map[string]FieldReasoning `json:"field_reasoning"`
}

// Record is the canonical product record (§3).
type Record struct {
	ProductID  string                 `json:"product_id"`
	Category   string                 `json:"category"`
	Identity   Identity               `json:"identity"`
	Fields     map[string]FieldValue  `json:"fields"`
	Provenance map[string]Provenance  `json:"provenance"`
	Summary    Summary                `json:"summary"`
}
