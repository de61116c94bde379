// Package learn implements the Learning Updater: it gates which
// observations are allowed to mutate component/source/query learning
// artifacts after a run.
//
// Follows the same small-predicate-struct idiom as budget.Counter's
// Violations(): accumulate named boolean gate failures, then report them
// verbatim for audit rather than collapsing to a single bool.
package learn

import harvester "github.com/cdubventures/spec-harvester"

// FieldStatus is the per-field acceptance state an observation carries.
type FieldStatus string

const (
	StatusAccepted FieldStatus = "accepted"
	StatusRejected FieldStatus = "rejected"
)

// ComponentReviewStatus gates component-table updates specifically.
type ComponentReviewStatus string

const (
	ComponentAccepted ComponentReviewStatus = "accepted"
	ComponentPending  ComponentReviewStatus = "pending"
)

// Observation is one candidate update proposed to a learning artifact.
type Observation struct {
	Confidence            float64
	EvidenceRefCount       int
	FieldStatus            FieldStatus
	Tier                    harvester.Tier
	IsComponentUpdate       bool
	ComponentReviewStatus   ComponentReviewStatus
}

// Gate thresholds for admitting an observation (§4.15): confidence >=
// threshold, refs >= min_refs, field_status=accepted, tier in {1,2}; for
// component updates, additionally component_review_status=accepted.
type Gate struct {
	ConfidenceThreshold float64
	MinRefs             int
}

// DefaultGate returns the thresholds named in §4.15 as the defaults.
func DefaultGate() Gate {
	return Gate{ConfidenceThreshold: 0.75, MinRefs: 2}
}

// RejectedReason enumerates why an observation failed the gate, emitted
// verbatim for audit (§4.15).
type RejectedReason string

const (
	RejectedLowConfidence      RejectedReason = "confidence_below_threshold"
	RejectedInsufficientRefs   RejectedReason = "insufficient_evidence_refs"
	RejectedFieldNotAccepted   RejectedReason = "field_status_not_accepted"
	RejectedTierNotEligible    RejectedReason = "tier_not_eligible"
	RejectedComponentNotAccepted RejectedReason = "component_review_not_accepted"
)

// Decide evaluates o against gate, returning (allowed, reasons). Multiple
// reasons can fire simultaneously; all are returned for a complete audit
// trail rather than short-circuiting on the first failure.
func Decide(gate Gate, o Observation) (bool, []RejectedReason) {
	var reasons []RejectedReason
	if o.Confidence < gate.ConfidenceThreshold {
		reasons = append(reasons, RejectedLowConfidence)
	}
	if o.EvidenceRefCount < gate.MinRefs {
		reasons = append(reasons, RejectedInsufficientRefs)
	}
	if o.FieldStatus != StatusAccepted {
		reasons = append(reasons, RejectedFieldNotAccepted)
	}
	if o.Tier != harvester.TierManufacturer && o.Tier != harvester.TierLab {
		reasons = append(reasons, RejectedTierNotEligible)
	}
	if o.IsComponentUpdate && o.ComponentReviewStatus != ComponentAccepted {
		reasons = append(reasons, RejectedComponentNotAccepted)
	}
	return len(reasons) == 0, reasons
}
