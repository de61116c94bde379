// Package drift implements the Drift Scheduler: it seeds per-product
// source-content hash baselines, detects drift against subsequent scans,
// enqueues re-extraction, and reconciles newly-extracted values against
// what is currently published.
//
// Grounded on goreason.go's Update/UpdateAll (fileHash content-hash
// comparison, "re-ingest only if hash changed"), generalized from one
// document's file hash to one product's per-source
// (page_content_hash, text_hash) baseline map.
package drift

import harvester "github.com/cdubventures/spec-harvester"

// SourceHash is one source page's content-hash baseline.
type SourceHash struct {
	SourceID         string
	PageContentHash  string
	TextHash         string
}

// Baseline is a product's set of per-source content-hash baselines,
// seeded the first time its final-source history is observed.
type Baseline struct {
	ProductID string
	Sources   map[string]SourceHash // source_id -> hash
}

// NextActionHint names what a drift scan decided a product needs.
type NextActionHint string

const (
	HintNone           NextActionHint = ""
	HintDriftReextract NextActionHint = "drift_reextract"
)

// ScanResult is the outcome of scanning one product's sources against its
// stored baseline.
type ScanResult struct {
	ProductID      string
	Hint           NextActionHint
	ChangedSources []string
	NewBaseline    Baseline
}

// ScanAndEnqueue compares current against the stored baseline (nil when
// none exists yet, in which case current simply seeds it). Per §4.14: on
// subsequent scans, any source whose (page_content_hash, text_hash) pair
// changed triggers next_action_hint=drift_reextract.
func ScanAndEnqueue(productID string, baseline *Baseline, current map[string]SourceHash) ScanResult {
	if baseline == nil {
		return ScanResult{
			ProductID:   productID,
			Hint:        HintNone,
			NewBaseline: Baseline{ProductID: productID, Sources: current},
		}
	}

	var changed []string
	for sourceID, cur := range current {
		prev, ok := baseline.Sources[sourceID]
		if !ok || prev.PageContentHash != cur.PageContentHash || prev.TextHash != cur.TextHash {
			changed = append(changed, sourceID)
		}
	}

	hint := HintNone
	if len(changed) > 0 {
		hint = HintDriftReextract
	}
	return ScanResult{
		ProductID:      productID,
		Hint:           hint,
		ChangedSources: changed,
		NewBaseline:    Baseline{ProductID: productID, Sources: current},
	}
}

// ReconcileDisposition names the outcome of reconciling a re-extraction
// against the currently-published record.
type ReconcileDisposition string

const (
	DispositionAutoRepublished ReconcileDisposition = "auto_republished"
	DispositionQueuedForReview ReconcileDisposition = "queued_for_review"
	DispositionQuarantined     ReconcileDisposition = "quarantined"
)

// Reconcile compares the published record's field values against a fresh
// run's, per §4.14/§8:
//   - any field value differs -> queued_for_review
//   - no value diff AND every evidence ref has a non-empty snippet hash
//     -> auto_republished
//   - missing/invalid snippet hashes (with no value diff) -> quarantined
//
// Drift reconciliation never overwrites published values without either
// re-verification or explicit manual-review enqueue (§4.17 failure
// semantics): the caller applies the returned disposition, this function
// never mutates anything itself.
func Reconcile(published, fresh *harvester.Record) ReconcileDisposition {
	if valueDiff(published, fresh) {
		return DispositionQueuedForReview
	}
	if allSnippetHashesValid(fresh) {
		return DispositionAutoRepublished
	}
	return DispositionQuarantined
}

func valueDiff(published, fresh *harvester.Record) bool {
	if published == nil || fresh == nil {
		return true
	}
	for field, pv := range published.Fields {
		fv, ok := fresh.Fields[field]
		if !ok {
			return true
		}
		if pv.Unk != fv.Unk {
			return true
		}
		if !pv.Unk && pv.Value != fv.Value {
			return true
		}
	}
	for field := range fresh.Fields {
		if _, ok := published.Fields[field]; !ok {
			return true
		}
	}
	return false
}

func allSnippetHashesValid(r *harvester.Record) bool {
	if r == nil {
		return false
	}
	for _, prov := range r.Provenance {
		for _, ref := range prov.Evidence {
			if ref.SnippetHash == "" {
				return false
			}
		}
	}
	return true
}
