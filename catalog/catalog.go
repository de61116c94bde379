// Package catalog implements the Identity Gate: validating a
// (category, brand, model, variant) tuple against a canonical product
// catalog and rejecting fabricated variants before any fetch work begins.
//
// Grounded on the teacher's parser.Registry lookup-table shape
// (compile-once, serve read-only), adapted from "format -> Parser" to
// "(brand, model) -> canonical rows".
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Row is one canonical catalog entry.
type Row struct {
	Category string `json:"category"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Variant  string `json:"variant"` // "" means "no variant" for this (brand, model)
}

func (r Row) key() string {
	return strings.ToLower(r.Category) + "|" + strings.ToLower(r.Brand) + "|" + strings.ToLower(r.Model)
}

// Index is a compiled canonical catalog, keyed by (category, brand, model)
// for O(1) variant lookups.
type Index struct {
	byKey map[string][]Row
}

// NewIndex builds an Index from rows (used directly by tests and by
// Load after deserializing the catalog JSON file).
func NewIndex(rows []Row) *Index {
	idx := &Index{byKey: map[string][]Row{}}
	for _, r := range rows {
		idx.byKey[r.key()] = append(idx.byKey[r.key()], r)
	}
	return idx
}

// Load reads product_catalog.json (or an activeFiltering.json-shaped
// fallback list) from path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return NewIndex(rows), nil
}

// AllRows returns every canonical row in the index, for callers that need
// to enumerate the full product set (e.g. a daemon sweeping a category).
func (idx *Index) AllRows() []Row {
	if idx == nil {
		return nil
	}
	var out []Row
	for _, rows := range idx.byKey {
		out = append(out, rows...)
	}
	return out
}

// rowsFor returns every canonical row sharing (category, brand, model).
func (idx *Index) rowsFor(category, brand, model string) []Row {
	if idx == nil {
		return nil
	}
	key := strings.ToLower(category) + "|" + strings.ToLower(brand) + "|" + strings.ToLower(model)
	return idx.byKey[key]
}

// RejectReason enumerates why the identity gate refused an identity.
type RejectReason string

const (
	ReasonNone                        RejectReason = ""
	ReasonVariantIsModelSubstring      RejectReason = "variant_is_model_substring"
	ReasonCanonicalWithoutVariant      RejectReason = "canonical_without_variant_exists"
	ReasonNoCanonicalMatch             RejectReason = "no_canonical_match"
)

// GateResult is the Identity Gate's verdict for one identity.
type GateResult struct {
	Valid            bool
	Reason           RejectReason
	CanonicalProductID string
}

// wordBoundary reports whether needle occurs in haystack at word
// boundaries (not embedded in a larger alphanumeric run).
func wordBoundary(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	h := strings.ToLower(haystack)
	n := strings.ToLower(needle)
	idx := 0
	for {
		pos := strings.Index(h[idx:], n)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(n)
		before := byte(' ')
		if start > 0 {
			before = h[start-1]
		}
		after := byte(' ')
		if end < len(h) {
			after = h[end]
		}
		if !isAlnum(before) && !isAlnum(after) {
			return true
		}
		idx = start + 1
		if idx >= len(h) {
			return false
		}
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func productID(category, brand, model, variant string) string {
	parts := []string{category, brand, model}
	if variant != "" {
		parts = append(parts, variant)
	}
	return strings.Join(parts, "-")
}

// Gate validates an identity against the canonical index (or, when the
// index is nil, the active-filtering fallback) in the order required by
// §4.2:
//  1. Identity matching a canonical row exactly -> accept.
//  2. Variant is a word-boundary substring of model -> reject.
//  3. Non-empty variant while the canonical (brand, model) has an empty
//     variant on file -> reject.
//  4. No match at all -> reject (caller falls back to active-filtering by
//     passing that list's Index instead).
func (idx *Index) Gate(category, brand, model, variant string) GateResult {
	rows := idx.rowsFor(category, brand, model)
	for _, r := range rows {
		if strings.EqualFold(r.Variant, variant) {
			return GateResult{Valid: true, CanonicalProductID: productID(r.Category, r.Brand, r.Model, r.Variant)}
		}
	}
	if wordBoundary(model, variant) {
		return GateResult{Valid: false, Reason: ReasonVariantIsModelSubstring}
	}
	if variant != "" {
		for _, r := range rows {
			if r.Variant == "" {
				return GateResult{Valid: false, Reason: ReasonCanonicalWithoutVariant}
			}
		}
	}
	if len(rows) == 0 {
		return GateResult{Valid: false, Reason: ReasonNoCanonicalMatch}
	}
	return GateResult{Valid: false, Reason: ReasonNoCanonicalMatch}
}

// GateWithFallback runs Gate against primary; if primary has no rows for
// this (category, brand, model), it retries against fallback (the
// active-filtering list) using the same rule order, per §4.2 rule 4.
func GateWithFallback(primary, fallback *Index, category, brand, model, variant string) GateResult {
	if primary != nil {
		if rows := primary.rowsFor(category, brand, model); len(rows) > 0 {
			return primary.Gate(category, brand, model, variant)
		}
	}
	if fallback != nil {
		return fallback.Gate(category, brand, model, variant)
	}
	if wordBoundary(model, variant) {
		return GateResult{Valid: false, Reason: ReasonVariantIsModelSubstring}
	}
	return GateResult{Valid: false, Reason: ReasonNoCanonicalMatch}
}
