package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Set is a compiled, immutable per-category rule set. It is the Rule
// Engine's served artifact: loaded once (via Compile or Load) and read by
// every downstream component through Get.
type Set struct {
	Category    string                 `json:"category"`
	Version     string                 `json:"version"`
	Fields      map[string]FieldRule   `json:"fields"`
	FieldOrder  []string               `json:"field_order"`
	RequiredK   map[RequiredLevel]int  `json:"required_k"` // distinct approved domains needed for consensus, per required_level
}

// DefaultRequiredK is the Open Question resolution from SPEC_FULL.md §9:
// the number of distinct approved root domains required for consensus,
// keyed by required_level.
func DefaultRequiredK() map[RequiredLevel]int {
	return map[RequiredLevel]int{
		Required:  3,
		Critical:  2,
		Expected:  1,
		Sometimes: 1,
		Deep:      1,
	}
}

// Load reads a compiled rule set from a JSON file (the
// <helper_files_root>/<category>/_generated/field_rules.json artifact).
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: reading %s: %w", path, err)
	}
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("rules: parsing %s: %w", path, err)
	}
	s.finalize()
	return &s, nil
}

// New builds a Set programmatically (used by tests and by the compile-rules
// CLI command before it is serialized to disk).
func New(category, version string, fields map[string]FieldRule) *Set {
	s := &Set{Category: category, Version: version, Fields: fields}
	s.finalize()
	return s
}

func (s *Set) finalize() {
	if s.Fields == nil {
		s.Fields = map[string]FieldRule{}
	}
	if s.RequiredK == nil {
		s.RequiredK = DefaultRequiredK()
	}
	if len(s.FieldOrder) == 0 {
		order := make([]string, 0, len(s.Fields))
		for k := range s.Fields {
			order = append(order, k)
		}
		sort.Strings(order)
		s.FieldOrder = order
	}
}

// Get returns the compiled rule for field, or false if the field is not
// known to this category's rule set.
func (s *Set) Get(field string) (FieldRule, bool) {
	r, ok := s.Fields[field]
	return r, ok
}

// RequiredDomainCount returns the number of distinct approved root domains
// the Consensus Engine must see before accepting a value for level.
func (s *Set) RequiredDomainCount(level RequiredLevel) int {
	if n, ok := s.RequiredK[level]; ok {
		return n
	}
	return 1
}

// FieldOrderList returns the compiled field iteration order, replacing
// reflection-driven "for each field in object" with an explicit list (§9).
func (s *Set) FieldOrderList() []string {
	return append([]string(nil), s.FieldOrder...)
}

// SelectionPolicyFields returns fields whose contract declares a non-empty
// selection policy.
func (s *Set) SelectionPolicyFields() []string {
	var out []string
	for _, f := range s.FieldOrder {
		if len(s.Fields[f].Contract.SelectionPolicy) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// ListUnionFields returns fields whose contract enables list-union merging.
func (s *Set) ListUnionFields() []string {
	var out []string
	for _, f := range s.FieldOrder {
		if s.Fields[f].Contract.ListUnion {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeResult is the outcome of NormalizeCandidate.
type NormalizeResult struct {
	OK         bool
	Normalized any
	Reason     string // populated when !OK
}

// NormalizeCandidate applies the field's contract-level shape checks: enum
// membership (after alias resolution) and numeric range containment. Unit
// coercion and component-alias canonicalization happen upstream in the
// normalize package (§4.9); this is the lighter-weight rule-engine check
// that operates purely on the contract.
func (s *Set) NormalizeCandidate(field string, value any) NormalizeResult {
	rule, ok := s.Get(field)
	if !ok {
		return NormalizeResult{OK: false, Reason: "unknown_field"}
	}
	switch rule.Contract.Type {
	case TypeNumber:
		f, ok := asFloat(value)
		if !ok {
			return NormalizeResult{OK: false, Reason: "parse_failure"}
		}
		if rule.Contract.Range != nil && !rule.Contract.Range.Contains(f) {
			return NormalizeResult{OK: false, Reason: "out_of_range"}
		}
		return NormalizeResult{OK: true, Normalized: f}
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return NormalizeResult{OK: false, Reason: "parse_failure"}
		}
		if len(rule.Contract.Enum) > 0 {
			canon, ok := resolveEnum(rule.Contract, str)
			if !ok {
				return NormalizeResult{OK: false, Reason: "parse_failure"}
			}
			return NormalizeResult{OK: true, Normalized: canon}
		}
		return NormalizeResult{OK: true, Normalized: str}
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return NormalizeResult{OK: false, Reason: "parse_failure"}
		}
		return NormalizeResult{OK: true, Normalized: b}
	case TypeList:
		return NormalizeResult{OK: true, Normalized: value}
	default:
		return NormalizeResult{OK: true, Normalized: value}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func resolveEnum(c Contract, raw string) (string, bool) {
	for _, v := range c.Enum {
		if v == raw {
			return v, true
		}
	}
	if canon, ok := c.Aliases[raw]; ok {
		return canon, true
	}
	return "", false
}

// ToleranceRatio returns the field's within_tolerance epsilon, defaulting
// to 0.05 (the observed value for weight/dimension fields, SPEC_FULL.md §9)
// when the rule does not override it.
func (r FieldRule) ToleranceRatio() float64 {
	if r.Contract.ToleranceRatio > 0 {
		return r.Contract.ToleranceRatio
	}
	return 0.05
}

// ClassifyVersionChange compares prev and next rule sets: a removed field
// forces a major bump, an added field forces at least a minor bump,
// otherwise patch.
func ClassifyVersionChange(prev, next *Set) VersionChange {
	var added, removed []string
	for f := range next.Fields {
		if _, ok := prev.Fields[f]; !ok {
			added = append(added, f)
		}
	}
	for f := range prev.Fields {
		if _, ok := next.Fields[f]; !ok {
			removed = append(removed, f)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	bump := "patch"
	if len(added) > 0 {
		bump = "minor"
	}
	if len(removed) > 0 {
		bump = "major"
	}
	return VersionChange{Bump: bump, Added: added, Removed: removed}
}
