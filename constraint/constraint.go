// Package constraint implements the Constraint Solver: it evaluates
// cross-field rules and compound-range intersections over a product's
// resolved field bag, emitting typed contradictions. A
// compound_range_conflict forces the affected field's review color to red
// regardless of its per-source confidence (§4.12).
//
// Shaped like reasoning/validator.go's validationResult: accumulate typed
// issues across several independent checks, then summarize.
package constraint

import (
	harvester "github.com/cdubventures/spec-harvester"
)

// Rule is one cross-field constraint: if the Trigger field's value
// satisfies TriggerOn, then every field in Requires must be present and
// not unk (e.g. "wireless => battery_hours not unk").
type Rule struct {
	Code      string
	Trigger   string // field whose value gates this rule
	TriggerOn func(v harvester.FieldValue) bool
	Requires  []string // fields that must be non-unk when triggered
	Severity  harvester.Severity
}

// DefaultRules returns the constraint set described in SPEC_FULL.md/spec.md
// §4.12's example ("wireless => battery_hours not n/a").
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:      "wireless_requires_battery_hours",
			Trigger:   "connectivity",
			TriggerOn: func(v harvester.FieldValue) bool { return !v.Unk && containsToken(v.Value, "wireless") },
			Requires:  []string{"battery_hours"},
			Severity:  harvester.SeverityWarn,
		},
	}
}

func containsToken(v any, token string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return s == token || (len(s) >= len(token) && indexFold(s, token) >= 0)
}

func indexFold(s, sub string) int {
	ls, lsub := toLower(s), toLower(sub)
	n := len(ls) - len(lsub)
	for i := 0; i <= n; i++ {
		if ls[i:i+len(lsub)] == lsub {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// Solve evaluates cross-field rules and compound-range conflicts against
// fields, returning every contradiction found. compoundConflictFields
// names fields the normalizer already flagged with
// ReasonCompoundRangeConflict while resolving their value (§3: "violations
// are surfaced as compound_range_conflict and force red confidence
// regardless of per-source confidence").
func Solve(fields map[string]harvester.FieldValue, crossFieldRules []Rule, compoundConflictFields []string) []harvester.Contradiction {
	var out []harvester.Contradiction

	for _, f := range compoundConflictFields {
		out = append(out, harvester.Contradiction{
			Code:     "compound_range_conflict",
			Severity: harvester.SeverityError,
			Fields:   []string{f},
		})
	}

	for _, rule := range crossFieldRules {
		trigger, ok := fields[rule.Trigger]
		if !ok || !rule.TriggerOn(trigger) {
			continue
		}
		var violated []string
		for _, req := range rule.Requires {
			v, ok := fields[req]
			if !ok || v.Unk {
				violated = append(violated, req)
			}
		}
		if len(violated) > 0 {
			out = append(out, harvester.Contradiction{
				Code:     rule.Code,
				Severity: rule.Severity,
				Fields:   append([]string{rule.Trigger}, violated...),
			})
		}
	}
	return out
}

// ForcesRed reports whether any contradiction in contradictions forces a
// field's review color to red, regardless of its computed confidence.
func ForcesRed(field string, contradictions []harvester.Contradiction) bool {
	for _, c := range contradictions {
		if c.Code != "compound_range_conflict" {
			continue
		}
		for _, f := range c.Fields {
			if f == field {
				return true
			}
		}
	}
	return false
}
