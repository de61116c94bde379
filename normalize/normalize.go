// Package normalize implements the Deterministic Critic & Normalizer:
// unit coercion to canonical schema units (g/mm/Hz), enum alias
// resolution, component-identifier canonicalization, and numeric range
// enforcement including component-aware compound ranges.
//
// Unit/enum tables are new pure-function lookup maps; the
// "build a normalized lookup, fold case/punctuation on lookup" idiom
// follows reasoning/citation.go's matchCitationToChunk lowercasing and
// graph/builder.go's entity-name lowercasing/dedup.
package normalize

import (
	"strconv"
	"strings"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/rules"
)

// ComponentRangeFunc looks up a component-database numeric range for field,
// scoped to a related component identifier (e.g. a sensor model's known
// DPI ceiling). Implementations live outside this package; nil means "no
// compound bound known", so the compound range degenerates to the rule's
// own range.
type ComponentRangeFunc func(field, relatedComponent string) (rules.Range, bool)

// ComponentAliasFunc canonicalizes a helper-component identifier (e.g.
// "pixart paw 3395" -> "PixArt PAW3395"). nil means "no canonicalization
// available" (value passes through unchanged).
type ComponentAliasFunc func(raw string) (string, bool)

// Result is the outcome of normalizing one raw candidate value against a
// field rule.
type Result struct {
	OK     bool
	Value  any
	Reason harvester.UnknownReason // populated when !OK
}

// ComputeCompoundRange intersects a field rule's declared range with a
// component-database range, per §3/§4.9's compute_compound_range. When the
// component range is absent, the rule's own range is returned unmodified.
func ComputeCompoundRange(ruleRange *rules.Range, componentRange rules.Range, haveComponentRange bool) (rules.Range, bool) {
	if ruleRange == nil {
		if haveComponentRange {
			return componentRange, true
		}
		return rules.Range{}, false
	}
	if !haveComponentRange {
		return *ruleRange, true
	}
	return ruleRange.Intersect(componentRange)
}

// Normalize applies unit coercion, enum alias resolution, and (compound)
// range enforcement to one raw candidate value for field, per §4.9.
func Normalize(rule rules.FieldRule, raw any, relatedComponent string, componentRange ComponentRangeFunc, componentAlias ComponentAliasFunc) Result {
	switch rule.Contract.Type {
	case rules.TypeNumber:
		return normalizeNumber(rule, raw, relatedComponent, componentRange)
	case rules.TypeString:
		if rule.Contract.Shape == rules.ShapeList {
			return normalizeListEnum(rule, raw)
		}
		return normalizeString(rule, raw, componentAlias)
	case rules.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return Result{Reason: harvester.ReasonParseFailure}
		}
		return Result{OK: true, Value: b}
	case rules.TypeList:
		return Result{OK: true, Value: raw}
	default:
		return Result{OK: true, Value: raw}
	}
}

func normalizeNumber(rule rules.FieldRule, raw any, relatedComponent string, componentRange ComponentRangeFunc) Result {
	f, ok := coerceUnit(raw, rule.Contract.Unit)
	if !ok {
		return Result{Reason: harvester.ReasonParseFailure}
	}

	compRange, haveComp := rules.Range{}, false
	if componentRange != nil && relatedComponent != "" {
		compRange, haveComp = componentRange(rule.Field, relatedComponent)
	}
	cr, crOK := ComputeCompoundRange(rule.Contract.Range, compRange, haveComp)
	if !crOK {
		// Ranges don't overlap at all: treat as a hard conflict.
		return Result{Reason: harvester.ReasonCompoundRangeConflict}
	}
	if !cr.Contains(f) {
		if haveComp {
			return Result{Reason: harvester.ReasonCompoundRangeConflict}
		}
		return Result{Reason: harvester.ReasonOutOfRange}
	}
	return Result{OK: true, Value: f}
}

func normalizeString(rule rules.FieldRule, raw any, componentAlias ComponentAliasFunc) Result {
	s, ok := raw.(string)
	if !ok {
		return Result{Reason: harvester.ReasonParseFailure}
	}
	s = strings.TrimSpace(s)

	if componentAlias != nil {
		if canon, ok := componentAlias(s); ok {
			s = canon
		}
	}

	if len(rule.Contract.Enum) == 0 {
		return Result{OK: true, Value: s}
	}
	canon, ok := resolveEnumAlias(rule.Contract, s)
	if !ok {
		return Result{Reason: harvester.ReasonParseFailure}
	}
	return Result{OK: true, Value: canon}
}

// normalizeListEnum preserves existing enum list tokens without forcing
// scalar coercion, per §4.9 ("List fields preserve existing enum list
// tokens without forcing scalar coercion"): a space-joined token list
// ("1000/500/250/125" -> "1000 500 250 125") is stored as-is rather than
// rejected for failing a scalar enum check.
func normalizeListEnum(rule rules.FieldRule, raw any) Result {
	s, ok := raw.(string)
	if !ok {
		return Result{Reason: harvester.ReasonParseFailure}
	}
	tokens := splitListTokens(s)
	if len(tokens) == 0 {
		return Result{Reason: harvester.ReasonParseFailure}
	}
	return Result{OK: true, Value: strings.Join(tokens, " ")}
}

// splitListTokens tokenizes a delimiter-separated string on the common
// separators seen in polling-rate style fields ("/", ",", whitespace).
func splitListTokens(s string) []string {
	s = strings.NewReplacer("/", " ", ",", " ").Replace(s)
	return strings.Fields(s)
}

func resolveEnumAlias(c rules.Contract, raw string) (string, bool) {
	folded := foldPunctuation(raw)
	for _, v := range c.Enum {
		if foldPunctuation(v) == folded {
			return v, true
		}
	}
	for alias, canon := range c.Aliases {
		if foldPunctuation(alias) == folded {
			return canon, true
		}
	}
	return "", false
}

func foldPunctuation(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// coerceUnit converts raw into a float64 in the contract's canonical unit.
// Supports g<->oz/lbs, mm<->cm/in, Hz<->kHz, dpi's "k" suffix, and
// decimal-comma input (§4.9, §8 scenario 5).
func coerceUnit(raw any, canonicalUnit string) (float64, bool) {
	s, isStr := raw.(string)
	if !isStr {
		f, ok := asFloat(raw)
		return f, ok
	}
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")

	lower := strings.ToLower(s)
	// "26k" style dpi shorthand, with or without unit suffix.
	if strings.HasSuffix(lower, "k") {
		numPart := strings.TrimSuffix(lower, "k")
		numPart = strings.TrimSpace(numPart)
		if f, err := strconv.ParseFloat(numPart, 64); err == nil {
			return f * 1000, true
		}
	}

	num, unit := splitNumberUnit(s)
	if num == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return convertUnit(f, strings.ToLower(unit), canonicalUnit), true
}

func splitNumberUnit(s string) (number, unit string) {
	i := 0
	for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == '-') {
		i++
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i:])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// convertUnit converts value from unit into canonicalUnit. Unrecognized
// or absent source units pass the value through unchanged (it is already
// assumed to be in canonical units).
func convertUnit(value float64, unit, canonicalUnit string) float64 {
	switch strings.ToLower(canonicalUnit) {
	case "g":
		switch unit {
		case "oz":
			return OzToG(value)
		case "lb", "lbs":
			return value * 453.59237
		case "kg":
			return value * 1000
		}
	case "mm":
		switch unit {
		case "in", "inch", "inches", `"`:
			return InchesToMM(value)
		case "cm":
			return value * 10
		}
	case "hz":
		switch unit {
		case "khz":
			return value * 1000
		}
	}
	return value
}

// OzToG converts ounces to grams: oz_to_g(3.5) = 99 (rounded), per §8's
// round-trip law.
func OzToG(oz float64) float64 {
	return oz * 28.349523125
}

// InchesToMM converts inches to millimeters: inches_to_mm(2) = 50.8, per
// §8's round-trip law.
func InchesToMM(in float64) float64 {
	return in * 25.4
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

// ComponentAliasMap canonicalizes helper-component identifiers using a
// case-folded, punctuation-squashed lookup, the same folding strategy as
// resolveEnumAlias above.
type ComponentAliasMap struct {
	canon map[string]string // folded alias -> canonical
}

// NewComponentAliasMap builds a ComponentAliasMap from a raw alias table.
func NewComponentAliasMap(aliases map[string]string) *ComponentAliasMap {
	m := &ComponentAliasMap{canon: map[string]string{}}
	for alias, canonical := range aliases {
		m.canon[foldPunctuation(alias)] = canonical
	}
	return m
}

// Lookup resolves raw to its canonical component identifier.
func (m *ComponentAliasMap) Lookup(raw string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.canon[foldPunctuation(raw)]
	return v, ok
}

// Func adapts m into a ComponentAliasFunc for use with Normalize.
func (m *ComponentAliasMap) Func() ComponentAliasFunc {
	if m == nil {
		return nil
	}
	return m.Lookup
}
