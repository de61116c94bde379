package rules

import "regexp"

// TemplateKind names the extraction strategy a compiled parse template
// implements.
type TemplateKind string

const (
	KindRegex   TemplateKind = "regex"
	KindKeyword TemplateKind = "keyword"
	KindJSONPath TemplateKind = "json_path"
	KindLDPath  TemplateKind = "json_ld_path"
)

// CompiledTemplate is a ready-to-use parse template: a regex for
// KindRegex, a keyword list for KindKeyword, or a dotted path for
// KindJSONPath/KindLDPath.
type CompiledTemplate struct {
	ID       string
	Kind     TemplateKind
	Regex    *regexp.Regexp
	Keywords []string
	Path     string
}

// TemplateBook is the compiled table of every parse template a category's
// field rules reference, keyed by template id. Grounded on the teacher's
// identifier-hint regex table (graph/builder.go's rePartNumber, reRevision,
// reStandard, reModelNumber, reVoltage, reMeasurement).
type TemplateBook struct {
	templates map[string]CompiledTemplate
}

// NewTemplateBook compiles raw regex sources into a TemplateBook. It
// panics on an invalid pattern since templates are authored and compiled
// ahead of time, not at request time.
func NewTemplateBook(regexSources map[string]string, keywordSets map[string][]string, jsonPaths map[string]string, ldPaths map[string]string) *TemplateBook {
	tb := &TemplateBook{templates: map[string]CompiledTemplate{}}
	for id, pattern := range regexSources {
		tb.templates[id] = CompiledTemplate{ID: id, Kind: KindRegex, Regex: regexp.MustCompile(pattern)}
	}
	for id, kws := range keywordSets {
		tb.templates[id] = CompiledTemplate{ID: id, Kind: KindKeyword, Keywords: kws}
	}
	for id, path := range jsonPaths {
		tb.templates[id] = CompiledTemplate{ID: id, Kind: KindJSONPath, Path: path}
	}
	for id, path := range ldPaths {
		tb.templates[id] = CompiledTemplate{ID: id, Kind: KindLDPath, Path: path}
	}
	return tb
}

// Get returns the compiled template by id.
func (tb *TemplateBook) Get(id string) (CompiledTemplate, bool) {
	t, ok := tb.templates[id]
	return t, ok
}

// All returns every compiled template (used by get_all_parse_templates()
// per §4.1, e.g. to validate a rule set references only known templates).
func (tb *TemplateBook) All() map[string]CompiledTemplate {
	out := make(map[string]CompiledTemplate, len(tb.templates))
	for k, v := range tb.templates {
		out[k] = v
	}
	return out
}

// DefaultIdentifierTemplates mirrors the technical-identifier hints the
// teacher pre-extracts before handing text to the LLM (graph/builder.go's
// preExtractIdentifiers), repurposed here as reusable parse templates for
// mouse-category fields like sensor part numbers and connector standards.
func DefaultIdentifierTemplates() map[string]string {
	return map[string]string{
		"part_number": `\b[A-Z]{2,6}[-]?\d{3,6}[A-Z]?\b`,
		"revision":    `\b[Rr]ev(?:ision)?\.?\s?[A-Z0-9]{1,3}\b`,
		"standard":    `\b(?:IEEE|USB|Bluetooth|802\.11)[\s-]?[\w.]+\b`,
		"measurement": `\b\d+(?:[.,]\d+)?\s?(?:g|mm|cm|in|Hz|kHz|dpi|k)\b`,
	}
}
