// Package evidence builds the bounded, normalized evidence pack handed to
// the LLM Extractor: snippets with stable ids, snippet hashes, type tags,
// field hints, deterministic-candidate bindings, and a reference manifest.
//
// Snippet hashing and the bounded-pack assembly are grounded directly on
// the teacher's snippet.go (extractSnippet/significantWords/
// snippetSplitSentences, generalized from "best answer-supporting
// sentence" to "best field-supporting snippet") and goreason.go's fileHash
// (crypto/sha256 + encoding/hex), reused verbatim for content hashing.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// Type tags the surface a snippet was produced from.
type Type string

const (
	TypeText                   Type = "text"
	TypeTable                  Type = "table"
	TypeDefinition             Type = "definition"
	TypeKV                     Type = "kv"
	TypeWindow                 Type = "window"
	TypeJSONLDProduct          Type = "json_ld_product"
	TypeMicrodataProduct       Type = "microdata_product"
	TypeRDFaProduct            Type = "rdfa_product"
	TypeOpenGraphProduct       Type = "opengraph_product"
	TypeDeterministicCandidate Type = "deterministic_candidate"
)

// Snippet is one evidence-pack entry, per §3.
type Snippet struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	NormalizedText string           `json:"normalized_text"`
	SnippetHash   string            `json:"snippet_hash"` // "sha256:<hex>"
	SourceID      string            `json:"source_id"`
	URL           string            `json:"url"`
	FieldHints    []string          `json:"field_hints,omitempty"`
	RetrievedAt   string            `json:"retrieved_at"` // RFC3339 UTC
}

// Hash computes "sha256:<hex>" over text, matching the stored
// snippet_hash format exactly (§6: "Snippet hashes are written as
// sha256:<lowercase-hex>").
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// shortHash is the 12-hex-char id suffix used for sn_<hash> ids.
func shortHash(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])[:12]
}

// NewSnippet builds a Snippet with a content-derived id and hash. Two
// independent calls with the same (typ, text, sourceID, url) produce an
// identical snippet id and hash, which is what makes two runs over the
// same retained raw artifacts produce byte-identical evidence packs (§5).
func NewSnippet(typ Type, text, sourceID, url, retrievedAt string, fieldHints []string) Snippet {
	normalized := normalizeText(text)
	return Snippet{
		ID:             "sn_" + shortHash(string(typ), normalized, sourceID, url),
		Type:           typ,
		NormalizedText: normalized,
		SnippetHash:    Hash(normalized),
		SourceID:       sourceID,
		URL:            url,
		FieldHints:     fieldHints,
		RetrievedAt:    retrievedAt,
	}
}

// normalizeText collapses internal whitespace and trims, so re-hashing the
// same underlying content is stable regardless of incidental whitespace
// differences between two fetches of the same page.
func normalizeText(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// CandidateFingerprint computes fp = sha256(field||value||method||key_path)
// binding a deterministic candidate to its deterministic_candidate
// snippet, enabling parser-native citations (§4.6).
func CandidateFingerprint(field, value, method, keyPath string) string {
	h := sha256.Sum256([]byte(field + "|" + value + "|" + method + "|" + keyPath))
	return hex.EncodeToString(h[:])
}

// redactedKeys are secret-like JSON keys scrubbed throughout the pack and
// network POST bodies (§4.6).
var redactedKeys = map[string]bool{
	"authorization": true, "cookie": true, "api_key": true, "apikey": true,
	"token": true, "access_token": true, "set-cookie": true,
}

// Redact walks a parsed JSON-like map and replaces secret-looking values
// with "[redacted]", returning a new map (the input is not mutated).
func Redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if redactedKeys[strings.ToLower(k)] {
			out[k] = "[redacted]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Pack is the bounded evidence pack assembled for one page/product pair.
type Pack struct {
	Snippets       []Snippet         `json:"snippets"`
	CandidateBindings map[string]string `json:"candidate_bindings"` // fingerprint -> snippet id
	References     []string          `json:"references"`           // source ids retained in this pack
	MaxChars       int               `json:"-"`
}

// NewPack builds an empty Pack bounded by maxChars.
func NewPack(maxChars int) *Pack {
	if maxChars <= 0 {
		maxChars = 24_000
	}
	return &Pack{CandidateBindings: map[string]string{}, MaxChars: maxChars}
}

// Add appends s to the pack in deterministic order (by snippet id) if it
// fits within the remaining character budget. It returns false when the
// snippet was dropped for exceeding the budget.
func (p *Pack) Add(s Snippet) bool {
	used := 0
	for _, existing := range p.Snippets {
		used += len(existing.NormalizedText)
	}
	if used+len(s.NormalizedText) > p.MaxChars {
		return false
	}
	p.Snippets = append(p.Snippets, s)
	p.sortSnippets()
	if !contains(p.References, s.SourceID) {
		p.References = append(p.References, s.SourceID)
	}
	return true
}

// BindCandidate records that a deterministic candidate's fingerprint is
// supported by snippetID.
func (p *Pack) BindCandidate(fingerprint, snippetID string) {
	p.CandidateBindings[fingerprint] = snippetID
}

func (p *Pack) sortSnippets() {
	sort.Slice(p.Snippets, func(i, j int) bool { return p.Snippets[i].ID < p.Snippets[j].ID })
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ExtractSnippet returns the 1-2 most relevant sentences from content
// given a set of field-hint words, bounded to maxLen characters. Adapted
// directly from the teacher's extractSnippet/significantWords/
// snippetSplitSentences (snippet.go), generalized from "answer words" to
// "field hint words".
func ExtractSnippet(content string, hintWords map[string]bool, maxLen int) string {
	if len(hintWords) == 0 || content == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = 300
	}

	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return ""
	}

	type scored struct {
		text  string
		score int
	}
	scoredSentences := make([]scored, len(sentences))
	for i, s := range sentences {
		words := significantWords(s)
		overlap := 0
		for w := range words {
			if hintWords[w] {
				overlap++
			}
		}
		scoredSentences[i] = scored{text: s, score: overlap}
	}

	bestIdx, bestScore := 0, scoredSentences[0].score
	for i, s := range scoredSentences {
		if s.score > bestScore {
			bestScore, bestIdx = s.score, i
		}
	}
	if bestScore == 0 {
		return ""
	}

	result := scoredSentences[bestIdx].text
	if len(result) < maxLen && len(scoredSentences) > 1 {
		candidateIdx, candidateScore := -1, 0
		for _, delta := range []int{1, -1} {
			adj := bestIdx + delta
			if adj >= 0 && adj < len(scoredSentences) && scoredSentences[adj].score > candidateScore {
				candidateScore, candidateIdx = scoredSentences[adj].score, adj
			}
		}
		if candidateIdx >= 0 && candidateScore > 0 {
			combined := result + " " + scoredSentences[candidateIdx].text
			if candidateIdx < bestIdx {
				combined = scoredSentences[candidateIdx].text + " " + result
			}
			if len(combined) <= maxLen {
				result = combined
			}
		}
	}
	return result
}

func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 3 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

var stopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "were": true, "they": true,
	"their": true, "will": true, "would": true, "could": true,
	"should": true, "about": true, "which": true, "there": true,
	"these": true, "those": true, "then": true, "than": true,
	"them": true, "what": true, "when": true, "where": true,
	"your": true, "more": true, "some": true, "such": true,
	"only": true, "also": true, "very": true, "just": true,
	"into": true, "over": true, "each": true, "does": true,
	"most": true, "after": true, "before": true, "other": true,
	"being": true, "same": true, "both": true, "between": true,
}

// FieldHintWords builds a field-hint word set from a field's name and
// aliases, for use with ExtractSnippet.
func FieldHintWords(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = true
	}
	return out
}
