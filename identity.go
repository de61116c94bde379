package harvester

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugRun = regexp.MustCompile(`[^a-z0-9_]+`)

// slug lowercases s, strips diacritics (NFD-normalize then drop combining
// marks), preserves underscores, and collapses runs of any other character
// into a single hyphen. slug(slug(s)) == slug(s) for all s.
func slug(s string) string {
	stripped := stripDiacritics(strings.ToLower(s))
	dashed := nonSlugRun.ReplaceAllString(stripped, "-")
	return strings.Trim(dashed, "-")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Identity is the immutable (category, brand, model, variant) tuple locked
// at intake by the catalog gate (§4.2). ProductID is deterministic: two
// Identity values with the same fields produce the same ProductID.
type Identity struct {
	Category string `json:"category"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Variant  string `json:"variant,omitempty"`
}

// ProductID computes product_id = slug(category)-slug(brand)-slug(model)
// [-slug(variant)] per §3.
func (id Identity) ProductID() string {
	parts := []string{slug(id.Category), slug(id.Brand), slug(id.Model)}
	if v := slug(id.Variant); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "-")
}

// wordBoundary reports whether needle occurs in haystack as a
// word-boundary-aware substring (not embedded inside a larger alnum run).
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
