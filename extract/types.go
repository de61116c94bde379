// Package extract implements the Deterministic Extractor: from a fetched
// page it produces field candidates from structured surfaces, in priority
// order, without any LLM call.
//
// HTML surface walking (tables, definition lists, label-value windows,
// microdata/RDFa attribute scans) is grounded on golang.org/x/net/html,
// promoted here from an indirect teacher dependency to a direct one — the
// standard Go HTML tokenizer, used the way the ecosystem always parses
// HTML structurally rather than with regex. PDF kv/table extraction is
// grounded on the teacher's parser/pdf.go section-walking approach,
// adapted from "document sections" to "(key, value) pairs and rows".
package extract

// Method tags how a candidate was produced, matching the evidence
// reference method vocabulary (§3).
type Method string

const (
	MethodJSONLD       Method = "json_ld"
	MethodMicrodata    Method = "microdata"
	MethodRDFa         Method = "rdfa"
	MethodOpenGraph    Method = "opengraph"
	MethodNetworkJSON  Method = "network_json"
	MethodSpecTable    Method = "spec_table_match"
	MethodParseTemplate Method = "parse_template"
	MethodPDFKV        Method = "pdf_kv"
	MethodPDFTable     Method = "pdf_table"
)

// Candidate is one deterministic-extractor output, prior to evidence
// binding (the Evidence Pack Builder later attaches a snippet to it).
type Candidate struct {
	Field            string
	Value            string
	Method           Method
	KeyPath          string
	TargetMatchPassed bool
	TargetMatchScore float64
}

// ParserStats accumulates accept/reject counts across a page's extraction
// pass, returned alongside the candidate list for telemetry (§4.5).
type ParserStats struct {
	Accepted int
	Rejected int
}

// Page is the subset of a fetch.Result the extractor operates on. Kept
// decoupled from the fetch package so extract has no dependency on it.
type Page struct {
	HTML             string
	NetworkResponses [][]byte
	EmbeddedState    map[string]any
	LDJSONBlocks     []string
	// RawBytes and DocumentKind ("pdf" | "xlsx") carry a non-HTML
	// document download through to the PDF/XLSX extraction surfaces;
	// empty for ordinary HTML pages.
	RawBytes     []byte
	DocumentKind string
}

// dimensionFields are rejected unless they occur on a product-like path;
// "image.width"/"image.height"-shaped keys must never be accepted as
// physical width/height (§4.5, §8 boundary test).
var dimensionFields = map[string]bool{"width": true, "height": true, "lngth": true, "length": true}

// isImagePath reports whether keyPath looks like it addresses an image's
// pixel dimensions rather than the product's physical dimensions.
func isImagePath(keyPath string) bool {
	for i := 0; i+5 <= len(keyPath); i++ {
		if keyPath[i:i+5] == "image" {
			return true
		}
	}
	return false
}

// AcceptDimension gates width/height/length-like fields: reject when the
// key path looks like an image dimension.
func AcceptDimension(field, keyPath string) bool {
	if !dimensionFields[field] {
		return true
	}
	return !isImagePath(keyPath)
}
