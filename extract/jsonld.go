package extract

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ExtractJSONLD walks every <script type="application/ld+json"> block
// (already isolated into page.LDJSONBlocks by the fetcher) and flattens
// "Product"-shaped objects into candidates, keyed by dotted path.
func ExtractJSONLD(page Page) ([]Candidate, ParserStats) {
	var out []Candidate
	var stats ParserStats

	for _, block := range page.LDJSONBlocks {
		var raw any
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			stats.Rejected++
			continue
		}
		objs := flattenLDObjects(raw)
		for _, obj := range objs {
			m, ok := obj.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := m["@type"].(string)
			if typ != "Product" && typ != "IndividualProduct" {
				continue
			}
			cands := flattenToCandidates(m, "", MethodJSONLD)
			out = append(out, cands...)
			stats.Accepted += len(cands)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].KeyPath < out[j].KeyPath })
	return out, stats
}

// flattenLDObjects unwraps a top-level @graph array or a bare object/array
// into the list of individual JSON-LD objects it contains.
func flattenLDObjects(raw any) []any {
	switch v := raw.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			return graph
		}
		return []any{v}
	case []any:
		return v
	default:
		return nil
	}
}

// flattenToCandidates turns a nested map into dotted-path (field, value)
// candidates, skipping JSON-LD bookkeeping keys.
func flattenToCandidates(m map[string]any, prefix string, method Method) []Candidate {
	var out []Candidate
	for k, v := range m {
		if k == "@type" || k == "@context" || k == "@id" {
			continue
		}
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			out = append(out, flattenToCandidates(val, path, method)...)
		case []any:
			for i, item := range val {
				if nested, ok := item.(map[string]any); ok {
					out = append(out, flattenToCandidates(nested, fmt.Sprintf("%s[%d]", path, i), method)...)
				} else {
					out = append(out, Candidate{Field: k, Value: stringify(item), Method: method, KeyPath: path})
				}
			}
		default:
			if !AcceptDimension(k, path) {
				continue
			}
			out = append(out, Candidate{Field: k, Value: stringify(val), Method: method, KeyPath: path})
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return trimFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// ExtractOpenGraph reads og:* meta tags already parsed by the fetcher into
// page.EmbeddedState["opengraph"] (a flat string map), producing
// opengraph_product candidates.
func ExtractOpenGraph(page Page) []Candidate {
	raw, ok := page.EmbeddedState["opengraph"].(map[string]any)
	if !ok {
		return nil
	}
	var out []Candidate
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, Candidate{Field: k, Value: s, Method: MethodOpenGraph, KeyPath: "og:" + k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyPath < out[j].KeyPath })
	return out
}

// ExtractEmbeddedState flattens a next/nuxt/apollo embedded-state payload
// (page.EmbeddedState["app_state"]) the same way JSON-LD objects are
// flattened, tagged as network_json since the app state is effectively a
// captured API payload embedded in the page.
func ExtractEmbeddedState(page Page) []Candidate {
	raw, ok := page.EmbeddedState["app_state"].(map[string]any)
	if !ok {
		return nil
	}
	return flattenToCandidates(raw, "", MethodNetworkJSON)
}
