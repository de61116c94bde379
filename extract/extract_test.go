package extract

import "testing"

// §8 boundary behavior: dimensions from image.width/height keys are never
// accepted as physical width/height.
func TestAcceptDimension_RejectsImagePath(t *testing.T) {
	if AcceptDimension("width", "image.width") {
		t.Fatalf("AcceptDimension(width, image.width) = true, want false")
	}
	if AcceptDimension("height", "images[0].height") {
		t.Fatalf("AcceptDimension(height, images[0].height) = true, want false")
	}
}

func TestAcceptDimension_AllowsProductDimension(t *testing.T) {
	if !AcceptDimension("width", "dimensions.width") {
		t.Fatalf("AcceptDimension(width, dimensions.width) = false, want true")
	}
}

func TestAcceptDimension_NonDimensionFieldAlwaysAccepted(t *testing.T) {
	if !AcceptDimension("sensor", "image.sensor") {
		t.Fatalf("AcceptDimension(sensor, ...) = false, want true (not a dimension field)")
	}
}

func TestExtractJSONLD_FlattensProductObject(t *testing.T) {
	page := Page{LDJSONBlocks: []string{
		`{"@type":"Product","sensor":"Focus Pro 35K","weight":61}`,
	}}
	candidates, stats := ExtractJSONLD(page)
	if stats.Accepted != 2 || stats.Rejected != 0 {
		t.Fatalf("stats = %+v, want accepted=2 rejected=0", stats)
	}
	byField := map[string]Candidate{}
	for _, c := range candidates {
		byField[c.Field] = c
	}
	if byField["sensor"].Value != "Focus Pro 35K" || byField["sensor"].Method != MethodJSONLD {
		t.Fatalf("sensor candidate = %+v", byField["sensor"])
	}
	if byField["weight"].Value != "61" {
		t.Fatalf("weight candidate = %+v, want stringified 61", byField["weight"])
	}
}

func TestExtractJSONLD_SkipsNonProductTypes(t *testing.T) {
	page := Page{LDJSONBlocks: []string{
		`{"@type":"BreadcrumbList","itemListElement":[]}`,
	}}
	candidates, _ := ExtractJSONLD(page)
	if len(candidates) != 0 {
		t.Fatalf("ExtractJSONLD(BreadcrumbList) = %v, want none", candidates)
	}
}

func TestExtractJSONLD_RejectsMalformedBlock(t *testing.T) {
	page := Page{LDJSONBlocks: []string{"{not json"}}
	_, stats := ExtractJSONLD(page)
	if stats.Rejected != 1 {
		t.Fatalf("stats.Rejected = %d, want 1", stats.Rejected)
	}
}

func TestExtractJSONLD_UnwrapsGraph(t *testing.T) {
	page := Page{LDJSONBlocks: []string{
		`{"@graph":[{"@type":"Product","sensor":"Focus Pro 35K"}]}`,
	}}
	candidates, _ := ExtractJSONLD(page)
	if len(candidates) != 1 || candidates[0].Field != "sensor" {
		t.Fatalf("ExtractJSONLD(@graph) = %v, want one sensor candidate", candidates)
	}
}

func TestExtractJSONLD_RejectsImageDimensionKeys(t *testing.T) {
	page := Page{LDJSONBlocks: []string{
		`{"@type":"Product","image":{"width":800,"height":600}}`,
	}}
	candidates, _ := ExtractJSONLD(page)
	for _, c := range candidates {
		if c.Field == "width" || c.Field == "height" {
			t.Fatalf("ExtractJSONLD leaked image dimension candidate: %+v", c)
		}
	}
}

func TestExtractOpenGraph(t *testing.T) {
	page := Page{EmbeddedState: map[string]any{
		"opengraph": map[string]any{"title": "Mouse X"},
	}}
	candidates := ExtractOpenGraph(page)
	if len(candidates) != 1 || candidates[0].Value != "Mouse X" || candidates[0].Method != MethodOpenGraph {
		t.Fatalf("ExtractOpenGraph() = %+v", candidates)
	}
}

func TestExtractEmbeddedState(t *testing.T) {
	page := Page{EmbeddedState: map[string]any{
		"app_state": map[string]any{"sensor": "Focus Pro 35K"},
	}}
	candidates := ExtractEmbeddedState(page)
	if len(candidates) != 1 || candidates[0].Method != MethodNetworkJSON {
		t.Fatalf("ExtractEmbeddedState() = %+v", candidates)
	}
}

func TestExtractHTMLTables_ResolvesAliasedLabels(t *testing.T) {
	rawHTML := `<table><tr><td>Sensor</td><td>Focus Pro 35K</td></tr><tr><td>Unknown Spec</td><td>foo</td></tr></table>`
	aliases := map[string]string{"sensor": "sensor"}
	candidates, stats := ExtractHTMLTables(rawHTML, aliases)
	if stats.Accepted != 1 || stats.Rejected != 1 {
		t.Fatalf("stats = %+v, want accepted=1 rejected=1", stats)
	}
	if len(candidates) != 1 || candidates[0].Value != "Focus Pro 35K" || candidates[0].Method != MethodSpecTable {
		t.Fatalf("candidates = %+v", candidates)
	}
}

func TestExtractDefinitionLists(t *testing.T) {
	rawHTML := `<dl><dt>Sensor</dt><dd>Focus Pro 35K</dd></dl>`
	candidates, stats := ExtractDefinitionLists(rawHTML, map[string]string{"sensor": "sensor"})
	if stats.Accepted != 1 || len(candidates) != 1 || candidates[0].Value != "Focus Pro 35K" {
		t.Fatalf("ExtractDefinitionLists() = %+v, stats=%+v", candidates, stats)
	}
}

func TestExtractMicrodata(t *testing.T) {
	rawHTML := `<span itemprop="sensor">Focus Pro 35K</span>`
	candidates := ExtractMicrodata(rawHTML)
	if len(candidates) != 1 || candidates[0].Field != "sensor" || candidates[0].Method != MethodMicrodata {
		t.Fatalf("ExtractMicrodata() = %+v", candidates)
	}
}

func TestExtractRDFa(t *testing.T) {
	rawHTML := `<meta property="product:sensor" content="Focus Pro 35K">`
	candidates := ExtractRDFa(rawHTML)
	if len(candidates) != 1 || candidates[0].Value != "Focus Pro 35K" || candidates[0].Method != MethodRDFa {
		t.Fatalf("ExtractRDFa() = %+v", candidates)
	}
}

func TestExtractLabelValueWindows_SkipsOverlongValues(t *testing.T) {
	rawHTML := "<div>Sensor: Focus Pro 35K\nNotes: " + longValue(130) + "</div>"
	aliases := map[string]string{"sensor": "sensor", "notes": "notes"}
	candidates, stats := ExtractLabelValueWindows(rawHTML, aliases)
	if stats.Accepted != 1 || len(candidates) != 1 || candidates[0].Field != "sensor" {
		t.Fatalf("ExtractLabelValueWindows() = %+v, stats=%+v", candidates, stats)
	}
}

func longValue(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
