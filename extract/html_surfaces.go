package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTMLTables walks every <table> in the page and emits one
// candidate per two-column row, using the first cell as the field label
// and the second as the value. Labels are matched against fieldAliases
// (lowercased label -> canonical field key); rows whose label does not
// resolve are dropped and counted as rejected.
func ExtractHTMLTables(rawHTML string, fieldAliases map[string]string) ([]Candidate, ParserStats) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, ParserStats{Rejected: 1}
	}

	var out []Candidate
	var stats ParserStats
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			rows := findAll(n, "tr")
			for _, row := range rows {
				cells := findAll(row, "td")
				if len(cells) < 2 {
					cells = findAll(row, "th")
					if len(cells) < 2 {
						continue
					}
				}
				label := strings.ToLower(strings.TrimSpace(textContent(cells[0])))
				value := strings.TrimSpace(textContent(cells[1]))
				field, ok := fieldAliases[label]
				if !ok || value == "" {
					stats.Rejected++
					continue
				}
				out = append(out, Candidate{Field: field, Value: value, Method: MethodSpecTable, KeyPath: "table." + label})
				stats.Accepted++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, stats
}

// ExtractDefinitionLists walks every <dl> and pairs each <dt> with its
// following <dd>, the same label-resolution rule as ExtractHTMLTables.
func ExtractDefinitionLists(rawHTML string, fieldAliases map[string]string) ([]Candidate, ParserStats) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, ParserStats{Rejected: 1}
	}
	var out []Candidate
	var stats ParserStats
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "dl" {
			var pendingLabel string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch c.Data {
				case "dt":
					pendingLabel = strings.ToLower(strings.TrimSpace(textContent(c)))
				case "dd":
					value := strings.TrimSpace(textContent(c))
					field, ok := fieldAliases[pendingLabel]
					if !ok || value == "" {
						stats.Rejected++
						continue
					}
					out = append(out, Candidate{Field: field, Value: value, Method: MethodSpecTable, KeyPath: "dl." + pendingLabel})
					stats.Accepted++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, stats
}

// ExtractMicrodata scans every itemprop attribute in the page, producing
// microdata_product candidates keyed by itemprop name. The enclosing
// itemscope/itemtype is not checked, so properties are not limited to
// Product-typed items.
func ExtractMicrodata(rawHTML string) []Candidate {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			prop := attr(n, "itemprop")
			if prop != "" {
				value := attr(n, "content")
				if value == "" {
					value = strings.TrimSpace(textContent(n))
				}
				if value != "" {
					out = append(out, Candidate{Field: prop, Value: value, Method: MethodMicrodata, KeyPath: "itemprop." + prop})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// ExtractRDFa scans "property" attributes in RDFa-annotated markup,
// producing rdfa_product candidates.
func ExtractRDFa(rawHTML string) []Candidate {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			prop := attr(n, "property")
			if prop != "" {
				value := attr(n, "content")
				if value == "" {
					value = strings.TrimSpace(textContent(n))
				}
				if value != "" {
					out = append(out, Candidate{Field: prop, Value: value, Method: MethodRDFa, KeyPath: "rdfa." + prop})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// ExtractLabelValueWindows scans "Label: Value" text lines (e.g. spec
// bullets) across the whole document's text content, the lowest-confidence
// structured surface, tried last. Text inside tables and definition lists
// is not excluded.
func ExtractLabelValueWindows(rawHTML string, fieldAliases map[string]string) ([]Candidate, ParserStats) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, ParserStats{Rejected: 1}
	}
	text := textContent(doc)
	var out []Candidate
	var stats ParserStats
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 || idx == len(line)-1 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		field, ok := fieldAliases[label]
		if !ok || value == "" || len(value) > 120 {
			continue
		}
		out = append(out, Candidate{Field: field, Value: value, Method: MethodSpecTable, KeyPath: "window." + label})
		stats.Accepted++
	}
	return out, stats
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
