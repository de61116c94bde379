package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfPageText returns the plain text of every page in path, in page order.
// Pages that fail to extract (corrupt content streams, scanned images with
// no text layer) are skipped rather than failing the whole document, the
// same per-page tolerance as the teacher's parser.PDFParser.Parse.
func pdfPageText(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// tableColumnSplit splits a PDF text line into columns where the producing tool
// rendered a table as runs of whitespace or a pipe, the same structural
// signal the teacher's classifySectionType uses to recognize table content.
var tableColumnSplit = regexp.MustCompile(`\s{2,}|\t|\s*\|\s*`)

// ExtractPDFKV scans each page's text for "Label: Value" lines, the PDF
// analogue of ExtractLabelValueWindows: a colon-separated key/value pair
// is the lowest-structure signal a spec sheet PDF offers.
// ExtractPDFDocument runs it alongside ExtractPDFTable and keeps the
// candidates of both.
func ExtractPDFKV(path string, fieldAliases map[string]string) ([]Candidate, ParserStats, error) {
	pages, err := pdfPageText(path)
	if err != nil {
		return nil, ParserStats{}, err
	}

	var out []Candidate
	var stats ParserStats
	for pageNum, text := range pages {
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
			out = append(out, Candidate{
				Field:   field,
				Value:   value,
				Method:  MethodPDFKV,
				KeyPath: fmt.Sprintf("pdf.page%d.%s", pageNum+1, label),
			})
			stats.Accepted++
		}
	}
	return out, stats, nil
}

// ExtractPDFTable scans each page's text for two-or-more-column lines
// (runs of whitespace, tabs, or pipes separating cells) and treats the
// first column as the row label, the same row shape ExtractHTMLTables
// reads out of an HTML <tr>, adapted from the teacher's
// classifySectionType tab/pipe-count table heuristic.
func ExtractPDFTable(path string, fieldAliases map[string]string) ([]Candidate, ParserStats, error) {
	pages, err := pdfPageText(path)
	if err != nil {
		return nil, ParserStats{}, err
	}

	var out []Candidate
	var stats ParserStats
	for pageNum, text := range pages {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cols := tableColumnSplit.Split(line, -1)
			if len(cols) < 2 {
				continue
			}
			label := strings.ToLower(strings.TrimSpace(cols[0]))
			value := strings.TrimSpace(cols[1])
			field, ok := fieldAliases[label]
			if !ok || value == "" {
				stats.Rejected++
				continue
			}
			out = append(out, Candidate{
				Field:   field,
				Value:   value,
				Method:  MethodPDFTable,
				KeyPath: fmt.Sprintf("pdf.page%d.table.%s", pageNum+1, label),
			})
			stats.Accepted++
		}
	}
	return out, stats, nil
}

// ExtractPDFDocument runs ExtractPDFKV and ExtractPDFTable over a
// downloaded PDF held in memory (Page.RawBytes), writing it to a scratch
// file first since the ledongthuc/pdf reader needs an io.ReaderAt backed
// by a real file. The scratch file is removed before returning.
// preferTable puts ExtractPDFTable's candidates first (PDF_PREFERRED_BACKEND
// = "table"); otherwise ExtractPDFKV runs first, the historical default.
func ExtractPDFDocument(raw []byte, fieldAliases map[string]string, preferTable bool) ([]Candidate, ParserStats, error) {
	tmp, err := os.CreateTemp("", "harvester-pdf-*.pdf")
	if err != nil {
		return nil, ParserStats{}, fmt.Errorf("creating scratch file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, ParserStats{}, fmt.Errorf("writing scratch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, ParserStats{}, fmt.Errorf("closing scratch file: %w", err)
	}

	kv, kvStats, err := ExtractPDFKV(path, fieldAliases)
	if err != nil {
		return nil, ParserStats{}, err
	}
	tables, tableStats, err := ExtractPDFTable(path, fieldAliases)
	if err != nil {
		return nil, ParserStats{}, err
	}

	var out []Candidate
	if preferTable {
		out = append(tables, kv...)
	} else {
		out = append(kv, tables...)
	}
	stats := ParserStats{
		Accepted: kvStats.Accepted + tableStats.Accepted,
		Rejected: kvStats.Rejected + tableStats.Rejected,
	}
	return out, stats, nil
}
