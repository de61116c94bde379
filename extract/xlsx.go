package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExtractXLSXTable walks every sheet's rows and emits one candidate per
// two-column row, the spreadsheet analogue of ExtractHTMLTables: column A
// is the field label, column B the value. Grounded on the teacher's
// parser.XLSXParser.Parse, which walks f.GetSheetList()/f.GetRows() the
// same way; here each row becomes a candidate instead of a pipe-joined
// Section line.
func ExtractXLSXTable(path string, fieldAliases map[string]string) ([]Candidate, ParserStats, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, ParserStats{}, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var out []Candidate
	var stats ParserStats
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for rowIdx, row := range rows {
			if len(row) < 2 {
				continue
			}
			label := strings.ToLower(strings.TrimSpace(row[0]))
			value := strings.TrimSpace(row[1])
			field, ok := fieldAliases[label]
			if !ok || value == "" {
				stats.Rejected++
				continue
			}
			out = append(out, Candidate{
				Field:   field,
				Value:   value,
				Method:  MethodSpecTable,
				KeyPath: fmt.Sprintf("xlsx.%s.row%d.%s", sheet, rowIdx+1, label),
			})
			stats.Accepted++
		}
	}
	return out, stats, nil
}

// ExtractXLSXDocument runs ExtractXLSXTable over a downloaded spreadsheet
// held in memory (Page.RawBytes), writing it to a scratch file first
// since excelize.OpenFile needs a real path. The scratch file is removed
// before returning.
func ExtractXLSXDocument(raw []byte, fieldAliases map[string]string) ([]Candidate, ParserStats, error) {
	tmp, err := os.CreateTemp("", "harvester-xlsx-*.xlsx")
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

	return ExtractXLSXTable(path, fieldAliases)
}
