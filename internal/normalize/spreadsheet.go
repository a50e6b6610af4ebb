package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Section is a parsed slice of an uploaded file: one sheet of a workbook
// or a whole CSV. Rows keep the header-to-value mapping so previews and
// the flattened text stay labeled.
type Section struct {
	Name     string              `json:"name"`
	Headers  []string            `json:"headers"`
	Rows     []map[string]string `json:"rows"`
	RowCount int                 `json:"rowCount"`
	Preview  string              `json:"preview"`
	Format   string              `json:"format"`
}

// previewRows and previewValueMax bound the human-readable preview.
const (
	previewRows     = 3
	previewValueMax = 120
)

// ParseWorkbook reads an xlsx workbook into one Section per sheet.
// Sheets whose index is in anonymizeSheets get their cell values run
// through Anonymize.
func ParseWorkbook(r io.Reader, anonymizeSheets map[int]bool) ([]Section, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var sections []Section
	for idx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}

		section := tableSection(sheet, rows, "excel", anonymizeSheets[idx])
		sections = append(sections, section)
	}
	return sections, nil
}

// ParseCSV reads a CSV file into a single Section. The first row is the
// header.
func ParseCSV(r io.Reader, name string, anonymize bool) ([]Section, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	return []Section{tableSection(name, records, "csv", anonymize)}, nil
}

// tableSection builds a Section from raw rows, the first being headers.
func tableSection(name string, raw [][]string, format string, anon bool) Section {
	if len(raw) < 2 {
		return Section{Name: name, Headers: []string{}, Rows: []map[string]string{},
			Preview: "(sin datos)", Format: format}
	}

	headers := raw[0]
	var rows []map[string]string
	for _, record := range raw[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, h := range headers {
			var val string
			if i < len(record) {
				val = record[i]
			}
			if anon {
				val = Anonymize(val)
			}
			if strings.TrimSpace(val) != "" {
				empty = false
			}
			row[headerLabel(h, i)] = val
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	labels := make([]string, len(headers))
	for i, h := range headers {
		labels[i] = headerLabel(h, i)
	}

	return Section{
		Name:     name,
		Headers:  labels,
		Rows:     rows,
		RowCount: len(rows),
		Preview:  tablePreview(labels, rows),
		Format:   format,
	}
}

func headerLabel(header string, idx int) string {
	if strings.TrimSpace(header) == "" {
		return fmt.Sprintf("Col %d", idx+1)
	}
	return header
}

// tablePreview renders the first rows as labeled lines for review before
// normalization.
func tablePreview(headers []string, rows []map[string]string) string {
	if len(rows) == 0 {
		return "(vacía)"
	}

	n := min(previewRows, len(rows))
	parts := make([]string, 0, n)
	for i := range n {
		var fields []string
		for _, h := range headers {
			val := strings.TrimSpace(rows[i][h])
			if val == "" {
				continue
			}
			if len(val) > previewValueMax {
				val = val[:previewValueMax] + "..."
			}
			fields = append(fields, fmt.Sprintf("  %s: %s", h, val))
		}
		parts = append(parts, fmt.Sprintf("Fila %d:\n%s", i+1, strings.Join(fields, "\n")))
	}
	return strings.Join(parts, "\n\n")
}

// Text flattens a Section into prose-ish text for the normalizer.
func (s Section) Text() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	sb.WriteString("\n\n")
	for _, row := range s.Rows {
		for _, h := range s.Headers {
			val := strings.TrimSpace(row[h])
			if val == "" {
				continue
			}
			sb.WriteString(h)
			sb.WriteString(": ")
			sb.WriteString(val)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
