package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lfzhong/excel-agent/internal/protocol"
)

// dataSection accumulates tabular results. Each fragment is independently
// attempted as a JSON array: objects become keyed rows, arrays become
// positional rows, scalars become single-cell rows. The first
// array-of-objects fragment establishes the column header; once set, the
// header is locked and later rows are projected onto it (missing keys render
// empty, extra keys are dropped). Fragments that don't parse are kept as
// opaque notes below the table rather than discarded.
type dataSection struct {
	header    []string
	headerSet bool
	rows      [][]string
	notes     []string
	finalized bool
	csvExport string
}

func newDataSection() *dataSection {
	return &dataSection{}
}

func (s *dataSection) Type() protocol.ContentType {
	return protocol.ContentData
}

func (s *dataSection) Append(fragment string) {
	var elements []interface{}
	if err := json.Unmarshal([]byte(fragment), &elements); err != nil {
		// Not structured data. Keep it visible instead of dropping it.
		s.notes = append(s.notes, fragment)
		return
	}

	for _, element := range elements {
		switch v := element.(type) {
		case map[string]interface{}:
			s.appendRecord(v)
		case []interface{}:
			s.appendPositional(v)
		default:
			s.rows = append(s.rows, []string{formatCell(element)})
		}
	}
}

// appendRecord adds one keyed row, establishing the header from the first
// record seen. Keys are sorted for a deterministic column order; Go map
// iteration would otherwise shuffle columns between runs.
func (s *dataSection) appendRecord(record map[string]interface{}) {
	if !s.headerSet {
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.header = keys
		s.headerSet = true
	}

	row := make([]string, len(s.header))
	for i, col := range s.header {
		if value, ok := record[col]; ok {
			row[i] = formatCell(value)
		}
	}
	s.rows = append(s.rows, row)
}

func (s *dataSection) appendPositional(values []interface{}) {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = formatCell(v)
	}
	s.rows = append(s.rows, row)
}

// Finalize materializes the CSV export over the accumulated rows.
func (s *dataSection) Finalize() {
	if s.finalized {
		return
	}
	s.finalized = true
	s.csvExport = s.buildCSV()
}

func (s *dataSection) Abort() {
	// Export artifact deliberately not produced on cancellation.
}

func (s *dataSection) Finalized() bool {
	return s.finalized
}

// Header returns the locked column header, or nil if none was established.
func (s *dataSection) Header() []string {
	return s.header
}

// Rows returns the accumulated data rows in arrival order.
func (s *dataSection) Rows() [][]string {
	return s.rows
}

// Notes returns the opaque fragments that did not parse as structured data.
func (s *dataSection) Notes() []string {
	return s.notes
}

// ExportCSV returns the finalize artifact: header plus rows as CSV.
// Empty until the section is finalized.
func (s *dataSection) ExportCSV() string {
	return s.csvExport
}

func (s *dataSection) buildCSV() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if s.headerSet {
		w.Write(s.header)
	}
	for _, row := range s.rows {
		w.Write(row)
	}
	w.Flush()
	return buf.String()
}

func (s *dataSection) Payload() string {
	return s.buildCSV() + strings.Join(s.notes, "\n")
}

func (s *dataSection) View(st *Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("Data"))
	b.WriteString("\n")

	if s.headerSet {
		b.WriteString(st.TableHeader.Render(strings.Join(s.header, " | ")))
		b.WriteString("\n")
	}
	for _, row := range s.rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	for _, note := range s.notes {
		b.WriteString(st.Muted.Render(note))
		b.WriteString("\n")
	}
	if s.finalized {
		b.WriteString(st.Muted.Render("(complete)"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatCell renders one JSON value as cell text. Numbers avoid the
// float64 %v scientific notation; nested structures fall back to their
// JSON encoding.
func formatCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
