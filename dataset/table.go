// Package dataset provides the in-memory tabular model the chart resolver
// aggregates over. Tables are built from uploaded CSV files; cells are kept
// as strings with "" meaning missing, and coerced to numbers on demand.
package dataset

import (
	"strconv"
	"strings"
)

// Table is an ordered set of named columns over string-valued rows.
type Table struct {
	cols     []string
	colIndex map[string]int
	rows     [][]string
}

// New creates an empty table with the given column order. Duplicate column
// names keep the first position.
func New(cols []string) *Table {
	t := &Table{
		cols:     make([]string, 0, len(cols)),
		colIndex: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if _, ok := t.colIndex[c]; ok {
			continue
		}
		t.colIndex[c] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t
}

// Columns returns the column names in display order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// HasColumn reports whether the table has a column with that exact name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.cols)
}

// AppendRow adds a row. Short rows are padded with missing values; long rows
// are truncated to the column count.
func (t *Table) AppendRow(values []string) {
	row := make([]string, len(t.cols))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Value returns the cell at (row, column). ok is false when the column does
// not exist, the row is out of range, or the cell is missing.
func (t *Table) Value(row int, col string) (string, bool) {
	idx, exists := t.colIndex[col]
	if !exists || row < 0 || row >= len(t.rows) {
		return "", false
	}
	v := strings.TrimSpace(t.rows[row][idx])
	if v == "" {
		return "", false
	}
	return v, true
}

// Column returns all cell values of a column in row order, including missing
// cells as "".
func (t *Table) Column(col string) ([]string, bool) {
	idx, exists := t.colIndex[col]
	if !exists {
		return nil, false
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, true
}

// Preview renders the header and up to n rows as CSV-ish text, suitable for
// inclusion in a model prompt.
func (t *Table) Preview(n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.cols, ","))
	for i, row := range t.rows {
		if i >= n {
			break
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, ","))
	}
	return b.String()
}

// ParseNumber coerces a cell value to a float64. Missing and non-numeric
// cells report ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
