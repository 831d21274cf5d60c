package models

import "fmt"

// Source identifiers
const (
	SourceWorldBank = "worldbank"
	SourceILO       = "ilo"
	SourceIMF       = "imf"
)

// RawTable is a provider response flattened into named columns.
// Cells are kept as strings; an empty cell means the provider had no value.
type RawTable struct {
	Source  string     `json:"source"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewRawTable creates an empty table with the given columns
func NewRawTable(source string, columns ...string) *RawTable {
	return &RawTable{
		Source:  source,
		Columns: columns,
	}
}

// ColumnIndex returns the position of a column, or -1 when absent
func (t *RawTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds one row; it must have one cell per column
func (t *RawTable) Append(cells ...string) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table %s has %d columns", len(cells), t.Source, len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// Concat appends the rows of other; columns must match exactly
func (t *RawTable) Concat(other *RawTable) error {
	if other == nil {
		return nil
	}
	if len(other.Columns) != len(t.Columns) {
		return fmt.Errorf("cannot concat %s table with %d columns into %d columns", other.Source, len(other.Columns), len(t.Columns))
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return fmt.Errorf("column mismatch at %d: %q vs %q", i, t.Columns[i], other.Columns[i])
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}

// Len returns the number of rows
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
