package cohort

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"taxosurv/domain/survival"
	"taxosurv/internal/errors"
)

// Required cohort columns
const (
	ColumnCancer  = "cancer"
	ColumnOSTime  = "OS_time"
	ColumnOS      = "OS"
	ColumnPFITime = "PFI_time"
	ColumnPFI     = "PFI"
)

// RequiredColumns must be present in every patient table
var RequiredColumns = []string{ColumnCancer, ColumnOSTime, ColumnOS, ColumnPFITime, ColumnPFI}

// GroupColumnSuffix is appended to a taxon name to form its group column
const GroupColumnSuffix = "_group"

// GroupColumn names the derived partition column for a taxon
func GroupColumn(taxon string) string {
	return taxon + GroupColumnSuffix
}

// Table is a read-only patient table with raw string cells.
// Cells are kept verbatim so derived tables reproduce the input faithfully.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a table and indexes its header. When a column name repeats,
// the first occurrence wins.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, name := range header {
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether the header contains name
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of name in the header
func (t *Table) ColumnIndex(name string) (int, error) {
	idx, ok := t.index[name]
	if !ok {
		return -1, errors.ConfigInvalid(fmt.Sprintf("column %q not found in cohort table", name))
	}
	return idx, nil
}

// MissingColumns lists the names absent from the header, in argument order
func (t *Table) MissingColumns(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Cell returns the raw value at (row, col); short rows read as empty
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Select returns the indices of rows whose cancer label equals cancer,
// in input order.
func (t *Table) Select(cancer string) []int {
	col, ok := t.index[ColumnCancer]
	if !ok {
		return nil
	}
	var rows []int
	for i := range t.Rows {
		if t.Cell(i, col) == cancer {
			rows = append(rows, i)
		}
	}
	return rows
}

// Floats parses column name for the given rows
func (t *Table) Floats(name string, rows []int) ([]float64, error) {
	col, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		v, err := ParseNumber(t.Cell(r, col))
		if err != nil {
			return nil, errors.Wrapf(err, "column %q row %d", name, r+2)
		}
		out[i] = v
	}
	return out, nil
}

// Observations builds the (time, event) pairs of an endpoint for the given rows
func (t *Table) Observations(endpoint survival.Endpoint, rows []int) ([]survival.Observation, error) {
	times, err := t.Floats(endpoint.TimeColumn(), rows)
	if err != nil {
		return nil, err
	}
	events, err := t.Floats(endpoint.EventColumn(), rows)
	if err != nil {
		return nil, err
	}
	out := make([]survival.Observation, len(rows))
	for i := range rows {
		out[i] = survival.Observation{Time: times[i], Event: events[i] != 0}
	}
	return out, nil
}

// Subset copies the given rows into a new table with the same header
func (t *Table) Subset(rows []int) *Table {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), t.Rows[r]...)
	}
	return NewTable(append([]string(nil), t.Header...), out)
}

// Column is a named column of derived values aligned with a table's rows
type Column struct {
	Name   string
	Values []string
}

// WithColumns returns a copy of t with cols appended. A column whose name is
// already in the header replaces the existing values instead.
func (t *Table) WithColumns(cols ...Column) (*Table, error) {
	header := append([]string(nil), t.Header...)
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]string, len(header), len(header)+len(cols))
		copy(row, r)
		rows[i] = row
	}

	out := NewTable(header, rows)
	for _, c := range cols {
		if len(c.Values) != len(rows) {
			return nil, errors.InternalError(fmt.Sprintf("column %q has %d values for %d rows", c.Name, len(c.Values), len(rows)))
		}
		if idx, ok := out.index[c.Name]; ok {
			for i := range rows {
				rows[i][idx] = c.Values[i]
			}
			continue
		}
		out.index[c.Name] = len(out.Header)
		out.Header = append(out.Header, c.Name)
		for i := range rows {
			rows[i] = append(rows[i], c.Values[i])
		}
	}
	return out, nil
}

// ParseNumber reads a numeric cell. Integers written as floats ("1.0") and
// surrounding whitespace are accepted; NaN and infinities are not.
func ParseNumber(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, errors.InvalidInput("empty numeric cell")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.InvalidInput(fmt.Sprintf("invalid numeric value %q", cell))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.InvalidInput(fmt.Sprintf("non-finite numeric value %q", cell))
	}
	return v, nil
}
