// Package table provides the in-memory participant table the pipeline stages
// operate on.
//
// A Table is columnar and immutable: every operation returns a new Table that
// shares the untouched column slices with its source. Stages never mutate a
// table they were handed.
package table

import (
	"fmt"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
)

// Table is an ordered set of equally long columns.
type Table struct {
	names []string
	index map[string]int
	cols  [][]Cell
	rows  int
}

// New creates an empty table with the given row count and no columns.
func New(rows int) *Table {
	return &Table{index: map[string]int{}, rows: rows}
}

// FromRecords builds a table of string cells from a header and records.
// Empty strings become missing cells. Short records are padded with missing
// cells; extra fields are ignored.
func FromRecords(header []string, records [][]string) (*Table, error) {
	t := New(len(records))
	seen := make(map[string]bool, len(header))
	for c, name := range header {
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate column %q", gperrors.ErrValidation, name)
		}
		seen[name] = true

		col := make([]Cell, len(records))
		for r, rec := range records {
			if c < len(rec) && rec[c] != "" {
				col[r] = String(rec[c])
			}
		}
		t = t.with(name, col)
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the cells of a column. The returned slice must not be modified.
func (t *Table) Column(name string) ([]Cell, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, gperrors.MissingColumn(name)
	}
	return t.cols[i], nil
}

// Strings returns a column as text, with missing cells as "".
func (t *Table) Strings(name string) ([]string, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(col))
	for i, c := range col {
		out[i] = c.Text()
	}
	return out, nil
}

// Cell returns a single cell.
func (t *Table) Cell(row int, name string) (Cell, error) {
	col, err := t.Column(name)
	if err != nil {
		return Cell{}, err
	}
	if row < 0 || row >= t.rows {
		return Cell{}, fmt.Errorf("row %d out of range [0, %d)", row, t.rows)
	}
	return col[row], nil
}

// WithColumn returns a table with the column appended, or replaced in place
// if a column of that name already exists.
func (t *Table) WithColumn(name string, cells []Cell) (*Table, error) {
	if len(cells) != t.rows {
		return nil, fmt.Errorf("column %s has %d cells, table has %d rows", name, len(cells), t.rows)
	}
	return t.with(name, cells), nil
}

// WithColumns appends several columns at once.
func (t *Table) WithColumns(names []string, cols [][]Cell) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), len(cols))
	}
	out := t
	for i, name := range names {
		var err error
		if out, err = out.WithColumn(name, cols[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Drop returns a table without the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := New(t.rows)
	for i, name := range t.names {
		if !skip[name] {
			out = out.with(name, t.cols[i])
		}
	}
	return out
}

// Rename returns a table with columns renamed according to mapping.
// Columns not in mapping keep their name.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	out := New(t.rows)
	for i, name := range t.names {
		if to, ok := mapping[name]; ok && to != "" {
			name = to
		}
		if out.Has(name) {
			return nil, fmt.Errorf("%w: rename produces duplicate column %q", gperrors.ErrValidation, name)
		}
		out = out.with(name, t.cols[i])
	}
	return out, nil
}

// Map returns a table where the named column is replaced by fn applied to
// every cell.
func (t *Table) Map(name string, fn func(row int, c Cell) Cell) (*Table, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	next := make([]Cell, len(col))
	for i, c := range col {
		next[i] = fn(i, c)
	}
	return t.with(name, next), nil
}

func (t *Table) with(name string, cells []Cell) *Table {
	out := &Table{
		names: make([]string, len(t.names), len(t.names)+1),
		index: make(map[string]int, len(t.index)+1),
		cols:  make([][]Cell, len(t.cols), len(t.cols)+1),
		rows:  t.rows,
	}
	copy(out.names, t.names)
	copy(out.cols, t.cols)
	for k, v := range t.index {
		out.index[k] = v
	}
	if i, ok := out.index[name]; ok {
		out.cols[i] = cells
		return out
	}
	out.index[name] = len(out.names)
	out.names = append(out.names, name)
	out.cols = append(out.cols, cells)
	return out
}
