package encoding

import (
	"errors"
	"fmt"
	"strconv"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// DummyOptions controls DummyEncode.
type DummyOptions struct {
	RealWeight     float64
	SentinelWeight float64
	// Sentinel defaults to DefaultSentinel.
	Sentinel string
	// Basis, when set, is used instead of one built from the column. Values
	// outside it fail with an UnknownCategoryError.
	Basis *Basis
	// DropOriginal removes the source column from the result.
	DropOriginal bool
}

// DummyResult is the outcome of DummyEncode.
type DummyResult struct {
	Table   *table.Table
	Basis   *Basis
	Columns []string
	// MissingRows lists rows whose source cell was empty; their encoded cells are missing.
	MissingRows []int
}

// ColumnNames returns "<column>_1" .. "<column>_k".
func ColumnNames(column string, k int) []string {
	names := make([]string, k)
	for i := range names {
		names[i] = column + "_" + strconv.Itoa(i+1)
	}
	return names
}

// DummyEncode appends the K encoded columns of column to t.
func DummyEncode(t *table.Table, column string, opts DummyOptions) (*DummyResult, error) {
	values, err := t.Strings(column)
	if err != nil {
		return nil, err
	}

	basis := opts.Basis
	if basis == nil {
		sentinel := opts.Sentinel
		if sentinel == "" {
			sentinel = DefaultSentinel
		}
		basis = NewBasis(values, sentinel, opts.RealWeight, opts.SentinelWeight)
	}

	k := basis.K()
	cols := make([][]table.Cell, k)
	for i := range cols {
		cols[i] = make([]table.Cell, t.Len())
	}

	res := &DummyResult{Basis: basis, Columns: ColumnNames(column, k)}
	for row, v := range values {
		if v == "" {
			res.MissingRows = append(res.MissingRows, row)
			continue
		}
		vec, err := basis.Vector(v)
		if err != nil {
			var uc *gperrors.UnknownCategoryError
			if errors.As(err, &uc) {
				uc.Column, uc.Row = column, row
			}
			return nil, err
		}
		for i, x := range vec {
			cols[i][row] = table.Number(x)
		}
	}

	out := t
	if opts.DropOriginal {
		out = out.Drop(column)
	}
	if out, err = out.WithColumns(res.Columns, cols); err != nil {
		return nil, fmt.Errorf("appending encoded columns for %s: %w", column, err)
	}
	res.Table = out
	return res, nil
}
