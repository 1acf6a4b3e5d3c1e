package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
)

func sample(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromRecords(
		[]string{"name", "surname", "time1"},
		[][]string{
			{"Ana", "Lee", "Montag"},
			{"Bob", "Tan", ""},
			{"Carl"},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestFromRecords(t *testing.T) {
	tbl := sample(t)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"name", "surname", "time1"}, tbl.Columns())

	c, err := tbl.Cell(1, "time1")
	require.NoError(t, err)
	assert.True(t, c.IsMissing(), "empty field should be missing")

	c, err = tbl.Cell(2, "surname")
	require.NoError(t, err)
	assert.True(t, c.IsMissing(), "short record should be padded")
}

func TestFromRecords_DuplicateHeader(t *testing.T) {
	_, err := FromRecords([]string{"a", "a"}, nil)
	assert.True(t, gperrors.IsValidation(err))
}

func TestColumn_Missing(t *testing.T) {
	_, err := sample(t).Column("nope")
	assert.True(t, gperrors.IsMissingColumn(err))
}

func TestWithColumn_IsCopyOnWrite(t *testing.T) {
	base := sample(t)
	next, err := base.WithColumn("id", []Cell{Int(1), Int(2), Int(3)})
	require.NoError(t, err)

	assert.False(t, base.Has("id"), "source table must not change")
	assert.True(t, next.Has("id"))
	assert.Equal(t, "name", next.Columns()[0])
	assert.Equal(t, "id", next.Columns()[3])
}

func TestWithColumn_ReplaceKeepsPosition(t *testing.T) {
	next, err := sample(t).WithColumn("surname", []Cell{Missing(), Missing(), Missing()})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "surname", "time1"}, next.Columns())
}

func TestWithColumn_LengthMismatch(t *testing.T) {
	_, err := sample(t).WithColumn("id", []Cell{Int(1)})
	assert.Error(t, err)
}

func TestDrop(t *testing.T) {
	base := sample(t)
	next := base.Drop("surname", "not-there")

	assert.Equal(t, []string{"name", "time1"}, next.Columns())
	assert.Len(t, base.Columns(), 3)
}

func TestRename(t *testing.T) {
	next, err := sample(t).Rename(map[string]string{"surname": "last"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "last", "time1"}, next.Columns())

	_, err = sample(t).Rename(map[string]string{"surname": "name"})
	assert.True(t, gperrors.IsValidation(err))
}

func TestMap(t *testing.T) {
	next, err := sample(t).Map("time1", func(_ int, c Cell) Cell {
		if c.IsMissing() {
			return String("no availability")
		}
		return c
	})
	require.NoError(t, err)

	got, err := next.Strings("time1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Montag", "no availability", "no availability"}, got)
}

func TestCell_Text(t *testing.T) {
	tests := []struct {
		cell Cell
		want string
	}{
		{Missing(), ""},
		{String("x"), "x"},
		{Number(3), "3"},
		{Number(0.5), "0.5"},
		{List(Int(1), Missing(), Int(3)), "[1,null,3]"},
		{List(), "[]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cell.Text())
	}
}

func TestCell_Value(t *testing.T) {
	assert.Nil(t, Missing().Value())
	assert.Equal(t, []interface{}{float64(2), nil}, List(Int(2), Missing()).Value())
}
