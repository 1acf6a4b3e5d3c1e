package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

func participants(t *testing.T, rows ...[]string) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords([]string{"name", "surname"}, rows)
	require.NoError(t, err)
	return tbl
}

func TestBuild_FirstSeenOrder(t *testing.T) {
	tbl := participants(t, []string{"Ana", "Lee"}, []string{"Bob", "Tan"}, []string{"Carl", "Ng"})

	a, err := Build(tbl, []string{"name", "surname"}, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"AnaLee", "BobTan", "CarlNg"}, a.Map.Keys())
	assert.Equal(t, []int{1, 2, 3}, a.RowIDs)
	assert.Empty(t, a.Skipped)
}

func TestBuild_IsBijection(t *testing.T) {
	tbl := participants(t,
		[]string{"Ana", "Lee"}, []string{"Bob", "Tan"}, []string{"Ana", "Lee"},
		[]string{"Dora", "Ek"}, []string{"Bob", "Tan"},
	)

	a, err := Build(tbl, []string{"name", "surname"}, BuildOptions{})
	require.NoError(t, err)

	seen := map[int]string{}
	for _, k := range a.Map.Keys() {
		id, ok := a.Map.ID(k)
		require.True(t, ok)
		_, dup := seen[id]
		assert.False(t, dup, "identity %d assigned twice", id)
		seen[id] = k

		back, ok := a.Map.Key(id)
		require.True(t, ok)
		assert.Equal(t, k, back)
	}
	assert.Equal(t, 3, a.Map.Len())
	assert.Len(t, seen, a.Map.Len())
}

func TestBuild_DuplicateNamesCollapse(t *testing.T) {
	tbl := participants(t, []string{"Ana", "Lee"}, []string{"Bob", "Tan"}, []string{"Ana", "Lee"})

	a, err := Build(tbl, []string{"name", "surname"}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, a.RowIDs)
}

func TestBuild_Disambiguate(t *testing.T) {
	tbl := participants(t, []string{"Ana", "Lee"}, []string{"Bob", "Tan"}, []string{"Ana", "Lee"})

	a, err := Build(tbl, []string{"name", "surname"}, BuildOptions{Disambiguate: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, a.RowIDs)
	assert.Equal(t, []string{"AnaLee", "BobTan", "AnaLee#2"}, a.Map.Keys())
}

func TestBuild_MissingNameSkipsRow(t *testing.T) {
	tbl := participants(t, []string{"Ana", "Lee"}, []string{"", "Tan"}, []string{"Carl", "Ng"})

	a, err := Build(tbl, []string{"name", "surname"}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, a.RowIDs)
	assert.Equal(t, []int{1}, a.Skipped)
}

func TestBuild_Errors(t *testing.T) {
	tbl := participants(t, []string{"Ana", "Lee"})

	_, err := Build(tbl, nil, BuildOptions{})
	assert.True(t, gperrors.IsValidation(err))

	_, err = Build(tbl, []string{"name", "middle"}, BuildOptions{})
	assert.True(t, gperrors.IsMissingColumn(err))
}

func TestFromPairs(t *testing.T) {
	m, err := FromPairs(map[string]int{"BobTan": 2, "AnaLee": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"AnaLee", "BobTan"}, m.Keys())

	_, err = FromPairs(map[string]int{"AnaLee": 1, "BobTan": 3})
	assert.True(t, gperrors.IsValidation(err))
}

func TestMap_KeyOutOfRange(t *testing.T) {
	m, err := FromPairs(map[string]int{"AnaLee": 1})
	require.NoError(t, err)

	_, ok := m.Key(0)
	assert.False(t, ok)
	_, ok = m.Key(2)
	assert.False(t, ok)
}
