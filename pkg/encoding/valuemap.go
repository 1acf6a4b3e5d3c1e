package encoding

import (
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// MapValues replaces column with the numeric value mapping assigns to each
// cell's text. A missing cell is looked up as "". Values without a mapping
// become missing; their rows are returned.
func MapValues(t *table.Table, column string, mapping map[string]float64) (*table.Table, []int, error) {
	var unmapped []int
	out, err := t.Map(column, func(row int, c table.Cell) table.Cell {
		if v, ok := mapping[c.Text()]; ok {
			return table.Number(v)
		}
		unmapped = append(unmapped, row)
		return table.Missing()
	})
	if err != nil {
		return nil, nil, err
	}
	return out, unmapped, nil
}
