package encoding

import (
	"strings"

	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// NoAvailability is the fill value for empty time slots. It contains no day
// name, so it encodes to all zeros.
const NoAvailability = "no availability"

// TimeSlotColumn names the indicator column for a slot and day.
func TimeSlotColumn(slot, day string) string {
	return slot + "_" + day
}

// EncodeTimeSlots appends one 0/1 column per (slot, day): 1 when the day
// name occurs anywhere in the slot's cell. Missing cells give missing
// indicators. All indicators are derived from t before the source columns
// are dropped.
func EncodeTimeSlots(t *table.Table, days, timeColumns []string, dropOriginals bool) (*table.Table, error) {
	var names []string
	var cols [][]table.Cell

	for _, slot := range timeColumns {
		src, err := t.Column(slot)
		if err != nil {
			return nil, err
		}
		for _, day := range days {
			col := make([]table.Cell, len(src))
			for row, c := range src {
				switch {
				case c.IsMissing():
				case strings.Contains(c.Text(), day):
					col[row] = table.Int(1)
				default:
					col[row] = table.Int(0)
				}
			}
			names = append(names, TimeSlotColumn(slot, day))
			cols = append(cols, col)
		}
	}

	out := t
	if dropOriginals {
		out = out.Drop(timeColumns...)
	}
	return out.WithColumns(names, cols)
}
