package table

import (
	"strconv"
	"strings"
)

// Kind identifies what a Cell holds.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindList
)

// Cell is a single table value: missing, text, a number, or a list of cells.
// The zero Cell is missing.
type Cell struct {
	Kind Kind
	Str  string
	Num  float64
	List []Cell
}

// Missing returns a missing cell.
func Missing() Cell { return Cell{} }

// String returns a text cell.
func String(s string) Cell { return Cell{Kind: KindString, Str: s} }

// Number returns a numeric cell.
func Number(n float64) Cell { return Cell{Kind: KindNumber, Num: n} }

// Int returns a numeric cell holding an integer.
func Int(n int) Cell { return Number(float64(n)) }

// List returns a list cell.
func List(items ...Cell) Cell {
	if items == nil {
		items = []Cell{}
	}
	return Cell{Kind: KindList, List: items}
}

// IsMissing reports whether the cell holds no value.
func (c Cell) IsMissing() bool { return c.Kind == KindMissing }

// Text renders the cell as plain text. Missing cells render as "".
func (c Cell) Text() string {
	switch c.Kind {
	case KindString:
		return c.Str
	case KindNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case KindList:
		parts := make([]string, len(c.List))
		for i, item := range c.List {
			if item.IsMissing() {
				parts[i] = "null"
			} else {
				parts[i] = item.Text()
			}
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return ""
	}
}

// Value converts the cell to a plain Go value for serialization:
// nil, string, float64, or []interface{}.
func (c Cell) Value() interface{} {
	switch c.Kind {
	case KindString:
		return c.Str
	case KindNumber:
		return c.Num
	case KindList:
		out := make([]interface{}, len(c.List))
		for i, item := range c.List {
			out[i] = item.Value()
		}
		return out
	default:
		return nil
	}
}
