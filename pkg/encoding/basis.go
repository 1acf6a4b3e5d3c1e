// Package encoding turns categorical and multi-valued survey columns into
// fixed-width numeric columns.
package encoding

import (
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
)

// DefaultSentinel is the survey answer meaning "no preference".
const DefaultSentinel = "Egal"

// Basis is the dummy encoding of one column: K observed categories, each
// mapped to a one-hot row scaled by RealWeight, plus the sentinel, mapped to
// a row of K copies of SentinelWeight.
type Basis struct {
	Categories     []string
	Sentinel       string
	RealWeight     float64
	SentinelWeight float64

	index map[string]int
}

// NewBasis collects the distinct values in first-seen order, skipping empty
// values and the sentinel.
func NewBasis(values []string, sentinel string, realWeight, sentinelWeight float64) *Basis {
	b := &Basis{
		Sentinel:       sentinel,
		RealWeight:     realWeight,
		SentinelWeight: sentinelWeight,
		index:          map[string]int{},
	}
	for _, v := range values {
		if v == "" || v == sentinel {
			continue
		}
		if _, ok := b.index[v]; !ok {
			b.index[v] = len(b.Categories)
			b.Categories = append(b.Categories, v)
		}
	}
	return b
}

// K returns the number of real categories.
func (b *Basis) K() int { return len(b.Categories) }

// Vector returns the encoding of value.
func (b *Basis) Vector(value string) ([]float64, error) {
	vec := make([]float64, b.K())
	if value == b.Sentinel {
		for i := range vec {
			vec[i] = b.SentinelWeight
		}
		return vec, nil
	}
	i, ok := b.index[value]
	if !ok {
		return nil, &gperrors.UnknownCategoryError{Value: value}
	}
	vec[i] = b.RealWeight
	return vec, nil
}

// Matrix returns the (K+1)xK encoding table; the last row is the sentinel.
func (b *Basis) Matrix() [][]float64 {
	rows := make([][]float64, 0, b.K()+1)
	for _, c := range b.Categories {
		v, _ := b.Vector(c)
		rows = append(rows, v)
	}
	v, _ := b.Vector(b.Sentinel)
	return append(rows, v)
}

// Decode maps a vector back to its category or the sentinel.
func (b *Basis) Decode(vec []float64) (string, bool) {
	if len(vec) != b.K() {
		return "", false
	}
	for _, c := range append(append([]string{}, b.Categories...), b.Sentinel) {
		want, _ := b.Vector(c)
		if equal(want, vec) {
			return c, true
		}
	}
	return "", false
}

func equal(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
