// Package identity assigns participants dense integer identities derived from
// their names and persists the resulting name to identity map.
package identity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// Map is an insertion-ordered bijection between name keys and identities
// 1..N. A Map is not modified after Build or Load returns it.
type Map struct {
	keys []string
	ids  map[string]int
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{ids: map[string]int{}}
}

// FromPairs builds a Map from key to identity pairs, ordering keys by
// identity. Identities must be exactly 1..len(pairs).
func FromPairs(pairs map[string]int) (*Map, error) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return pairs[keys[i]] < pairs[keys[j]] })

	m := NewMap()
	for i, k := range keys {
		if pairs[k] != i+1 {
			return nil, fmt.Errorf("%w: identities must be contiguous from 1, key %q has %d",
				gperrors.ErrValidation, k, pairs[k])
		}
		m.add(k)
	}
	return m, nil
}

func (m *Map) add(key string) int {
	if id, ok := m.ids[key]; ok {
		return id
	}
	m.keys = append(m.keys, key)
	m.ids[key] = len(m.keys)
	return len(m.keys)
}

// Len returns the number of identities.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the keys in identity order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// ID returns the identity for key.
func (m *Map) ID(key string) (int, bool) {
	id, ok := m.ids[key]
	return id, ok
}

// Key returns the key for an identity.
func (m *Map) Key(id int) (string, bool) {
	if id < 1 || id > len(m.keys) {
		return "", false
	}
	return m.keys[id-1], true
}

// Pairs returns a copy of the map as a plain Go map.
func (m *Map) Pairs() map[string]int {
	out := make(map[string]int, len(m.ids))
	for k, v := range m.ids {
		out[k] = v
	}
	return out
}

// BuildOptions controls identity assignment.
type BuildOptions struct {
	// Disambiguate gives every row its own identity. A key already taken by
	// an earlier row gets the suffix "#<row index>".
	Disambiguate bool
}

// Assignment is the result of Build.
type Assignment struct {
	Map *Map
	// RowIDs holds each row's identity; 0 marks a row with a missing name field.
	RowIDs []int
	// Skipped lists the rows that could not be identified.
	Skipped []int
}

// Key concatenates name parts without a separator.
func Key(parts ...string) string {
	return strings.Join(parts, "")
}

// Build assigns identities in first-seen order from the concatenated
// nameFields of each row. Rows with identical keys share an identity unless
// opts.Disambiguate is set.
func Build(t *table.Table, nameFields []string, opts BuildOptions) (*Assignment, error) {
	if len(nameFields) == 0 {
		return nil, fmt.Errorf("%w: no name fields configured", gperrors.ErrValidation)
	}

	cols := make([][]table.Cell, len(nameFields))
	for i, f := range nameFields {
		col, err := t.Column(f)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	a := &Assignment{Map: NewMap(), RowIDs: make([]int, t.Len())}
	parts := make([]string, len(nameFields))
	for row := 0; row < t.Len(); row++ {
		complete := true
		for i := range cols {
			c := cols[i][row]
			if c.IsMissing() || strings.TrimSpace(c.Text()) == "" {
				complete = false
				break
			}
			parts[i] = strings.TrimSpace(c.Text())
		}
		if !complete {
			a.Skipped = append(a.Skipped, row)
			continue
		}

		key := Key(parts...)
		if _, taken := a.Map.ID(key); taken && opts.Disambiguate {
			key = key + "#" + strconv.Itoa(row)
		}
		a.RowIDs[row] = a.Map.add(key)
	}
	return a, nil
}
