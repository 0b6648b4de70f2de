package valueset

import (
	"encoding/json"
	"iter"

	"github.com/cespare/xxhash/v2"
)

type entry struct {
	canonical string
	value     any
}

// Set is an insertion-ordered set of JSON-like values.
// The zero value is an empty set ready to use. A Set is not safe for
// concurrent use.
type Set struct {
	entries []entry

	// index maps the xxhash of a canonical encoding to positions in entries.
	index map[uint64][]int
}

// New creates a set holding the given values. Duplicates are dropped.
func New(values ...any) *Set {
	s := &Set{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// FromSlice is New for an existing slice.
func FromSlice(values []any) *Set {
	return New(values...)
}

func mustCanonical(v any) string {
	c, err := Canonical(v)
	if err != nil {
		panic(err)
	}
	return c
}

func (s *Set) find(canonical string) (uint64, int) {
	h := xxhash.Sum64String(canonical)
	if s == nil {
		return h, -1
	}
	for _, pos := range s.index[h] {
		if s.entries[pos].canonical == canonical {
			return h, pos
		}
	}
	return h, -1
}

// Has reports whether a value structurally equal to v is in the set.
func (s *Set) Has(v any) bool {
	_, pos := s.find(mustCanonical(v))
	return pos >= 0
}

// Add inserts v and returns true, or returns false if an equal value is
// already present.
func (s *Set) Add(v any) bool {
	c := mustCanonical(v)
	h, pos := s.find(c)
	if pos >= 0 {
		return false
	}
	if s.index == nil {
		s.index = make(map[uint64][]int)
	}
	s.index[h] = append(s.index[h], len(s.entries))
	s.entries = append(s.entries, entry{canonical: c, value: decode(c)})
	return true
}

// Delete removes the value equal to v and returns true, or returns false if
// no such value is present.
func (s *Set) Delete(v any) bool {
	_, pos := s.find(mustCanonical(v))
	if pos < 0 {
		return false
	}
	s.entries = append(s.entries[:pos], s.entries[pos+1:]...)
	s.reindex()
	return true
}

func (s *Set) reindex() {
	s.index = make(map[uint64][]int, len(s.entries))
	for i, e := range s.entries {
		h := xxhash.Sum64String(e.canonical)
		s.index[h] = append(s.index[h], i)
	}
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Values returns deep copies of the members in insertion order.
func (s *Set) Values() []any {
	out := make([]any, 0, s.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}

// All iterates over deep copies of the members in insertion order.
// The sequence can be ranged over more than once.
func (s *Set) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		if s == nil {
			return
		}
		for _, e := range s.entries {
			if !yield(Clone(e.value)) {
				return
			}
		}
	}
}

// Copy returns an independent deep copy of the set.
func (s *Set) Copy() *Set {
	if s == nil {
		return &Set{}
	}
	out := &Set{
		entries: make([]entry, len(s.entries)),
		index:   make(map[uint64][]int, len(s.index)),
	}
	for i, e := range s.entries {
		out.entries[i] = entry{canonical: e.canonical, value: Clone(e.value)}
	}
	for h, positions := range s.index {
		out.index[h] = append([]int(nil), positions...)
	}
	return out
}

// Difference returns the members of s that are not in other.
func (s *Set) Difference(other *Set) *Set {
	out := &Set{}
	if s == nil {
		return out
	}
	for _, e := range s.entries {
		if other != nil {
			if _, pos := other.find(e.canonical); pos >= 0 {
				continue
			}
		}
		out.Add(e.value)
	}
	return out
}

// Equal reports whether both sets hold the same members, in any order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil {
		return true
	}
	for _, e := range s.entries {
		if _, pos := other.find(e.canonical); pos < 0 {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array in insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON replaces the members with the elements of a JSON array.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = Set{}
	for _, v := range values {
		s.Add(v)
	}
	return nil
}
