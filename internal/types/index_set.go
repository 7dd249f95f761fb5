package types

import "sort"

// IndexSet is an ordered set of token indices. Iteration is ascending, so the
// global scope (-1) always comes first when present. The zero value is ready
// to use.
type IndexSet struct {
	m map[int]struct{}
}

// NewIndexSet returns a set holding the given indices.
func NewIndexSet(indices ...int) IndexSet {
	var s IndexSet
	for _, idx := range indices {
		s.Insert(idx)
	}
	return s
}

// Insert adds idx and reports whether it was not already present.
func (s *IndexSet) Insert(idx int) bool {
	if s.m == nil {
		s.m = make(map[int]struct{})
	}
	if _, ok := s.m[idx]; ok {
		return false
	}
	s.m[idx] = struct{}{}
	return true
}

// Remove deletes idx from the set.
func (s *IndexSet) Remove(idx int) {
	delete(s.m, idx)
}

// Contains reports whether idx is in the set.
func (s IndexSet) Contains(idx int) bool {
	_, ok := s.m[idx]
	return ok
}

// Len returns the number of indices.
func (s IndexSet) Len() int {
	return len(s.m)
}

// Empty reports whether the set holds no index.
func (s IndexSet) Empty() bool {
	return len(s.m) == 0
}

// Clear removes every index.
func (s *IndexSet) Clear() {
	s.m = nil
}

// Union inserts every index of other.
func (s *IndexSet) Union(other IndexSet) {
	for idx := range other.m {
		s.Insert(idx)
	}
}

// Slice returns the indices in ascending order.
func (s IndexSet) Slice() []int {
	out := make([]int, 0, len(s.m))
	for idx := range s.m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s IndexSet) Clone() IndexSet {
	var c IndexSet
	c.Union(s)
	return c
}
