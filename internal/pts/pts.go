// Package pts implements points-to sets over dense integer handles.
package pts

import (
	"iter"

	"golang.org/x/tools/container/intsets"
)

// Set is a set of abstract objects identified by small non-negative
// integers. The zero value is an empty set ready to use.
type Set[E ~int | ~int32] struct {
	bits intsets.Sparse
}

// New returns a set holding objs.
func New[E ~int | ~int32](objs ...E) *Set[E] {
	s := &Set[E]{}
	for _, o := range objs {
		s.bits.Insert(int(o))
	}
	return s
}

// AddObject adds o and reports whether the set changed.
func (s *Set[E]) AddObject(o E) bool {
	return s.bits.Insert(int(o))
}

// AddAll adds every element of other and reports whether the set changed.
func (s *Set[E]) AddAll(other *Set[E]) bool {
	return s.bits.UnionWith(&other.bits)
}

// AddAllDiff adds every element of other and returns the elements that were
// not already present. The returned set is empty, never nil, when nothing
// changed.
func (s *Set[E]) AddAllDiff(other *Set[E]) *Set[E] {
	diff := &Set[E]{}
	diff.bits.Difference(&other.bits, &s.bits)
	s.bits.UnionWith(&diff.bits)
	return diff
}

// Has reports whether o is in the set.
func (s *Set[E]) Has(o E) bool {
	return s.bits.Has(int(o))
}

// IsEmpty reports whether the set has no elements.
func (s *Set[E]) IsEmpty() bool {
	return s.bits.IsEmpty()
}

// Len returns the number of elements.
func (s *Set[E]) Len() int {
	return s.bits.Len()
}

// Objects iterates over a snapshot of the set in increasing order, so the set
// may be modified during iteration.
func (s *Set[E]) Objects() iter.Seq[E] {
	snapshot := s.bits.AppendTo(nil)
	return func(yield func(E) bool) {
		for _, o := range snapshot {
			if !yield(E(o)) {
				return
			}
		}
	}
}

// Slice returns the elements in increasing order.
func (s *Set[E]) Slice() []E {
	ints := s.bits.AppendTo(nil)
	out := make([]E, len(ints))
	for i, o := range ints {
		out[i] = E(o)
	}
	return out
}

// Copy returns an independent copy of the set.
func (s *Set[E]) Copy() *Set[E] {
	c := &Set[E]{}
	c.bits.Copy(&s.bits)
	return c
}

// Equals reports whether both sets hold the same elements.
func (s *Set[E]) Equals(other *Set[E]) bool {
	return s.bits.Equals(&other.bits)
}

func (s *Set[E]) String() string {
	return s.bits.String()
}
