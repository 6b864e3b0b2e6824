package dataflow

import (
	"math/bits"
	"strconv"
	"strings"
)

// BitSet is a fixed-size set of small non-negative integers.
type BitSet struct {
	size  int
	words []uint64
}

// NewBitSet returns an empty set able to hold 0..size-1.
func NewBitSet(size int) *BitSet {
	return &BitSet{size: size, words: make([]uint64, (size+63)/64)}
}

// Size returns the domain size.
func (s *BitSet) Size() int { return s.size }

// Insert adds i and reports whether the set changed.
func (s *BitSet) Insert(i int) bool {
	w, m := i/64, uint64(1)<<(uint(i)%64)
	if s.words[w]&m != 0 {
		return false
	}
	s.words[w] |= m
	return true
}

// Remove deletes i and reports whether the set changed.
func (s *BitSet) Remove(i int) bool {
	w, m := i/64, uint64(1)<<(uint(i)%64)
	if s.words[w]&m == 0 {
		return false
	}
	s.words[w] &^= m
	return true
}

// Contains reports whether i is in the set.
func (s *BitSet) Contains(i int) bool {
	if i < 0 || i >= s.size {
		return false
	}
	return s.words[i/64]&(uint64(1)<<(uint(i)%64)) != 0
}

// InsertAll fills the set.
func (s *BitSet) InsertAll() {
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	if rem := s.size % 64; rem != 0 {
		s.words[len(s.words)-1] = (uint64(1) << uint(rem)) - 1
	}
}

// Clear empties the set.
func (s *BitSet) Clear() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// Union adds every element of o and reports whether the set changed.
func (s *BitSet) Union(o *BitSet) bool {
	changed := false
	for i, w := range o.words {
		nw := s.words[i] | w
		if nw != s.words[i] {
			s.words[i] = nw
			changed = true
		}
	}
	return changed
}

// CopyFrom overwrites s with o.
func (s *BitSet) CopyFrom(o *BitSet) {
	copy(s.words, o.words)
}

// Clone returns an independent copy.
func (s *BitSet) Clone() *BitSet {
	out := &BitSet{size: s.size, words: make([]uint64, len(s.words))}
	copy(out.words, s.words)
	return out
}

// Equal reports whether both sets hold the same elements.
func (s *BitSet) Equal(o *BitSet) bool {
	if s.size != o.size {
		return false
	}
	for i := range s.words {
		if s.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Count returns the number of elements.
func (s *BitSet) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Elems returns the elements in increasing order.
func (s *BitSet) Elems() []int {
	out := make([]int, 0, s.Count())
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*64+b)
			w &^= uint64(1) << uint(b)
		}
	}
	return out
}

func (s *BitSet) String() string {
	elems := s.Elems()
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = strconv.Itoa(e)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
