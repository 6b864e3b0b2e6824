package mir

import "fmt"

// LocationIndex is the dense id of a statement or terminator occurrence.
type LocationIndex uint32

// PointIndex is a rich program point: every location has a Start point
// (before its effect) and a Mid point (while its effect happens).
type PointIndex uint32

// LocationTable is a bijection between the (block, offset) pairs of a body and
// the ids 0..N-1, numbered in block order.
type LocationTable struct {
	blockStart []LocationIndex
	blockLen   []int
	locations  []Location
}

// NewLocationTable numbers the locations of body.
func NewLocationTable(body *Body) *LocationTable {
	t := &LocationTable{
		blockStart: make([]LocationIndex, len(body.Blocks)),
		blockLen:   make([]int, len(body.Blocks)),
	}
	for i, bb := range body.Blocks {
		t.blockStart[i] = LocationIndex(len(t.locations))
		t.blockLen[i] = len(bb.Statements) + 1
		for j := 0; j <= len(bb.Statements); j++ {
			t.locations = append(t.locations, Location{Block: BasicBlock(i), Statement: j})
		}
	}
	return t
}

// Len returns the number of locations.
func (t *LocationTable) Len() int { return len(t.locations) }

// NumPoints returns the number of rich points.
func (t *LocationTable) NumPoints() int { return 2 * len(t.locations) }

// Index returns the id of loc. It panics if loc is not in the body: locations
// are only ever derived from the body the table was built from.
func (t *LocationTable) Index(loc Location) LocationIndex {
	idx, ok := t.Lookup(loc)
	if !ok {
		panic(fmt.Sprintf("location %s not in table", loc))
	}
	return idx
}

// Lookup returns the id of loc and whether it exists.
func (t *LocationTable) Lookup(loc Location) (LocationIndex, bool) {
	if int(loc.Block) >= len(t.blockStart) || loc.Statement < 0 || loc.Statement >= t.blockLen[loc.Block] {
		return 0, false
	}
	return t.blockStart[loc.Block] + LocationIndex(loc.Statement), true
}

// Location returns the location with id idx.
func (t *LocationTable) Location(idx LocationIndex) Location {
	return t.locations[idx]
}

// Locations returns every location in id order.
func (t *LocationTable) Locations() []Location {
	return append([]Location(nil), t.locations...)
}

// StartIndex returns the Start point of loc.
func (t *LocationTable) StartIndex(loc Location) PointIndex {
	return PointIndex(2 * t.Index(loc))
}

// MidIndex returns the Mid point of loc.
func (t *LocationTable) MidIndex(loc Location) PointIndex {
	return PointIndex(2*t.Index(loc) + 1)
}

// PointLocation decodes a point into its location and whether it is a Mid point.
func (t *LocationTable) PointLocation(p PointIndex) (Location, bool) {
	return t.locations[p/2], p%2 == 1
}

// BlockStart returns the first location of block.
func (t *LocationTable) BlockStart(block BasicBlock) Location {
	return Location{Block: block}
}

// Terminator returns the location of block's terminator.
func (t *LocationTable) Terminator(block BasicBlock) Location {
	return Location{Block: block, Statement: t.blockLen[block] - 1}
}
