// Package typeck re-derives the region obligations of a renumbered body: it
// collects the borrows, relates the types at every assignment and call,
// computes region liveness and emits the relational facts consumed by a
// borrow-checking solver.
package typeck

import (
	"fmt"

	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

// BorrowIndex identifies a loan of the body.
type BorrowIndex = facts.Loan

// BorrowData is one borrow expression of the body.
type BorrowData struct {
	Index         BorrowIndex    `json:"index" yaml:"index" msgpack:"index"`
	Kind          mir.BorrowKind `json:"kind" yaml:"kind" msgpack:"kind"`
	Region        mir.RegionVid  `json:"region" yaml:"region" msgpack:"region"`
	BorrowedPlace mir.Place      `json:"borrowed_place" yaml:"borrowed_place" msgpack:"borrowed_place"`
	AssignedPlace mir.Place      `json:"assigned_place" yaml:"assigned_place" msgpack:"assigned_place"`
	Location      mir.Location   `json:"location" yaml:"location" msgpack:"location"`
}

func (b BorrowData) String() string {
	return fmt.Sprintf("%s: %s = %s %s %s at %s", b.Index, b.AssignedPlace, b.Kind, b.Region, b.BorrowedPlace, b.Location)
}

// BorrowSet holds the loans of a body in visit order.
type BorrowSet struct {
	borrows     []BorrowData
	locationMap map[mir.Location]BorrowIndex
	localMap    map[mir.Local][]BorrowIndex

	// LocalsInvalidatedAtExit is set for functions and closures, whose
	// locals die when the body returns.
	LocalsInvalidatedAtExit bool
}

// BuildBorrowSet collects one loan per borrow rvalue of body. Shared reborrows
// through a shared reference create no loan: the original loan covers them.
func BuildBorrowSet(tcx *mir.Context, body *mir.Body, localsInvalidatedAtExit bool) (*BorrowSet, error) {
	bs := &BorrowSet{
		locationMap:             make(map[mir.Location]BorrowIndex),
		localMap:                make(map[mir.Local][]BorrowIndex),
		LocalsInvalidatedAtExit: localsInvalidatedAtExit,
	}

	for b, bb := range body.Blocks {
		for s, stmt := range bb.Statements {
			if stmt.Kind != mir.StmtAssign || stmt.Rvalue.Kind != mir.RvalueRef {
				continue
			}
			loc := mir.Location{Block: mir.BasicBlock(b), Statement: s}
			rv := stmt.Rvalue
			if rv.Region.Kind != mir.ReVar {
				return nil, mir.Contractf("%s: borrow at %s has region %s, body not renumbered", body.Owner, loc, rv.Region)
			}

			ignore, err := ignoreBorrow(tcx, body, rv.Place)
			if err != nil {
				return nil, fmt.Errorf("%s: borrow at %s: %w", body.Owner, loc, err)
			}
			if ignore {
				continue
			}

			idx := BorrowIndex(len(bs.borrows))
			bs.borrows = append(bs.borrows, BorrowData{
				Index:         idx,
				Kind:          rv.Borrow,
				Region:        rv.Region.Vid,
				BorrowedPlace: rv.Place.Clone(),
				AssignedPlace: stmt.Place.Clone(),
				Location:      loc,
			})
			bs.locationMap[loc] = idx
			bs.localMap[rv.Place.Local] = append(bs.localMap[rv.Place.Local], idx)
		}
	}

	return bs, nil
}

// ignoreBorrow reports whether place is reached through a shared reference.
func ignoreBorrow(tcx *mir.Context, body *mir.Body, place mir.Place) (bool, error) {
	for i, elem := range place.Projection {
		if elem.Kind != mir.ProjDeref {
			continue
		}
		base, err := tcx.PlaceTy(body, place.Prefix(i))
		if err != nil {
			return false, err
		}
		if base.Kind == mir.TyRef && base.Mutbl == mir.Not {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of loans.
func (bs *BorrowSet) Len() int { return len(bs.borrows) }

// Get returns loan idx.
func (bs *BorrowSet) Get(idx BorrowIndex) BorrowData { return bs.borrows[idx] }

// Borrows returns every loan in index order.
func (bs *BorrowSet) Borrows() []BorrowData {
	return append([]BorrowData(nil), bs.borrows...)
}

// AtLocation returns the loan created at loc.
func (bs *BorrowSet) AtLocation(loc mir.Location) (BorrowIndex, bool) {
	idx, ok := bs.locationMap[loc]
	return idx, ok
}

// LocalBorrows returns the loans of places rooted at l.
func (bs *BorrowSet) LocalBorrows(l mir.Local) []BorrowIndex { return bs.localMap[l] }
