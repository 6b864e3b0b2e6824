package typeck

import (
	"github.com/l3aro/go-region-facts/pkg/mir"
)

// GenerateConstraints walks the body once more and records the control-flow
// edges between rich points, the loans issued and killed at each location,
// and the liveness of every region written in the body at the location that
// mentions it.
func GenerateConstraints(env *Env) {
	for b, bb := range env.Body.Blocks {
		for s, stmt := range bb.Statements {
			loc := mir.Location{Block: mir.BasicBlock(b), Statement: s}
			env.addCfgEdges(loc, []mir.Location{loc.Successor()})
			env.constrainStatement(stmt, loc)
		}

		loc := mir.Location{Block: mir.BasicBlock(b), Statement: len(bb.Statements)}
		var succs []mir.Location
		for _, succ := range bb.Terminator.Successors() {
			succs = append(succs, env.Table.BlockStart(succ))
		}
		env.addCfgEdges(loc, succs)
		env.constrainTerminator(bb.Terminator, loc)
	}
}

// addCfgEdges links Start(loc) to Mid(loc) and Mid(loc) to the Start of each
// following location.
func (env *Env) addCfgEdges(loc mir.Location, next []mir.Location) {
	mid := env.Table.MidIndex(loc)
	env.Facts.AddCfgEdge(env.Table.StartIndex(loc), mid)
	for _, n := range next {
		env.Facts.AddCfgEdge(mid, env.Table.StartIndex(n))
	}
}

func (env *Env) constrainStatement(stmt mir.Statement, loc mir.Location) {
	switch stmt.Kind {
	case mir.StmtAssign:
		rv := stmt.Rvalue
		switch rv.Kind {
		case mir.RvalueRef:
			env.Liveness.AddElement(rv.Region.Vid, loc)
			if idx, ok := env.Borrows.AtLocation(loc); ok {
				env.Facts.AddLoanIssuedAt(rv.Region.Vid, idx, env.Table.MidIndex(loc))
			}
		case mir.RvalueAggregate:
			env.addRegionsLiveAt(rv.Ty, loc)
		}
		env.addOperandsLiveAt(rv.Operands, loc)
		env.recordKilledBorrowsForPlace(stmt.Place, loc)

	case mir.StmtStorageDead:
		env.recordKilledBorrowsForLocal(stmt.Local, loc)
	}
}

func (env *Env) constrainTerminator(term mir.Terminator, loc mir.Location) {
	switch term.Kind {
	case mir.TermSwitchInt:
		env.addOperandsLiveAt([]mir.Operand{term.Discr}, loc)
	case mir.TermCall:
		env.addOperandsLiveAt(term.Args, loc)
		env.recordKilledBorrowsForPlace(term.Destination, loc)
	}
}

func (env *Env) addOperandsLiveAt(ops []mir.Operand, loc mir.Location) {
	for _, op := range ops {
		if op.Kind == mir.OperandConstant {
			env.addRegionsLiveAt(op.Ty, loc)
		}
	}
}

func (env *Env) addRegionsLiveAt(t *mir.Ty, loc mir.Location) {
	for _, vid := range t.RegionVids() {
		env.Liveness.AddElement(vid, loc)
	}
}

// recordKilledBorrowsForPlace kills the loans an assignment to place
// overwrites. Overwriting a local, or what a local points to, kills every
// loan of that local; a deeper write kills only the loans of places it may
// overlap.
func (env *Env) recordKilledBorrowsForPlace(place mir.Place, loc mir.Location) {
	if place.IsLocal() || (len(place.Projection) == 1 && place.Projection[0].Kind == mir.ProjDeref) {
		env.recordKilledBorrowsForLocal(place.Local, loc)
		return
	}

	mid := env.Table.MidIndex(loc)
	for _, idx := range env.Borrows.LocalBorrows(place.Local) {
		if placesConflict(env.Borrows.Get(idx).BorrowedPlace, place, biasNoOverlap, accessDeep) {
			env.Facts.AddLoanKilledAt(idx, mid)
		}
	}
}

func (env *Env) recordKilledBorrowsForLocal(l mir.Local, loc mir.Location) {
	mid := env.Table.MidIndex(loc)
	for _, idx := range env.Borrows.LocalBorrows(l) {
		env.Facts.AddLoanKilledAt(idx, mid)
	}
}
