package typeck

import "github.com/l3aro/go-region-facts/pkg/mir"

// conflictBias decides how two index projections compare.
type conflictBias uint8

const (
	biasOverlap   conflictBias = iota // indices may be equal
	biasNoOverlap                     // indices are assumed distinct
)

// accessDepth says whether an access reaches through references.
type accessDepth uint8

const (
	accessDeep    accessDepth = iota // the place and everything reachable from it
	accessShallow                    // the place itself, not data behind its references
)

// placesConflict reports whether an access to access may touch the data of
// the loan of borrowed.
func placesConflict(borrowed, access mir.Place, bias conflictBias, depth accessDepth) bool {
	if borrowed.Local != access.Local {
		return false
	}
	n := len(borrowed.Projection)
	if len(access.Projection) < n {
		n = len(access.Projection)
	}
	for i := 0; i < n; i++ {
		b, a := borrowed.Projection[i], access.Projection[i]
		if b == a {
			continue
		}
		if b.Kind == mir.ProjIndex && a.Kind == mir.ProjIndex {
			if bias == biasOverlap {
				continue
			}
			return false
		}
		return false
	}

	// The access covers a prefix of the borrowed place. A shallow access does
	// not reach the parts of the loan behind a dereference.
	if depth == accessShallow && len(access.Projection) < len(borrowed.Projection) {
		for _, elem := range borrowed.Projection[len(access.Projection):] {
			if elem.Kind == mir.ProjDeref {
				return false
			}
		}
	}
	return true
}

// GenerateInvalidations records, for every access of the body, the loans it
// conflicts with: any write conflicts with every overlapping loan, a read only
// with overlapping mutable loans. When a function returns its locals die,
// invalidating the loans of local data.
func GenerateInvalidations(env *Env) {
	for b, bb := range env.Body.Blocks {
		for s, stmt := range bb.Statements {
			env.invalidateStatement(stmt, mir.Location{Block: mir.BasicBlock(b), Statement: s})
		}
		env.invalidateTerminator(bb.Terminator, mir.Location{Block: mir.BasicBlock(b), Statement: len(bb.Statements)})
	}
}

func (env *Env) invalidateStatement(stmt mir.Statement, loc mir.Location) {
	switch stmt.Kind {
	case mir.StmtAssign:
		rv := stmt.Rvalue
		env.accessOperands(rv.Operands, loc)
		if rv.Kind == mir.RvalueRef {
			env.access(rv.Place, loc, accessDeep, rv.Borrow == mir.BorrowMut)
		}
		env.access(stmt.Place, loc, accessShallow, true)
	case mir.StmtStorageDead:
		env.access(mir.PlaceOf(stmt.Local), loc, accessShallow, true)
	}
}

func (env *Env) invalidateTerminator(term mir.Terminator, loc mir.Location) {
	switch term.Kind {
	case mir.TermSwitchInt:
		env.accessOperands([]mir.Operand{term.Discr}, loc)
	case mir.TermCall:
		env.accessOperands(term.Args, loc)
		env.access(term.Destination, loc, accessShallow, true)
	case mir.TermDrop:
		env.access(term.Place, loc, accessDeep, true)
	case mir.TermReturn:
		if !env.Borrows.LocalsInvalidatedAtExit {
			return
		}
		start := env.Table.StartIndex(loc)
		for _, bd := range env.Borrows.Borrows() {
			if !bd.BorrowedPlace.HasDeref() {
				env.Facts.AddLoanInvalidatedAt(start, bd.Index)
			}
		}
	}
}

func (env *Env) accessOperands(ops []mir.Operand, loc mir.Location) {
	for _, op := range ops {
		switch op.Kind {
		case mir.OperandCopy:
			env.access(op.Place, loc, accessDeep, false)
		case mir.OperandMove:
			env.access(op.Place, loc, accessDeep, true)
		}
	}
}

func (env *Env) access(place mir.Place, loc mir.Location, depth accessDepth, write bool) {
	start := env.Table.StartIndex(loc)
	for _, bd := range env.Borrows.Borrows() {
		if !write && bd.Kind == mir.BorrowShared {
			continue
		}
		if placesConflict(bd.BorrowedPlace, place, biasOverlap, depth) {
			env.Facts.AddLoanInvalidatedAt(start, bd.Index)
		}
	}
}
