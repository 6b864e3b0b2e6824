package dataflow

import (
	"fmt"
	"math"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// MovePathIndex identifies a move path.
type MovePathIndex uint32

// NoMovePath is the parent of a root path.
const NoMovePath MovePathIndex = math.MaxUint32

// MovePath is a place whose initialization state is tracked on its own. The
// paths of a body form a forest rooted at its locals.
type MovePath struct {
	Place    mir.Place
	Parent   MovePathIndex
	Children []MovePathIndex
}

// MoveOutIndex identifies a recorded move.
type MoveOutIndex uint32

// MoveOut is a move of Path at Location.
type MoveOut struct {
	Path     MovePathIndex
	Location mir.Location
}

// InitIndex identifies a recorded initialization.
type InitIndex uint32

// InitKind says what initialized a path.
type InitKind uint8

const (
	InitAssign InitKind = iota
	InitArgument
	InitCallReturn
)

// Init is an initialization of Path at Location. Argument initializations
// happen on entry and carry StartLocation.
type Init struct {
	Path     MovePathIndex
	Location mir.Location
	Kind     InitKind
}

// MoveErrorKind classifies moves that can never be legal.
type MoveErrorKind uint8

const (
	CannotMoveOutOfBorrow MoveErrorKind = iota
	CannotMoveOutOfIndex
)

func (k MoveErrorKind) String() string {
	if k == CannotMoveOutOfIndex {
		return "cannot move out of index"
	}
	return "cannot move out of borrow"
}

// MoveError is an illegal move found while gathering. It is reported to the
// caller and does not stop the analysis.
type MoveError struct {
	Place    mir.Place
	Location mir.Location
	Kind     MoveErrorKind
}

func (e MoveError) Error() string {
	return fmt.Sprintf("%s: %s at %s", e.Kind, e.Place, e.Location)
}

// MoveData is the result of gathering moves and initializations of a body.
type MoveData struct {
	Paths []MovePath
	Moves []MoveOut
	Inits []Init

	localPaths []MovePathIndex
	locMoves   map[mir.Location][]MoveOutIndex
	locInits   map[mir.Location][]InitIndex
	argInits   []InitIndex
}

// GatherMoves builds the move paths of body and records where each path is
// moved out and initialized. Illegal moves are returned separately.
func GatherMoves(body *mir.Body) (*MoveData, []MoveError) {
	g := &moveGatherer{
		data: &MoveData{
			locMoves: make(map[mir.Location][]MoveOutIndex),
			locInits: make(map[mir.Location][]InitIndex),
		},
	}

	for i := range body.Locals {
		g.data.localPaths = append(g.data.localPaths, g.data.newPath(mir.PlaceOf(mir.Local(i)), NoMovePath))
	}
	for _, arg := range body.Args() {
		idx := g.data.addInit(g.data.localPaths[arg], mir.StartLocation, InitArgument)
		g.data.argInits = append(g.data.argInits, idx)
	}

	for b, bb := range body.Blocks {
		for s, stmt := range bb.Statements {
			g.statement(stmt, mir.Location{Block: mir.BasicBlock(b), Statement: s})
		}
		g.terminator(bb.Terminator, mir.Location{Block: mir.BasicBlock(b), Statement: len(bb.Statements)})
	}

	return g.data, g.errors
}

type moveGatherer struct {
	data   *MoveData
	errors []MoveError
}

func (g *moveGatherer) statement(stmt mir.Statement, loc mir.Location) {
	switch stmt.Kind {
	case mir.StmtAssign:
		g.operands(stmt.Rvalue.Operands, loc)
		if path, ok := g.createMovePath(stmt.Place); ok {
			g.data.addInit(path, loc, InitAssign)
		}
	case mir.StmtStorageDead:
		g.move(mir.PlaceOf(stmt.Local), loc)
	}
}

func (g *moveGatherer) terminator(term mir.Terminator, loc mir.Location) {
	switch term.Kind {
	case mir.TermReturn:
		g.move(mir.PlaceOf(mir.ReturnPlace), loc)
	case mir.TermSwitchInt:
		g.operands([]mir.Operand{term.Discr}, loc)
	case mir.TermCall:
		g.operands(term.Args, loc)
		if path, ok := g.createMovePath(term.Destination); ok {
			g.data.addInit(path, loc, InitCallReturn)
		}
	case mir.TermDrop:
		g.move(term.Place, loc)
	}
}

func (g *moveGatherer) operands(ops []mir.Operand, loc mir.Location) {
	for _, op := range ops {
		if op.Kind == mir.OperandMove {
			g.move(op.Place, loc)
		}
	}
}

func (g *moveGatherer) move(place mir.Place, loc mir.Location) {
	path, err := g.movePathFor(place)
	if err != nil {
		g.errors = append(g.errors, MoveError{Place: place, Location: loc, Kind: *err})
		return
	}
	g.data.addMove(path, loc)
}

func (g *moveGatherer) createMovePath(place mir.Place) (MovePathIndex, bool) {
	path, err := g.movePathFor(place)
	return path, err == nil
}

// movePathFor returns the path of place, creating missing intermediate paths.
// Places behind a reference or an index have no path of their own.
func (g *moveGatherer) movePathFor(place mir.Place) (MovePathIndex, *MoveErrorKind) {
	path := g.data.localPaths[place.Local]
	for i, elem := range place.Projection {
		switch elem.Kind {
		case mir.ProjDeref:
			kind := CannotMoveOutOfBorrow
			return 0, &kind
		case mir.ProjIndex:
			kind := CannotMoveOutOfIndex
			return 0, &kind
		}
		child, ok := g.data.child(path, elem)
		if !ok {
			child = g.data.newPath(place.Prefix(i+1).Clone(), path)
		}
		path = child
	}
	return path, nil
}

func (d *MoveData) newPath(place mir.Place, parent MovePathIndex) MovePathIndex {
	idx := MovePathIndex(len(d.Paths))
	d.Paths = append(d.Paths, MovePath{Place: place, Parent: parent})
	if parent != NoMovePath {
		d.Paths[parent].Children = append(d.Paths[parent].Children, idx)
	}
	return idx
}

func (d *MoveData) child(parent MovePathIndex, elem mir.ProjectionElem) (MovePathIndex, bool) {
	for _, c := range d.Paths[parent].Children {
		proj := d.Paths[c].Place.Projection
		if proj[len(proj)-1] == elem {
			return c, true
		}
	}
	return 0, false
}

func (d *MoveData) addMove(path MovePathIndex, loc mir.Location) {
	idx := MoveOutIndex(len(d.Moves))
	d.Moves = append(d.Moves, MoveOut{Path: path, Location: loc})
	d.locMoves[loc] = append(d.locMoves[loc], idx)
}

func (d *MoveData) addInit(path MovePathIndex, loc mir.Location, kind InitKind) InitIndex {
	idx := InitIndex(len(d.Inits))
	d.Inits = append(d.Inits, Init{Path: path, Location: loc, Kind: kind})
	if kind != InitArgument {
		d.locInits[loc] = append(d.locInits[loc], idx)
	}
	return idx
}

// LocalPath returns the root path of local l.
func (d *MoveData) LocalPath(l mir.Local) MovePathIndex { return d.localPaths[l] }

// Find returns the path of place, or of its longest tracked prefix when place
// itself has no path. exact reports which case applies.
func (d *MoveData) Find(place mir.Place) (path MovePathIndex, exact bool) {
	path = d.localPaths[place.Local]
	for _, elem := range place.Projection {
		child, ok := d.child(path, elem)
		if !ok {
			return path, false
		}
		path = child
	}
	return path, true
}

// MovesAt returns the moves recorded at loc.
func (d *MoveData) MovesAt(loc mir.Location) []MoveOut {
	var out []MoveOut
	for _, idx := range d.locMoves[loc] {
		out = append(out, d.Moves[idx])
	}
	return out
}

// InitsAt returns the initializations recorded at loc, excluding arguments.
func (d *MoveData) InitsAt(loc mir.Location) []Init {
	var out []Init
	for _, idx := range d.locInits[loc] {
		out = append(out, d.Inits[idx])
	}
	return out
}

// ArgumentInits returns the entry initializations of the arguments.
func (d *MoveData) ArgumentInits() []Init {
	out := make([]Init, len(d.argInits))
	for i, idx := range d.argInits {
		out[i] = d.Inits[idx]
	}
	return out
}

// Descendants returns path and every path below it, parents first.
func (d *MoveData) Descendants(path MovePathIndex) []MovePathIndex {
	out := []MovePathIndex{path}
	for i := 0; i < len(out); i++ {
		out = append(out, d.Paths[out[i]].Children...)
	}
	return out
}

// Ancestors returns the parents of path, nearest first.
func (d *MoveData) Ancestors(path MovePathIndex) []MovePathIndex {
	var out []MovePathIndex
	for p := d.Paths[path].Parent; p != NoMovePath; p = d.Paths[p].Parent {
		out = append(out, p)
	}
	return out
}
