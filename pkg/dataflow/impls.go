package dataflow

import "github.com/l3aro/go-region-facts/pkg/mir"

// MaybeInitializedPlaces computes the move paths that may hold a value: a
// path is in the state if it is initialized along at least one path through
// the control-flow graph. Moving out of a path clears it and its children,
// initializing a path sets it and its children.
type MaybeInitializedPlaces struct {
	moves *MoveData
}

// NewMaybeInitializedPlaces returns the analysis over md.
func NewMaybeInitializedPlaces(md *MoveData) *MaybeInitializedPlaces {
	return &MaybeInitializedPlaces{moves: md}
}

func (a *MaybeInitializedPlaces) Name() string { return "maybe_init" }

func (a *MaybeInitializedPlaces) DomainSize() int { return len(a.moves.Paths) }

func (a *MaybeInitializedPlaces) InitializeStartBlock(state *BitSet) {
	for _, init := range a.moves.ArgumentInits() {
		a.moves.onAllChildren(init.Path, func(p MovePathIndex) { state.Insert(int(p)) })
	}
}

func (a *MaybeInitializedPlaces) StatementEffect(state *BitSet, _ mir.Statement, loc mir.Location) {
	a.moves.dropFlagEffects(loc, func(p MovePathIndex, moved bool) {
		if moved {
			state.Remove(int(p))
		} else {
			state.Insert(int(p))
		}
	})
}

func (a *MaybeInitializedPlaces) TerminatorEffect(state *BitSet, _ mir.Terminator, loc mir.Location) {
	a.StatementEffect(state, mir.Statement{}, loc)
}

// MaybeUninitializedPlaces is the dual of MaybeInitializedPlaces: a path is in
// the state if it may be uninitialized. Its complement is the set of
// definitely initialized paths.
type MaybeUninitializedPlaces struct {
	moves *MoveData
}

// NewMaybeUninitializedPlaces returns the analysis over md.
func NewMaybeUninitializedPlaces(md *MoveData) *MaybeUninitializedPlaces {
	return &MaybeUninitializedPlaces{moves: md}
}

func (a *MaybeUninitializedPlaces) Name() string { return "maybe_uninit" }

func (a *MaybeUninitializedPlaces) DomainSize() int { return len(a.moves.Paths) }

// InitializeStartBlock marks everything but the arguments uninitialized.
func (a *MaybeUninitializedPlaces) InitializeStartBlock(state *BitSet) {
	state.InsertAll()
	for _, init := range a.moves.ArgumentInits() {
		a.moves.onAllChildren(init.Path, func(p MovePathIndex) { state.Remove(int(p)) })
	}
}

func (a *MaybeUninitializedPlaces) StatementEffect(state *BitSet, _ mir.Statement, loc mir.Location) {
	a.moves.dropFlagEffects(loc, func(p MovePathIndex, moved bool) {
		if moved {
			state.Insert(int(p))
		} else {
			state.Remove(int(p))
		}
	})
}

func (a *MaybeUninitializedPlaces) TerminatorEffect(state *BitSet, _ mir.Terminator, loc mir.Location) {
	a.StatementEffect(state, mir.Statement{}, loc)
}

// dropFlagEffects reports every path whose state changes at loc: first the
// paths moved out, then the paths initialized.
func (d *MoveData) dropFlagEffects(loc mir.Location, f func(p MovePathIndex, moved bool)) {
	for _, idx := range d.locMoves[loc] {
		d.onAllChildren(d.Moves[idx].Path, func(p MovePathIndex) { f(p, true) })
	}
	for _, idx := range d.locInits[loc] {
		d.onAllChildren(d.Inits[idx].Path, func(p MovePathIndex) { f(p, false) })
	}
}

func (d *MoveData) onAllChildren(path MovePathIndex, f func(MovePathIndex)) {
	for _, p := range d.Descendants(path) {
		f(p)
	}
}

// Flow bundles the solved initialization analyses of one body.
type Flow struct {
	Moves  *MoveData
	Inits  *Results
	Uninit *Results
}

// ComputeFlow solves both initialization analyses over md.
func ComputeFlow(body *mir.Body, md *MoveData) *Flow {
	return &Flow{
		Moves:  md,
		Inits:  IterateToFixpoint(body, NewMaybeInitializedPlaces(md)),
		Uninit: IterateToFixpoint(body, NewMaybeUninitializedPlaces(md)),
	}
}
