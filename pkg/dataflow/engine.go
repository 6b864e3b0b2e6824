// Package dataflow gathers the moves and initializations of a body and solves
// forward dataflow problems over its move paths to a fixpoint.
package dataflow

import (
	"container/list"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// Analysis is a forward dataflow problem whose states are sets of integers
// joined by union at control-flow merges.
type Analysis interface {
	// Name identifies the analysis in logs.
	Name() string
	// DomainSize is the number of elements a state may hold.
	DomainSize() int
	// InitializeStartBlock seeds the state on entry to the body.
	InitializeStartBlock(state *BitSet)
	StatementEffect(state *BitSet, stmt mir.Statement, loc mir.Location)
	TerminatorEffect(state *BitSet, term mir.Terminator, loc mir.Location)
}

// Results holds the fixpoint entry state of every block.
type Results struct {
	analysis  Analysis
	body      *mir.Body
	entrySets []*BitSet
}

// IterateToFixpoint solves a on body with a worklist of blocks. A block is
// revisited whenever the entry state of one of its successors grows.
func IterateToFixpoint(body *mir.Body, a Analysis) *Results {
	size := a.DomainSize()
	entrySets := make([]*BitSet, len(body.Blocks))
	for i := range entrySets {
		entrySets[i] = NewBitSet(size)
	}
	if len(entrySets) > 0 {
		a.InitializeStartBlock(entrySets[mir.StartBlock])
	}

	// Every block is processed at least once.
	worklist := list.New()
	queued := make([]bool, len(body.Blocks))
	for b := range body.Blocks {
		worklist.PushBack(mir.BasicBlock(b))
		queued[b] = true
	}

	state := NewBitSet(size)
	for worklist.Len() > 0 {
		bb := worklist.Remove(worklist.Front()).(mir.BasicBlock)
		queued[bb] = false

		state.CopyFrom(entrySets[bb])
		applyBlock(a, body, bb, state, len(body.Blocks[bb].Statements)+1)

		// Propagate the exit state; successors whose entry grew are revisited.
		for _, succ := range body.Blocks[bb].Terminator.Successors() {
			if entrySets[succ].Union(state) && !queued[succ] {
				queued[succ] = true
				worklist.PushBack(succ)
			}
		}
	}

	return &Results{analysis: a, body: body, entrySets: entrySets}
}

// applyBlock applies the first n effects of block bb to state; the terminator
// is the last effect.
func applyBlock(a Analysis, body *mir.Body, bb mir.BasicBlock, state *BitSet, n int) {
	data := body.Blocks[bb]
	for i := 0; i < n && i < len(data.Statements); i++ {
		a.StatementEffect(state, data.Statements[i], mir.Location{Block: bb, Statement: i})
	}
	if n > len(data.Statements) {
		a.TerminatorEffect(state, data.Terminator, mir.Location{Block: bb, Statement: len(data.Statements)})
	}
}

// Analysis returns the solved analysis.
func (r *Results) Analysis() Analysis { return r.analysis }

// EntrySet returns a copy of the state on entry to bb.
func (r *Results) EntrySet(bb mir.BasicBlock) *BitSet { return r.entrySets[bb].Clone() }

// ExitSet returns the state after the terminator of bb.
func (r *Results) ExitSet(bb mir.BasicBlock) *BitSet {
	state := r.entrySets[bb].Clone()
	applyBlock(r.analysis, r.body, bb, state, len(r.body.Blocks[bb].Statements)+1)
	return state
}

// Equal reports whether r and o computed the same entry states.
func (r *Results) Equal(o *Results) bool {
	if len(r.entrySets) != len(o.entrySets) {
		return false
	}
	for i := range r.entrySets {
		if !r.entrySets[i].Equal(o.entrySets[i]) {
			return false
		}
	}
	return true
}

// Cursor returns a cursor positioned at the entry of the start block.
func (r *Results) Cursor() *Cursor {
	return &Cursor{results: r, state: NewBitSet(r.analysis.DomainSize())}
}

// Cursor reconstructs the state at any location from the block entry states.
// Seeking forward within a block reuses the current state.
type Cursor struct {
	results *Results
	state   *BitSet
	block   mir.BasicBlock
	applied int
	valid   bool
}

// SeekBefore moves to the state just before the effect of loc.
func (c *Cursor) SeekBefore(loc mir.Location) {
	c.seek(loc.Block, loc.Statement)
}

// SeekAfter moves to the state just after the effect of loc.
func (c *Cursor) SeekAfter(loc mir.Location) {
	c.seek(loc.Block, loc.Statement+1)
}

func (c *Cursor) seek(bb mir.BasicBlock, n int) {
	if !c.valid || c.block != bb || n < c.applied {
		c.state.CopyFrom(c.results.entrySets[bb])
		c.block = bb
		c.applied = 0
		c.valid = true
	}
	if n == c.applied {
		return
	}

	body := c.results.body
	data := body.Blocks[bb]
	a := c.results.analysis
	for ; c.applied < n; c.applied++ {
		loc := mir.Location{Block: bb, Statement: c.applied}
		if c.applied < len(data.Statements) {
			a.StatementEffect(c.state, data.Statements[c.applied], loc)
		} else if c.applied == len(data.Statements) {
			a.TerminatorEffect(c.state, data.Terminator, loc)
		}
	}
}

// Contains reports whether the current state holds elem.
func (c *Cursor) Contains(elem int) bool { return c.state.Contains(elem) }

// State returns a copy of the current state.
func (c *Cursor) State() *BitSet { return c.state.Clone() }
