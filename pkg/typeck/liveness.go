package typeck

import (
	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

// defUse classifies how a location touches a local.
type defUse uint8

const (
	useDef  defUse = iota // the local is overwritten or its storage begins or ends
	useUse                // the local's value is read, borrowed or partially written
	useDrop               // the local is dropped
)

// localAccesses lists, per local, where it is defined, used and dropped.
type localAccesses struct {
	defs  []map[mir.Location]bool
	uses  [][]mir.Location
	drops [][]mir.Location
}

// visitor walks every place of a body with the way it is accessed.
type visitor struct {
	body *mir.Body
	// visitLocal sees every local mention; visitRead sees places whose value
	// is read or borrowed.
	visitLocal func(l mir.Local, kind defUse, loc mir.Location)
	visitRead  func(p mir.Place, loc mir.Location)
}

func (v *visitor) walk() {
	for b, bb := range v.body.Blocks {
		for s, stmt := range bb.Statements {
			v.statement(stmt, mir.Location{Block: mir.BasicBlock(b), Statement: s})
		}
		v.terminator(bb.Terminator, mir.Location{Block: mir.BasicBlock(b), Statement: len(bb.Statements)})
	}
}

func (v *visitor) statement(stmt mir.Statement, loc mir.Location) {
	switch stmt.Kind {
	case mir.StmtAssign:
		v.operands(stmt.Rvalue.Operands, loc)
		if stmt.Rvalue.Kind == mir.RvalueRef {
			v.read(stmt.Rvalue.Place, loc)
		}
		v.store(stmt.Place, loc)
	case mir.StmtStorageLive, mir.StmtStorageDead:
		v.visitLocal(stmt.Local, useDef, loc)
	}
}

func (v *visitor) terminator(term mir.Terminator, loc mir.Location) {
	switch term.Kind {
	case mir.TermSwitchInt:
		v.operands([]mir.Operand{term.Discr}, loc)
	case mir.TermCall:
		v.operands(term.Args, loc)
		v.store(term.Destination, loc)
	case mir.TermDrop:
		if term.Place.IsLocal() {
			v.visitLocal(term.Place.Local, useDrop, loc)
		} else {
			v.visitLocal(term.Place.Local, useUse, loc)
			v.indexLocals(term.Place, loc)
		}
	case mir.TermReturn:
		v.read(mir.PlaceOf(mir.ReturnPlace), loc)
	}
}

func (v *visitor) operands(ops []mir.Operand, loc mir.Location) {
	for _, op := range ops {
		if op.Kind != mir.OperandConstant {
			v.read(op.Place, loc)
		}
	}
}

func (v *visitor) read(p mir.Place, loc mir.Location) {
	v.visitLocal(p.Local, useUse, loc)
	v.indexLocals(p, loc)
	if v.visitRead != nil {
		v.visitRead(p, loc)
	}
}

// store visits an assignment destination: writing a whole local defines it,
// writing through a projection uses the base local.
func (v *visitor) store(p mir.Place, loc mir.Location) {
	if p.IsLocal() {
		v.visitLocal(p.Local, useDef, loc)
		return
	}
	v.visitLocal(p.Local, useUse, loc)
	v.indexLocals(p, loc)
}

func (v *visitor) indexLocals(p mir.Place, loc mir.Location) {
	for _, elem := range p.Projection {
		if elem.Kind == mir.ProjIndex {
			v.visitLocal(elem.Index, useUse, loc)
			if v.visitRead != nil {
				v.visitRead(mir.PlaceOf(elem.Index), loc)
			}
		}
	}
}

// ComputeLiveness makes the regions in the type of every local live wherever
// the local may later be used, and the regions a drop may dereference live
// wherever the local may later be dropped while initialized. It also emits
// the variable access facts.
func ComputeLiveness(env *Env) {
	body := env.Body
	acc := &localAccesses{
		defs:  make([]map[mir.Location]bool, len(body.Locals)),
		uses:  make([][]mir.Location, len(body.Locals)),
		drops: make([][]mir.Location, len(body.Locals)),
	}
	for i := range acc.defs {
		acc.defs[i] = make(map[mir.Location]bool)
	}

	v := &visitor{
		body: body,
		visitLocal: func(l mir.Local, kind defUse, loc mir.Location) {
			mid := env.Table.MidIndex(loc)
			switch kind {
			case useDef:
				acc.defs[l][loc] = true
				env.Facts.AddVarDefinedAt(l, mid)
			case useUse:
				acc.uses[l] = append(acc.uses[l], loc)
				env.Facts.AddVarUsedAt(l, mid)
			case useDrop:
				acc.drops[l] = append(acc.drops[l], loc)
				env.Facts.AddVarDroppedAt(l, mid)
			}
		},
		visitRead: func(p mir.Place, loc mir.Location) {
			path, _ := env.Flow.Moves.Find(p)
			env.Facts.AddPathAccessedAtBase(path, env.Table.MidIndex(loc))
		},
	}
	v.walk()

	for i, decl := range body.Locals {
		l := mir.Local(i)
		for _, vid := range decl.Ty.RegionVids() {
			env.Facts.AddUseOfVarDerefsOrigin(l, vid)
		}
		if env.Tcx.NeedsDrop(decl.Ty) {
			for _, vid := range decl.Ty.RegionVids() {
				env.Facts.AddDropOfVarDerefsOrigin(l, vid)
			}
		}
	}

	lc := &livenessComputer{
		env:    env,
		preds:  body.Predecessors(),
		cursor: env.Flow.Inits.Cursor(),
	}
	for i, decl := range body.Locals {
		vids := decl.Ty.RegionVids()
		if len(vids) == 0 {
			continue
		}
		l := mir.Local(i)

		useLive := make(map[mir.Location]bool)
		for _, u := range acc.uses[l] {
			lc.propagate(u, acc.defs[l], useLive, nil)
		}
		lc.addRegionsLive(vids, useLive)

		if !env.Tcx.NeedsDrop(decl.Ty) {
			continue
		}
		path := env.Flow.Moves.LocalPath(l)
		dropLive := make(map[mir.Location]bool)
		for _, d := range acc.drops[l] {
			if !lc.initializedBefore(path, d) {
				continue
			}
			lc.propagate(d, acc.defs[l], dropLive, func(pred mir.BasicBlock) bool {
				return lc.initializedAfter(path, env.Table.Terminator(pred))
			})
		}
		lc.addRegionsLive(vids, dropLive)
	}
}

type livenessComputer struct {
	env    *Env
	preds  [][]mir.BasicBlock
	cursor *dataflow.Cursor
}

// propagate marks start and every location before it, back to the nearest
// definition along each path, as live. The definition itself is not live, so a
// local read and overwritten by the same statement is not live there. enter
// filters the predecessor blocks the walk may continue into.
func (lc *livenessComputer) propagate(start mir.Location, defs, live map[mir.Location]bool, enter func(mir.BasicBlock) bool) {
	stack := []mir.Location{start}
	for len(stack) > 0 {
		loc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		reachedEntry := true
		for s := loc.Statement; s >= 0; s-- {
			p := mir.Location{Block: loc.Block, Statement: s}
			if defs[p] || live[p] {
				reachedEntry = false
				break
			}
			live[p] = true
		}
		if !reachedEntry {
			continue
		}

		for _, pred := range lc.preds[loc.Block] {
			if enter != nil && !enter(pred) {
				continue
			}
			stack = append(stack, lc.env.Table.Terminator(pred))
		}
	}
}

func (lc *livenessComputer) addRegionsLive(vids []mir.RegionVid, live map[mir.Location]bool) {
	for loc := range live {
		for _, vid := range vids {
			lc.env.Liveness.AddElement(vid, loc)
		}
	}
}

func (lc *livenessComputer) initializedBefore(path dataflow.MovePathIndex, loc mir.Location) bool {
	lc.cursor.SeekBefore(loc)
	return lc.cursor.Contains(int(path))
}

func (lc *livenessComputer) initializedAfter(path dataflow.MovePathIndex, loc mir.Location) bool {
	lc.cursor.SeekAfter(loc)
	return lc.cursor.Contains(int(path))
}
