package typeck

import (
	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
)

// EmitUniversalFacts records every universal region and the outlives edges
// known between them before any constraint is solved.
func EmitUniversalFacts(ur *regions.UniversalRegions, rel *regions.UniversalRegionRelations, t *facts.Table) {
	for _, u := range ur.Regions() {
		t.AddUniversalRegion(u.Vid)
	}
	for _, o := range rel.Base() {
		t.AddKnownPlaceholderSubset(o.Longer, o.Shorter)
	}
}

// EmitPlaceholders gives every universal region a placeholder loan. The
// placeholder loans are numbered after the real loans of the body.
func EmitPlaceholders(ur *regions.UniversalRegions, borrows *BorrowSet, t *facts.Table) {
	base := borrows.Len()
	for i, u := range ur.Regions() {
		t.AddPlaceholder(u.Vid, facts.Loan(base+i))
	}
}

// EmitMoveFacts records the move path forest of the body and where each path
// is assigned, moved out and illegally moved.
func EmitMoveFacts(body *mir.Body, lt *mir.LocationTable, md *dataflow.MoveData, moveErrors []dataflow.MoveError, t *facts.Table) {
	for i, path := range md.Paths {
		idx := dataflow.MovePathIndex(i)
		if path.Parent == dataflow.NoMovePath {
			t.AddPathIsVar(idx, path.Place.Local)
		} else {
			t.AddChildPath(idx, path.Parent)
		}
	}

	entry := lt.StartIndex(mir.StartLocation)
	for _, init := range md.Inits {
		switch init.Kind {
		case dataflow.InitArgument:
			t.AddPathAssignedAtBase(init.Path, entry)
		case dataflow.InitCallReturn:
			// The destination is written on the edge to the return block.
			term := body.Blocks[init.Location.Block].Terminator
			if len(term.Targets) > 0 {
				t.AddPathAssignedAtBase(init.Path, lt.StartIndex(lt.BlockStart(term.Targets[0])))
			}
		default:
			t.AddPathAssignedAtBase(init.Path, lt.MidIndex(init.Location))
		}
	}

	// Locals other than the arguments start out uninitialized.
	args := make(map[mir.Local]bool)
	for _, a := range body.Args() {
		args[a] = true
	}
	for i := range body.Locals {
		if l := mir.Local(i); !args[l] {
			t.AddPathMovedAtBase(md.LocalPath(l), entry)
		}
	}
	for _, m := range md.Moves {
		t.AddPathMovedAtBase(m.Path, lt.MidIndex(m.Location))
	}

	for _, e := range moveErrors {
		t.AddMoveError(e.Place.Local, lt.MidIndex(e.Location), e.Kind)
	}
}

// EmitSubsetBase turns the outlives constraints into subset facts. A
// constraint holding at a single location applies at its mid point; one
// holding everywhere is repeated at every point when expandAll is set and
// emitted once at the entry point otherwise.
func EmitSubsetBase(lt *mir.LocationTable, cs *regions.ConstraintSet, t *facts.Table, expandAll bool) {
	for _, c := range cs.Constraints() {
		if !c.Locations.All {
			t.AddSubsetBase(c.Sup, c.Sub, lt.MidIndex(c.Locations.At))
			continue
		}
		if !expandAll {
			t.AddSubsetBase(c.Sup, c.Sub, lt.StartIndex(mir.StartLocation))
			continue
		}
		for p := 0; p < lt.NumPoints(); p++ {
			t.AddSubsetBase(c.Sup, c.Sub, mir.PointIndex(p))
		}
	}
}

// EmitOriginLiveAt records the computed liveness of every region at both
// points of each location where it is live.
func EmitOriginLiveAt(lt *mir.LocationTable, lv *regions.LivenessValues, t *facts.Table) {
	for _, vid := range lv.Regions() {
		for _, loc := range lv.Locations(vid) {
			t.AddOriginLiveAt(vid, lt.StartIndex(loc))
			t.AddOriginLiveAt(vid, lt.MidIndex(loc))
		}
	}
}
