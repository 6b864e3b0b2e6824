package enrich

import (
	"sort"

	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
	"github.com/l3aro/go-region-facts/pkg/typeck"
)

// EnrichedBody is the result of one enrichment. It is immutable: accessors
// hand out the analysis state that produced the facts, which callers must not
// modify.
type EnrichedBody struct {
	defID      string
	sessionID  string
	numVars    int
	tainted    bool
	body       *mir.Body
	universal  *regions.UniversalRegions
	relations  *regions.UniversalRegionRelations
	table      *mir.LocationTable
	facts      *facts.Table
	borrows    *typeck.BorrowSet
	flow       *dataflow.Flow
	cs         *regions.ConstraintSet
	liveness   *regions.LivenessValues
	moveErrors []dataflow.MoveError
	upvars     []typeck.Upvar
	localNames map[mir.Local]string
	outlives   map[mir.RegionVid][]mir.RegionVid
}

func newEnrichedBody(defID string, infcx *regions.InferCtxt, env *typeck.Env, moveErrors []dataflow.MoveError) *EnrichedBody {
	eb := &EnrichedBody{
		defID:      defID,
		sessionID:  infcx.SessionID(),
		numVars:    infcx.NumRegionVars(),
		tainted:    infcx.TaintedByErrors(),
		body:       env.Body,
		universal:  env.Universal,
		relations:  env.Relations,
		table:      env.Table,
		facts:      env.Facts,
		borrows:    env.Borrows,
		flow:       env.Flow,
		cs:         env.Constraints,
		liveness:   env.Liveness,
		moveErrors: moveErrors,
		upvars:     env.Upvars,
		localNames: make(map[mir.Local]string),
		outlives:   make(map[mir.RegionVid][]mir.RegionVid),
	}

	for _, info := range env.Body.VarDebugInfo {
		if _, ok := eb.localNames[info.Local]; !ok {
			eb.localNames[info.Local] = info.Name
		}
	}

	for _, row := range env.Facts.SortedRows(facts.SubsetBase) {
		sup, sub := mir.RegionVid(row[0]), mir.RegionVid(row[1])
		eb.outlives[sup] = append(eb.outlives[sup], sub)
	}
	for sup, subs := range eb.outlives {
		sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
		out := subs[:0]
		for _, s := range subs {
			if len(out) == 0 || out[len(out)-1] != s {
				out = append(out, s)
			}
		}
		eb.outlives[sup] = out
	}

	return eb
}

// DefID returns the procedure the body belongs to.
func (eb *EnrichedBody) DefID() string { return eb.defID }

// SessionID identifies the inference session that produced the result.
func (eb *EnrichedBody) SessionID() string { return eb.sessionID }

// Body returns the renumbered copy of the procedure body.
func (eb *EnrichedBody) Body() *mir.Body { return eb.body }

// NumRegionVars returns how many region variables the session created.
func (eb *EnrichedBody) NumRegionVars() int { return eb.numVars }

// Tainted reports whether the procedure had failed type-checking upstream.
func (eb *EnrichedBody) Tainted() bool { return eb.tainted }

func (eb *EnrichedBody) UniversalRegions() *regions.UniversalRegions { return eb.universal }

// UniversalRelation returns the known-outlives pairs among the universal
// regions, closed under transitivity.
func (eb *EnrichedBody) UniversalRelation() []regions.Outlives { return eb.relations.KnownOutlives() }

// Inputs returns the normalized input types of the signature.
func (eb *EnrichedBody) Inputs() []*mir.Ty { return eb.universal.Inputs() }

// Output returns the normalized output type of the signature.
func (eb *EnrichedBody) Output() *mir.Ty { return eb.universal.Output() }

func (eb *EnrichedBody) Facts() *facts.Table { return eb.facts }

func (eb *EnrichedBody) LocationTable() *mir.LocationTable { return eb.table }

// LocalName returns the source name of l, if the body records one.
func (eb *EnrichedBody) LocalName(l mir.Local) (string, bool) {
	name, ok := eb.localNames[l]
	return name, ok
}

// Outlives returns the regions r must outlive at some point, sorted.
func (eb *EnrichedBody) Outlives(r mir.RegionVid) []mir.RegionVid {
	return append([]mir.RegionVid(nil), eb.outlives[r]...)
}

// Loans returns the borrows of the body in loan order.
func (eb *EnrichedBody) Loans() []typeck.BorrowData { return eb.borrows.Borrows() }

// Constraints returns the outlives constraints in generation order.
func (eb *EnrichedBody) Constraints() []regions.OutlivesConstraint { return eb.cs.Constraints() }

// Flow returns the solved initialization analyses of the body.
func (eb *EnrichedBody) Flow() *dataflow.Flow { return eb.flow }

func (eb *EnrichedBody) Liveness() *regions.LivenessValues { return eb.liveness }

// MoveErrors returns the illegal moves found in the body.
func (eb *EnrichedBody) MoveErrors() []dataflow.MoveError {
	return append([]dataflow.MoveError(nil), eb.moveErrors...)
}

func (eb *EnrichedBody) Upvars() []typeck.Upvar { return eb.upvars }
