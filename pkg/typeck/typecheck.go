package typeck

import (
	"fmt"

	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
)

// Upvar is a captured variable of a closure, resolved once against the
// universal regions before the body is checked.
type Upvar struct {
	Name    string
	Capture mir.CaptureKind
	Place   mir.Place
	Ty      *mir.Ty
}

// ResolveUpvars pairs the captures of sig with their normalized types.
func ResolveUpvars(sig *mir.Signature, ur *regions.UniversalRegions) []Upvar {
	tys := ur.Upvars()
	out := make([]Upvar, len(sig.Upvars))
	for i, up := range sig.Upvars {
		out[i] = Upvar{Name: up.Name, Capture: up.Capture, Place: up.Place.Clone(), Ty: tys[i]}
	}
	return out
}

// Env is everything the checking passes read and the accumulators they
// append to. All of it belongs to a single enrichment.
type Env struct {
	Tcx       *mir.Context
	Infcx     *regions.InferCtxt
	Proc      *mir.Procedure
	Body      *mir.Body
	Universal *regions.UniversalRegions
	Relations *regions.UniversalRegionRelations
	Table     *mir.LocationTable
	Borrows   *BorrowSet
	Flow      *dataflow.Flow
	Upvars    []Upvar

	Constraints *regions.ConstraintSet
	Liveness    *regions.LivenessValues
	Facts       *facts.Table
}

func (env *Env) relater(locs regions.Locations, category regions.ConstraintCategory) *relater {
	return &relater{tcx: env.Tcx, cs: env.Constraints, locations: locs, category: category}
}

// TypeCheck relates the types of the renumbered body against each other and
// against the normalized signature, then computes region liveness. A
// procedure that failed type-checking upstream is still checked; the
// inference context is marked tainted.
func TypeCheck(env *Env) error {
	if env.Proc.Tainted {
		env.Infcx.SetTaintedByErrors()
	}

	if err := env.equateInputsAndOutputs(); err != nil {
		return fmt.Errorf("%s: %w", env.Proc.ID, err)
	}
	if err := env.constrainUpvars(); err != nil {
		return fmt.Errorf("%s: %w", env.Proc.ID, err)
	}

	for b, bb := range env.Body.Blocks {
		for s, stmt := range bb.Statements {
			loc := mir.Location{Block: mir.BasicBlock(b), Statement: s}
			if err := env.checkStatement(stmt, loc); err != nil {
				return fmt.Errorf("%s at %s: %w", env.Proc.ID, loc, err)
			}
		}
		loc := mir.Location{Block: mir.BasicBlock(b), Statement: len(bb.Statements)}
		if err := env.checkTerminator(bb.Terminator, loc); err != nil {
			return fmt.Errorf("%s at %s: %w", env.Proc.ID, loc, err)
		}
	}

	ComputeLiveness(env)
	return nil
}

// equateInputsAndOutputs ties the argument locals and the return place to the
// normalized signature everywhere in the body.
func (env *Env) equateInputsAndOutputs() error {
	inputs := env.Universal.Inputs()
	if len(inputs) != env.Body.ArgCount {
		return mir.Contractf("signature has %d inputs, body has %d arguments", len(inputs), env.Body.ArgCount)
	}

	r := env.relater(regions.AllLocations(), regions.CategoryEntryInputs)
	for i, in := range inputs {
		if err := r.equate(in, env.Body.Locals[i+1].Ty); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	r.category = regions.CategoryReturn
	if err := r.equate(env.Universal.Output(), env.Body.Locals[mir.ReturnPlace].Ty); err != nil {
		return fmt.Errorf("return place: %w", err)
	}
	return nil
}

// constrainUpvars requires the borrow of every by-reference capture to
// outlive the closure body.
func (env *Env) constrainUpvars() error {
	for _, up := range env.Upvars {
		if up.Capture != mir.ByRef {
			continue
		}
		if up.Ty.Kind != mir.TyRef || up.Ty.Region.Kind != mir.ReVar {
			return mir.Contractf("by-ref upvar %s has type %s", up.Name, up.Ty)
		}
		env.Constraints.Push(regions.OutlivesConstraint{
			Sup:       up.Ty.Region.Vid,
			Sub:       env.Universal.FnBody(),
			Locations: regions.AllLocations(),
			Category:  regions.CategoryUpvar,
		})
	}
	return nil
}

func (env *Env) checkStatement(stmt mir.Statement, loc mir.Location) error {
	if stmt.Kind != mir.StmtAssign {
		return nil
	}

	placeTy, err := env.Tcx.PlaceTy(env.Body, stmt.Place)
	if err != nil {
		return err
	}
	rv := stmt.Rvalue
	r := env.relater(regions.Single(loc), regions.CategoryAssignment)

	if rv.Kind == mir.RvalueAggregate {
		if err := env.checkAggregate(rv, r); err != nil {
			return err
		}
	}

	rvTy, err := env.Tcx.RvalueTy(env.Body, rv)
	if err != nil {
		return err
	}
	if err := r.subtype(rvTy, placeTy); err != nil {
		return err
	}

	if rv.Kind == mir.RvalueRef {
		return env.addReborrowConstraint(loc, rv.Region.Vid, rv.Place)
	}
	return nil
}

func (env *Env) checkAggregate(rv *mir.Rvalue, r *relater) error {
	for i, op := range rv.Operands {
		opTy, err := env.Tcx.OperandTy(env.Body, op)
		if err != nil {
			return err
		}
		var fieldTy *mir.Ty
		if rv.Ty.Kind == mir.TyArray {
			fieldTy = rv.Ty.Elem
		} else if fieldTy, err = env.Tcx.FieldTy(rv.Ty, i); err != nil {
			return err
		}
		if err := r.subtype(opTy, fieldTy); err != nil {
			return fmt.Errorf("aggregate operand %d: %w", i, err)
		}
	}
	return nil
}

// addReborrowConstraint handles borrows of places behind references: for
// &'b *r with r: &'r T, the reference must outlive the new borrow. Walking
// outwards stops at the first shared reference, which is Copy and needs no
// further constraints.
func (env *Env) addReborrowConstraint(loc mir.Location, borrowRegion mir.RegionVid, place mir.Place) error {
	for i := len(place.Projection) - 1; i >= 0; i-- {
		if place.Projection[i].Kind != mir.ProjDeref {
			continue
		}
		base, err := env.Tcx.PlaceTy(env.Body, place.Prefix(i))
		if err != nil {
			return err
		}
		if base.Kind != mir.TyRef || base.Region.Kind != mir.ReVar {
			return mir.Contractf("reborrow through %s", base)
		}
		env.Constraints.Push(regions.OutlivesConstraint{
			Sup:       base.Region.Vid,
			Sub:       borrowRegion,
			Locations: regions.Single(loc),
			Category:  regions.CategoryReborrow,
		})
		if base.Mutbl == mir.Not {
			break
		}
	}
	return nil
}

func (env *Env) checkTerminator(term mir.Terminator, loc mir.Location) error {
	if term.Kind != mir.TermCall {
		return nil
	}

	callee, err := env.Tcx.Procedure(term.Func)
	if err != nil {
		return fmt.Errorf("%w: %w", mir.ErrContractViolation, err)
	}
	inst, err := env.instantiate(callee.Signature, loc)
	if err != nil {
		return fmt.Errorf("call to %s: %w", term.Func, err)
	}
	if len(term.Args) != len(inst.inputs) {
		return mir.Contractf("call to %s with %d arguments, expected %d", term.Func, len(term.Args), len(inst.inputs))
	}

	r := env.relater(regions.Single(loc), regions.CategoryCallArg)
	for i, arg := range term.Args {
		argTy, err := env.Tcx.OperandTy(env.Body, arg)
		if err != nil {
			return err
		}
		if err := r.subtype(argTy, inst.inputs[i]); err != nil {
			return fmt.Errorf("argument %d of %s: %w", i, term.Func, err)
		}
	}

	destTy, err := env.Tcx.PlaceTy(env.Body, term.Destination)
	if err != nil {
		return err
	}
	r.category = regions.CategoryReturn
	if err := r.subtype(inst.output, destTy); err != nil {
		return fmt.Errorf("result of %s: %w", term.Func, err)
	}

	for _, b := range callee.Signature.Bounds() {
		longer, ok := inst.lookup(b.Longer)
		if !ok {
			return mir.Contractf("bound on undeclared lifetime '%s of %s", b.Longer, term.Func)
		}
		shorter, ok := inst.lookup(b.Shorter)
		if !ok {
			return mir.Contractf("bound on undeclared lifetime '%s of %s", b.Shorter, term.Func)
		}
		env.Constraints.Push(regions.OutlivesConstraint{
			Sup: longer, Sub: shorter, Locations: regions.Single(loc), Category: regions.CategoryCallBound,
		})
	}

	for _, vid := range inst.vids {
		env.Liveness.AddElement(vid, loc)
	}
	return nil
}

// instantiation is a callee signature with its regions replaced by fresh
// variables of the caller's inference context.
type instantiation struct {
	named  map[string]mir.RegionVid
	inputs []*mir.Ty
	output *mir.Ty
	vids   []mir.RegionVid
}

func (inst *instantiation) lookup(name string) (mir.RegionVid, bool) {
	vid, ok := inst.named[name]
	return vid, ok
}

func (env *Env) instantiate(sig *mir.Signature, loc mir.Location) (*instantiation, error) {
	inst := &instantiation{named: make(map[string]mir.RegionVid)}
	fresh := func() mir.RegionVid {
		vid := env.Infcx.NextRegionVar(regions.OriginExistential)
		inst.vids = append(inst.vids, vid)
		return vid
	}
	for _, g := range sig.Generics {
		inst.named[g.Name] = fresh()
	}

	// 'static is the caller's own when it has one; otherwise a fresh variable
	// outliving every universal region of the caller.
	if static, ok := env.Universal.Static(); ok {
		inst.named["static"] = static
	} else {
		static := fresh()
		inst.named["static"] = static
		for _, u := range env.Universal.Regions() {
			env.Constraints.Push(regions.OutlivesConstraint{
				Sup: static, Sub: u.Vid, Locations: regions.Single(loc), Category: regions.CategoryCallBound,
			})
		}
	}

	var bad error
	subst := func(elided func() (mir.RegionVid, error)) func(mir.Region) mir.Region {
		return func(r mir.Region) mir.Region {
			var vid mir.RegionVid
			var err error
			switch r.Kind {
			case mir.ReNamed, mir.ReStatic:
				var ok bool
				if vid, ok = inst.named[r.Name]; !ok {
					err = mir.Contractf("use of undeclared lifetime %s", r)
				}
			case mir.ReErased:
				vid, err = elided()
			default:
				err = mir.Contractf("inference region %s in callee signature", r)
			}
			if err != nil {
				if bad == nil {
					bad = err
				}
				return r
			}
			return mir.Var(vid)
		}
	}

	anon := subst(func() (mir.RegionVid, error) { return fresh(), nil })
	for _, in := range sig.Inputs {
		inst.inputs = append(inst.inputs, in.FoldRegions(anon))
	}
	if bad != nil {
		return nil, bad
	}

	var inputVids []mir.RegionVid
	seen := make(map[mir.RegionVid]bool)
	for _, in := range inst.inputs {
		for _, vid := range in.RegionVids() {
			if !seen[vid] {
				seen[vid] = true
				inputVids = append(inputVids, vid)
			}
		}
	}
	output := sig.Output
	if output == nil {
		output = mir.Unit()
	}
	inst.output = output.FoldRegions(subst(func() (mir.RegionVid, error) {
		if len(inputVids) != 1 {
			return 0, mir.Contractf("cannot elide output lifetime among %d input lifetimes", len(inputVids))
		}
		return inputVids[0], nil
	}))
	if bad != nil {
		return nil, bad
	}
	return inst, nil
}
