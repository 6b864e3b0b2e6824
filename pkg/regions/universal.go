package regions

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// UniversalKind classifies the regions of the catalog.
type UniversalKind uint8

const (
	UniversalStatic UniversalKind = iota
	UniversalNamed
	UniversalAnon
	UniversalFnBody
)

func (k UniversalKind) String() string {
	switch k {
	case UniversalStatic:
		return "static"
	case UniversalNamed:
		return "named"
	case UniversalAnon:
		return "anon"
	default:
		return "fn_body"
	}
}

// UniversalRegion is one entry of the catalog.
type UniversalRegion struct {
	Vid  mir.RegionVid `json:"vid" yaml:"vid" msgpack:"vid"`
	Kind UniversalKind `json:"kind" yaml:"kind" msgpack:"kind"`
	Name string        `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
}

func (u UniversalRegion) String() string {
	switch u.Kind {
	case UniversalStatic:
		return "'static"
	case UniversalNamed:
		return "'" + u.Name
	case UniversalAnon:
		return fmt.Sprintf("'<anon%s>", u.Vid)
	default:
		return "'fn_body"
	}
}

// UniversalRegions is the catalog of regions that are free in a procedure
// body: 'static when the signature mentions it, the lifetime parameters in
// declaration order, one anonymous region per elided input or upvar lifetime,
// and finally the region of the body itself.
type UniversalRegions struct {
	regions []UniversalRegion
	index   map[mir.RegionVid]int
	byName  map[string]mir.RegionVid
	static  mir.RegionVid
	hasStat bool
	fnBody  mir.RegionVid

	inputs []*mir.Ty
	output *mir.Ty
	upvars []*mir.Ty
}

// NewUniversalRegions builds the catalog of proc and the normalized forms of
// its signature types, allocating every universal region from infcx.
func NewUniversalRegions(infcx *InferCtxt, tcx *mir.Context, proc *mir.Procedure) (*UniversalRegions, error) {
	sig := proc.Signature
	if sig == nil {
		return nil, mir.Contractf("%s: missing signature", proc.ID)
	}
	if err := checkDeclared(sig); err != nil {
		return nil, fmt.Errorf("%s: %w", proc.ID, err)
	}

	ur := &UniversalRegions{
		index:  make(map[mir.RegionVid]int),
		byName: make(map[string]mir.RegionVid),
	}
	alloc := func(kind UniversalKind, name string) mir.RegionVid {
		vid := infcx.NextRegionVar(OriginUniversal)
		ur.index[vid] = len(ur.regions)
		ur.regions = append(ur.regions, UniversalRegion{Vid: vid, Kind: kind, Name: name})
		return vid
	}

	// A const without a declared type is typed by its return place; each
	// erased region in it becomes a universal region of its own.
	var constTy *mir.Ty
	if sig.Output == nil && proc.Body != nil && proc.Body.Kind == mir.BodyConst && len(proc.Body.Locals) > 0 {
		constTy = proc.Body.Locals[mir.ReturnPlace].Ty
	}

	if mentionsStatic(sig) || (constTy != nil && hasStatic(constTy)) {
		ur.static = alloc(UniversalStatic, "static")
		ur.hasStat = true
	}
	for _, g := range sig.Generics {
		if _, dup := ur.byName[g.Name]; dup {
			return nil, mir.Contractf("%s: lifetime '%s declared twice", proc.ID, g.Name)
		}
		ur.byName[g.Name] = alloc(UniversalNamed, g.Name)
	}

	anon := func(mir.Region) (mir.RegionVid, error) { return alloc(UniversalAnon, ""), nil }
	for i, in := range sig.Inputs {
		ty, err := ur.liberate(tcx, in, anon)
		if err != nil {
			return nil, fmt.Errorf("%s: input %d: %w", proc.ID, i, err)
		}
		ur.inputs = append(ur.inputs, ty)
	}
	for _, up := range sig.Upvars {
		ty, err := ur.liberate(tcx, up.Ty, anon)
		if err != nil {
			return nil, fmt.Errorf("%s: upvar %s: %w", proc.ID, up.Name, err)
		}
		ur.upvars = append(ur.upvars, ty)
	}

	// Elided output lifetimes resolve to the single input lifetime.
	inputVids := distinctVids(ur.inputs)
	elided := func(mir.Region) (mir.RegionVid, error) {
		if len(inputVids) != 1 {
			return 0, mir.Contractf("cannot elide output lifetime among %d input lifetimes", len(inputVids))
		}
		return inputVids[0], nil
	}
	output := sig.Output
	switch {
	case output != nil:
	case constTy != nil:
		output, elided = constTy, anon
	default:
		output = mir.Unit()
	}
	out, err := ur.liberate(tcx, output, elided)
	if err != nil {
		return nil, fmt.Errorf("%s: output: %w", proc.ID, err)
	}
	ur.output = out

	ur.fnBody = alloc(UniversalFnBody, "")
	return ur, nil
}

// liberate normalizes t and replaces its regions by universal variables.
func (ur *UniversalRegions) liberate(tcx *mir.Context, t *mir.Ty, elided func(mir.Region) (mir.RegionVid, error)) (*mir.Ty, error) {
	norm, err := tcx.Normalize(t)
	if err != nil {
		return nil, err
	}

	var bad error
	out := norm.FoldRegions(func(r mir.Region) mir.Region {
		vid, err := ur.liberateRegion(r, elided)
		if err != nil {
			if bad == nil {
				bad = err
			}
			return r
		}
		return mir.Var(vid)
	})
	return out, bad
}

func (ur *UniversalRegions) liberateRegion(r mir.Region, elided func(mir.Region) (mir.RegionVid, error)) (mir.RegionVid, error) {
	switch r.Kind {
	case mir.ReStatic, mir.ReNamed:
		vid, ok := ur.Named(r.Name)
		if !ok {
			return 0, mir.Contractf("use of undeclared lifetime %s", r)
		}
		return vid, nil
	case mir.ReErased:
		return elided(r)
	default:
		return 0, mir.Contractf("inference region %s in signature", r)
	}
}

func checkDeclared(sig *mir.Signature) error {
	check := func(name string) error {
		if name == "static" || sig.HasLifetime(name) {
			return nil
		}
		return mir.Contractf("use of undeclared lifetime '%s", name)
	}
	for _, b := range sig.Bounds() {
		if err := check(b.Longer); err != nil {
			return err
		}
		if err := check(b.Shorter); err != nil {
			return err
		}
	}
	for _, t := range signatureTypes(sig) {
		for _, r := range t.AllRegions() {
			if r.Kind != mir.ReNamed {
				continue
			}
			if err := check(r.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func mentionsStatic(sig *mir.Signature) bool {
	for _, b := range sig.Bounds() {
		if b.Longer == "static" || b.Shorter == "static" {
			return true
		}
	}
	for _, t := range signatureTypes(sig) {
		if hasStatic(t) {
			return true
		}
	}
	return false
}

func hasStatic(t *mir.Ty) bool {
	for _, r := range t.AllRegions() {
		if r.Kind == mir.ReStatic {
			return true
		}
	}
	return false
}

func signatureTypes(sig *mir.Signature) []*mir.Ty {
	out := append([]*mir.Ty(nil), sig.Inputs...)
	for _, up := range sig.Upvars {
		out = append(out, up.Ty)
	}
	if sig.Output != nil {
		out = append(out, sig.Output)
	}
	return out
}

func distinctVids(tys []*mir.Ty) []mir.RegionVid {
	seen := make(map[mir.RegionVid]bool)
	var out []mir.RegionVid
	for _, t := range tys {
		for _, vid := range t.RegionVids() {
			if !seen[vid] {
				seen[vid] = true
				out = append(out, vid)
			}
		}
	}
	return out
}

// Regions returns the catalog in allocation order.
func (ur *UniversalRegions) Regions() []UniversalRegion {
	return append([]UniversalRegion(nil), ur.regions...)
}

// Len returns the number of universal regions.
func (ur *UniversalRegions) Len() int { return len(ur.regions) }

// FnBody returns the region of the body scope.
func (ur *UniversalRegions) FnBody() mir.RegionVid { return ur.fnBody }

// Static returns the 'static region, present when the signature mentions it.
func (ur *UniversalRegions) Static() (mir.RegionVid, bool) { return ur.static, ur.hasStat }

// Named returns the region of the lifetime parameter name.
func (ur *UniversalRegions) Named(name string) (mir.RegionVid, bool) {
	if name == "static" {
		return ur.Static()
	}
	vid, ok := ur.byName[name]
	return vid, ok
}

// IsUniversal reports whether vid belongs to the catalog.
func (ur *UniversalRegions) IsUniversal(vid mir.RegionVid) bool {
	_, ok := ur.index[vid]
	return ok
}

// Region returns the catalog entry of vid.
func (ur *UniversalRegions) Region(vid mir.RegionVid) (UniversalRegion, bool) {
	i, ok := ur.index[vid]
	if !ok {
		return UniversalRegion{}, false
	}
	return ur.regions[i], true
}

// Inputs returns the normalized input types.
func (ur *UniversalRegions) Inputs() []*mir.Ty { return ur.inputs }

// Output returns the normalized output type.
func (ur *UniversalRegions) Output() *mir.Ty { return ur.output }

// Upvars returns the normalized types of the captured variables.
func (ur *UniversalRegions) Upvars() []*mir.Ty { return ur.upvars }

// Outlives is a pair Longer: Shorter of universal regions.
type Outlives struct {
	Longer  mir.RegionVid `json:"longer" yaml:"longer" msgpack:"longer"`
	Shorter mir.RegionVid `json:"shorter" yaml:"shorter" msgpack:"shorter"`
}

func (o Outlives) String() string { return fmt.Sprintf("%s: %s", o.Longer, o.Shorter) }

// UniversalRegionRelations is the known-outlives relation among universal
// regions, closed under transitivity. It is fixed once created.
type UniversalRegionRelations struct {
	declared []Outlives
	base     []Outlives
	closure  map[mir.RegionVid]map[mir.RegionVid]struct{}
}

// CreateRelations derives the axioms among the universal regions of ur and
// pushes each of them into cs as a constraint holding at all locations:
// 'static outlives every universal region, every universal region outlives
// the body region, the declared bounds of sig hold, and a reference &'a T in
// the signature implies that every region of T outlives 'a.
func CreateRelations(ur *UniversalRegions, sig *mir.Signature, cs *ConstraintSet) (*UniversalRegionRelations, error) {
	rel := &UniversalRegionRelations{closure: make(map[mir.RegionVid]map[mir.RegionVid]struct{})}
	seen := make(map[Outlives]bool)
	add := func(longer, shorter mir.RegionVid) {
		o := Outlives{Longer: longer, Shorter: shorter}
		if longer == shorter || seen[o] {
			return
		}
		seen[o] = true
		rel.base = append(rel.base, o)
		cs.Push(OutlivesConstraint{Sup: longer, Sub: shorter, Locations: AllLocations(), Category: CategoryUniversal})
	}

	for _, u := range ur.regions {
		if static, ok := ur.Static(); ok {
			add(static, u.Vid)
		}
		add(u.Vid, ur.fnBody)
	}

	for _, b := range sig.Bounds() {
		longer, ok := ur.Named(b.Longer)
		if !ok {
			return nil, mir.Contractf("bound on undeclared lifetime '%s", b.Longer)
		}
		shorter, ok := ur.Named(b.Shorter)
		if !ok {
			return nil, mir.Contractf("bound on undeclared lifetime '%s", b.Shorter)
		}
		rel.declared = append(rel.declared, Outlives{Longer: longer, Shorter: shorter})
		add(longer, shorter)
	}

	tys := append(append([]*mir.Ty(nil), ur.inputs...), ur.upvars...)
	tys = append(tys, ur.output)
	for _, t := range tys {
		for _, o := range ImpliedBounds(t) {
			add(o.Longer, o.Shorter)
		}
	}

	rel.close()
	return rel, nil
}

// ImpliedBounds returns the outlives pairs entailed by t being well formed:
// for every reference &'a U inside t, each region of U outlives 'a.
func ImpliedBounds(t *mir.Ty) []Outlives {
	var out []Outlives
	stack := []*mir.Ty{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		if cur.Kind == mir.TyRef && cur.Region.Kind == mir.ReVar {
			for _, inner := range cur.Elem.RegionVids() {
				out = append(out, Outlives{Longer: inner, Shorter: cur.Region.Vid})
			}
		}
		stack = append(stack, cur.Args...)
		if cur.Elem != nil {
			stack = append(stack, cur.Elem)
		}
	}
	return out
}

func (rel *UniversalRegionRelations) close() {
	adj := make(map[mir.RegionVid][]mir.RegionVid)
	for _, o := range rel.base {
		adj[o.Longer] = append(adj[o.Longer], o.Shorter)
	}
	for from := range adj {
		reach := make(map[mir.RegionVid]struct{})
		work := append([]mir.RegionVid(nil), adj[from]...)
		for len(work) > 0 {
			r := work[len(work)-1]
			work = work[:len(work)-1]
			if _, ok := reach[r]; ok {
				continue
			}
			reach[r] = struct{}{}
			work = append(work, adj[r]...)
		}
		rel.closure[from] = reach
	}
}

// Outlives reports whether longer: shorter is known.
func (rel *UniversalRegionRelations) Outlives(longer, shorter mir.RegionVid) bool {
	if longer == shorter {
		return true
	}
	_, ok := rel.closure[longer][shorter]
	return ok
}

// KnownOutlives returns the closed relation sorted by (Longer, Shorter).
func (rel *UniversalRegionRelations) KnownOutlives() []Outlives {
	var out []Outlives
	for longer, set := range rel.closure {
		for shorter := range set {
			out = append(out, Outlives{Longer: longer, Shorter: shorter})
		}
	}
	sortOutlives(out)
	return out
}

// Base returns the axioms before closure, in derivation order.
func (rel *UniversalRegionRelations) Base() []Outlives {
	return append([]Outlives(nil), rel.base...)
}

// Declared returns the explicitly declared bounds.
func (rel *UniversalRegionRelations) Declared() []Outlives {
	return append([]Outlives(nil), rel.declared...)
}

func sortOutlives(out []Outlives) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Longer != out[j].Longer {
			return out[i].Longer < out[j].Longer
		}
		return out[i].Shorter < out[j].Shorter
	})
}
