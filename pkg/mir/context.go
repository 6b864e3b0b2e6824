package mir

import (
	"fmt"
	"sort"
)

const maxNormalizeDepth = 32

// Context is the ambient, read-only type context shared by every enrichment
// of a session: procedures, ADT definitions and associated type
// normalizations. It is never mutated after Build, so concurrent readers need
// no locking.
type Context struct {
	procs   map[string]*Procedure
	adts    map[string]*AdtDef
	aliases map[string]*Ty
}

// ContextBuilder assembles a Context. It is not safe for concurrent use.
type ContextBuilder struct {
	ctx  *Context
	errs []error
}

// NewContextBuilder returns an empty builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{ctx: &Context{
		procs:   make(map[string]*Procedure),
		adts:    make(map[string]*AdtDef),
		aliases: make(map[string]*Ty),
	}}
}

// AddProcedure registers p under p.ID.
func (b *ContextBuilder) AddProcedure(p *Procedure) *ContextBuilder {
	if p == nil || p.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("procedure without id"))
		return b
	}
	if _, dup := b.ctx.procs[p.ID]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate procedure %q", p.ID))
		return b
	}
	b.ctx.procs[p.ID] = p
	return b
}

// AddAdt registers an ADT definition.
func (b *ContextBuilder) AddAdt(def *AdtDef) *ContextBuilder {
	if _, dup := b.ctx.adts[def.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate adt %q", def.Name))
		return b
	}
	b.ctx.adts[def.Name] = def
	return b
}

// AddAlias registers the normalized form of an associated type projection.
func (b *ContextBuilder) AddAlias(name string, ty *Ty) *ContextBuilder {
	b.ctx.aliases[name] = ty
	return b
}

// Build checks that every procedure has a signature and freezes the context.
// Bodies are validated when they are enriched, so one malformed body does
// not make the rest of the context unusable.
func (b *ContextBuilder) Build() (*Context, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("building context: %w", b.errs[0])
	}
	for _, id := range b.ctx.ProcedureIDs() {
		p := b.ctx.procs[id]
		if p.Signature == nil {
			return nil, fmt.Errorf("procedure %s: missing signature", id)
		}
		if p.Body == nil {
			continue
		}
		if p.Body.Owner == "" {
			p.Body.Owner = id
		}
	}
	ctx := b.ctx
	b.ctx = nil
	return ctx, nil
}

// Procedure resolves id.
func (c *Context) Procedure(id string) (*Procedure, error) {
	p, ok := c.procs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcedure, id)
	}
	return p, nil
}

// ProcedureIDs lists the registered procedures in sorted order.
func (c *Context) ProcedureIDs() []string {
	ids := make([]string, 0, len(c.procs))
	for id := range c.procs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Adt returns the definition of the ADT name.
func (c *Context) Adt(name string) (*AdtDef, bool) {
	def, ok := c.adts[name]
	return def, ok
}

// Normalize resolves every alias occurring in t.
func (c *Context) Normalize(t *Ty) (*Ty, error) {
	return c.normalize(t, 0)
}

func (c *Context) normalize(t *Ty, depth int) (*Ty, error) {
	if t == nil {
		return nil, nil
	}
	if depth > maxNormalizeDepth {
		return nil, Contractf("normalizing %s: alias cycle", t)
	}
	if t.Kind == TyAlias {
		target, ok := c.aliases[t.Name]
		if !ok {
			return nil, Contractf("cannot normalize %s", t.Name)
		}
		return c.normalize(target, depth+1)
	}

	out := &Ty{Kind: t.Kind, Name: t.Name, Region: t.Region, Mutbl: t.Mutbl, Len: t.Len}
	out.Regions = append([]Region(nil), t.Regions...)
	elem, err := c.normalize(t.Elem, depth)
	if err != nil {
		return nil, err
	}
	out.Elem = elem
	for _, a := range t.Args {
		na, err := c.normalize(a, depth)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, na)
	}
	return out, nil
}

// FieldTy returns the type of field i of t, with ADT parameters substituted.
func (c *Context) FieldTy(t *Ty, i int) (*Ty, error) {
	switch t.Kind {
	case TyTuple:
		if i < 0 || i >= len(t.Args) {
			return nil, Contractf("field %d of %s out of range", i, t)
		}
		return t.Args[i], nil
	case TyAdt:
		def, ok := c.adts[t.Name]
		if !ok {
			return nil, Contractf("unknown adt %s", t.Name)
		}
		if i < 0 || i >= len(def.Fields) {
			return nil, Contractf("field %d of %s out of range", i, t)
		}
		if len(def.RegionParams) != len(t.Regions) || len(def.TypeParams) != len(t.Args) {
			return nil, Contractf("%s applied to wrong number of arguments", t)
		}
		regions := make(map[string]Region, len(def.RegionParams))
		for j, p := range def.RegionParams {
			regions[p.Name] = t.Regions[j]
		}
		types := make(map[string]*Ty, len(def.TypeParams))
		for j, p := range def.TypeParams {
			types[p.Name] = t.Args[j]
		}
		return substitute(def.Fields[i].Ty, regions, types), nil
	default:
		return nil, Contractf("type %s has no fields", t)
	}
}

func substitute(t *Ty, regions map[string]Region, types map[string]*Ty) *Ty {
	if t == nil {
		return nil
	}
	if t.Kind == TyParam {
		if actual, ok := types[t.Name]; ok {
			return actual.Clone()
		}
		return t.Clone()
	}
	sub := func(r Region) Region {
		if r.Kind == ReNamed {
			if actual, ok := regions[r.Name]; ok {
				return actual
			}
		}
		return r
	}
	out := &Ty{Kind: t.Kind, Name: t.Name, Region: t.Region, Mutbl: t.Mutbl, Len: t.Len}
	if t.Kind == TyRef {
		out.Region = sub(t.Region)
	}
	for _, r := range t.Regions {
		out.Regions = append(out.Regions, sub(r))
	}
	out.Elem = substitute(t.Elem, regions, types)
	for _, a := range t.Args {
		out.Args = append(out.Args, substitute(a, regions, types))
	}
	return out
}

// PlaceTy computes the type of place p in body.
func (c *Context) PlaceTy(body *Body, p Place) (*Ty, error) {
	ty, err := body.LocalTy(p.Local)
	if err != nil {
		return nil, err
	}
	for _, e := range p.Projection {
		ty, err = c.ProjectTy(ty, e)
		if err != nil {
			return nil, fmt.Errorf("type of %s: %w", p, err)
		}
	}
	return ty, nil
}

// ProjectTy applies one projection step to base.
func (c *Context) ProjectTy(base *Ty, e ProjectionElem) (*Ty, error) {
	switch e.Kind {
	case ProjDeref:
		if base.Kind != TyRef {
			return nil, Contractf("deref of non-reference %s", base)
		}
		return base.Elem, nil
	case ProjField:
		return c.FieldTy(base, e.Field)
	case ProjIndex:
		if base.Kind != TyArray {
			return nil, Contractf("index into non-array %s", base)
		}
		return base.Elem, nil
	default:
		return nil, Contractf("unknown projection %d", e.Kind)
	}
}

// OperandTy computes the type of op.
func (c *Context) OperandTy(body *Body, op Operand) (*Ty, error) {
	if op.Kind == OperandConstant {
		if op.Ty == nil {
			return nil, Contractf("constant %s without type", op.Value)
		}
		return op.Ty, nil
	}
	return c.PlaceTy(body, op.Place)
}

var comparisonOps = map[string]bool{"Eq": true, "Ne": true, "Lt": true, "Le": true, "Gt": true, "Ge": true}

// RvalueTy computes the type produced by rv.
func (c *Context) RvalueTy(body *Body, rv *Rvalue) (*Ty, error) {
	switch rv.Kind {
	case RvalueUse:
		return c.OperandTy(body, rv.Operands[0])
	case RvalueRef:
		pt, err := c.PlaceTy(body, rv.Place)
		if err != nil {
			return nil, err
		}
		return Ref(rv.Region, rv.Borrow.Mutability(), pt), nil
	case RvalueAggregate:
		if rv.Ty == nil {
			return nil, Contractf("aggregate without type")
		}
		return rv.Ty, nil
	case RvalueBinaryOp:
		if comparisonOps[rv.Op] {
			return Bool(), nil
		}
		return c.OperandTy(body, rv.Operands[0])
	default:
		return nil, Contractf("unknown rvalue kind %d", rv.Kind)
	}
}

// NeedsDrop reports whether dropping a value of type t runs user code that
// may observe its regions.
func (c *Context) NeedsDrop(t *Ty) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TyAdt:
		if def, ok := c.adts[t.Name]; ok && def.NeedsDrop {
			return true
		}
		for _, a := range t.Args {
			if c.NeedsDrop(a) {
				return true
			}
		}
		return false
	case TyTuple:
		for _, a := range t.Args {
			if c.NeedsDrop(a) {
				return true
			}
		}
		return false
	case TyArray:
		return c.NeedsDrop(t.Elem)
	case TyParam:
		return true
	default:
		return false
	}
}
