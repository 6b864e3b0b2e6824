package mir

import (
	"fmt"
	"strings"
)

// RegionKind classifies a region occurring in a type.
type RegionKind uint8

const (
	// ReErased is an elided or not yet assigned region.
	ReErased RegionKind = iota
	// ReStatic is 'static.
	ReStatic
	// ReNamed is a named lifetime parameter such as 'a.
	ReNamed
	// ReVar is an inference variable allocated by an inference context.
	ReVar
)

// Region is a lifetime as it appears in a type.
type Region struct {
	Kind RegionKind
	Name string
	Vid  RegionVid
}

// Erased returns the elided region.
func Erased() Region { return Region{Kind: ReErased} }

// Static returns 'static.
func Static() Region { return Region{Kind: ReStatic, Name: "static"} }

// Named returns the named region 'name.
func Named(name string) Region { return Region{Kind: ReNamed, Name: strings.TrimPrefix(name, "'")} }

// Var returns the region of inference variable vid.
func Var(vid RegionVid) Region { return Region{Kind: ReVar, Vid: vid} }

func (r Region) String() string {
	switch r.Kind {
	case ReStatic:
		return "'static"
	case ReNamed:
		return "'" + r.Name
	case ReVar:
		return r.Vid.String()
	default:
		return "'_"
	}
}

// TyKind enumerates the type constructors of the model.
type TyKind uint8

const (
	TyInvalid TyKind = iota
	TyBool
	TyInt // Name holds the primitive: i32, usize, char, f64...
	TyStr
	TyUnit
	TyNever
	TyRef   // &'Region Mutbl Elem
	TyAdt   // Name<Regions..., Args...>
	TyTuple // (Args...)
	TyArray // [Elem; Len]
	TyParam // generic type parameter Name
	TyAlias // associated type projection Name, resolved by Context.Normalize
)

var tyKindNames = map[TyKind]string{
	TyBool:  "bool",
	TyInt:   "int",
	TyStr:   "str",
	TyUnit:  "unit",
	TyNever: "never",
	TyRef:   "ref",
	TyAdt:   "adt",
	TyTuple: "tuple",
	TyArray: "array",
	TyParam: "param",
	TyAlias: "alias",
}

func (k TyKind) String() string {
	v, ok := tyKindNames[k]
	if !ok {
		return fmt.Sprintf("invalid(%d)", k)
	}

	return v
}

// Mutability of a reference or borrow.
type Mutability uint8

const (
	Not Mutability = iota
	Mut
)

// Ty is a type whose lifetimes are explicit regions.
type Ty struct {
	Kind    TyKind
	Name    string
	Region  Region
	Mutbl   Mutability
	Elem    *Ty
	Len     string
	Regions []Region
	Args    []*Ty
}

// Bool returns the bool type.
func Bool() *Ty { return &Ty{Kind: TyBool, Name: "bool"} }

// Int returns the primitive scalar type name.
func Int(name string) *Ty { return &Ty{Kind: TyInt, Name: name} }

// Unit returns ().
func Unit() *Ty { return &Ty{Kind: TyUnit} }

// Never returns !.
func Never() *Ty { return &Ty{Kind: TyNever} }

// Str returns str.
func Str() *Ty { return &Ty{Kind: TyStr, Name: "str"} }

// Ref returns &'r T or &'r mut T.
func Ref(r Region, m Mutability, elem *Ty) *Ty {
	return &Ty{Kind: TyRef, Region: r, Mutbl: m, Elem: elem}
}

// Adt returns a user defined type applied to region and type arguments.
func Adt(name string, regions []Region, args ...*Ty) *Ty {
	return &Ty{Kind: TyAdt, Name: name, Regions: regions, Args: args}
}

// Tuple returns (elems...). An empty tuple is the unit type.
func Tuple(elems ...*Ty) *Ty {
	if len(elems) == 0 {
		return Unit()
	}
	return &Ty{Kind: TyTuple, Args: elems}
}

// Array returns [elem; n].
func Array(elem *Ty, n string) *Ty { return &Ty{Kind: TyArray, Elem: elem, Len: n} }

// Param returns the generic type parameter name.
func Param(name string) *Ty { return &Ty{Kind: TyParam, Name: name} }

// Alias returns the associated type projection name.
func Alias(name string) *Ty { return &Ty{Kind: TyAlias, Name: name} }

// Clone returns a deep copy of t.
func (t *Ty) Clone() *Ty {
	return t.FoldRegions(func(r Region) Region { return r })
}

// FoldRegions returns a copy of t with every region replaced by f(region).
// Regions are visited in the same order as Regions reports them.
func (t *Ty) FoldRegions(f func(Region) Region) *Ty {
	if t == nil {
		return nil
	}

	out := &Ty{Kind: t.Kind, Name: t.Name, Mutbl: t.Mutbl, Len: t.Len, Region: t.Region}
	if t.Kind == TyRef {
		out.Region = f(t.Region)
	}
	if len(t.Regions) > 0 {
		out.Regions = make([]Region, len(t.Regions))
		for i, r := range t.Regions {
			out.Regions[i] = f(r)
		}
	}
	out.Elem = t.Elem.FoldRegions(f)
	if len(t.Args) > 0 {
		out.Args = make([]*Ty, len(t.Args))
		for i, a := range t.Args {
			out.Args[i] = a.FoldRegions(f)
		}
	}

	return out
}

// AllRegions lists every region occurring in t, outermost first, left to right.
func (t *Ty) AllRegions() []Region {
	var out []Region
	stack := []*Ty{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		if cur.Kind == TyRef {
			out = append(out, cur.Region)
		}
		out = append(out, cur.Regions...)
		for i := len(cur.Args) - 1; i >= 0; i-- {
			stack = append(stack, cur.Args[i])
		}
		if cur.Elem != nil {
			stack = append(stack, cur.Elem)
		}
	}

	return out
}

// RegionVids lists the inference variables occurring in t.
func (t *Ty) RegionVids() []RegionVid {
	var out []RegionVid
	for _, r := range t.AllRegions() {
		if r.Kind == ReVar {
			out = append(out, r.Vid)
		}
	}
	return out
}

// HasRegions reports whether any region occurs in t.
func (t *Ty) HasRegions() bool {
	return len(t.AllRegions()) > 0
}

// SameShape reports whether a and b are the same type up to regions.
func SameShape(a, b *Ty) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Name != b.Name || a.Mutbl != b.Mutbl || a.Len != b.Len {
		return false
	}
	if len(a.Regions) != len(b.Regions) || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if !SameShape(a.Args[i], b.Args[i]) {
			return false
		}
	}
	return SameShape(a.Elem, b.Elem)
}

func (t *Ty) String() string {
	if t == nil {
		return "<nil-ty>"
	}

	switch t.Kind {
	case TyBool, TyInt, TyStr, TyParam, TyAlias:
		return t.Name
	case TyUnit:
		return "()"
	case TyNever:
		return "!"
	case TyRef:
		var b strings.Builder
		b.WriteByte('&')
		if t.Region.Kind != ReErased {
			b.WriteString(t.Region.String())
			b.WriteByte(' ')
		}
		if t.Mutbl == Mut {
			b.WriteString("mut ")
		}
		b.WriteString(t.Elem.String())
		return b.String()
	case TyArray:
		return fmt.Sprintf("[%s; %s]", t.Elem, t.Len)
	case TyTuple:
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = a.String()
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TyAdt:
		if len(t.Regions) == 0 && len(t.Args) == 0 {
			return t.Name
		}
		parts := make([]string, 0, len(t.Regions)+len(t.Args))
		for _, r := range t.Regions {
			parts = append(parts, r.String())
		}
		for _, a := range t.Args {
			parts = append(parts, a.String())
		}
		return t.Name + "<" + strings.Join(parts, ", ") + ">"
	default:
		return "<invalid>"
	}
}

// MarshalText prints t in Rust syntax.
func (t *Ty) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
