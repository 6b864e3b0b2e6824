package mir

import "strings"

// LifetimeParam is a declared lifetime parameter with its bounds: <'b: 'a>
// declares 'b with bound 'a.
type LifetimeParam struct {
	Name   string
	Bounds []string
}

// OutlivesBound is an explicit 'longer: 'shorter predicate.
type OutlivesBound struct {
	Longer  string
	Shorter string
}

// CaptureKind says how a closure captures an upvar.
type CaptureKind uint8

const (
	ByValue CaptureKind = iota
	ByRef
)

func (c CaptureKind) String() string {
	if c == ByRef {
		return "by-ref"
	}
	return "by-value"
}

// Upvar is one captured variable of a closure.
type Upvar struct {
	Name    string
	Ty      *Ty
	Capture CaptureKind
	Place   Place // captured place in the enclosing body
}

// Signature is the declared interface of a procedure.
type Signature struct {
	Generics   []LifetimeParam
	TypeParams []string
	Where      []OutlivesBound
	Inputs     []*Ty
	Output     *Ty
	Upvars     []Upvar
}

// Bounds returns every declared outlives predicate, inline bounds first.
func (s *Signature) Bounds() []OutlivesBound {
	var out []OutlivesBound
	for _, g := range s.Generics {
		for _, b := range g.Bounds {
			out = append(out, OutlivesBound{Longer: g.Name, Shorter: strings.TrimPrefix(b, "'")})
		}
	}
	return append(out, s.Where...)
}

// HasLifetime reports whether name is a declared lifetime parameter.
func (s *Signature) HasLifetime(name string) bool {
	for _, g := range s.Generics {
		if g.Name == name {
			return true
		}
	}
	return false
}

// Variance describes how a generic parameter relates subtyping of the
// enclosing type to subtyping of the argument.
type Variance uint8

const (
	Covariant Variance = iota
	Invariant
	Contravariant
	Bivariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "+"
	case Invariant:
		return "o"
	case Contravariant:
		return "-"
	default:
		return "*"
	}
}

// Xform composes an outer variance with the variance of a position inside it.
func (v Variance) Xform(inner Variance) Variance {
	switch v {
	case Covariant:
		return inner
	case Contravariant:
		switch inner {
		case Covariant:
			return Contravariant
		case Contravariant:
			return Covariant
		default:
			return inner
		}
	case Invariant:
		return Invariant
	default:
		return Bivariant
	}
}

// GenericParam is a region or type parameter of an ADT.
type GenericParam struct {
	Name     string
	Variance Variance
}

// FieldDef is a field of an ADT, typed in terms of the ADT's parameters.
type FieldDef struct {
	Name string
	Ty   *Ty
}

// AdtDef defines a struct-like user type.
type AdtDef struct {
	Name         string
	RegionParams []GenericParam
	TypeParams   []GenericParam
	Fields       []FieldDef
	NeedsDrop    bool
}

// Procedure is one analysable item registered in the Context.
type Procedure struct {
	ID        string
	Signature *Signature
	Body      *Body
	// Tainted is set when type-checking of the procedure reported errors.
	Tainted bool
}
