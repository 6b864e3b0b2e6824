package mir

import (
	"fmt"
	"strconv"
	"strings"
)

// ProjectionKind enumerates place projection steps.
type ProjectionKind uint8

const (
	ProjDeref ProjectionKind = iota
	ProjField
	ProjIndex
)

// ProjectionElem is one step from a base place to a sub-place.
type ProjectionElem struct {
	Kind  ProjectionKind
	Field int   // for ProjField
	Index Local // for ProjIndex
}

// Place is a storage location: a local followed by projections.
type Place struct {
	Local      Local
	Projection []ProjectionElem
}

// PlaceOf returns the place consisting of the bare local l.
func PlaceOf(l Local) Place { return Place{Local: l} }

// Deref returns *p.
func (p Place) Deref() Place { return p.project(ProjectionElem{Kind: ProjDeref}) }

// Field returns p.i.
func (p Place) Field(i int) Place { return p.project(ProjectionElem{Kind: ProjField, Field: i}) }

// Index returns p[idx].
func (p Place) Index(idx Local) Place { return p.project(ProjectionElem{Kind: ProjIndex, Index: idx}) }

func (p Place) project(e ProjectionElem) Place {
	proj := make([]ProjectionElem, len(p.Projection), len(p.Projection)+1)
	copy(proj, p.Projection)
	return Place{Local: p.Local, Projection: append(proj, e)}
}

// Clone returns a copy of p not sharing the projection slice.
func (p Place) Clone() Place {
	if len(p.Projection) == 0 {
		return Place{Local: p.Local}
	}
	proj := make([]ProjectionElem, len(p.Projection))
	copy(proj, p.Projection)
	return Place{Local: p.Local, Projection: proj}
}

// IsLocal reports whether p has no projections.
func (p Place) IsLocal() bool { return len(p.Projection) == 0 }

// Prefix returns the place made of the first n projections of p.
func (p Place) Prefix(n int) Place {
	return Place{Local: p.Local, Projection: p.Projection[:n:n]}
}

// HasDeref reports whether any projection of p is a dereference.
func (p Place) HasDeref() bool {
	for _, e := range p.Projection {
		if e.Kind == ProjDeref {
			return true
		}
	}
	return false
}

// Equal reports structural equality.
func (p Place) Equal(o Place) bool {
	if p.Local != o.Local || len(p.Projection) != len(o.Projection) {
		return false
	}
	for i := range p.Projection {
		if p.Projection[i] != o.Projection[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether p is o or an ancestor of o.
func (p Place) IsPrefixOf(o Place) bool {
	if p.Local != o.Local || len(p.Projection) > len(o.Projection) {
		return false
	}
	for i := range p.Projection {
		if p.Projection[i] != o.Projection[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether p and o may denote intersecting storage: one is a
// prefix of the other, or they differ only at an index projection.
func (p Place) Overlaps(o Place) bool {
	if p.Local != o.Local {
		return false
	}
	n := len(p.Projection)
	if len(o.Projection) < n {
		n = len(o.Projection)
	}
	for i := 0; i < n; i++ {
		a, b := p.Projection[i], o.Projection[i]
		if a == b {
			continue
		}
		if a.Kind == ProjIndex && b.Kind == ProjIndex {
			continue
		}
		return false
	}
	return true
}

func (p Place) String() string {
	s := p.Local.String()
	for _, e := range p.Projection {
		switch e.Kind {
		case ProjDeref:
			s = "(*" + s + ")"
		case ProjField:
			s = s + "." + strconv.Itoa(e.Field)
		case ProjIndex:
			s = s + "[" + e.Index.String() + "]"
		}
	}
	return s
}

// MarshalText prints the place.
func (p Place) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses the place syntax produced by String.
func (p *Place) UnmarshalText(text []byte) error {
	parsed, err := ParsePlace(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePlace parses places such as _1, *_2, (*_2).0, _1.0.1 and _3[_4].
// A leading * applies to the whole remaining place.
func ParsePlace(s string) (Place, error) {
	ps := &placeScanner{src: strings.TrimSpace(s)}
	p, err := ps.place()
	if err != nil {
		return Place{}, fmt.Errorf("parse place %q: %w", s, err)
	}
	if ps.pos != len(ps.src) {
		return Place{}, fmt.Errorf("parse place %q: trailing input at %d", s, ps.pos)
	}
	return p, nil
}

type placeScanner struct {
	src string
	pos int
}

func (ps *placeScanner) peek() byte {
	if ps.pos >= len(ps.src) {
		return 0
	}
	return ps.src[ps.pos]
}

func (ps *placeScanner) place() (Place, error) {
	if ps.peek() == '*' {
		ps.pos++
		inner, err := ps.place()
		if err != nil {
			return Place{}, err
		}
		return inner.Deref(), nil
	}

	var base Place
	switch c := ps.peek(); {
	case c == '(':
		ps.pos++
		inner, err := ps.place()
		if err != nil {
			return Place{}, err
		}
		if ps.peek() != ')' {
			return Place{}, fmt.Errorf("expected ')' at %d", ps.pos)
		}
		ps.pos++
		base = inner
	case c == '_':
		l, err := ps.local()
		if err != nil {
			return Place{}, err
		}
		base = PlaceOf(l)
	default:
		return Place{}, fmt.Errorf("unexpected %q at %d", c, ps.pos)
	}

	return ps.suffixes(base)
}

func (ps *placeScanner) suffixes(base Place) (Place, error) {
	for {
		switch ps.peek() {
		case '.':
			ps.pos++
			n, err := ps.number()
			if err != nil {
				return Place{}, err
			}
			base = base.Field(n)
		case '[':
			ps.pos++
			l, err := ps.local()
			if err != nil {
				return Place{}, err
			}
			if ps.peek() != ']' {
				return Place{}, fmt.Errorf("expected ']' at %d", ps.pos)
			}
			ps.pos++
			base = base.Index(l)
		default:
			return base, nil
		}
	}
}

func (ps *placeScanner) local() (Local, error) {
	if ps.peek() != '_' {
		return 0, fmt.Errorf("expected local at %d", ps.pos)
	}
	ps.pos++
	n, err := ps.number()
	if err != nil {
		return 0, err
	}
	return Local(n), nil
}

func (ps *placeScanner) number() (int, error) {
	start := ps.pos
	for ps.pos < len(ps.src) && ps.src[ps.pos] >= '0' && ps.src[ps.pos] <= '9' {
		ps.pos++
	}
	if start == ps.pos {
		return 0, fmt.Errorf("expected number at %d", start)
	}
	return strconv.Atoi(ps.src[start:ps.pos])
}
