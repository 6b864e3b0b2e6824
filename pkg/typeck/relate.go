package typeck

import (
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
)

// relater records the region constraints that make one type a subtype of
// another at a given span.
type relater struct {
	tcx       *mir.Context
	cs        *regions.ConstraintSet
	locations regions.Locations
	category  regions.ConstraintCategory
}

// subtype requires sub <: sup.
func (r *relater) subtype(sub, sup *mir.Ty) error {
	return r.relate(sub, sup, mir.Covariant)
}

// equate requires a == b.
func (r *relater) equate(a, b *mir.Ty) error {
	return r.relate(a, b, mir.Invariant)
}

func (r *relater) relate(a, b *mir.Ty, v mir.Variance) error {
	a, err := r.tcx.Normalize(a)
	if err != nil {
		return err
	}
	b, err = r.tcx.Normalize(b)
	if err != nil {
		return err
	}
	return r.tys(a, b, v)
}

func (r *relater) tys(a, b *mir.Ty, v mir.Variance) error {
	if v == mir.Bivariant {
		return nil
	}
	// ! coerces to anything.
	if a.Kind == mir.TyNever || b.Kind == mir.TyNever {
		return nil
	}
	if a.Kind != b.Kind {
		return mir.Contractf("cannot relate %s with %s", a, b)
	}

	switch a.Kind {
	case mir.TyBool, mir.TyInt, mir.TyStr, mir.TyUnit, mir.TyParam:
		if a.Name != b.Name {
			return mir.Contractf("cannot relate %s with %s", a, b)
		}
		return nil

	case mir.TyRef:
		if a.Mutbl != b.Mutbl {
			return mir.Contractf("cannot relate %s with %s", a, b)
		}
		// &'a T <: &'b T requires 'a: 'b.
		if err := r.regions(a.Region, b.Region, v); err != nil {
			return err
		}
		inner := mir.Covariant
		if a.Mutbl == mir.Mut {
			inner = mir.Invariant
		}
		return r.tys(a.Elem, b.Elem, v.Xform(inner))

	case mir.TyArray:
		if a.Len != b.Len {
			return mir.Contractf("cannot relate %s with %s", a, b)
		}
		return r.tys(a.Elem, b.Elem, v)

	case mir.TyTuple:
		if len(a.Args) != len(b.Args) {
			return mir.Contractf("cannot relate %s with %s", a, b)
		}
		for i := range a.Args {
			if err := r.tys(a.Args[i], b.Args[i], v); err != nil {
				return err
			}
		}
		return nil

	case mir.TyAdt:
		return r.adts(a, b, v)

	default:
		return mir.Contractf("cannot relate %s with %s", a, b)
	}
}

// adts relates the arguments of two applications of the same ADT using its
// declared variances. Undeclared ADTs are treated as invariant.
func (r *relater) adts(a, b *mir.Ty, v mir.Variance) error {
	if a.Name != b.Name || len(a.Regions) != len(b.Regions) || len(a.Args) != len(b.Args) {
		return mir.Contractf("cannot relate %s with %s", a, b)
	}
	def, known := r.tcx.Adt(a.Name)
	if known && (len(def.RegionParams) != len(a.Regions) || len(def.TypeParams) != len(a.Args)) {
		return mir.Contractf("%s applied to wrong number of arguments", a)
	}

	for i := range a.Regions {
		pv := mir.Invariant
		if known {
			pv = def.RegionParams[i].Variance
		}
		if err := r.regions(a.Regions[i], b.Regions[i], v.Xform(pv)); err != nil {
			return err
		}
	}
	for i := range a.Args {
		pv := mir.Invariant
		if known {
			pv = def.TypeParams[i].Variance
		}
		if err := r.tys(a.Args[i], b.Args[i], v.Xform(pv)); err != nil {
			return err
		}
	}
	return nil
}

// regions relates a region of the subtype with the matching region of the
// supertype.
func (r *relater) regions(a, b mir.Region, v mir.Variance) error {
	if a.Kind != mir.ReVar || b.Kind != mir.ReVar {
		return mir.Contractf("cannot relate regions %s and %s outside inference", a, b)
	}
	switch v {
	case mir.Covariant:
		r.outlives(a.Vid, b.Vid)
	case mir.Contravariant:
		r.outlives(b.Vid, a.Vid)
	case mir.Invariant:
		r.outlives(a.Vid, b.Vid)
		r.outlives(b.Vid, a.Vid)
	}
	return nil
}

func (r *relater) outlives(sup, sub mir.RegionVid) {
	r.cs.Push(regions.OutlivesConstraint{Sup: sup, Sub: sub, Locations: r.locations, Category: r.category})
}
