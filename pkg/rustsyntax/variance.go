package rustsyntax

import "github.com/l3aro/go-region-facts/pkg/mir"

// inferVariance sets the variance of the generic parameters of def from the
// positions they occur in. A parameter behind &mut or inside a struct not
// defined in the same file is invariant; an unused one is bivariant. Structs
// are visited in order, so a field may only rely on structs defined earlier.
func inferVariance(def *mir.AdtDef, known []*mir.AdtDef) {
	byName := make(map[string]*mir.AdtDef, len(known))
	for _, k := range known {
		if k == def {
			break
		}
		byName[k.Name] = k
	}

	for i := range def.RegionParams {
		v := mir.Bivariant
		for _, f := range def.Fields {
			v = join(v, regionVariance(f.Ty, def.RegionParams[i].Name, mir.Covariant, byName))
		}
		def.RegionParams[i].Variance = v
	}
	for i := range def.TypeParams {
		v := mir.Bivariant
		for _, f := range def.Fields {
			v = join(v, typeVariance(f.Ty, def.TypeParams[i].Name, mir.Covariant, byName))
		}
		def.TypeParams[i].Variance = v
	}
}

func join(a, b mir.Variance) mir.Variance {
	switch {
	case a == mir.Bivariant:
		return b
	case b == mir.Bivariant, a == b:
		return a
	default:
		return mir.Invariant
	}
}

func regionVariance(t *mir.Ty, name string, v mir.Variance, known map[string]*mir.AdtDef) mir.Variance {
	if t == nil {
		return mir.Bivariant
	}
	out := mir.Bivariant
	switch t.Kind {
	case mir.TyRef:
		if t.Region.Kind == mir.ReNamed && t.Region.Name == name {
			out = join(out, v)
		}
		inner := v
		if t.Mutbl == mir.Mut {
			inner = v.Xform(mir.Invariant)
		}
		out = join(out, regionVariance(t.Elem, name, inner, known))
	case mir.TyAdt:
		def := known[t.Name]
		for i, r := range t.Regions {
			if r.Kind != mir.ReNamed || r.Name != name {
				continue
			}
			pv := mir.Invariant
			if def != nil && i < len(def.RegionParams) {
				pv = def.RegionParams[i].Variance
			}
			out = join(out, v.Xform(pv))
		}
		for i, a := range t.Args {
			pv := mir.Invariant
			if def != nil && i < len(def.TypeParams) {
				pv = def.TypeParams[i].Variance
			}
			out = join(out, regionVariance(a, name, v.Xform(pv), known))
		}
	case mir.TyTuple:
		for _, a := range t.Args {
			out = join(out, regionVariance(a, name, v, known))
		}
	case mir.TyArray:
		out = join(out, regionVariance(t.Elem, name, v, known))
	}
	return out
}

func typeVariance(t *mir.Ty, name string, v mir.Variance, known map[string]*mir.AdtDef) mir.Variance {
	if t == nil {
		return mir.Bivariant
	}
	switch t.Kind {
	case mir.TyParam:
		if t.Name == name {
			return v
		}
		return mir.Bivariant
	case mir.TyRef:
		inner := v
		if t.Mutbl == mir.Mut {
			inner = v.Xform(mir.Invariant)
		}
		return typeVariance(t.Elem, name, inner, known)
	case mir.TyAdt:
		def := known[t.Name]
		out := mir.Bivariant
		for i, a := range t.Args {
			pv := mir.Invariant
			if def != nil && i < len(def.TypeParams) {
				pv = def.TypeParams[i].Variance
			}
			out = join(out, typeVariance(a, name, v.Xform(pv), known))
		}
		return out
	case mir.TyTuple:
		out := mir.Bivariant
		for _, a := range t.Args {
			out = join(out, typeVariance(a, name, v, known))
		}
		return out
	case mir.TyArray:
		return typeVariance(t.Elem, name, v, known)
	}
	return mir.Bivariant
}
