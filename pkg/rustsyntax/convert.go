package rustsyntax

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// scope resolves names while converting one item.
type scope struct {
	src        []byte
	typeParams map[string]bool
	aliases    map[string]bool

	// Inside impl and trait blocks.
	self     *mir.Ty
	selfName string
	outer    *mir.Signature
}

func newScope(src []byte, opts []Option) *scope {
	s := &scope{
		src:        src,
		typeParams: make(map[string]bool),
		aliases:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inner returns a copy of s for a nested item.
func (s *scope) inner() *scope {
	c := *s
	c.typeParams = make(map[string]bool, len(s.typeParams))
	for k, v := range s.typeParams {
		c.typeParams[k] = v
	}
	return &c
}

func (s *scope) text(n *sitter.Node) string { return nodeText(n, s.src) }

func (s *scope) unsupported(n *sitter.Node) error {
	p := n.StartPoint()
	return fmt.Errorf("%w: %s %q at %d:%d", ErrUnsupported, n.Type(), s.text(n), p.Row+1, p.Column+1)
}

func (s *scope) collect(node *sitter.Node, f *File) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_item", "function_signature_item":
			fn, err := s.function(child)
			if err != nil {
				return err
			}
			f.Functions = append(f.Functions, *fn)
		case "impl_item":
			if err := s.implBlock(child, f); err != nil {
				return err
			}
		case "trait_item":
			if err := s.traitBlock(child, f); err != nil {
				return err
			}
		case "struct_item":
			def, err := s.structItem(child)
			if err != nil {
				return err
			}
			f.Structs = append(f.Structs, def)
		case "mod_item":
			if body := child.ChildByFieldName("body"); body != nil {
				if err := s.collect(body, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *scope) function(node *sitter.Node) (*FnDecl, error) {
	name := s.text(node.ChildByFieldName("name"))
	inner := s.inner()
	sig := &mir.Signature{}
	if inner.outer != nil {
		sig.Generics = append(sig.Generics, inner.outer.Generics...)
		sig.TypeParams = append(sig.TypeParams, inner.outer.TypeParams...)
		sig.Where = append(sig.Where, inner.outer.Where...)
	}

	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		if err := inner.generics(tp, sig); err != nil {
			return nil, fmt.Errorf("fn %s: %w", name, err)
		}
	}
	if err := inner.whereClause(node, sig); err != nil {
		return nil, fmt.Errorf("fn %s: %w", name, err)
	}

	params := node.ChildByFieldName("parameters")
	for i := 0; params != nil && i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		var (
			ty  *mir.Ty
			err error
		)
		switch p.Type() {
		case "parameter":
			ty, err = inner.ty(p.ChildByFieldName("type"))
		case "self_parameter":
			ty, err = inner.selfParam(p)
		case "attribute_item", "line_comment", "block_comment":
			continue
		default:
			err = inner.unsupported(p)
		}
		if err != nil {
			return nil, fmt.Errorf("fn %s: %w", name, err)
		}
		sig.Inputs = append(sig.Inputs, ty)
	}

	if rt := node.ChildByFieldName("return_type"); rt != nil {
		out, err := inner.ty(rt)
		if err != nil {
			return nil, fmt.Errorf("fn %s: %w", name, err)
		}
		sig.Output = out
	}

	if s.selfName != "" {
		name = s.selfName + "::" + name
	}
	return &FnDecl{Name: name, Signature: sig, LineNumber: int(node.StartPoint().Row) + 1}, nil
}

func (s *scope) selfParam(node *sitter.Node) (*mir.Ty, error) {
	if s.self == nil {
		return nil, s.unsupported(node)
	}
	isRef := false
	region := mir.Erased()
	mutbl := mir.Not
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "&":
			isRef = true
		case "lifetime":
			region = s.region(child)
		case "mutable_specifier":
			mutbl = mir.Mut
		}
	}
	if !isRef {
		return s.self, nil
	}
	return mir.Ref(region, mutbl, s.self), nil
}

func (s *scope) implBlock(node *sitter.Node, f *File) error {
	inner := s.inner()
	outer := &mir.Signature{}
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		if err := inner.generics(tp, outer); err != nil {
			return err
		}
	}
	if err := inner.whereClause(node, outer); err != nil {
		return err
	}
	self, err := inner.ty(node.ChildByFieldName("type"))
	if err != nil {
		return err
	}
	inner.self = self
	inner.selfName = self.Name
	if inner.selfName == "" {
		inner.selfName = s.text(node.ChildByFieldName("type"))
	}
	inner.outer = outer
	return inner.methods(node.ChildByFieldName("body"), f)
}

func (s *scope) traitBlock(node *sitter.Node, f *File) error {
	inner := s.inner()
	outer := &mir.Signature{TypeParams: []string{"Self"}}
	inner.typeParams["Self"] = true
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		if err := inner.generics(tp, outer); err != nil {
			return err
		}
	}
	inner.self = mir.Param("Self")
	inner.selfName = s.text(node.ChildByFieldName("name"))
	inner.outer = outer
	return inner.methods(node.ChildByFieldName("body"), f)
}

func (s *scope) methods(body *sitter.Node, f *File) error {
	for i := 0; body != nil && i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "function_item" && child.Type() != "function_signature_item" {
			continue
		}
		fn, err := s.function(child)
		if err != nil {
			return err
		}
		f.Functions = append(f.Functions, *fn)
	}
	return nil
}

func (s *scope) structItem(node *sitter.Node) (*mir.AdtDef, error) {
	name := s.text(node.ChildByFieldName("name"))
	inner := s.inner()
	sig := &mir.Signature{}
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		if err := inner.generics(tp, sig); err != nil {
			return nil, fmt.Errorf("struct %s: %w", name, err)
		}
	}

	def := &mir.AdtDef{Name: name}
	for _, g := range sig.Generics {
		def.RegionParams = append(def.RegionParams, mir.GenericParam{Name: g.Name})
	}
	for _, t := range sig.TypeParams {
		def.TypeParams = append(def.TypeParams, mir.GenericParam{Name: t})
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return def, nil
	}
	pos := 0
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch {
		case child.Type() == "field_declaration":
			ty, err := inner.ty(child.ChildByFieldName("type"))
			if err != nil {
				return nil, fmt.Errorf("struct %s: %w", name, err)
			}
			def.Fields = append(def.Fields, mir.FieldDef{Name: s.text(child.ChildByFieldName("name")), Ty: ty})
		case body.Type() == "ordered_field_declaration_list" && child.IsNamed() && !isTrivia(child):
			ty, err := inner.ty(child)
			if err != nil {
				return nil, fmt.Errorf("struct %s: %w", name, err)
			}
			def.Fields = append(def.Fields, mir.FieldDef{Name: strconv.Itoa(pos), Ty: ty})
			pos++
		}
	}
	return def, nil
}

func isTrivia(n *sitter.Node) bool {
	switch n.Type() {
	case "attribute_item", "visibility_modifier", "line_comment", "block_comment":
		return true
	}
	return false
}

// generics reads <'a, 'b: 'a, T> into sig and brings type parameters into
// scope.
func (s *scope) generics(node *sitter.Node, sig *mir.Signature) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "lifetime":
			sig.Generics = append(sig.Generics, mir.LifetimeParam{Name: s.regionName(child)})
		case "lifetime_parameter":
			lp := mir.LifetimeParam{Name: s.regionName(child.ChildByFieldName("name"))}
			lp.Bounds = s.lifetimeBounds(child.ChildByFieldName("bounds"))
			sig.Generics = append(sig.Generics, lp)
		case "constrained_type_parameter":
			left := child.ChildByFieldName("left")
			if left != nil && left.Type() == "lifetime" {
				lp := mir.LifetimeParam{Name: s.regionName(left)}
				lp.Bounds = s.lifetimeBounds(child.ChildByFieldName("bounds"))
				sig.Generics = append(sig.Generics, lp)
				continue
			}
			s.addTypeParam(sig, s.text(left))
		case "type_identifier":
			s.addTypeParam(sig, s.text(child))
		case "type_parameter", "optional_type_parameter":
			n := child.ChildByFieldName("name")
			if n == nil {
				n = child.NamedChild(0)
			}
			s.addTypeParam(sig, s.text(n))
		case "const_parameter", "attribute_item":
		default:
			return s.unsupported(child)
		}
	}
	return nil
}

func (s *scope) addTypeParam(sig *mir.Signature, name string) {
	sig.TypeParams = append(sig.TypeParams, name)
	s.typeParams[name] = true
}

func (s *scope) lifetimeBounds(node *sitter.Node) []string {
	var out []string
	for i := 0; node != nil && i < int(node.NamedChildCount()); i++ {
		if b := node.NamedChild(i); b.Type() == "lifetime" {
			out = append(out, s.regionName(b))
		}
	}
	return out
}

// whereClause reads 'a: 'b predicates. Type predicates have no counterpart in
// the model and are skipped.
func (s *scope) whereClause(item *sitter.Node, sig *mir.Signature) error {
	var clause *sitter.Node
	for i := 0; i < int(item.NamedChildCount()); i++ {
		if c := item.NamedChild(i); c.Type() == "where_clause" {
			clause = c
			break
		}
	}
	for i := 0; clause != nil && i < int(clause.NamedChildCount()); i++ {
		pred := clause.NamedChild(i)
		if pred.Type() != "where_predicate" {
			continue
		}
		left := pred.ChildByFieldName("left")
		if left == nil || left.Type() != "lifetime" {
			continue
		}
		longer := s.regionName(left)
		for _, shorter := range s.lifetimeBounds(pred.ChildByFieldName("bounds")) {
			sig.Where = append(sig.Where, mir.OutlivesBound{Longer: longer, Shorter: shorter})
		}
	}
	return nil
}

func (s *scope) regionName(n *sitter.Node) string {
	return strings.TrimPrefix(s.text(n), "'")
}

func (s *scope) region(n *sitter.Node) mir.Region {
	switch name := s.regionName(n); name {
	case "static":
		return mir.Static()
	case "_":
		return mir.Erased()
	default:
		return mir.Named(name)
	}
}

func (s *scope) named(name string, regions []mir.Region, args []*mir.Ty) *mir.Ty {
	switch {
	case name == "Self" && s.self != nil && len(args) == 0:
		return s.self
	case s.typeParams[name] && len(args) == 0 && len(regions) == 0:
		return mir.Param(name)
	case s.aliases[name] && len(args) == 0 && len(regions) == 0:
		return mir.Alias(name)
	default:
		return mir.Adt(name, regions, args...)
	}
}

func (s *scope) ty(n *sitter.Node) (*mir.Ty, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing type", ErrSyntax)
	}
	switch n.Type() {
	case "primitive_type":
		switch name := s.text(n); name {
		case "bool":
			return mir.Bool(), nil
		case "str":
			return mir.Str(), nil
		default:
			return mir.Int(name), nil
		}
	case "unit_type":
		return mir.Unit(), nil
	case "never_type":
		return mir.Never(), nil
	case "type_identifier":
		return s.named(s.text(n), nil, nil), nil
	case "scoped_type_identifier":
		return s.named(s.text(n.ChildByFieldName("name")), nil, nil), nil
	case "generic_type":
		return s.genericType(n)
	case "reference_type":
		region := mir.Erased()
		mutbl := mir.Not
		for i := 0; i < int(n.ChildCount()); i++ {
			switch child := n.Child(i); child.Type() {
			case "lifetime":
				region = s.region(child)
			case "mutable_specifier":
				mutbl = mir.Mut
			}
		}
		elem, err := s.ty(n.ChildByFieldName("type"))
		if err != nil {
			return nil, err
		}
		return mir.Ref(region, mutbl, elem), nil
	case "tuple_type":
		var elems []*mir.Ty
		for i := 0; i < int(n.NamedChildCount()); i++ {
			e, err := s.ty(n.NamedChild(i))
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return mir.Tuple(elems...), nil
	case "array_type":
		elem, err := s.ty(n.ChildByFieldName("element"))
		if err != nil {
			return nil, err
		}
		return mir.Array(elem, s.text(n.ChildByFieldName("length"))), nil
	default:
		return nil, s.unsupported(n)
	}
}

func (s *scope) genericType(n *sitter.Node) (*mir.Ty, error) {
	base := n.ChildByFieldName("type")
	name := s.text(base)
	if base != nil && base.Type() == "scoped_type_identifier" {
		name = s.text(base.ChildByFieldName("name"))
	}

	var (
		regions []mir.Region
		args    []*mir.Ty
	)
	targs := n.ChildByFieldName("type_arguments")
	for i := 0; targs != nil && i < int(targs.NamedChildCount()); i++ {
		a := targs.NamedChild(i)
		if a.Type() == "lifetime" {
			regions = append(regions, s.region(a))
			continue
		}
		t, err := s.ty(a)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return s.named(name, regions, args), nil
}
