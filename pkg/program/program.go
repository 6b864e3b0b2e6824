// Package program loads YAML descriptions of analysable programs (ADTs,
// aliases, procedure signatures and bodies) into a mir.Context.
package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/rustsyntax"
)

// ErrInvalidProgram is returned for malformed program files.
var ErrInvalidProgram = errors.New("invalid program")

// File is the YAML layout of a program.
type File struct {
	// Rust holds struct definitions and fn signatures in Rust syntax.
	Rust       string            `yaml:"rust"`
	Aliases    map[string]string `yaml:"aliases"`
	Adts       []AdtSpec         `yaml:"adts"`
	Procedures []ProcedureSpec   `yaml:"procedures"`
}

type AdtSpec struct {
	Name         string      `yaml:"name"`
	RegionParams []ParamSpec `yaml:"region_params"`
	TypeParams   []ParamSpec `yaml:"type_params"`
	Fields       []FieldSpec `yaml:"fields"`
	NeedsDrop    bool        `yaml:"needs_drop"`
}

// ParamSpec is a generic parameter. Variance is one of covariant (default),
// contravariant, invariant, bivariant or their short forms + - o *.
type ParamSpec struct {
	Name     string `yaml:"name"`
	Variance string `yaml:"variance"`
}

type FieldSpec struct {
	Name string `yaml:"name"`
	Ty   string `yaml:"ty"`
}

// ProcedureSpec describes one procedure. The signature comes from Signature
// (a Rust fn header) or from the fn called Fn in the Rust section; a
// procedure with neither has an empty signature. A procedure without blocks
// has no body.
type ProcedureSpec struct {
	ID        string      `yaml:"id"`
	Signature string      `yaml:"signature"`
	Fn        string      `yaml:"fn"`
	Kind      string      `yaml:"kind"`
	Tainted   bool        `yaml:"tainted"`
	Upvars    []UpvarSpec `yaml:"upvars"`
	BodySpec  `yaml:",inline"`
	Promoted  []BodySpec `yaml:"promoted"`
}

type BodySpec struct {
	Locals []string          `yaml:"locals"`
	Names  map[uint32]string `yaml:"names"`
	Blocks []BlockSpec       `yaml:"blocks"`
}

type BlockSpec struct {
	Statements []string `yaml:"statements"`
	Terminator string   `yaml:"terminator"`
}

type UpvarSpec struct {
	Name    string `yaml:"name"`
	Ty      string `yaml:"ty"`
	Capture string `yaml:"capture"`
	Place   string `yaml:"place"`
}

// Program is a loaded program.
type Program struct {
	Context *mir.Context
	// IDs lists the procedures in declaration order.
	IDs []string
}

// Load decodes a program from r. Unknown keys are rejected.
func Load(r io.Reader) (*Program, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse: %w", ErrInvalidProgram, err)
	}
	return f.Build()
}

// Parse decodes a program from YAML bytes.
func Parse(data []byte) (*Program, error) {
	return Load(bytes.NewReader(data))
}

// LoadFile decodes the program at path.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program: %w", err)
	}
	defer f.Close()

	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Build converts f into a context. Bodies are checked when they are enriched.
func (f *File) Build() (*Program, error) {
	aliasNames := make([]string, 0, len(f.Aliases))
	for name := range f.Aliases {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)
	typeOpts := []rustsyntax.Option{rustsyntax.WithAliases(aliasNames...)}

	b := mir.NewContextBuilder()
	for _, name := range aliasNames {
		ty, err := rustsyntax.ParseType(f.Aliases[name], typeOpts...)
		if err != nil {
			return nil, invalid("alias %s: %w", name, err)
		}
		b.AddAlias(name, ty)
	}

	var rust *rustsyntax.File
	if f.Rust != "" {
		var err error
		if rust, err = rustsyntax.ParseFile([]byte(f.Rust), typeOpts...); err != nil {
			return nil, invalid("rust: %w", err)
		}
		for _, def := range rust.Structs {
			b.AddAdt(def)
		}
	}

	for _, spec := range f.Adts {
		def, err := spec.build(typeOpts)
		if err != nil {
			return nil, invalid("adt %s: %w", spec.Name, err)
		}
		b.AddAdt(def)
	}

	p := &Program{}
	for i, spec := range f.Procedures {
		proc, err := spec.build(rust, typeOpts)
		if err != nil {
			name := spec.ID
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, invalid("procedure %s: %w", name, err)
		}
		b.AddProcedure(proc)
		p.IDs = append(p.IDs, proc.ID)
	}

	tcx, err := b.Build()
	if err != nil {
		return nil, invalid("%w", err)
	}
	p.Context = tcx
	return p, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", ErrInvalidProgram, fmt.Errorf(format, args...))
}

func (s AdtSpec) build(typeOpts []rustsyntax.Option) (*mir.AdtDef, error) {
	def := &mir.AdtDef{Name: s.Name, NeedsDrop: s.NeedsDrop}
	var params []string
	for _, ps := range s.RegionParams {
		v, err := parseVariance(ps.Variance)
		if err != nil {
			return nil, err
		}
		def.RegionParams = append(def.RegionParams, mir.GenericParam{Name: ps.Name, Variance: v})
	}
	for _, ps := range s.TypeParams {
		v, err := parseVariance(ps.Variance)
		if err != nil {
			return nil, err
		}
		def.TypeParams = append(def.TypeParams, mir.GenericParam{Name: ps.Name, Variance: v})
		params = append(params, ps.Name)
	}
	opts := append(append([]rustsyntax.Option(nil), typeOpts...), rustsyntax.WithTypeParams(params...))
	for _, fs := range s.Fields {
		ty, err := rustsyntax.ParseType(fs.Ty, opts...)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		def.Fields = append(def.Fields, mir.FieldDef{Name: fs.Name, Ty: ty})
	}
	return def, nil
}

func parseVariance(s string) (mir.Variance, error) {
	switch s {
	case "", "+", "covariant":
		return mir.Covariant, nil
	case "-", "contravariant":
		return mir.Contravariant, nil
	case "o", "invariant":
		return mir.Invariant, nil
	case "*", "bivariant":
		return mir.Bivariant, nil
	default:
		return 0, fmt.Errorf("unknown variance %q", s)
	}
}

func parseBodyKind(s string) (mir.BodyKind, error) {
	switch s {
	case "", "fn":
		return mir.BodyFn, nil
	case "closure":
		return mir.BodyClosure, nil
	case "const":
		return mir.BodyConst, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", s)
	}
}

func (s ProcedureSpec) build(rust *rustsyntax.File, typeOpts []rustsyntax.Option) (*mir.Procedure, error) {
	proc := &mir.Procedure{ID: s.ID, Tainted: s.Tainted}

	switch {
	case s.Signature != "" && s.Fn != "":
		return nil, errors.New("signature and fn are exclusive")
	case s.Signature != "":
		decl, err := rustsyntax.ParseSignature(s.Signature, typeOpts...)
		if err != nil {
			return nil, err
		}
		proc.Signature = decl.Signature
		if proc.ID == "" {
			proc.ID = decl.Name
		}
	case s.Fn != "":
		if rust == nil {
			return nil, fmt.Errorf("fn %s given without a rust section", s.Fn)
		}
		decl, err := rust.Function(s.Fn)
		if err != nil {
			return nil, err
		}
		proc.Signature = decl.Signature
		if proc.ID == "" {
			proc.ID = decl.Name
		}
	default:
		proc.Signature = &mir.Signature{}
	}
	if proc.ID == "" {
		return nil, errors.New("missing id")
	}

	p := &textParser{typeOpts: append(append([]rustsyntax.Option(nil), typeOpts...), rustsyntax.WithTypeParams(proc.Signature.TypeParams...))}

	for _, us := range s.Upvars {
		up, err := us.build(p)
		if err != nil {
			return nil, fmt.Errorf("upvar %s: %w", us.Name, err)
		}
		proc.Signature.Upvars = append(proc.Signature.Upvars, up)
	}

	if len(s.Blocks) == 0 {
		return proc, nil
	}

	kind, err := parseBodyKind(s.Kind)
	if err != nil {
		return nil, err
	}
	body, err := s.BodySpec.build(p)
	if err != nil {
		return nil, err
	}
	body.Kind = kind
	if kind != mir.BodyConst {
		body.ArgCount = len(proc.Signature.Inputs)
	}
	for i, ps := range s.Promoted {
		promoted, err := ps.build(p)
		if err != nil {
			return nil, fmt.Errorf("promoted %d: %w", i, err)
		}
		promoted.Kind = mir.BodyConst
		body.Promoted = append(body.Promoted, promoted)
	}
	proc.Body = body
	return proc, nil
}

func (s UpvarSpec) build(p *textParser) (mir.Upvar, error) {
	up := mir.Upvar{Name: s.Name}
	ty, err := p.ty(s.Ty)
	if err != nil {
		return up, err
	}
	up.Ty = ty
	switch s.Capture {
	case "", "by-value":
		up.Capture = mir.ByValue
	case "by-ref":
		up.Capture = mir.ByRef
	default:
		return up, fmt.Errorf("unknown capture %q", s.Capture)
	}
	if s.Place != "" {
		if up.Place, err = mir.ParsePlace(s.Place); err != nil {
			return up, err
		}
	}
	return up, nil
}

func (s BodySpec) build(p *textParser) (*mir.Body, error) {
	body := &mir.Body{}
	for i, text := range s.Locals {
		ty, err := p.ty(text)
		if err != nil {
			return nil, fmt.Errorf("local _%d: %w", i, err)
		}
		body.Locals = append(body.Locals, mir.LocalDecl{Ty: ty})
	}

	locals := make([]uint32, 0, len(s.Names))
	for l := range s.Names {
		locals = append(locals, l)
	}
	sort.Slice(locals, func(i, j int) bool { return locals[i] < locals[j] })
	for _, l := range locals {
		body.VarDebugInfo = append(body.VarDebugInfo, mir.VarDebugInfo{Name: s.Names[l], Local: mir.Local(l)})
	}

	for i, bs := range s.Blocks {
		var block mir.BlockData
		for j, text := range bs.Statements {
			stmt, err := p.statement(text)
			if err != nil {
				return nil, fmt.Errorf("bb%d[%d]: %w", i, j, err)
			}
			block.Statements = append(block.Statements, stmt)
		}
		term, err := p.terminator(bs.Terminator)
		if err != nil {
			return nil, fmt.Errorf("bb%d terminator: %w", i, err)
		}
		block.Terminator = term
		body.Blocks = append(body.Blocks, block)
	}
	return body, nil
}
