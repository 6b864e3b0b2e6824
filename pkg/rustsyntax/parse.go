// Package rustsyntax reads Rust function signatures, struct definitions and
// type expressions into the type model of package mir, using tree-sitter.
package rustsyntax

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

var (
	// ErrSyntax is returned for source that does not parse as Rust.
	ErrSyntax = errors.New("rust syntax error")
	// ErrUnsupported is returned for constructs outside the type model,
	// such as trait objects or function pointers.
	ErrUnsupported = errors.New("unsupported rust construct")
	// ErrNotFound is returned when a named item is absent.
	ErrNotFound = errors.New("item not found")
)

// parserPool is a pool of reusable tree-sitter parsers for Rust.
var parserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(rust.GetLanguage())
		return parser
	},
}

// FnDecl is a parsed function. Methods are named Type::method.
type FnDecl struct {
	Name       string
	Signature  *mir.Signature
	LineNumber int
}

// File holds the items of one Rust source file that the model can express.
type File struct {
	Functions []FnDecl
	Structs   []*mir.AdtDef
}

// Function returns the function called name.
func (f *File) Function(name string) (*FnDecl, error) {
	for i := range f.Functions {
		if f.Functions[i].Name == name {
			return &f.Functions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: fn %s", ErrNotFound, name)
}

// Option configures how type names resolve.
type Option func(*scope)

// WithAliases makes the given type names parse as aliases, to be resolved by
// mir.Context normalization, instead of ADTs.
func WithAliases(names ...string) Option {
	return func(s *scope) {
		for _, n := range names {
			s.aliases[n] = true
		}
	}
}

// WithTypeParams makes the given names parse as type parameters.
func WithTypeParams(names ...string) Option {
	return func(s *scope) {
		for _, n := range names {
			s.typeParams[n] = true
		}
	}
}

// ParseFile parses Rust source and collects its functions, impl and trait
// methods, and structs. Items using unsupported constructs are an error.
func ParseFile(src []byte, opts ...Option) (*File, error) {
	tree, err := parse(src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	s := newScope(src, opts)
	f := &File{}
	if err := s.collect(tree.RootNode(), f); err != nil {
		return nil, err
	}
	for _, def := range f.Structs {
		inferVariance(def, f.Structs)
	}
	return f, nil
}

// ParseFilePath reads and parses a Rust source file.
func ParseFilePath(path string, opts ...Option) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	f, err := ParseFile(content, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// ParseSignature parses a single function header such as
// "fn get<'a>(v: &'a Vec<T>) -> &'a T". A body or trailing semicolon is
// optional.
func ParseSignature(src string, opts ...Option) (*FnDecl, error) {
	src = strings.TrimSpace(src)
	if !strings.HasSuffix(src, "}") && !strings.HasSuffix(src, ";") {
		src += ";"
	}
	f, err := ParseFile([]byte(src), opts...)
	if err != nil {
		return nil, err
	}
	if len(f.Functions) != 1 {
		return nil, fmt.Errorf("%w: expected one fn, found %d", ErrNotFound, len(f.Functions))
	}
	return &f.Functions[0], nil
}

// ParseType parses a type expression such as "&'a mut [Option<T>; 4]".
func ParseType(src string, opts ...Option) (*mir.Ty, error) {
	content := []byte("type __T = " + src + ";")
	tree, err := parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.NamedChildCount() != 1 || root.NamedChild(0).Type() != "type_item" {
		return nil, fmt.Errorf("%w: %q is not a single type", ErrSyntax, src)
	}
	s := newScope(content, opts)
	return s.ty(root.NamedChild(0).ChildByFieldName("type"))
}

func parse(src []byte) (*sitter.Tree, error) {
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	tree := parser.Parse(nil, src)
	if tree == nil {
		return nil, fmt.Errorf("%w: parser returned no tree", ErrSyntax)
	}
	if root := tree.RootNode(); root.HasError() {
		err := syntaxError(root, src)
		tree.Close()
		return nil, err
	}
	return tree, nil
}

func syntaxError(root *sitter.Node, src []byte) error {
	var bad *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if bad != nil || n == nil {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			bad = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil && (c.HasError() || c.IsMissing()) {
				walk(c)
			}
		}
	}
	walk(root)
	if bad == nil {
		return ErrSyntax
	}
	p := bad.StartPoint()
	return fmt.Errorf("%w at %d:%d near %q", ErrSyntax, p.Row+1, p.Column+1, nodeText(bad, src))
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}
