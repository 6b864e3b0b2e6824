package rustsyntax

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		src  string
		opts []Option
		want string
		kind mir.TyKind
	}{
		{src: "i32", want: "i32", kind: mir.TyInt},
		{src: "bool", want: "bool", kind: mir.TyBool},
		{src: "&str", want: "&str", kind: mir.TyRef},
		{src: "()", want: "()", kind: mir.TyUnit},
		{src: "&'a mut u8", want: "&'a mut u8", kind: mir.TyRef},
		{src: "&'static i32", want: "&'static i32", kind: mir.TyRef},
		{src: "Vec<T>", opts: []Option{WithTypeParams("T")}, want: "Vec<T>", kind: mir.TyAdt},
		{src: "Cell<'a, u8>", want: "Cell<'a, u8>", kind: mir.TyAdt},
		{src: "std::string::String", want: "String", kind: mir.TyAdt},
		{src: "(i32, &'a bool)", want: "(i32, &'a bool)", kind: mir.TyTuple},
		{src: "[u8; 4]", want: "[u8; 4]", kind: mir.TyArray},
		{src: "Item", opts: []Option{WithAliases("Item")}, want: "Item", kind: mir.TyAlias},
		{src: "T", opts: []Option{WithTypeParams("T")}, want: "T", kind: mir.TyParam},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ty, err := ParseType(tt.src, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ty.String())
			assert.Equal(t, tt.kind, ty.Kind)
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	_, err := ParseType("&'a (")
	assert.True(t, errors.Is(err, ErrSyntax), "got %v", err)

	_, err = ParseType("fn(i32) -> i32")
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)

	_, err = ParseType("&dyn Fn()")
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestParseSignature(t *testing.T) {
	fn, err := ParseSignature("fn id<'a>(x: &'a i32) -> &'a i32")
	require.NoError(t, err)

	assert.Equal(t, "id", fn.Name)
	assert.Equal(t, []mir.LifetimeParam{{Name: "a"}}, fn.Signature.Generics)
	require.Len(t, fn.Signature.Inputs, 1)
	assert.Equal(t, "&'a i32", fn.Signature.Inputs[0].String())
	assert.Equal(t, "&'a i32", fn.Signature.Output.String())
}

func TestParseSignatureBounds(t *testing.T) {
	fn, err := ParseSignature(`fn pick<'a, 'b: 'a, T>(x: &'a T, y: &'b mut Vec<T>) -> &'a T where 'a: 'b { x }`)
	require.NoError(t, err)

	sig := fn.Signature
	require.Len(t, sig.Generics, 2)
	assert.Equal(t, "b", sig.Generics[1].Name)
	assert.Equal(t, []string{"a"}, sig.Generics[1].Bounds)
	assert.Equal(t, []string{"T"}, sig.TypeParams)
	assert.Equal(t, []mir.OutlivesBound{{Longer: "b", Shorter: "a"}, {Longer: "a", Shorter: "b"}}, sig.Bounds())

	assert.Equal(t, mir.TyParam, sig.Inputs[0].Elem.Kind)
	assert.Equal(t, "&'b mut Vec<T>", sig.Inputs[1].String())
}

func TestParseSignatureNoOutput(t *testing.T) {
	fn, err := ParseSignature("fn push(v: &mut Vec<u8>, x: u8);")
	require.NoError(t, err)
	assert.Nil(t, fn.Signature.Output)
	assert.Empty(t, fn.Signature.Generics)
	assert.Equal(t, mir.Erased(), fn.Signature.Inputs[0].Region)
}

func TestParseSignatureRejectsTwoFunctions(t *testing.T) {
	_, err := ParseSignature("fn a() {} fn b() {}")
	assert.True(t, errors.Is(err, ErrNotFound))
}

const sample = `
struct Wrapper<'a, T> {
    inner: &'a T,
    len: usize,
}

struct Slot<'a>(&'a mut u8);

struct Pair<'a> {
    w: Wrapper<'a, u8>,
}

impl<'a, T> Wrapper<'a, T> {
    fn get(&self) -> &'a T {
        self.inner
    }

    fn set(&mut self, v: &'a T) {
        self.inner = v;
    }
}

trait Source {
    fn next<'s>(&'s mut self) -> Option<&'s u8>;
}

mod nested {
    fn helper(x: &'static str) -> usize { 0 }
}
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sample))
	require.NoError(t, err)

	names := make([]string, len(f.Functions))
	for i, fn := range f.Functions {
		names[i] = fn.Name
	}
	assert.Equal(t, []string{"Wrapper::get", "Wrapper::set", "Source::next", "helper"}, names)

	get, err := f.Function("Wrapper::get")
	require.NoError(t, err)
	assert.Equal(t, []mir.LifetimeParam{{Name: "a"}}, get.Signature.Generics)
	assert.Equal(t, []string{"T"}, get.Signature.TypeParams)
	assert.Equal(t, "&Wrapper<'a, T>", get.Signature.Inputs[0].String())
	assert.Equal(t, 14, get.LineNumber)

	set, err := f.Function("Wrapper::set")
	require.NoError(t, err)
	assert.Equal(t, "&mut Wrapper<'a, T>", set.Signature.Inputs[0].String())

	next, err := f.Function("Source::next")
	require.NoError(t, err)
	assert.Equal(t, "&'s mut Self", next.Signature.Inputs[0].String())
	assert.Equal(t, "Option<&'s u8>", next.Signature.Output.String())

	_, err = f.Function("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestParseFileStructVariance(t *testing.T) {
	f, err := ParseFile([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Structs, 3)

	wrapper := f.Structs[0]
	assert.Equal(t, "Wrapper", wrapper.Name)
	require.Len(t, wrapper.Fields, 2)
	assert.Equal(t, "inner", wrapper.Fields[0].Name)
	assert.Equal(t, "&'a T", wrapper.Fields[0].Ty.String())
	assert.Equal(t, mir.Covariant, wrapper.RegionParams[0].Variance)
	assert.Equal(t, mir.Covariant, wrapper.TypeParams[0].Variance)

	slot := f.Structs[1]
	require.Len(t, slot.Fields, 1)
	assert.Equal(t, "0", slot.Fields[0].Name)
	assert.Equal(t, mir.Covariant, slot.RegionParams[0].Variance, "the region of &'a mut is covariant")

	pair := f.Structs[2]
	assert.Equal(t, mir.Covariant, pair.RegionParams[0].Variance, "inherits Wrapper's variance")
}

func TestInferVariance(t *testing.T) {
	tests := []struct {
		name  string
		field *mir.Ty
		want  mir.Variance
	}{
		{"shared ref", mir.Ref(mir.Named("a"), mir.Not, mir.Int("u8")), mir.Covariant},
		{"behind mut", mir.Ref(mir.Named("b"), mir.Mut, mir.Ref(mir.Named("a"), mir.Not, mir.Int("u8"))), mir.Invariant},
		{"unknown adt", mir.Adt("Cell", []mir.Region{mir.Named("a")}), mir.Invariant},
		{"unused", mir.Int("u8"), mir.Bivariant},
		{"in tuple", mir.Tuple(mir.Int("u8"), mir.Ref(mir.Named("a"), mir.Not, mir.Bool())), mir.Covariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &mir.AdtDef{
				Name:         "S",
				RegionParams: []mir.GenericParam{{Name: "a"}},
				Fields:       []mir.FieldDef{{Name: "f", Ty: tt.field}},
			}
			inferVariance(def, []*mir.AdtDef{def})
			assert.Equal(t, tt.want, def.RegionParams[0].Variance)
		})
	}
}

func TestParseFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn f<'a>(x: &'a u8) -> &'a u8 { x }\n"), 0644))

	f, err := ParseFilePath(path)
	require.NoError(t, err)
	require.Len(t, f.Functions, 1)

	_, err = ParseFilePath(filepath.Join(t.TempDir(), "missing.rs"))
	assert.Error(t, err)
}

func TestParseFileSyntaxError(t *testing.T) {
	_, err := ParseFile([]byte("fn broken<'a>(x: &'a u8 -> u8 {}"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.Contains(t, err.Error(), "1:")
}
