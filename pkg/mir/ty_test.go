package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTyRegionsOrderMatchesFold(t *testing.T) {
	// &'a Pair<'b, &'c i32, (&'d u8,)>
	ty := Ref(Named("a"), Not, Adt("Pair", []Region{Named("b")},
		Ref(Named("c"), Not, Int("i32")),
		Tuple(Ref(Named("d"), Mut, Int("u8")))))

	var names []string
	for _, r := range ty.AllRegions() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)

	var folded []string
	ty.FoldRegions(func(r Region) Region {
		folded = append(folded, r.Name)
		return r
	})
	assert.Equal(t, names, folded)
}

func TestTyString(t *testing.T) {
	tests := []struct {
		ty   *Ty
		want string
	}{
		{Ref(Named("a"), Not, Int("i32")), "&'a i32"},
		{Ref(Erased(), Mut, Int("i32")), "&mut i32"},
		{Ref(Var(3), Mut, Str()), "&'?3 mut str"},
		{Adt("Vec", nil, Int("u8")), "Vec<u8>"},
		{Tuple(Int("i32")), "(i32,)"},
		{Tuple(), "()"},
		{Array(Bool(), "4"), "[bool; 4]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ty.String())
	}
}

func TestSameShape(t *testing.T) {
	a := Ref(Var(1), Not, Adt("S", []Region{Var(2)}))
	b := Ref(Var(7), Not, Adt("S", []Region{Var(9)}))
	c := Ref(Var(7), Mut, Adt("S", []Region{Var(9)}))

	assert.True(t, SameShape(a, b))
	assert.False(t, SameShape(a, c))
}

func TestVarianceXform(t *testing.T) {
	assert.Equal(t, Contravariant, Covariant.Xform(Contravariant))
	assert.Equal(t, Covariant, Contravariant.Xform(Contravariant))
	assert.Equal(t, Invariant, Invariant.Xform(Covariant))
	assert.Equal(t, Invariant, Contravariant.Xform(Invariant))
	assert.Equal(t, Bivariant, Bivariant.Xform(Invariant))
}

func TestContextPlaceTy(t *testing.T) {
	ctx, err := NewContextBuilder().
		AddAdt(&AdtDef{
			Name:         "Holder",
			RegionParams: []GenericParam{{Name: "a"}},
			TypeParams:   []GenericParam{{Name: "T"}},
			Fields: []FieldDef{
				{Name: "r", Ty: Ref(Named("a"), Not, Param("T"))},
				{Name: "n", Ty: Int("usize")},
			},
		}).
		AddAlias("<T as Tr>::Out", Int("u64")).
		Build()
	require.NoError(t, err)

	body := &Body{
		Owner: "f",
		Locals: []LocalDecl{
			{Ty: Unit()},
			{Ty: Ref(Var(1), Not, Adt("Holder", []Region{Var(2)}, Int("i32")))},
		},
		ArgCount: 1,
		Blocks:   []BlockData{{Terminator: Return()}},
	}

	ty, err := ctx.PlaceTy(body, PlaceOf(1).Deref().Field(0))
	require.NoError(t, err)
	assert.Equal(t, "&'?2 i32", ty.String())

	ty, err = ctx.PlaceTy(body, PlaceOf(1).Deref().Field(0).Deref())
	require.NoError(t, err)
	assert.Equal(t, "i32", ty.String())

	_, err = ctx.PlaceTy(body, PlaceOf(1).Field(0))
	assert.ErrorIs(t, err, ErrContractViolation)

	norm, err := ctx.Normalize(Ref(Var(4), Not, Alias("<T as Tr>::Out")))
	require.NoError(t, err)
	assert.Equal(t, "&'?4 u64", norm.String())

	_, err = ctx.Normalize(Alias("missing"))
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestBodyCloneIsDeep(t *testing.T) {
	body := &Body{
		Owner:    "f",
		ArgCount: 1,
		Locals:   []LocalDecl{{Ty: Unit()}, {Ty: Ref(Erased(), Not, Int("i32"))}},
		Blocks: []BlockData{{
			Statements: []Statement{Assign(PlaceOf(0).Field(0), Use(Copy(PlaceOf(1).Deref())))},
			Terminator: Return(),
		}},
	}

	clone := body.Clone()
	clone.Locals[1].Ty.Region = Var(9)
	clone.Blocks[0].Statements[0].Place.Projection[0].Field = 5

	assert.Equal(t, ReErased, body.Locals[1].Ty.Region.Kind)
	assert.Equal(t, 0, body.Blocks[0].Statements[0].Place.Projection[0].Field)
}
