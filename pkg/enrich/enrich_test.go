package enrich

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/internal/metrics"
	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
)

func i32() *mir.Ty { return mir.Int("i32") }

func vec() *mir.Ty { return mir.Adt("Vec", nil) }

func erasedRef(m mir.Mutability, elem *mir.Ty) *mir.Ty { return mir.Ref(mir.Erased(), m, elem) }

func loc(b, s int) mir.Location { return mir.Location{Block: mir.BasicBlock(b), Statement: s} }

// fn id<'a>(x: &'a i32) -> &'a i32 { x }
func identity() *mir.Procedure {
	return &mir.Procedure{
		ID: "id",
		Signature: &mir.Signature{
			Generics: []mir.LifetimeParam{{Name: "a"}},
			Inputs:   []*mir.Ty{mir.Ref(mir.Named("a"), mir.Not, i32())},
			Output:   mir.Ref(mir.Named("a"), mir.Not, i32()),
		},
		Body: &mir.Body{
			ArgCount:     1,
			Locals:       []mir.LocalDecl{{Ty: erasedRef(mir.Not, i32())}, {Ty: erasedRef(mir.Not, i32())}},
			VarDebugInfo: []mir.VarDebugInfo{{Name: "x", Local: 1}},
			Blocks: []mir.BlockData{{
				Statements: []mir.Statement{mir.Assign(mir.PlaceOf(0), mir.Use(mir.Copy(mir.PlaceOf(1))))},
				Terminator: mir.Return(),
			}},
		},
	}
}

// fn moves(v: Vec) { let r = &mut v; let w = v; let z = *r; }
func moveAfterBorrow() *mir.Procedure {
	return &mir.Procedure{
		ID:        "moves",
		Signature: &mir.Signature{Inputs: []*mir.Ty{vec()}},
		Body: &mir.Body{
			ArgCount: 1,
			Locals: []mir.LocalDecl{
				{Ty: mir.Unit()},
				{Ty: vec()},
				{Ty: erasedRef(mir.Mut, vec())},
				{Ty: vec()},
				{Ty: vec()},
			},
			Blocks: []mir.BlockData{{
				Statements: []mir.Statement{
					mir.Assign(mir.PlaceOf(2), mir.RefOf(mir.Erased(), mir.BorrowMut, mir.PlaceOf(1))),
					mir.Assign(mir.PlaceOf(3), mir.Use(mir.Move(mir.PlaceOf(1)))),
					mir.Assign(mir.PlaceOf(4), mir.Use(mir.Move(mir.PlaceOf(2).Deref()))),
				},
				Terminator: mir.Return(),
			}},
		},
	}
}

// fn two() { let x = 1; let a = &x; let b = &x; }
func twoBorrows() *mir.Procedure {
	return &mir.Procedure{
		ID:        "two",
		Signature: &mir.Signature{},
		Body: &mir.Body{
			Locals: []mir.LocalDecl{
				{Ty: mir.Unit()},
				{Ty: i32()},
				{Ty: erasedRef(mir.Not, i32())},
				{Ty: erasedRef(mir.Not, i32())},
			},
			Blocks: []mir.BlockData{{
				Statements: []mir.Statement{
					mir.Assign(mir.PlaceOf(1), mir.Use(mir.Const("1", i32()))),
					mir.Assign(mir.PlaceOf(2), mir.RefOf(mir.Erased(), mir.BorrowShared, mir.PlaceOf(1))),
					mir.Assign(mir.PlaceOf(3), mir.RefOf(mir.Erased(), mir.BorrowShared, mir.PlaceOf(1))),
				},
				Terminator: mir.Return(),
			}},
		},
	}
}

func testContext(t *testing.T, procs ...*mir.Procedure) *mir.Context {
	t.Helper()
	b := mir.NewContextBuilder()
	for _, p := range procs {
		b.AddProcedure(p)
	}
	tcx, err := b.Build()
	require.NoError(t, err)
	return tcx
}

func quiet() Option { return WithLogger(log.Discard()) }

func TestEnrichIdentity(t *testing.T) {
	tcx := testContext(t, identity())
	eb, err := Enrich(context.Background(), tcx, "id", quiet())
	require.NoError(t, err)

	ur := eb.UniversalRegions()
	require.Equal(t, 2, ur.Len())
	a, ok := ur.Named("a")
	require.True(t, ok)
	assert.Equal(t, []regions.Outlives{{Longer: a, Shorter: ur.FnBody()}}, eb.UniversalRelation())
	assert.Empty(t, eb.Loans())
	assert.Empty(t, eb.MoveErrors())
	assert.False(t, eb.Tainted())
	assert.NotEmpty(t, eb.SessionID())

	ret := eb.Body().Locals[0].Ty.Region.Vid
	arg := eb.Body().Locals[1].Ty.Region.Vid
	assert.Contains(t, eb.Outlives(arg), ret)
	assert.Contains(t, eb.Outlives(arg), a)
	assert.Contains(t, eb.Outlives(a), ur.FnBody())
	assert.Empty(t, eb.Outlives(ur.FnBody()))

	assert.Equal(t, "&'?0 i32", eb.Inputs()[0].String())
	assert.Equal(t, "&'?0 i32", eb.Output().String())

	name, ok := eb.LocalName(1)
	assert.True(t, ok)
	assert.Equal(t, "x", name)
	_, ok = eb.LocalName(0)
	assert.False(t, ok)

	assert.Equal(t, 2, eb.Facts().Count(facts.UniversalRegion))
	assert.True(t, eb.Facts().Contains(facts.KnownPlaceholderSubset, uint32(a), uint32(ur.FnBody())))
}

func TestEnrichMoveAfterBorrow(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.LoggerConfig{Level: log.WarnLevel, Output: &buf})

	tcx := testContext(t, moveAfterBorrow())
	eb, err := Enrich(context.Background(), tcx, "moves", WithLogger(logger))
	require.NoError(t, err, "an illegal move is a finding, not a failure")

	md := eb.Flow().Moves
	owner := int(md.LocalPath(1))

	inits := eb.Flow().Inits.Cursor()
	inits.SeekBefore(loc(0, 1))
	assert.True(t, inits.Contains(owner))
	inits.SeekAfter(loc(0, 1))
	assert.False(t, inits.Contains(owner), "owner may not be initialized after the move")

	uninit := eb.Flow().Uninit.Cursor()
	uninit.SeekAfter(loc(0, 1))
	assert.True(t, uninit.Contains(owner))

	moveErrors := eb.MoveErrors()
	require.Len(t, moveErrors, 1)
	assert.Equal(t, dataflow.CannotMoveOutOfBorrow, moveErrors[0].Kind)
	assert.Equal(t, loc(0, 2), moveErrors[0].Location)

	lt := eb.LocationTable()
	assert.True(t, eb.Facts().Contains(facts.MoveErrorAt, 2, uint32(lt.MidIndex(loc(0, 2))), uint32(dataflow.CannotMoveOutOfBorrow)))
	assert.True(t, eb.Facts().Contains(facts.PathMovedAtBase, uint32(owner), uint32(lt.MidIndex(loc(0, 1)))))

	// Moving the owner while it is mutably borrowed invalidates the loan.
	require.Len(t, eb.Loans(), 1)
	assert.True(t, eb.Facts().Contains(facts.LoanInvalidatedAt, uint32(lt.StartIndex(loc(0, 1))), 0))

	assert.Contains(t, buf.String(), "illegal move")
}

func TestEnrichTwoSequentialBorrows(t *testing.T) {
	tcx := testContext(t, twoBorrows())
	eb, err := Enrich(context.Background(), tcx, "two", quiet())
	require.NoError(t, err)

	loans := eb.Loans()
	require.Len(t, loans, 2)
	assert.NotEqual(t, loans[0].Index, loans[1].Index)
	assert.NotEqual(t, loans[0].Region, loans[1].Region)

	assert.Equal(t, []mir.Location{loc(0, 1)}, eb.Liveness().Locations(loans[0].Region))
	assert.Equal(t, []mir.Location{loc(0, 2)}, eb.Liveness().Locations(loans[1].Region))

	lt := eb.LocationTable()
	for _, l := range loans {
		assert.True(t, eb.Facts().Contains(facts.LoanIssuedAt, uint32(l.Region), uint32(l.Index), uint32(lt.MidIndex(l.Location))))
		assert.True(t, eb.Facts().Contains(facts.OriginLiveAt, uint32(l.Region), uint32(lt.StartIndex(l.Location))))
	}
	// Placeholder loans follow the real ones; the body has only fn_body.
	assert.True(t, eb.Facts().Contains(facts.Placeholder, uint32(eb.UniversalRegions().FnBody()), 2))
}

func TestEnrichFactsAreAppendOnly(t *testing.T) {
	var stages []Stage
	var snapshots []*facts.Table
	hook := func(s Stage, t *facts.Table) {
		stages = append(stages, s)
		snapshots = append(snapshots, t.Clone())
	}

	tcx := testContext(t, twoBorrows())
	eb, err := Enrich(context.Background(), tcx, "two", quiet(), WithStageHook(hook))
	require.NoError(t, err)

	assert.Equal(t, Stages, stages)
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, snapshots[i-1].IsPrefixOf(snapshots[i]), "stage %s dropped or rewrote facts", stages[i])
		assert.LessOrEqual(t, snapshots[i-1].Len(), snapshots[i].Len())
	}
	last := snapshots[len(snapshots)-1]
	assert.True(t, last.IsPrefixOf(eb.Facts()))
	assert.Equal(t, last.Len(), eb.Facts().Len())
	assert.Zero(t, snapshots[0].Len())
}

func TestEnrichRenumbersCopy(t *testing.T) {
	proc := twoBorrows()
	tcx := testContext(t, proc)
	eb, err := Enrich(context.Background(), tcx, "two", quiet())
	require.NoError(t, err)

	seen := make(map[mir.RegionVid]bool)
	for _, r := range regions.BodyRegions(eb.Body()) {
		require.Equal(t, mir.ReVar, r.Kind)
		assert.Less(t, int(r.Vid), eb.NumRegionVars())
		assert.False(t, eb.UniversalRegions().IsUniversal(r.Vid))
		assert.False(t, seen[r.Vid], "%s appears twice", r.Vid)
		seen[r.Vid] = true
	}

	assert.Equal(t, mir.ReErased, proc.Body.Locals[2].Ty.Region.Kind, "input body must stay untouched")

	again, err := Enrich(context.Background(), tcx, "two", quiet())
	require.NoError(t, err)
	assert.Equal(t, eb.Facts().Facts(), again.Facts().Facts())
	assert.NotEqual(t, eb.SessionID(), again.SessionID())
}

func TestEnrichExpandAllLocations(t *testing.T) {
	tcx := testContext(t, identity())

	expanded, err := Enrich(context.Background(), tcx, "id", quiet())
	require.NoError(t, err)
	compact, err := Enrich(context.Background(), tcx, "id", quiet(), WithExpandAllLocations(false))
	require.NoError(t, err)

	all := 0
	for _, c := range compact.Constraints() {
		if c.Locations.All {
			all++
		}
	}
	n := len(compact.Constraints())
	assert.Equal(t, n, compact.Facts().Count(facts.SubsetBase))
	assert.Equal(t, n-all+all*expanded.LocationTable().NumPoints(), expanded.Facts().Count(facts.SubsetBase))
}

// outOfRange is a body with only the return place that assigns rv to it.
func outOfRange(id string, rv *mir.Rvalue) *mir.Procedure {
	return &mir.Procedure{
		ID:        id,
		Signature: &mir.Signature{},
		Body: &mir.Body{
			Locals: []mir.LocalDecl{{Ty: mir.Unit()}},
			Blocks: []mir.BlockData{{
				Statements: []mir.Statement{mir.Assign(mir.PlaceOf(0), rv)},
				Terminator: mir.Return(),
			}},
		},
	}
}

func TestEnrichContractViolations(t *testing.T) {
	noBody := &mir.Procedure{ID: "extern", Signature: &mir.Signature{}}
	undeclared := identity()
	undeclared.ID = "undeclared"
	undeclared.Signature.Generics = nil

	tcx := testContext(t, noBody, undeclared, outOfRange("stray_move", mir.Use(mir.Move(mir.PlaceOf(5)))),
		outOfRange("stray_index", mir.Use(mir.Copy(mir.PlaceOf(0).Index(9)))),
		outOfRange("stray_borrow", mir.RefOf(mir.Erased(), mir.BorrowShared, mir.PlaceOf(3))))

	tests := []struct {
		id      string
		unknown bool
	}{
		{id: "missing", unknown: true},
		{id: "extern"},
		{id: "undeclared"},
		{id: "stray_move"},
		{id: "stray_index"},
		{id: "stray_borrow"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			eb, err := Enrich(context.Background(), tcx, tt.id, quiet())
			require.Error(t, err)
			assert.Nil(t, eb)
			assert.True(t, errors.Is(err, mir.ErrContractViolation))
			assert.Equal(t, tt.unknown, errors.Is(err, mir.ErrUnknownProcedure))
		})
	}
}

func TestEnrichTainted(t *testing.T) {
	proc := identity()
	proc.Tainted = true

	var buf bytes.Buffer
	logger := log.New(log.LoggerConfig{Level: log.WarnLevel, Output: &buf})
	eb, err := Enrich(context.Background(), testContext(t, proc), "id", WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, eb.Tainted())
	assert.Contains(t, buf.String(), "tainted")
}

func TestEnrichCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Enrich(ctx, testContext(t, identity()), "id", quiet())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEnrichMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tcx := testContext(t, identity())

	_, err := Enrich(context.Background(), tcx, "id", quiet(), WithMetrics(m))
	require.NoError(t, err)
	_, err = Enrich(context.Background(), tcx, "missing", quiet(), WithMetrics(m))
	require.Error(t, err)

	n, err := testutil.GatherAndCount(reg, "grf_enrichments_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per result")

	n, err = testutil.GatherAndCount(reg, "grf_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, len(Stages), n)
}

func TestBatchKeepsInputOrder(t *testing.T) {
	tcx := testContext(t, identity(), moveAfterBorrow(), twoBorrows())
	ids := []string{"two", "missing", "id", "moves", "two"}

	results, err := Batch(context.Background(), tcx, ids, 2, quiet())
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	for i, r := range results {
		assert.Equal(t, ids[i], r.DefID)
		if r.DefID == "missing" {
			assert.Error(t, r.Err)
			assert.Nil(t, r.Body)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, ids[i], r.Body.DefID())
	}
	assert.NotEqual(t, results[0].Body.SessionID(), results[4].Body.SessionID())
	assert.Equal(t, results[0].Body.Facts().Facts(), results[4].Body.Facts().Facts())
}

func TestBatchIsolatesMalformedBodies(t *testing.T) {
	dangling := outOfRange("dangling", mir.Use(mir.Move(mir.PlaceOf(5))))
	promoted := identity()
	promoted.ID = "bad_promoted"
	promoted.Body.Promoted = []*mir.Body{outOfRange("", mir.Use(mir.Copy(mir.PlaceOf(2)))).Body}
	tcx := testContext(t, identity(), dangling, twoBorrows(), promoted)

	results, err := Batch(context.Background(), tcx, []string{"id", "dangling", "two", "bad_promoted"}, 2, quiet())
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.NoError(t, results[0].Err)
	require.NoError(t, results[2].Err)
	for _, i := range []int{1, 3} {
		assert.Nil(t, results[i].Body)
		assert.True(t, errors.Is(results[i].Err, mir.ErrContractViolation), "got %v", results[i].Err)
		assert.Contains(t, results[i].Err.Error(), "undeclared local")
	}
}

func TestBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Batch(ctx, testContext(t, identity()), []string{"id"}, 0, quiet())
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
