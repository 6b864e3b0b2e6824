package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopBody() *Body {
	return &Body{
		Owner:    "loop",
		ArgCount: 1,
		Locals:   []LocalDecl{{Ty: Unit()}, {Ty: Bool()}},
		Blocks: []BlockData{
			{Statements: []Statement{StorageLive(1)}, Terminator: Goto(1)},
			{Terminator: SwitchInt(Copy(PlaceOf(1)), 1, 2)},
			{Statements: []Statement{StorageDead(1), {Kind: StmtNop}}, Terminator: Return()},
		},
	}
}

func TestLocationTableIsBijective(t *testing.T) {
	body := loopBody()
	table := NewLocationTable(body)

	require.Equal(t, 2+1+3, table.Len())
	assert.Equal(t, 2*table.Len(), table.NumPoints())

	seen := make(map[LocationIndex]bool)
	for b, bb := range body.Blocks {
		for s := 0; s <= len(bb.Statements); s++ {
			loc := Location{Block: BasicBlock(b), Statement: s}
			idx := table.Index(loc)
			assert.False(t, seen[idx], "duplicate id %d", idx)
			seen[idx] = true
			assert.Equal(t, loc, table.Location(idx))
		}
	}
	for i := 0; i < table.Len(); i++ {
		assert.True(t, seen[LocationIndex(i)], "gap at %d", i)
	}

	_, ok := table.Lookup(Location{Block: 1, Statement: 1})
	assert.False(t, ok)
	_, ok = table.Lookup(Location{Block: 7})
	assert.False(t, ok)
}

func TestLocationTablePoints(t *testing.T) {
	table := NewLocationTable(loopBody())
	loc := Location{Block: 2, Statement: 1}

	start := table.StartIndex(loc)
	mid := table.MidIndex(loc)
	assert.Equal(t, start+1, mid)

	got, isMid := table.PointLocation(mid)
	assert.Equal(t, loc, got)
	assert.True(t, isMid)
	assert.Equal(t, Location{Block: 2, Statement: 2}, table.Terminator(2))
}

func TestPredecessors(t *testing.T) {
	preds := loopBody().Predecessors()
	assert.Empty(t, preds[0])
	assert.ElementsMatch(t, []BasicBlock{0, 1}, preds[1])
	assert.Equal(t, []BasicBlock{1}, preds[2])
}
