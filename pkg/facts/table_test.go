package facts

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

func sampleTable() *Table {
	t := NewTable()
	t.AddUniversalRegion(0)
	t.AddUniversalRegion(1)
	t.AddKnownPlaceholderSubset(0, 1)
	t.AddPlaceholder(0, 0)
	t.AddCfgEdge(0, 1)
	t.AddCfgEdge(1, 2)
	t.AddLoanIssuedAt(4, 0, 1)
	t.AddSubsetBase(4, 5, 1)
	t.AddVarUsedAt(mir.Local(1), 2)
	t.AddPathIsVar(dataflow.MovePathIndex(1), mir.Local(1))
	t.AddMoveError(mir.Local(2), 3, dataflow.CannotMoveOutOfBorrow)
	return t
}

func TestSchemaCoversOrder(t *testing.T) {
	require.Len(t, Order, len(Schema))
	for _, rel := range Order {
		info, ok := Schema[rel]
		assert.True(t, ok, "relation %s missing from schema", rel)
		assert.Positive(t, info.Arity)
	}
}

func TestTableCounts(t *testing.T) {
	tbl := sampleTable()

	assert.Equal(t, 11, tbl.Len())
	assert.Equal(t, 2, tbl.Count(CfgEdge))
	assert.Equal(t, 0, tbl.Count(LoanKilledAt))
	assert.Equal(t, 0, tbl.Counts()[LoanKilledAt])
	assert.True(t, tbl.Contains(SubsetBase, 4, 5, 1))
	assert.False(t, tbl.Contains(SubsetBase, 5, 4, 1))

	facts := tbl.Facts()
	require.Len(t, facts, 11)
	assert.Equal(t, LoanIssuedAt, facts[0].Relation)
	assert.Equal(t, "loan_issued_at[4 0 1]", facts[0].String())
}

func TestInsertChecksSchema(t *testing.T) {
	tbl := NewTable()
	assert.NoError(t, tbl.Insert(Fact{Relation: CfgEdge, Args: []uint32{1, 2}}))
	assert.Error(t, tbl.Insert(Fact{Relation: CfgEdge, Args: []uint32{1}}))
	assert.Error(t, tbl.Insert(Fact{Relation: "region_live_at", Args: []uint32{1, 2}}))
}

func TestIsPrefixOf(t *testing.T) {
	before := sampleTable()
	after := before.Clone()
	assert.True(t, before.IsPrefixOf(after))

	after.AddLoanKilledAt(0, 3)
	after.AddCfgEdge(2, 3)
	assert.True(t, before.IsPrefixOf(after))
	assert.False(t, after.IsPrefixOf(before))

	rewritten := NewTable()
	rewritten.AddCfgEdge(1, 2)
	rewritten.AddCfgEdge(0, 1)
	prefix := NewTable()
	prefix.AddCfgEdge(0, 1)
	assert.False(t, prefix.IsPrefixOf(rewritten))
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := sampleTable()
	clone := tbl.Clone()
	clone.Rows(CfgEdge)[0][0] = 99
	clone.AddCfgEdge(7, 8)

	assert.Equal(t, 2, tbl.Count(CfgEdge))
	assert.True(t, tbl.Contains(CfgEdge, 0, 1))
}

func TestSortedRowsDeduplicates(t *testing.T) {
	tbl := NewTable()
	tbl.AddSubsetBase(2, 1, 5)
	tbl.AddSubsetBase(1, 2, 5)
	tbl.AddSubsetBase(2, 1, 5)

	assert.Equal(t, [][]uint32{{1, 2, 5}, {2, 1, 5}}, tbl.SortedRows(SubsetBase))
	assert.Equal(t, 3, tbl.Count(SubsetBase))
}

func TestEncodings(t *testing.T) {
	tbl := sampleTable()

	t.Run("msgpack", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, tbl.EncodeMsgpack(&buf))
		decoded, err := DecodeMsgpack(&buf)
		require.NoError(t, err)
		assert.Equal(t, tbl.Facts(), decoded.Facts())
	})

	t.Run("json", func(t *testing.T) {
		data, err := json.Marshal(tbl)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"subset_base":[[4,5,1]]`)

		decoded := NewTable()
		require.NoError(t, json.Unmarshal(data, decoded))
		assert.Equal(t, tbl.Facts(), decoded.Facts())
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := yaml.Marshal(tbl)
		require.NoError(t, err)

		decoded := NewTable()
		require.NoError(t, yaml.Unmarshal(data, decoded))
		assert.Equal(t, tbl.Facts(), decoded.Facts())
	})

	t.Run("rejects unknown relation", func(t *testing.T) {
		err := json.Unmarshal([]byte(`{"version":1,"relations":{"bogus":[[1]]}}`), NewTable())
		assert.Error(t, err)
	})
}
