package facts

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

// Loan identifies a borrow of the body, dense from zero in creation order.
type Loan uint32

func (l Loan) String() string { return fmt.Sprintf("bw%d", uint32(l)) }

// Fact is one tuple of a relation.
type Fact struct {
	Relation Relation `json:"relation" yaml:"relation" msgpack:"relation"`
	Args     []uint32 `json:"args" yaml:"args,flow" msgpack:"args"`
}

func (f Fact) String() string {
	return fmt.Sprintf("%s%v", f.Relation, f.Args)
}

// Table is an append-only fact table. Rows keep their insertion order within a
// relation; no row is ever removed or rewritten.
type Table struct {
	rows map[Relation][][]uint32
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rows: make(map[Relation][][]uint32)}
}

func (t *Table) add(rel Relation, args ...uint32) {
	t.rows[rel] = append(t.rows[rel], args)
}

// Insert appends f after checking it against the schema.
func (t *Table) Insert(f Fact) error {
	info, ok := Schema[f.Relation]
	if !ok {
		return fmt.Errorf("unknown relation %q", f.Relation)
	}
	if len(f.Args) != info.Arity {
		return fmt.Errorf("relation %s takes %d arguments, got %d", f.Relation, info.Arity, len(f.Args))
	}
	t.add(f.Relation, append([]uint32(nil), f.Args...)...)
	return nil
}

func (t *Table) AddLoanIssuedAt(o mir.RegionVid, l Loan, p mir.PointIndex) {
	t.add(LoanIssuedAt, uint32(o), uint32(l), uint32(p))
}

func (t *Table) AddUniversalRegion(o mir.RegionVid) { t.add(UniversalRegion, uint32(o)) }

func (t *Table) AddCfgEdge(from, to mir.PointIndex) { t.add(CfgEdge, uint32(from), uint32(to)) }

func (t *Table) AddLoanKilledAt(l Loan, p mir.PointIndex) { t.add(LoanKilledAt, uint32(l), uint32(p)) }

func (t *Table) AddSubsetBase(sup, sub mir.RegionVid, p mir.PointIndex) {
	t.add(SubsetBase, uint32(sup), uint32(sub), uint32(p))
}

func (t *Table) AddLoanInvalidatedAt(p mir.PointIndex, l Loan) {
	t.add(LoanInvalidatedAt, uint32(p), uint32(l))
}

func (t *Table) AddVarUsedAt(v mir.Local, p mir.PointIndex) { t.add(VarUsedAt, uint32(v), uint32(p)) }

func (t *Table) AddVarDefinedAt(v mir.Local, p mir.PointIndex) {
	t.add(VarDefinedAt, uint32(v), uint32(p))
}

func (t *Table) AddVarDroppedAt(v mir.Local, p mir.PointIndex) {
	t.add(VarDroppedAt, uint32(v), uint32(p))
}

func (t *Table) AddUseOfVarDerefsOrigin(v mir.Local, o mir.RegionVid) {
	t.add(UseOfVarDerefsOrigin, uint32(v), uint32(o))
}

func (t *Table) AddDropOfVarDerefsOrigin(v mir.Local, o mir.RegionVid) {
	t.add(DropOfVarDerefsOrigin, uint32(v), uint32(o))
}

func (t *Table) AddChildPath(child, parent dataflow.MovePathIndex) {
	t.add(ChildPath, uint32(child), uint32(parent))
}

func (t *Table) AddPathIsVar(path dataflow.MovePathIndex, v mir.Local) {
	t.add(PathIsVar, uint32(path), uint32(v))
}

func (t *Table) AddPathAssignedAtBase(path dataflow.MovePathIndex, p mir.PointIndex) {
	t.add(PathAssignedAtBase, uint32(path), uint32(p))
}

func (t *Table) AddPathMovedAtBase(path dataflow.MovePathIndex, p mir.PointIndex) {
	t.add(PathMovedAtBase, uint32(path), uint32(p))
}

func (t *Table) AddPathAccessedAtBase(path dataflow.MovePathIndex, p mir.PointIndex) {
	t.add(PathAccessedAtBase, uint32(path), uint32(p))
}

func (t *Table) AddKnownPlaceholderSubset(longer, shorter mir.RegionVid) {
	t.add(KnownPlaceholderSubset, uint32(longer), uint32(shorter))
}

func (t *Table) AddPlaceholder(o mir.RegionVid, l Loan) { t.add(Placeholder, uint32(o), uint32(l)) }

func (t *Table) AddOriginLiveAt(o mir.RegionVid, p mir.PointIndex) {
	t.add(OriginLiveAt, uint32(o), uint32(p))
}

func (t *Table) AddMoveError(v mir.Local, p mir.PointIndex, kind dataflow.MoveErrorKind) {
	t.add(MoveErrorAt, uint32(v), uint32(p), uint32(kind))
}

// Len returns the total number of facts.
func (t *Table) Len() int {
	n := 0
	for _, rows := range t.rows {
		n += len(rows)
	}
	return n
}

// Count returns the number of facts of rel.
func (t *Table) Count(rel Relation) int { return len(t.rows[rel]) }

// Counts returns the number of facts per relation, including empty ones.
func (t *Table) Counts() map[Relation]int {
	out := make(map[Relation]int, len(Order))
	for _, rel := range Order {
		out[rel] = len(t.rows[rel])
	}
	return out
}

// Rows returns a copy of the tuples of rel in insertion order.
func (t *Table) Rows(rel Relation) [][]uint32 {
	rows := t.rows[rel]
	out := make([][]uint32, len(rows))
	for i, r := range rows {
		out[i] = append([]uint32(nil), r...)
	}
	return out
}

// Contains reports whether the tuple args is a fact of rel.
func (t *Table) Contains(rel Relation, args ...uint32) bool {
	for _, r := range t.rows[rel] {
		if equalTuple(r, args) {
			return true
		}
	}
	return false
}

// Facts flattens the table, relations in canonical order.
func (t *Table) Facts() []Fact {
	out := make([]Fact, 0, t.Len())
	for _, rel := range Order {
		for _, r := range t.rows[rel] {
			out = append(out, Fact{Relation: rel, Args: append([]uint32(nil), r...)})
		}
	}
	return out
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable()
	for rel := range t.rows {
		out.rows[rel] = t.Rows(rel)
	}
	return out
}

// IsPrefixOf reports whether every relation of t is a prefix of the same
// relation in o, that is o was obtained from t by appending facts.
func (t *Table) IsPrefixOf(o *Table) bool {
	for rel, rows := range t.rows {
		other := o.rows[rel]
		if len(other) < len(rows) {
			return false
		}
		for i := range rows {
			if !equalTuple(rows[i], other[i]) {
				return false
			}
		}
	}
	return true
}

// Relations returns the relations holding at least one fact, in canonical order.
func (t *Table) Relations() []Relation {
	var out []Relation
	for _, rel := range Order {
		if len(t.rows[rel]) > 0 {
			out = append(out, rel)
		}
	}
	return out
}

// SortedRows returns the tuples of rel sorted lexicographically and
// deduplicated, the set view a solver consumes.
func (t *Table) SortedRows(rel Relation) [][]uint32 {
	rows := t.Rows(rel)
	sort.Slice(rows, func(i, j int) bool { return lessTuple(rows[i], rows[j]) })
	out := rows[:0]
	for _, r := range rows {
		if len(out) > 0 && equalTuple(r, out[len(out)-1]) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func equalTuple(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lessTuple(a, b []uint32) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
