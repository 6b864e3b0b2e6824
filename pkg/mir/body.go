package mir

import (
	"fmt"
	"strings"
)

// BorrowKind is the exclusivity of a borrow.
type BorrowKind uint8

const (
	BorrowShared BorrowKind = iota // &T
	BorrowMut                      // &mut T
)

func (bk BorrowKind) String() string {
	switch bk {
	case BorrowShared:
		return "&"
	case BorrowMut:
		return "&mut"
	default:
		return "&unknown"
	}
}

// Mutability returns the reference mutability produced by a borrow of kind bk.
func (bk BorrowKind) Mutability() Mutability {
	if bk == BorrowMut {
		return Mut
	}
	return Not
}

// OperandKind classifies operands.
type OperandKind uint8

const (
	OperandCopy OperandKind = iota
	OperandMove
	OperandConstant
)

// Operand is a value consumed by an rvalue or a call.
type Operand struct {
	Kind  OperandKind
	Place Place  // Copy and Move
	Ty    *Ty    // Constant
	Value string // Constant literal text
}

// Copy returns copy place.
func Copy(p Place) Operand { return Operand{Kind: OperandCopy, Place: p} }

// Move returns move place.
func Move(p Place) Operand { return Operand{Kind: OperandMove, Place: p} }

// Const returns a constant of type ty.
func Const(value string, ty *Ty) Operand {
	return Operand{Kind: OperandConstant, Value: value, Ty: ty}
}

func (o Operand) clone() Operand {
	return Operand{Kind: o.Kind, Place: o.Place.Clone(), Ty: o.Ty.Clone(), Value: o.Value}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandCopy:
		return "copy " + o.Place.String()
	case OperandMove:
		return "move " + o.Place.String()
	default:
		return fmt.Sprintf("const %s: %s", o.Value, o.Ty)
	}
}

// RvalueKind classifies rvalues.
type RvalueKind uint8

const (
	RvalueUse RvalueKind = iota
	RvalueRef
	RvalueAggregate
	RvalueBinaryOp
)

// Rvalue is the right-hand side of an assignment.
type Rvalue struct {
	Kind     RvalueKind
	Operands []Operand // Use: 1, BinaryOp: 2, Aggregate: n
	Region   Region    // Ref
	Borrow   BorrowKind
	Place    Place  // Ref
	Ty       *Ty    // Aggregate result type
	Op       string // BinaryOp operator
}

// Use returns an rvalue reading op.
func Use(op Operand) *Rvalue { return &Rvalue{Kind: RvalueUse, Operands: []Operand{op}} }

// RefOf returns a borrow of p with region r.
func RefOf(r Region, kind BorrowKind, p Place) *Rvalue {
	return &Rvalue{Kind: RvalueRef, Region: r, Borrow: kind, Place: p}
}

// Aggregate builds a value of type ty from ops.
func Aggregate(ty *Ty, ops ...Operand) *Rvalue {
	return &Rvalue{Kind: RvalueAggregate, Ty: ty, Operands: ops}
}

// BinaryOp returns lhs op rhs.
func BinaryOp(op string, lhs, rhs Operand) *Rvalue {
	return &Rvalue{Kind: RvalueBinaryOp, Op: op, Operands: []Operand{lhs, rhs}}
}

func (rv *Rvalue) clone() *Rvalue {
	if rv == nil {
		return nil
	}
	out := &Rvalue{Kind: rv.Kind, Region: rv.Region, Borrow: rv.Borrow, Place: rv.Place.Clone(), Ty: rv.Ty.Clone(), Op: rv.Op}
	if len(rv.Operands) > 0 {
		out.Operands = make([]Operand, len(rv.Operands))
		for i, op := range rv.Operands {
			out.Operands[i] = op.clone()
		}
	}
	return out
}

func (rv *Rvalue) String() string {
	switch rv.Kind {
	case RvalueUse:
		return rv.Operands[0].String()
	case RvalueRef:
		if rv.Borrow == BorrowMut {
			return fmt.Sprintf("&%s mut %s", rv.Region, rv.Place)
		}
		return fmt.Sprintf("&%s %s", rv.Region, rv.Place)
	case RvalueBinaryOp:
		return fmt.Sprintf("%s(%s, %s)", rv.Op, rv.Operands[0], rv.Operands[1])
	default:
		parts := make([]string, len(rv.Operands))
		for i, op := range rv.Operands {
			parts[i] = op.String()
		}
		return fmt.Sprintf("%s { %s }", rv.Ty, strings.Join(parts, ", "))
	}
}

// StatementKind classifies statements.
type StatementKind uint8

const (
	StmtAssign StatementKind = iota
	StmtStorageLive
	StmtStorageDead
	StmtNop
)

// Statement is a non-terminating instruction of a basic block.
type Statement struct {
	Kind   StatementKind
	Place  Place   // Assign destination
	Rvalue *Rvalue // Assign source
	Local  Local   // StorageLive / StorageDead
}

// Assign returns place = rv.
func Assign(p Place, rv *Rvalue) Statement { return Statement{Kind: StmtAssign, Place: p, Rvalue: rv} }

// StorageLive returns StorageLive(l).
func StorageLive(l Local) Statement { return Statement{Kind: StmtStorageLive, Local: l} }

// StorageDead returns StorageDead(l).
func StorageDead(l Local) Statement { return Statement{Kind: StmtStorageDead, Local: l} }

func (s Statement) clone() Statement {
	return Statement{Kind: s.Kind, Place: s.Place.Clone(), Rvalue: s.Rvalue.clone(), Local: s.Local}
}

func (s Statement) String() string {
	switch s.Kind {
	case StmtAssign:
		return fmt.Sprintf("%s = %s", s.Place, s.Rvalue)
	case StmtStorageLive:
		return fmt.Sprintf("StorageLive(%s)", s.Local)
	case StmtStorageDead:
		return fmt.Sprintf("StorageDead(%s)", s.Local)
	default:
		return "nop"
	}
}

// TerminatorKind classifies block terminators.
type TerminatorKind uint8

const (
	TermGoto TerminatorKind = iota
	TermSwitchInt
	TermReturn
	TermCall
	TermDrop
	TermUnreachable
)

// Terminator ends a basic block. Targets holds the successors; a Call
// without targets diverges.
type Terminator struct {
	Kind        TerminatorKind
	Targets     []BasicBlock
	Discr       Operand   // SwitchInt
	Func        string    // Call: callee procedure id
	Args        []Operand // Call
	Destination Place     // Call
	Place       Place     // Drop
}

// Goto returns goto -> target.
func Goto(target BasicBlock) Terminator {
	return Terminator{Kind: TermGoto, Targets: []BasicBlock{target}}
}

// Return returns the return terminator.
func Return() Terminator { return Terminator{Kind: TermReturn} }

// SwitchInt branches on discr.
func SwitchInt(discr Operand, targets ...BasicBlock) Terminator {
	return Terminator{Kind: TermSwitchInt, Discr: discr, Targets: targets}
}

// Call calls fn with args, storing into dest and continuing at target.
func Call(fn string, args []Operand, dest Place, target BasicBlock) Terminator {
	return Terminator{Kind: TermCall, Func: fn, Args: args, Destination: dest, Targets: []BasicBlock{target}}
}

// Drop drops place and continues at target.
func Drop(p Place, target BasicBlock) Terminator {
	return Terminator{Kind: TermDrop, Place: p, Targets: []BasicBlock{target}}
}

// Successors returns the blocks control may flow to.
func (t Terminator) Successors() []BasicBlock { return t.Targets }

func (t Terminator) clone() Terminator {
	out := Terminator{
		Kind:        t.Kind,
		Discr:       t.Discr.clone(),
		Func:        t.Func,
		Destination: t.Destination.Clone(),
		Place:       t.Place.Clone(),
	}
	out.Targets = append([]BasicBlock(nil), t.Targets...)
	if len(t.Args) > 0 {
		out.Args = make([]Operand, len(t.Args))
		for i, a := range t.Args {
			out.Args[i] = a.clone()
		}
	}
	return out
}

func (t Terminator) String() string {
	switch t.Kind {
	case TermGoto:
		return fmt.Sprintf("goto -> %s", t.Targets[0])
	case TermSwitchInt:
		return fmt.Sprintf("switchInt(%s) -> %v", t.Discr, t.Targets)
	case TermReturn:
		return "return"
	case TermCall:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = a.String()
		}
		s := fmt.Sprintf("%s = %s(%s)", t.Destination, t.Func, strings.Join(args, ", "))
		if len(t.Targets) > 0 {
			s += fmt.Sprintf(" -> %s", t.Targets[0])
		}
		return s
	case TermDrop:
		return fmt.Sprintf("drop(%s) -> %s", t.Place, t.Targets[0])
	default:
		return "unreachable"
	}
}

// BlockData is a basic block: statements followed by one terminator.
type BlockData struct {
	Statements []Statement
	Terminator Terminator
}

// LocalDecl declares the type of a local.
type LocalDecl struct {
	Ty *Ty
}

// VarDebugInfo associates a user visible name with a local.
type VarDebugInfo struct {
	Name  string
	Local Local
}

// BodyKind is the kind of item owning a body.
type BodyKind uint8

const (
	BodyFn BodyKind = iota
	BodyClosure
	BodyConst
)

func (k BodyKind) String() string {
	switch k {
	case BodyFn:
		return "fn"
	case BodyClosure:
		return "closure"
	case BodyConst:
		return "const"
	default:
		return "unknown"
	}
}

// IsFnOrClosure reports whether locals are invalidated when the body returns.
func (k BodyKind) IsFnOrClosure() bool { return k == BodyFn || k == BodyClosure }

// Body is the control-flow graph of one procedure.
type Body struct {
	Owner        string
	Kind         BodyKind
	ArgCount     int
	Locals       []LocalDecl
	Blocks       []BlockData
	VarDebugInfo []VarDebugInfo
	Promoted     []*Body
}

// Clone returns a deep copy of b; the enrichment engine never mutates its input.
func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}

	out := &Body{Owner: b.Owner, Kind: b.Kind, ArgCount: b.ArgCount}
	out.Locals = make([]LocalDecl, len(b.Locals))
	for i, d := range b.Locals {
		out.Locals[i] = LocalDecl{Ty: d.Ty.Clone()}
	}
	out.Blocks = make([]BlockData, len(b.Blocks))
	for i, bb := range b.Blocks {
		stmts := make([]Statement, len(bb.Statements))
		for j, s := range bb.Statements {
			stmts[j] = s.clone()
		}
		out.Blocks[i] = BlockData{Statements: stmts, Terminator: bb.Terminator.clone()}
	}
	out.VarDebugInfo = append([]VarDebugInfo(nil), b.VarDebugInfo...)
	for _, p := range b.Promoted {
		out.Promoted = append(out.Promoted, p.Clone())
	}

	return out
}

// Args returns the argument locals.
func (b *Body) Args() []Local {
	out := make([]Local, b.ArgCount)
	for i := range out {
		out[i] = Local(i + 1)
	}
	return out
}

// LocalTy returns the declared type of l.
func (b *Body) LocalTy(l Local) (*Ty, error) {
	if int(l) >= len(b.Locals) {
		return nil, Contractf("%s: local %s out of range", b.Owner, l)
	}
	return b.Locals[l].Ty, nil
}

// Predecessors returns, for every block, the blocks that jump to it.
func (b *Body) Predecessors() [][]BasicBlock {
	preds := make([][]BasicBlock, len(b.Blocks))
	for i, bb := range b.Blocks {
		for _, s := range bb.Terminator.Successors() {
			preds[s] = append(preds[s], BasicBlock(i))
		}
	}
	return preds
}

// Validate checks the structural well-formedness the analyses rely on.
func (b *Body) Validate() error {
	if len(b.Blocks) == 0 {
		return Contractf("%s: body has no blocks", b.Owner)
	}
	if len(b.Locals) < b.ArgCount+1 {
		return Contractf("%s: %d locals cannot hold %d arguments and the return place", b.Owner, len(b.Locals), b.ArgCount)
	}
	for i, d := range b.Locals {
		if d.Ty == nil {
			return Contractf("%s: local _%d has no type", b.Owner, i)
		}
	}
	for i, bb := range b.Blocks {
		for j, s := range bb.Statements {
			loc := Location{Block: BasicBlock(i), Statement: j}
			if s.Kind == StmtAssign && s.Rvalue == nil {
				return Contractf("%s: assignment at %s has no rvalue", b.Owner, loc)
			}
			if err := b.checkStatement(s); err != nil {
				return Contractf("%s: at %s: %v", b.Owner, loc, err)
			}
		}
		for _, s := range bb.Terminator.Successors() {
			if int(s) >= len(b.Blocks) {
				return Contractf("%s: bb%d jumps to missing %s", b.Owner, i, s)
			}
		}
		if err := b.checkTerminator(bb.Terminator); err != nil {
			return Contractf("%s: at %s: %v", b.Owner, Location{Block: BasicBlock(i), Statement: len(bb.Statements)}, err)
		}
	}
	for _, info := range b.VarDebugInfo {
		if err := b.checkLocal(info.Local); err != nil {
			return Contractf("%s: debug info %q: %v", b.Owner, info.Name, err)
		}
	}
	for i, p := range b.Promoted {
		if p == nil {
			return Contractf("%s: promoted[%d] is missing", b.Owner, i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: promoted[%d]: %w", b.Owner, i, err)
		}
	}
	return nil
}

func (b *Body) checkLocal(l Local) error {
	if int(l) >= len(b.Locals) {
		return fmt.Errorf("undeclared local %s (body has %d)", l, len(b.Locals))
	}
	return nil
}

func (b *Body) checkPlace(p Place) error {
	if err := b.checkLocal(p.Local); err != nil {
		return err
	}
	for _, e := range p.Projection {
		if e.Kind != ProjIndex {
			continue
		}
		if err := b.checkLocal(e.Index); err != nil {
			return err
		}
	}
	return nil
}

func (b *Body) checkOperands(ops []Operand) error {
	for _, op := range ops {
		if op.Kind == OperandConstant {
			continue
		}
		if err := b.checkPlace(op.Place); err != nil {
			return err
		}
	}
	return nil
}

func (b *Body) checkStatement(s Statement) error {
	switch s.Kind {
	case StmtAssign:
		if err := b.checkPlace(s.Place); err != nil {
			return err
		}
		switch rv := s.Rvalue; {
		case rv.Kind == RvalueRef:
			if err := b.checkPlace(rv.Place); err != nil {
				return err
			}
		case rv.Kind == RvalueUse && len(rv.Operands) != 1:
			return fmt.Errorf("use needs one operand, has %d", len(rv.Operands))
		case rv.Kind == RvalueBinaryOp && len(rv.Operands) != 2:
			return fmt.Errorf("%s needs two operands, has %d", rv.Op, len(rv.Operands))
		}
		return b.checkOperands(s.Rvalue.Operands)
	case StmtStorageLive, StmtStorageDead:
		return b.checkLocal(s.Local)
	}
	return nil
}

func (b *Body) checkTerminator(t Terminator) error {
	switch t.Kind {
	case TermGoto:
		if len(t.Targets) != 1 {
			return fmt.Errorf("goto needs one target, has %d", len(t.Targets))
		}
	case TermSwitchInt:
		return b.checkOperands([]Operand{t.Discr})
	case TermCall:
		if err := b.checkOperands(t.Args); err != nil {
			return err
		}
		return b.checkPlace(t.Destination)
	case TermDrop:
		if len(t.Targets) != 1 {
			return fmt.Errorf("drop needs one target, has %d", len(t.Targets))
		}
		return b.checkPlace(t.Place)
	}
	return nil
}

func (b *Body) String() string {
	if b == nil {
		return "<nil-body>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s(", b.Kind, b.Owner)
	for i := 1; i <= b.ArgCount && i < len(b.Locals); i++ {
		if i > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "_%d: %s", i, b.Locals[i].Ty)
	}
	if len(b.Locals) > 0 {
		fmt.Fprintf(&sb, ") -> %s {\n", b.Locals[0].Ty)
	} else {
		sb.WriteString(") {\n")
	}
	for i := b.ArgCount + 1; i < len(b.Locals); i++ {
		fmt.Fprintf(&sb, "    let _%d: %s;\n", i, b.Locals[i].Ty)
	}
	for i, bb := range b.Blocks {
		fmt.Fprintf(&sb, "    bb%d: {\n", i)
		for _, s := range bb.Statements {
			fmt.Fprintf(&sb, "        %s;\n", s)
		}
		fmt.Fprintf(&sb, "        %s;\n    }\n", bb.Terminator)
	}
	sb.WriteString("}\n")
	return sb.String()
}
