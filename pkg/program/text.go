package program

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/rustsyntax"
)

// textParser reads statements and terminators in the form mir prints them:
//
//	_2 = &mut _1
//	_3 = Add(copy _1, const 1: i32)
//	_4 = Pair<u8> { move _3, const 0: u8 }
//	_0 = callee(move _2) -> bb1
//	switchInt(copy _5) -> [bb1, bb2]
type textParser struct {
	typeOpts []rustsyntax.Option
}

func (p *textParser) ty(s string) (*mir.Ty, error) {
	return rustsyntax.ParseType(strings.TrimSpace(s), p.typeOpts...)
}

func (p *textParser) statement(s string) (mir.Statement, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "nop":
		return mir.Statement{Kind: mir.StmtNop}, nil
	case strings.HasPrefix(s, "StorageLive("):
		l, err := localArg(s, "StorageLive")
		return mir.StorageLive(l), err
	case strings.HasPrefix(s, "StorageDead("):
		l, err := localArg(s, "StorageDead")
		return mir.StorageDead(l), err
	}

	lhs, rhs, ok := strings.Cut(s, " = ")
	if !ok {
		return mir.Statement{}, fmt.Errorf("unrecognized statement %q", s)
	}
	place, err := mir.ParsePlace(lhs)
	if err != nil {
		return mir.Statement{}, err
	}
	rv, err := p.rvalue(strings.TrimSpace(rhs))
	if err != nil {
		return mir.Statement{}, fmt.Errorf("%q: %w", s, err)
	}
	return mir.Assign(place, rv), nil
}

func localArg(s, name string) (mir.Local, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, name+"("), ")")
	place, err := mir.ParsePlace(inner)
	if err != nil {
		return 0, err
	}
	if !place.IsLocal() {
		return 0, fmt.Errorf("%s takes a local, got %s", name, place)
	}
	return place.Local, nil
}

func (p *textParser) rvalue(s string) (*mir.Rvalue, error) {
	switch {
	case strings.HasPrefix(s, "&"):
		return borrow(s[1:])
	case strings.HasPrefix(s, "copy "), strings.HasPrefix(s, "move "), strings.HasPrefix(s, "const "):
		op, err := p.operand(s)
		if err != nil {
			return nil, err
		}
		return mir.Use(op), nil
	case strings.HasSuffix(s, "}"):
		open := strings.LastIndex(s, "{")
		if open < 0 {
			return nil, fmt.Errorf("unbalanced aggregate %q", s)
		}
		ty, err := p.ty(s[:open])
		if err != nil {
			return nil, err
		}
		ops, err := p.operands(s[open+1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return mir.Aggregate(ty, ops...), nil
	}

	name, args, err := call(s)
	if err != nil {
		return nil, err
	}
	ops, err := p.operands(args)
	if err != nil {
		return nil, err
	}
	if len(ops) != 2 {
		return nil, fmt.Errorf("binary op %s takes 2 operands, got %d", name, len(ops))
	}
	return mir.BinaryOp(name, ops[0], ops[1]), nil
}

func borrow(s string) (*mir.Rvalue, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		region, rest, _ := strings.Cut(s, " ")
		if region != "'_" {
			return nil, fmt.Errorf("body borrows must not name a region, got %s", region)
		}
		s = strings.TrimSpace(rest)
	}
	kind := mir.BorrowShared
	if rest, ok := strings.CutPrefix(s, "mut "); ok {
		kind = mir.BorrowMut
		s = rest
	}
	place, err := mir.ParsePlace(s)
	if err != nil {
		return nil, err
	}
	return mir.RefOf(mir.Erased(), kind, place), nil
}

func (p *textParser) operand(s string) (mir.Operand, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "copy "); ok {
		place, err := mir.ParsePlace(rest)
		return mir.Copy(place), err
	}
	if rest, ok := strings.CutPrefix(s, "move "); ok {
		place, err := mir.ParsePlace(rest)
		return mir.Move(place), err
	}
	if rest, ok := strings.CutPrefix(s, "const "); ok {
		value, tyText, ok := strings.Cut(rest, ": ")
		if !ok {
			return mir.Operand{}, fmt.Errorf("constant %q needs a type", s)
		}
		ty, err := p.ty(tyText)
		if err != nil {
			return mir.Operand{}, err
		}
		return mir.Const(strings.TrimSpace(value), ty), nil
	}
	return mir.Operand{}, fmt.Errorf("unrecognized operand %q", s)
}

func (p *textParser) operands(s string) ([]mir.Operand, error) {
	parts := splitTopLevel(s)
	ops := make([]mir.Operand, 0, len(parts))
	for _, part := range parts {
		op, err := p.operand(part)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (p *textParser) terminator(s string) (mir.Terminator, error) {
	s = strings.TrimSpace(s)
	head, targets, hasTargets := cutArrow(s)

	switch {
	case s == "return":
		return mir.Return(), nil
	case s == "unreachable":
		return mir.Terminator{Kind: mir.TermUnreachable}, nil
	case head == "goto":
		bbs, err := blocks(targets)
		if err != nil || len(bbs) != 1 {
			return mir.Terminator{}, fmt.Errorf("goto needs one target in %q", s)
		}
		return mir.Goto(bbs[0]), nil
	case strings.HasPrefix(head, "switchInt("):
		_, arg, err := call(head)
		if err != nil {
			return mir.Terminator{}, err
		}
		discr, err := p.operand(arg)
		if err != nil {
			return mir.Terminator{}, err
		}
		bbs, err := blocks(targets)
		if err != nil {
			return mir.Terminator{}, err
		}
		return mir.SwitchInt(discr, bbs...), nil
	case strings.HasPrefix(head, "drop("):
		_, arg, err := call(head)
		if err != nil {
			return mir.Terminator{}, err
		}
		place, err := mir.ParsePlace(arg)
		if err != nil {
			return mir.Terminator{}, err
		}
		bbs, err := blocks(targets)
		if err != nil || len(bbs) != 1 {
			return mir.Terminator{}, fmt.Errorf("drop needs one target in %q", s)
		}
		return mir.Drop(place, bbs[0]), nil
	}

	lhs, rhs, ok := strings.Cut(head, " = ")
	if !ok {
		return mir.Terminator{}, fmt.Errorf("unrecognized terminator %q", s)
	}
	dest, err := mir.ParsePlace(lhs)
	if err != nil {
		return mir.Terminator{}, err
	}
	fn, args, err := call(strings.TrimSpace(rhs))
	if err != nil {
		return mir.Terminator{}, err
	}
	ops, err := p.operands(args)
	if err != nil {
		return mir.Terminator{}, fmt.Errorf("%q: %w", s, err)
	}
	t := mir.Terminator{Kind: mir.TermCall, Func: fn, Args: ops, Destination: dest}
	if hasTargets {
		bbs, err := blocks(targets)
		if err != nil || len(bbs) != 1 {
			return mir.Terminator{}, fmt.Errorf("call needs at most one target in %q", s)
		}
		t.Targets = bbs
	}
	return t, nil
}

func cutArrow(s string) (string, string, bool) {
	i := strings.LastIndex(s, "->")
	if i < 0 {
		return s, "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+2:]), true
}

// call splits name(args) into its parts.
func call(s string) (string, string, error) {
	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", "", fmt.Errorf("expected name(args), got %q", s)
	}
	return strings.TrimSpace(s[:open]), s[open+1 : len(s)-1], nil
}

// blocks parses "bb1", "[bb1, bb2]" or "[bb1 bb2]".
func blocks(s string) ([]mir.BasicBlock, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]mir.BasicBlock, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(strings.TrimPrefix(f, "bb"), 10, 32)
		if err != nil || !strings.HasPrefix(f, "bb") {
			return nil, fmt.Errorf("invalid block %q", f)
		}
		out = append(out, mir.BasicBlock(n))
	}
	return out, nil
}

// splitTopLevel splits s at commas outside brackets.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(', '<', '[', '{':
			depth++
		case ')', '>', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		out = append(out, last)
	}
	return out
}
