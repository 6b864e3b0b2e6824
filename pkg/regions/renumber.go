package regions

import "github.com/l3aro/go-region-facts/pkg/mir"

// Renumber replaces every region occurring in the types of body, including its
// promoted bodies, with a fresh existential variable of infcx. Each occurrence
// receives its own variable. It returns the number of variables allocated.
func Renumber(infcx *InferCtxt, body *mir.Body) int {
	before := infcx.NumRegionVars()
	renumberBody(infcx, body)
	return infcx.NumRegionVars() - before
}

func renumberBody(infcx *InferCtxt, body *mir.Body) {
	fresh := func(mir.Region) mir.Region { return infcx.FreshRegion() }

	for i := range body.Locals {
		body.Locals[i].Ty = body.Locals[i].Ty.FoldRegions(fresh)
	}

	for b := range body.Blocks {
		bb := &body.Blocks[b]
		for s := range bb.Statements {
			stmt := &bb.Statements[s]
			if stmt.Kind != mir.StmtAssign || stmt.Rvalue == nil {
				continue
			}
			rv := stmt.Rvalue
			switch rv.Kind {
			case mir.RvalueRef:
				rv.Region = infcx.FreshRegion()
			case mir.RvalueAggregate:
				rv.Ty = rv.Ty.FoldRegions(fresh)
			}
			renumberOperands(rv.Operands, fresh)
		}

		term := &bb.Terminator
		renumberOperands(term.Args, fresh)
		if term.Kind == mir.TermSwitchInt {
			ops := []mir.Operand{term.Discr}
			renumberOperands(ops, fresh)
			term.Discr = ops[0]
		}
	}

	for _, p := range body.Promoted {
		renumberBody(infcx, p)
	}
}

func renumberOperands(ops []mir.Operand, fresh func(mir.Region) mir.Region) {
	for i := range ops {
		if ops[i].Kind == mir.OperandConstant {
			ops[i].Ty = ops[i].Ty.FoldRegions(fresh)
		}
	}
}

// BodyRegions lists every region occurring in the types of body and its
// promoted bodies, in renumbering order.
func BodyRegions(body *mir.Body) []mir.Region {
	var out []mir.Region
	for _, d := range body.Locals {
		out = append(out, d.Ty.AllRegions()...)
	}
	operands := func(ops []mir.Operand) {
		for _, op := range ops {
			if op.Kind == mir.OperandConstant {
				out = append(out, op.Ty.AllRegions()...)
			}
		}
	}
	for _, bb := range body.Blocks {
		for _, stmt := range bb.Statements {
			if stmt.Kind != mir.StmtAssign || stmt.Rvalue == nil {
				continue
			}
			switch stmt.Rvalue.Kind {
			case mir.RvalueRef:
				out = append(out, stmt.Rvalue.Region)
			case mir.RvalueAggregate:
				out = append(out, stmt.Rvalue.Ty.AllRegions()...)
			}
			operands(stmt.Rvalue.Operands)
		}
		operands(bb.Terminator.Args)
		if bb.Terminator.Kind == mir.TermSwitchInt {
			operands([]mir.Operand{bb.Terminator.Discr})
		}
	}
	for _, p := range body.Promoted {
		out = append(out, BodyRegions(p)...)
	}
	return out
}
