package backend

import (
	"fmt"

	"novus/internal/novasm"
	"novus/internal/prog"
)

// exprGen emits one function body (or exec statement) depth-first. tail
// marks whether the expression being generated is in tail position.
type exprGen struct {
	prog    *prog.Program
	b       *novasm.Assembler
	consts  *prog.ConstTable
	curFunc *prog.FuncDecl // nil for exec statements
}

func (g *exprGen) fail(format string, args ...any) {
	panic(&GenError{Msg: fmt.Sprintf(format, args...)})
}

func (g *exprGen) gen(e prog.Expr, tail bool) {
	switch e := e.(type) {
	case *prog.AssignExpr:
		g.gen(e.Value, false)
		g.b.AddDup()
		g.b.AddStoreConst(constSlot(e.Const))
	case *prog.SwitchExpr:
		g.genSwitch(e, tail)
	case *prog.CallExpr:
		g.genCall(e, tail)
	case *prog.CallDynExpr:
		g.genCallDyn(e, tail)
	case *prog.CallSelfExpr:
		g.genCallSelf(e, tail)
	case *prog.ClosureExpr:
		for _, arg := range e.Bound {
			g.gen(arg, false)
		}
		g.b.AddLoadLitIp(funcLabel(e.Func))
		g.b.AddMakeStruct(g.structSize(len(e.Bound) + 1))
	case *prog.ConstExpr:
		g.b.AddLoadConst(constSlot(e.ID))
	case *prog.FieldExpr:
		g.genField(e)
	case *prog.GroupExpr:
		if len(e.Exprs) == 0 {
			g.fail("empty group expression")
		}
		for i, sub := range e.Exprs {
			last := i == len(e.Exprs)-1
			g.gen(sub, tail && last)
			if !last {
				g.b.AddPop()
			}
		}
	case *prog.UnionCheckExpr:
		g.genUnionCheck(e)
	case *prog.UnionGetExpr:
		g.genUnionGet(e)
	case *prog.FailExpr:
		g.b.AddFail()
	case *prog.LitBoolExpr:
		if e.Val {
			g.b.AddLoadLitInt(1)
		} else {
			g.b.AddLoadLitInt(0)
		}
	case *prog.LitFloatExpr:
		g.b.AddLoadLitFloat(e.Val)
	case *prog.LitFuncExpr:
		g.b.AddLoadLitIp(funcLabel(e.Func))
	case *prog.LitIntExpr:
		g.b.AddLoadLitInt(e.Val)
	case *prog.LitLongExpr:
		g.b.AddLoadLitLong(e.Val)
	case *prog.LitStringExpr:
		g.b.AddLoadLitString(e.Val)
	case *prog.LitCharExpr:
		g.b.AddLoadLitInt(int32(e.Val))
	case *prog.LitEnumExpr:
		g.b.AddLoadLitInt(e.Val)
	case nil:
		g.fail("missing expression")
	default:
		g.fail("unsupported expression %T", e)
	}
}

// genSwitch jumps to the branch of the first true condition; the else
// branch falls through right after the conditions.
func (g *exprGen) genSwitch(e *prog.SwitchExpr, tail bool) {
	if len(e.Branches) != len(e.Conditions)+1 {
		g.fail("switch with %d conditions needs %d branches, got %d", len(e.Conditions), len(e.Conditions)+1, len(e.Branches))
	}
	labels := make([]string, len(e.Conditions))
	for i := range labels {
		labels[i] = g.b.GenerateLabel()
	}
	end := g.b.GenerateLabel()

	for i, cond := range e.Conditions {
		g.gen(cond, false)
		g.b.AddJumpIf(labels[i])
	}

	g.gen(e.Branches[len(e.Branches)-1], tail)
	g.b.AddJump(end)

	for i := range e.Conditions {
		g.b.Label(labels[i])
		g.gen(e.Branches[i], tail)
		if i != len(e.Conditions)-1 {
			g.b.AddJump(end)
		}
	}
	g.b.Label(end)
}

func (g *exprGen) genCallDyn(e *prog.CallDynExpr, tail bool) {
	for _, arg := range e.Args {
		g.gen(arg, false)
	}
	g.gen(e.Target, false)

	mode := novasm.CallNormal
	switch {
	case e.Fork:
		mode = novasm.CallForked
	case tail:
		mode = novasm.CallTail
	}
	g.b.AddCallDyn(argCount(len(e.Args)), mode)
}

// genCallSelf calls the enclosing function again, reusing its bound inputs.
func (g *exprGen) genCallSelf(e *prog.CallSelfExpr, tail bool) {
	if g.curFunc == nil {
		g.fail("self call outside of a function")
	}
	if g.curFunc.Output != e.Result {
		g.fail("self call result %s does not match %s", g.prog.TypeName(e.Result), g.prog.TypeName(g.curFunc.Output))
	}
	nonBound := g.consts.NonBoundInputs()
	if len(e.Args) != len(nonBound) {
		g.fail("self call with %d arguments, function takes %d", len(e.Args), len(nonBound))
	}
	for i, id := range nonBound {
		decl, _ := g.consts.Decl(id)
		if e.Args[i].Type() != decl.Type {
			g.fail("self call argument %d has type %s, expected %s", i, g.prog.TypeName(e.Args[i].Type()), g.prog.TypeName(decl.Type))
		}
	}

	for _, arg := range e.Args {
		g.gen(arg, false)
	}
	for _, id := range g.consts.BoundInputs() {
		g.b.AddLoadConst(constSlot(id))
	}

	mode := novasm.CallNormal
	if tail {
		mode = novasm.CallTail
	}
	g.b.AddCall(funcLabel(g.curFunc.ID), argCount(len(g.curFunc.Input)), mode)
}

func (g *exprGen) genField(e *prog.FieldExpr) {
	g.gen(e.Struct, false)

	t := e.Struct.Type()
	if g.prog.Kind(t) != prog.KindStruct {
		g.fail("field access on non-struct type %s", g.prog.TypeName(t))
	}
	switch n := g.prog.FieldCount(t); {
	case n == 0:
		g.fail("field access on struct %s without fields", g.prog.TypeName(t))
	case n == 1:
		// The struct value is its only field.
	case e.Field < 0 || e.Field >= n:
		g.fail("field %d out of range for struct %s", e.Field, g.prog.TypeName(t))
	default:
		g.b.AddLoadStructField(fieldIndex(e.Field))
	}
}

func (g *exprGen) genUnionCheck(e *prog.UnionCheckExpr) {
	g.gen(e.Union, false)

	union := e.Union.Type()
	if nu, ok := asNullableUnion(g.prog, union); ok {
		g.b.AddOp(novasm.OpCheckStructNull)
		if e.Target == nu.structType {
			g.b.AddOp(novasm.OpLogicInvInt)
		}
		return
	}

	g.b.AddLoadStructField(0)
	g.b.AddLoadLitInt(unionTypeID(g.prog, union, e.Target))
	g.b.AddOp(novasm.OpCheckEqInt)
}

// genUnionGet leaves a bool on the stack and, when it is true, the member
// value in the target const.
func (g *exprGen) genUnionGet(e *prog.UnionGetExpr) {
	g.gen(e.Union, false)

	union := e.Union.Type()
	slot := constSlot(e.Const)
	if nu, ok := asNullableUnion(g.prog, union); ok {
		g.b.AddDup()
		g.b.AddStoreConst(slot)
		g.b.AddOp(novasm.OpCheckStructNull)
		if e.Target == nu.structType {
			g.b.AddOp(novasm.OpLogicInvInt)
		}
		return
	}

	typeEq := g.b.GenerateLabel()
	end := g.b.GenerateLabel()

	g.b.AddDup()
	g.b.AddLoadStructField(0)
	g.b.AddLoadLitInt(unionTypeID(g.prog, union, e.Target))
	g.b.AddOp(novasm.OpCheckEqInt)
	g.b.AddJumpIf(typeEq)

	g.b.AddPop()
	g.b.AddLoadLitInt(0)
	g.b.AddJump(end)

	g.b.Label(typeEq)
	g.b.AddLoadStructField(1)
	g.b.AddStoreConst(slot)
	g.b.AddLoadLitInt(1)

	g.b.Label(end)
}

func (g *exprGen) structSize(n int) uint8 {
	if n > 255 {
		g.fail("struct with %d fields exceeds the 255 field limit", n)
	}
	return uint8(n)
}
