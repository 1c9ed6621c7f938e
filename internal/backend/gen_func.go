package backend

import (
	"fmt"

	"fortio.org/safecast"

	"novus/internal/novasm"
	"novus/internal/prog"
)

// genFunc emits: reserve consts, store inputs (last argument is on top of
// the stack, so in reverse), body in tail position, ret.
func genFunc(p *prog.Program, b *novasm.Assembler, decl prog.FuncDecl, def *prog.FuncDef) {
	b.Label(funcLabel(decl.ID))
	reserveConsts(b, &def.Consts)
	inputs := def.Consts.Inputs()
	for i := len(inputs) - 1; i >= 0; i-- {
		b.AddStoreConst(constSlot(inputs[i]))
	}

	g := &exprGen{prog: p, b: b, consts: &def.Consts, curFunc: &decl}
	g.gen(def.Body, true)
	b.AddRet()
	b.AddFail()
}

// genExec emits an entry point evaluating one top-level statement and
// discarding its value.
func genExec(p *prog.Program, b *novasm.Assembler, label string, ex *prog.ExecStmt) {
	b.Label(label)
	b.AddEntryPoint(label)
	reserveConsts(b, &ex.Consts)

	g := &exprGen{prog: p, b: b, consts: &ex.Consts}
	g.gen(ex.Expr, false)
	b.AddPop()
	b.AddRet()
	b.AddFail()
}

func reserveConsts(b *novasm.Assembler, consts *prog.ConstTable) {
	if consts.Count() == 0 {
		return
	}
	n, err := safecast.Conv[uint8](consts.Count())
	if err != nil {
		panic(&GenError{Msg: fmt.Sprintf("%d consts exceed the 255 slot limit", consts.Count())})
	}
	b.AddReserveConsts(n)
}

func constSlot(id prog.ConstID) uint8 {
	slot, err := safecast.Conv[uint8](id)
	if err != nil {
		panic(&GenError{Msg: fmt.Sprintf("const slot %d exceeds the 255 slot limit", id)})
	}
	return slot
}

func argCount(n int) uint8 {
	c, err := safecast.Conv[uint8](n)
	if err != nil {
		panic(&GenError{Msg: fmt.Sprintf("%d arguments exceed the 255 argument limit", n)})
	}
	return c
}

func fieldIndex(i int) uint8 {
	f, err := safecast.Conv[uint8](i)
	if err != nil {
		panic(&GenError{Msg: fmt.Sprintf("field index %d exceeds the 255 field limit", i)})
	}
	return f
}
