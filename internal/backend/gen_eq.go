package backend

import (
	"fmt"

	"novus/internal/novasm"
	"novus/internal/prog"
)

// genEqFunc emits the equality function of a struct or union type. It takes
// the two operands as consts 0 and 1 and returns a bool.
func genEqFunc(p *prog.Program, b *novasm.Assembler, t prog.TypeID) {
	b.Label(eqLabel(t))
	b.AddReserveConsts(2)
	b.AddStoreConst(1)
	b.AddStoreConst(0)

	switch p.Kind(t) {
	case prog.KindStruct:
		genStructEq(p, b, p.Structs[t])
	case prog.KindUnion:
		if nu, ok := asNullableUnion(p, t); ok {
			genNullableUnionEq(b, nu)
		} else {
			genUnionEq(p, b, p.Unions[t])
		}
	default:
		panic(&GenError{Msg: fmt.Sprintf("equality is not defined for type %s", p.TypeName(t))})
	}
	b.AddFail()
}

func genStructEq(p *prog.Program, b *novasm.Assembler, s *prog.StructDef) {
	switch len(s.Fields) {
	case 0:
		b.AddLoadLitInt(1)
		b.AddRet()
		return
	case 1:
		b.AddLoadConst(0)
		b.AddLoadConst(1)
		genValueEq(p, b, s.Fields[0].Type)
		b.AddRet()
		return
	}

	for i, f := range s.Fields {
		next := b.GenerateLabel()
		b.AddLoadConst(0)
		b.AddLoadStructField(fieldIndex(i))
		b.AddLoadConst(1)
		b.AddLoadStructField(fieldIndex(i))
		genValueEq(p, b, f.Type)
		b.AddJumpIf(next)

		b.AddLoadLitInt(0)
		b.AddRet()
		b.Label(next)
	}
	b.AddLoadLitInt(1)
	b.AddRet()
}

func genUnionEq(p *prog.Program, b *novasm.Assembler, u *prog.UnionDef) {
	typeEq := b.GenerateLabel()
	valueEq := b.GenerateLabel()

	b.AddLoadConst(0)
	b.AddLoadStructField(0)
	b.AddLoadConst(1)
	b.AddLoadStructField(0)
	b.AddOp(novasm.OpCheckEqInt)
	b.AddJumpIf(typeEq)
	b.AddLoadLitInt(0)
	b.AddRet()

	b.Label(typeEq)
	members := make([]string, len(u.Types))
	for i := range u.Types {
		members[i] = b.GenerateLabel()
		b.AddLoadConst(0)
		b.AddLoadStructField(0)
		b.AddLoadLitInt(int32(i))
		b.AddOp(novasm.OpCheckEqInt)
		b.AddJumpIf(members[i])
	}
	b.AddFail()

	for i, m := range u.Types {
		b.Label(members[i])
		b.AddLoadConst(0)
		b.AddLoadStructField(1)
		b.AddLoadConst(1)
		b.AddLoadStructField(1)
		genValueEq(p, b, m)
		b.AddJumpIf(valueEq)
		b.AddLoadLitInt(0)
		b.AddRet()
	}

	b.Label(valueEq)
	b.AddLoadLitInt(1)
	b.AddRet()
}

func genNullableUnionEq(b *novasm.Assembler, nu nullableUnion) {
	aNull := b.GenerateLabel()
	bNull := b.GenerateLabel()

	b.AddLoadConst(0)
	b.AddOp(novasm.OpCheckStructNull)
	b.AddJumpIf(aNull)
	b.AddLoadConst(1)
	b.AddOp(novasm.OpCheckStructNull)
	b.AddJumpIf(bNull)

	b.AddLoadConst(0)
	b.AddLoadConst(1)
	b.AddCall(eqLabel(nu.structType), 2, novasm.CallTail)

	b.Label(aNull)
	b.AddLoadConst(1)
	b.AddOp(novasm.OpCheckStructNull)
	b.AddRet()

	b.Label(bNull)
	b.AddLoadLitInt(0)
	b.AddRet()
}

// genValueEq compares the two values on top of the stack.
func genValueEq(p *prog.Program, b *novasm.Assembler, t prog.TypeID) {
	switch p.Kind(t) {
	case prog.KindInt, prog.KindBool, prog.KindChar, prog.KindEnum:
		b.AddOp(novasm.OpCheckEqInt)
	case prog.KindLong:
		b.AddOp(novasm.OpCheckEqLong)
	case prog.KindFloat:
		b.AddOp(novasm.OpCheckEqFloat)
	case prog.KindString:
		b.AddOp(novasm.OpCheckEqString)
	case prog.KindStruct, prog.KindUnion:
		b.AddCall(eqLabel(t), 2, novasm.CallNormal)
	default:
		panic(&GenError{Msg: fmt.Sprintf("equality is not defined for type %s", p.TypeName(t))})
	}
}
