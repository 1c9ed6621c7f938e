package vm

import (
	"bytes"
	"math"

	"novus/internal/novasm"
)

// dispatch executes op whose operands start at at.
func (e *executor) dispatch(op novasm.OpCode, at uint32) {
	heap := e.m.heap
	asm := e.asm

	switch op {
	case novasm.OpLoadLitInt:
		e.pushInt(asm.ReadInt32(at))
	case novasm.OpLoadLitLong:
		e.pushLong(asm.ReadInt64(at))
	case novasm.OpLoadLitFloat:
		e.pushFloat(asm.ReadFloat32(at))
	case novasm.OpLoadLitString:
		s, ok := asm.LitString(asm.ReadUint32(at))
		if !ok {
			e.fail(StateInvalidAssembly)
			return
		}
		e.pushRef(heap.NewStringLit(s))
	case novasm.OpLoadLitIp:
		e.pushInt(int32(asm.ReadUint32(at)))

	case novasm.OpReserveConsts:
		if !e.consts.reserve(int(asm.ReadUint8(at))) {
			e.fail(StateStackOverflow)
		}
	case novasm.OpStoreConst:
		e.consts.store(asm.ReadUint8(at), e.pop())
	case novasm.OpLoadConst:
		e.push(e.consts.load(asm.ReadUint8(at)))
	case novasm.OpDup:
		e.push(e.eval.peek())
	case novasm.OpPop:
		e.pop()

	case novasm.OpAddInt, novasm.OpSubInt, novasm.OpMulInt, novasm.OpDivInt, novasm.OpRemInt,
		novasm.OpShiftLeftInt, novasm.OpShiftRightInt, novasm.OpAndInt, novasm.OpOrInt, novasm.OpXorInt:
		b := e.popInt()
		a := e.popInt()
		e.intBinary(op, a, b)
	case novasm.OpNegInt:
		e.pushInt(-e.popInt())
	case novasm.OpLogicInvInt:
		e.pushBool(e.popInt() == 0)
	case novasm.OpInvInt:
		e.pushInt(^e.popInt())

	case novasm.OpAddLong, novasm.OpSubLong, novasm.OpMulLong, novasm.OpDivLong, novasm.OpRemLong:
		b := e.popLong()
		a := e.popLong()
		e.longBinary(op, a, b)
	case novasm.OpNegLong:
		e.pushLong(-e.popLong())

	case novasm.OpAddFloat, novasm.OpSubFloat, novasm.OpMulFloat, novasm.OpDivFloat,
		novasm.OpModFloat, novasm.OpPowFloat, novasm.OpATan2Float:
		b := e.popFloat()
		a := e.popFloat()
		e.floatBinary(op, a, b)
	case novasm.OpSqrtFloat, novasm.OpSinFloat, novasm.OpCosFloat, novasm.OpTanFloat,
		novasm.OpASinFloat, novasm.OpACosFloat, novasm.OpATanFloat, novasm.OpNegFloat:
		e.pushFloat(floatUnary(op, e.popFloat()))

	case novasm.OpAddString:
		b := e.popBytes()
		a := e.popBytes()
		out := make([]byte, 0, len(a)+len(b))
		e.pushString(append(append(out, a...), b...))
	case novasm.OpAppendChar:
		ch := byte(e.popInt())
		str := e.pop()
		e.pushRef(heap.newStringLink(str, ch))
	case novasm.OpLengthString:
		e.pushInt(int32(len(e.popBytes())))
	case novasm.OpIndexString:
		idx := e.popInt()
		e.pushInt(int32(indexString(e.popBytes(), idx)))
	case novasm.OpSliceString:
		end := e.popInt()
		start := e.popInt()
		str := e.pop()
		e.sliceString(str, start, end)
	case novasm.OpCombineChar:
		b := byte(e.popInt())
		a := byte(e.popInt())
		e.pushString([]byte{a, b})

	case novasm.OpCheckEqInt:
		b, a := e.popInt(), e.popInt()
		e.pushBool(a == b)
	case novasm.OpCheckGtInt:
		b, a := e.popInt(), e.popInt()
		e.pushBool(a > b)
	case novasm.OpCheckLeInt:
		b, a := e.popInt(), e.popInt()
		e.pushBool(a < b)
	case novasm.OpCheckEqLong:
		b, a := e.popLong(), e.popLong()
		e.pushBool(a == b)
	case novasm.OpCheckGtLong:
		b, a := e.popLong(), e.popLong()
		e.pushBool(a > b)
	case novasm.OpCheckLeLong:
		b, a := e.popLong(), e.popLong()
		e.pushBool(a < b)
	case novasm.OpCheckEqFloat:
		b, a := e.popFloat(), e.popFloat()
		e.pushBool(a == b)
	case novasm.OpCheckGtFloat:
		b, a := e.popFloat(), e.popFloat()
		e.pushBool(a > b)
	case novasm.OpCheckLeFloat:
		b, a := e.popFloat(), e.popFloat()
		e.pushBool(a < b)
	case novasm.OpCheckEqString:
		b, a := e.popBytes(), e.popBytes()
		e.pushBool(bytes.Equal(a, b))
	case novasm.OpCheckStructNull:
		e.pushBool(e.pop().IsNullStruct())

	case novasm.OpConvIntLong:
		e.pushLong(int64(e.popInt()))
	case novasm.OpConvIntFloat:
		e.pushFloat(float32(e.popInt()))
	case novasm.OpConvLongInt:
		e.pushInt(int32(e.popLong()))
	case novasm.OpConvFloatInt:
		e.pushInt(floatToInt(e.popFloat()))
	case novasm.OpConvIntString:
		e.pushString(formatInt(int64(e.popInt())))
	case novasm.OpConvLongString:
		e.pushString(formatInt(e.popLong()))
	case novasm.OpConvFloatString:
		e.pushString(formatFloat(e.popFloat()))
	case novasm.OpConvBoolString:
		e.pushString(formatBool(e.popInt() != 0))
	case novasm.OpConvCharString:
		e.pushString([]byte{byte(e.popInt())})
	case novasm.OpConvIntChar:
		e.pushInt(e.popInt() & 0xFF)
	case novasm.OpConvFloatChar:
		e.pushInt(floatToInt(e.popFloat()) & 0xFF)

	case novasm.OpMakeStruct:
		fields := e.eval.popN(int(asm.ReadUint8(at)))
		e.pushRef(heap.NewStruct(fields))
	case novasm.OpMakeNullStruct:
		e.push(MakeNullStruct())
	case novasm.OpLoadStructField:
		fields := heap.Fields(e.pop())
		idx := int(asm.ReadUint8(at))
		if idx >= len(fields) {
			e.fail(StateInvalidAssembly)
			return
		}
		e.push(fields[idx])

	case novasm.OpJump:
		e.ip = asm.ReadUint32(at)
	case novasm.OpJumpIf:
		if e.popInt() != 0 {
			e.ip = asm.ReadUint32(at)
		}
	case novasm.OpCall:
		e.call(asm.ReadUint32(at), int(asm.ReadUint8(at+4)), novasm.CallMode(asm.ReadUint8(at+5)))
	case novasm.OpCallDyn:
		e.callDyn(int(asm.ReadUint8(at)), novasm.CallMode(asm.ReadUint8(at+1)))
	case novasm.OpPCall:
		e.pcall(novasm.PCallCode(asm.ReadUint8(at)))
	case novasm.OpRet:
		e.ret()
	case novasm.OpFail:
		e.fail(StateInvalidAssembly)

	case novasm.OpFutureWaitNano:
		e.futureWait()
	case novasm.OpFutureBlock:
		e.futureBlock()
	case novasm.OpLazyGet:
		e.lazyGet()

	default:
		e.fail(StateInvalidAssembly)
	}
}

// Int arithmetic wraps; shift counts use their low five bits.
func (e *executor) intBinary(op novasm.OpCode, a, b int32) {
	switch op {
	case novasm.OpAddInt:
		e.pushInt(a + b)
	case novasm.OpSubInt:
		e.pushInt(a - b)
	case novasm.OpMulInt:
		e.pushInt(a * b)
	case novasm.OpDivInt:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushInt(a / b)
	case novasm.OpRemInt:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushInt(a % b)
	case novasm.OpShiftLeftInt:
		e.pushInt(a << (uint32(b) & 31))
	case novasm.OpShiftRightInt:
		e.pushInt(a >> (uint32(b) & 31))
	case novasm.OpAndInt:
		e.pushInt(a & b)
	case novasm.OpOrInt:
		e.pushInt(a | b)
	case novasm.OpXorInt:
		e.pushInt(a ^ b)
	}
}

func (e *executor) longBinary(op novasm.OpCode, a, b int64) {
	switch op {
	case novasm.OpAddLong:
		e.pushLong(a + b)
	case novasm.OpSubLong:
		e.pushLong(a - b)
	case novasm.OpMulLong:
		e.pushLong(a * b)
	case novasm.OpDivLong:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushLong(a / b)
	case novasm.OpRemLong:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushLong(a % b)
	}
}

func (e *executor) floatBinary(op novasm.OpCode, a, b float32) {
	switch op {
	case novasm.OpAddFloat:
		e.pushFloat(a + b)
	case novasm.OpSubFloat:
		e.pushFloat(a - b)
	case novasm.OpMulFloat:
		e.pushFloat(a * b)
	case novasm.OpDivFloat:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushFloat(a / b)
	case novasm.OpModFloat:
		if b == 0 {
			e.fail(StateDivByZero)
			return
		}
		e.pushFloat(float32(math.Mod(float64(a), float64(b))))
	case novasm.OpPowFloat:
		e.pushFloat(float32(math.Pow(float64(a), float64(b))))
	case novasm.OpATan2Float:
		e.pushFloat(float32(math.Atan2(float64(a), float64(b))))
	}
}

func floatUnary(op novasm.OpCode, a float32) float32 {
	x := float64(a)
	switch op {
	case novasm.OpSqrtFloat:
		return float32(math.Sqrt(x))
	case novasm.OpSinFloat:
		return float32(math.Sin(x))
	case novasm.OpCosFloat:
		return float32(math.Cos(x))
	case novasm.OpTanFloat:
		return float32(math.Tan(x))
	case novasm.OpASinFloat:
		return float32(math.Asin(x))
	case novasm.OpACosFloat:
		return float32(math.Acos(x))
	case novasm.OpATanFloat:
		return float32(math.Atan(x))
	default:
		return -a
	}
}

// floatToInt truncates toward zero; NaN and out of range values become
// math.MinInt32.
func floatToInt(f float32) int32 {
	if f != f || f >= 2147483648 || f < -2147483648 {
		return math.MinInt32
	}
	return int32(f)
}
