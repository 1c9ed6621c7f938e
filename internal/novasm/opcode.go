package novasm

import "fmt"

// OpCode identifies a single instruction in the assembly byte stream.
type OpCode uint8

// Literals
const (
	OpLoadLitInt OpCode = iota + 1
	OpLoadLitLong
	OpLoadLitFloat
	OpLoadLitString
	OpLoadLitIp
)

// Consts and stack shuffling
const (
	OpReserveConsts OpCode = iota + 0x10
	OpStoreConst
	OpLoadConst
	OpDup
	OpPop
)

// Int arithmetic and bitwise
const (
	OpAddInt OpCode = iota + 0x20
	OpSubInt
	OpMulInt
	OpDivInt
	OpRemInt
	OpNegInt
	OpLogicInvInt
	OpShiftLeftInt
	OpShiftRightInt
	OpAndInt
	OpOrInt
	OpXorInt
	OpInvInt
)

// Long arithmetic
const (
	OpAddLong OpCode = iota + 0x30
	OpSubLong
	OpMulLong
	OpDivLong
	OpRemLong
	OpNegLong
)

// Float arithmetic
const (
	OpAddFloat OpCode = iota + 0x40
	OpSubFloat
	OpMulFloat
	OpDivFloat
	OpModFloat
	OpPowFloat
	OpSqrtFloat
	OpSinFloat
	OpCosFloat
	OpTanFloat
	OpASinFloat
	OpACosFloat
	OpATanFloat
	OpATan2Float
	OpNegFloat
)

// Strings
const (
	OpAddString OpCode = iota + 0x50
	OpAppendChar
	OpLengthString
	OpIndexString
	OpSliceString
	OpCombineChar
)

// Checks
const (
	OpCheckEqInt OpCode = iota + 0x60
	OpCheckEqLong
	OpCheckEqFloat
	OpCheckEqString
	OpCheckGtInt
	OpCheckGtLong
	OpCheckGtFloat
	OpCheckLeInt
	OpCheckLeLong
	OpCheckLeFloat
	OpCheckStructNull
)

// Conversions
const (
	OpConvIntLong OpCode = iota + 0x70
	OpConvIntFloat
	OpConvLongInt
	OpConvFloatInt
	OpConvIntString
	OpConvLongString
	OpConvFloatString
	OpConvBoolString
	OpConvCharString
	OpConvIntChar
	OpConvFloatChar
)

// Structs
const (
	OpMakeStruct OpCode = iota + 0x80
	OpMakeNullStruct
	OpLoadStructField
)

// Control flow
const (
	OpJump OpCode = iota + 0x90
	OpJumpIf
	OpCall
	OpCallDyn
	OpPCall
	OpRet
	OpFail
)

// Futures and lazy values
const (
	OpFutureWaitNano OpCode = iota + 0xA0
	OpFutureBlock
	OpLazyGet
)

// OperandKind describes the encoding of a single instruction operand.
type OperandKind uint8

const (
	OperandU8 OperandKind = iota + 1
	OperandI32
	OperandU32
	OperandF32
	OperandI64
)

// Size returns the encoded width of the operand in bytes.
func (k OperandKind) Size() int {
	switch k {
	case OperandU8:
		return 1
	case OperandI32, OperandU32, OperandF32:
		return 4
	case OperandI64:
		return 8
	default:
		return 0
	}
}

// OpInfo holds the static metadata of an opcode.
type OpInfo struct {
	Name     string
	Operands []OperandKind
}

// Size returns the full encoded size of the instruction including the opcode byte.
func (i OpInfo) Size() int {
	n := 1
	for _, k := range i.Operands {
		n += k.Size()
	}
	return n
}

var (
	noOperands = []OperandKind(nil)
	oneU8      = []OperandKind{OperandU8}
)

var opTable = map[OpCode]OpInfo{
	OpLoadLitInt:    {"load-lit-int", []OperandKind{OperandI32}},
	OpLoadLitLong:   {"load-lit-long", []OperandKind{OperandI64}},
	OpLoadLitFloat:  {"load-lit-float", []OperandKind{OperandF32}},
	OpLoadLitString: {"load-lit-string", []OperandKind{OperandU32}},
	OpLoadLitIp:     {"load-lit-ip", []OperandKind{OperandU32}},

	OpReserveConsts: {"reserve-consts", oneU8},
	OpStoreConst:    {"store-const", oneU8},
	OpLoadConst:     {"load-const", oneU8},
	OpDup:           {"dup", noOperands},
	OpPop:           {"pop", noOperands},

	OpAddInt:        {"add-int", noOperands},
	OpSubInt:        {"sub-int", noOperands},
	OpMulInt:        {"mul-int", noOperands},
	OpDivInt:        {"div-int", noOperands},
	OpRemInt:        {"rem-int", noOperands},
	OpNegInt:        {"neg-int", noOperands},
	OpLogicInvInt:   {"logic-inv-int", noOperands},
	OpShiftLeftInt:  {"shift-left-int", noOperands},
	OpShiftRightInt: {"shift-right-int", noOperands},
	OpAndInt:        {"and-int", noOperands},
	OpOrInt:         {"or-int", noOperands},
	OpXorInt:        {"xor-int", noOperands},
	OpInvInt:        {"inv-int", noOperands},

	OpAddLong: {"add-long", noOperands},
	OpSubLong: {"sub-long", noOperands},
	OpMulLong: {"mul-long", noOperands},
	OpDivLong: {"div-long", noOperands},
	OpRemLong: {"rem-long", noOperands},
	OpNegLong: {"neg-long", noOperands},

	OpAddFloat:   {"add-float", noOperands},
	OpSubFloat:   {"sub-float", noOperands},
	OpMulFloat:   {"mul-float", noOperands},
	OpDivFloat:   {"div-float", noOperands},
	OpModFloat:   {"mod-float", noOperands},
	OpPowFloat:   {"pow-float", noOperands},
	OpSqrtFloat:  {"sqrt-float", noOperands},
	OpSinFloat:   {"sin-float", noOperands},
	OpCosFloat:   {"cos-float", noOperands},
	OpTanFloat:   {"tan-float", noOperands},
	OpASinFloat:  {"asin-float", noOperands},
	OpACosFloat:  {"acos-float", noOperands},
	OpATanFloat:  {"atan-float", noOperands},
	OpATan2Float: {"atan2-float", noOperands},
	OpNegFloat:   {"neg-float", noOperands},

	OpAddString:    {"add-string", noOperands},
	OpAppendChar:   {"append-char", noOperands},
	OpLengthString: {"length-string", noOperands},
	OpIndexString:  {"index-string", noOperands},
	OpSliceString:  {"slice-string", noOperands},
	OpCombineChar:  {"combine-char", noOperands},

	OpCheckEqInt:      {"check-eq-int", noOperands},
	OpCheckEqLong:     {"check-eq-long", noOperands},
	OpCheckEqFloat:    {"check-eq-float", noOperands},
	OpCheckEqString:   {"check-eq-string", noOperands},
	OpCheckGtInt:      {"check-gt-int", noOperands},
	OpCheckGtLong:     {"check-gt-long", noOperands},
	OpCheckGtFloat:    {"check-gt-float", noOperands},
	OpCheckLeInt:      {"check-le-int", noOperands},
	OpCheckLeLong:     {"check-le-long", noOperands},
	OpCheckLeFloat:    {"check-le-float", noOperands},
	OpCheckStructNull: {"check-struct-null", noOperands},

	OpConvIntLong:     {"conv-int-long", noOperands},
	OpConvIntFloat:    {"conv-int-float", noOperands},
	OpConvLongInt:     {"conv-long-int", noOperands},
	OpConvFloatInt:    {"conv-float-int", noOperands},
	OpConvIntString:   {"conv-int-string", noOperands},
	OpConvLongString:  {"conv-long-string", noOperands},
	OpConvFloatString: {"conv-float-string", noOperands},
	OpConvBoolString:  {"conv-bool-string", noOperands},
	OpConvCharString:  {"conv-char-string", noOperands},
	OpConvIntChar:     {"conv-int-char", noOperands},
	OpConvFloatChar:   {"conv-float-char", noOperands},

	OpMakeStruct:      {"make-struct", oneU8},
	OpMakeNullStruct:  {"make-null-struct", noOperands},
	OpLoadStructField: {"load-struct-field", oneU8},

	OpJump:    {"jump", []OperandKind{OperandU32}},
	OpJumpIf:  {"jump-if", []OperandKind{OperandU32}},
	OpCall:    {"call", []OperandKind{OperandU32, OperandU8, OperandU8}},
	OpCallDyn: {"call-dyn", []OperandKind{OperandU8, OperandU8}},
	OpPCall:   {"pcall", oneU8},
	OpRet:     {"ret", noOperands},
	OpFail:    {"fail", noOperands},

	OpFutureWaitNano: {"future-wait-nano", noOperands},
	OpFutureBlock:    {"future-block", noOperands},
	OpLazyGet:        {"lazy-get", noOperands},
}

// Info returns the metadata for op and whether op is a known opcode.
func (op OpCode) Info() (OpInfo, bool) {
	info, ok := opTable[op]
	return info, ok
}

// Valid reports whether op is part of the instruction set.
func (op OpCode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// String returns the mnemonic of the opcode.
func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(0x%02x)", uint8(op))
}

// CallMode selects how a call instruction activates its target.
type CallMode uint8

const (
	CallNormal CallMode = iota
	CallTail
	CallForked
	CallLazy
)

func (m CallMode) String() string {
	switch m {
	case CallNormal:
		return "normal"
	case CallTail:
		return "tail"
	case CallForked:
		return "forked"
	case CallLazy:
		return "lazy"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}
