package backend

import (
	"novus/internal/novasm"
	"novus/internal/prog"
)

// simpleOps lowers built-in kinds that are a fixed opcode sequence applied
// to the already pushed arguments. Comparisons without a dedicated opcode
// are the inverse of their complement.
var simpleOps = map[prog.FuncKind][]novasm.OpCode{
	prog.FuncAddInt:        {novasm.OpAddInt},
	prog.FuncSubInt:        {novasm.OpSubInt},
	prog.FuncMulInt:        {novasm.OpMulInt},
	prog.FuncDivInt:        {novasm.OpDivInt},
	prog.FuncRemInt:        {novasm.OpRemInt},
	prog.FuncNegateInt:     {novasm.OpNegInt},
	prog.FuncShiftLeftInt:  {novasm.OpShiftLeftInt},
	prog.FuncShiftRightInt: {novasm.OpShiftRightInt},
	prog.FuncAndInt:        {novasm.OpAndInt},
	prog.FuncOrInt:         {novasm.OpOrInt},
	prog.FuncXorInt:        {novasm.OpXorInt},
	prog.FuncInvInt:        {novasm.OpInvInt},
	prog.FuncCheckEqInt:    {novasm.OpCheckEqInt},
	prog.FuncCheckNEqInt:   {novasm.OpCheckEqInt, novasm.OpLogicInvInt},
	prog.FuncCheckLeInt:    {novasm.OpCheckLeInt},
	prog.FuncCheckLeEqInt:  {novasm.OpCheckGtInt, novasm.OpLogicInvInt},
	prog.FuncCheckGtInt:    {novasm.OpCheckGtInt},
	prog.FuncCheckGtEqInt:  {novasm.OpCheckLeInt, novasm.OpLogicInvInt},

	prog.FuncAddLong:       {novasm.OpAddLong},
	prog.FuncSubLong:       {novasm.OpSubLong},
	prog.FuncMulLong:       {novasm.OpMulLong},
	prog.FuncDivLong:       {novasm.OpDivLong},
	prog.FuncRemLong:       {novasm.OpRemLong},
	prog.FuncNegateLong:    {novasm.OpNegLong},
	prog.FuncCheckEqLong:   {novasm.OpCheckEqLong},
	prog.FuncCheckNEqLong:  {novasm.OpCheckEqLong, novasm.OpLogicInvInt},
	prog.FuncCheckLeLong:   {novasm.OpCheckLeLong},
	prog.FuncCheckLeEqLong: {novasm.OpCheckGtLong, novasm.OpLogicInvInt},
	prog.FuncCheckGtLong:   {novasm.OpCheckGtLong},
	prog.FuncCheckGtEqLong: {novasm.OpCheckLeLong, novasm.OpLogicInvInt},

	prog.FuncAddFloat:       {novasm.OpAddFloat},
	prog.FuncSubFloat:       {novasm.OpSubFloat},
	prog.FuncMulFloat:       {novasm.OpMulFloat},
	prog.FuncDivFloat:       {novasm.OpDivFloat},
	prog.FuncModFloat:       {novasm.OpModFloat},
	prog.FuncPowFloat:       {novasm.OpPowFloat},
	prog.FuncSqrtFloat:      {novasm.OpSqrtFloat},
	prog.FuncSinFloat:       {novasm.OpSinFloat},
	prog.FuncCosFloat:       {novasm.OpCosFloat},
	prog.FuncTanFloat:       {novasm.OpTanFloat},
	prog.FuncASinFloat:      {novasm.OpASinFloat},
	prog.FuncACosFloat:      {novasm.OpACosFloat},
	prog.FuncATanFloat:      {novasm.OpATanFloat},
	prog.FuncATan2Float:     {novasm.OpATan2Float},
	prog.FuncNegateFloat:    {novasm.OpNegFloat},
	prog.FuncCheckEqFloat:   {novasm.OpCheckEqFloat},
	prog.FuncCheckNEqFloat:  {novasm.OpCheckEqFloat, novasm.OpLogicInvInt},
	prog.FuncCheckLeFloat:   {novasm.OpCheckLeFloat},
	prog.FuncCheckLeEqFloat: {novasm.OpCheckGtFloat, novasm.OpLogicInvInt},
	prog.FuncCheckGtFloat:   {novasm.OpCheckGtFloat},
	prog.FuncCheckGtEqFloat: {novasm.OpCheckLeFloat, novasm.OpLogicInvInt},

	prog.FuncInvBool:      {novasm.OpLogicInvInt},
	prog.FuncCheckEqBool:  {novasm.OpCheckEqInt},
	prog.FuncCheckNEqBool: {novasm.OpCheckEqInt, novasm.OpLogicInvInt},

	prog.FuncAddString:      {novasm.OpAddString},
	prog.FuncLengthString:   {novasm.OpLengthString},
	prog.FuncIndexString:    {novasm.OpIndexString},
	prog.FuncSliceString:    {novasm.OpSliceString},
	prog.FuncCheckEqString:  {novasm.OpCheckEqString},
	prog.FuncCheckNEqString: {novasm.OpCheckEqString, novasm.OpLogicInvInt},

	prog.FuncCombineChar: {novasm.OpCombineChar},
	prog.FuncAppendChar:  {novasm.OpAppendChar},

	prog.FuncConvIntLong:     {novasm.OpConvIntLong},
	prog.FuncConvIntFloat:    {novasm.OpConvIntFloat},
	prog.FuncConvLongInt:     {novasm.OpConvLongInt},
	prog.FuncConvFloatInt:    {novasm.OpConvFloatInt},
	prog.FuncConvIntString:   {novasm.OpConvIntString},
	prog.FuncConvLongString:  {novasm.OpConvLongString},
	prog.FuncConvFloatString: {novasm.OpConvFloatString},
	prog.FuncConvBoolString:  {novasm.OpConvBoolString},
	prog.FuncConvCharString:  {novasm.OpConvCharString},
	prog.FuncConvIntChar:     {novasm.OpConvIntChar},
	prog.FuncConvFloatChar:   {novasm.OpConvFloatChar},

	prog.FuncFutureWaitNano: {novasm.OpFutureWaitNano},
	prog.FuncFutureBlock:    {novasm.OpFutureBlock},
	prog.FuncLazyGet:        {novasm.OpLazyGet},
}

var actionCalls = map[prog.FuncKind]novasm.PCallCode{
	prog.FuncActionConWriteChar:         novasm.PCallConWriteChar,
	prog.FuncActionConWriteString:       novasm.PCallConWriteString,
	prog.FuncActionConWriteStringLine:   novasm.PCallConWriteStringLine,
	prog.FuncActionConReadChar:          novasm.PCallConReadChar,
	prog.FuncActionConReadStringLine:    novasm.PCallConReadStringLine,
	prog.FuncActionStreamCheckValid:     novasm.PCallStreamCheckValid,
	prog.FuncActionStreamReadString:     novasm.PCallStreamReadString,
	prog.FuncActionStreamReadChar:       novasm.PCallStreamReadChar,
	prog.FuncActionStreamWriteString:    novasm.PCallStreamWriteString,
	prog.FuncActionStreamWriteChar:      novasm.PCallStreamWriteChar,
	prog.FuncActionStreamFlush:          novasm.PCallStreamFlush,
	prog.FuncActionStreamSetOptions:     novasm.PCallStreamSetOptions,
	prog.FuncActionStreamUnsetOptions:   novasm.PCallStreamUnsetOptions,
	prog.FuncActionFileOpenStream:       novasm.PCallFileOpenStream,
	prog.FuncActionFileRemove:           novasm.PCallFileRemove,
	prog.FuncActionTcpOpenCon:           novasm.PCallTcpOpenCon,
	prog.FuncActionTcpStartServer:       novasm.PCallTcpStartServer,
	prog.FuncActionTcpAcceptCon:         novasm.PCallTcpAcceptCon,
	prog.FuncActionIpLookupAddress:      novasm.PCallIpLookupAddress,
	prog.FuncActionConsoleOpenStream:    novasm.PCallConsoleOpenStream,
	prog.FuncActionTermSetOptions:       novasm.PCallTermSetOptions,
	prog.FuncActionTermUnsetOptions:     novasm.PCallTermUnsetOptions,
	prog.FuncActionTermGetWidth:         novasm.PCallTermGetWidth,
	prog.FuncActionTermGetHeight:        novasm.PCallTermGetHeight,
	prog.FuncActionGetEnvArg:            novasm.PCallGetEnvArg,
	prog.FuncActionGetEnvArgCount:       novasm.PCallGetEnvArgCount,
	prog.FuncActionGetEnvVar:            novasm.PCallGetEnvVar,
	prog.FuncActionClockMicroSinceEpoch: novasm.PCallClockMicroSinceEpoch,
	prog.FuncActionClockNanoSteady:      novasm.PCallClockNanoSteady,
	prog.FuncActionSleepNano:            novasm.PCallSleepNano,
	prog.FuncActionAssert:               novasm.PCallAssert,
}

func (g *exprGen) genCall(e *prog.CallExpr, tail bool) {
	decl, ok := g.prog.Func(e.Func)
	if !ok {
		g.fail("call to undeclared function #%d", e.Func)
	}

	if decl.Kind == prog.FuncMakeUnion {
		g.genMakeUnion(e)
		return
	}

	for _, arg := range e.Args {
		g.gen(arg, false)
	}

	if ops, ok := simpleOps[decl.Kind]; ok {
		for _, op := range ops {
			g.b.AddOp(op)
		}
		return
	}
	if code, ok := actionCalls[decl.Kind]; ok {
		g.b.AddPCall(code)
		return
	}

	switch decl.Kind {
	case prog.FuncNoOp:
		// Exactly one value must remain.
		if len(e.Args) == 0 {
			g.b.AddLoadLitInt(0)
		}
		for i := 1; i < len(e.Args); i++ {
			g.b.AddPop()
		}
	case prog.FuncUser:
		mode := novasm.CallNormal
		switch {
		case e.Mode == prog.CallFork:
			mode = novasm.CallForked
		case e.Mode == prog.CallLazy:
			mode = novasm.CallLazy
		case tail:
			mode = novasm.CallTail
		}
		g.b.AddCall(funcLabel(decl.ID), argCount(len(decl.Input)), mode)

	case prog.FuncIncrementInt:
		g.b.AddLoadLitInt(1)
		g.b.AddOp(novasm.OpAddInt)
	case prog.FuncDecrementInt:
		g.b.AddLoadLitInt(1)
		g.b.AddOp(novasm.OpSubInt)
	case prog.FuncIncrementLong:
		g.b.AddLoadLitLong(1)
		g.b.AddOp(novasm.OpAddLong)
	case prog.FuncDecrementLong:
		g.b.AddLoadLitLong(1)
		g.b.AddOp(novasm.OpSubLong)
	case prog.FuncIncrementFloat:
		g.b.AddLoadLitFloat(1)
		g.b.AddOp(novasm.OpAddFloat)
	case prog.FuncDecrementFloat:
		g.b.AddLoadLitFloat(1)
		g.b.AddOp(novasm.OpSubFloat)
	case prog.FuncIncrementChar:
		g.b.AddLoadLitInt(1)
		g.b.AddOp(novasm.OpAddInt)
		g.b.AddOp(novasm.OpConvIntChar)
	case prog.FuncDecrementChar:
		g.b.AddLoadLitInt(1)
		g.b.AddOp(novasm.OpSubInt)
		g.b.AddOp(novasm.OpConvIntChar)

	case prog.FuncDefInt, prog.FuncDefBool:
		g.b.AddLoadLitInt(0)
	case prog.FuncDefLong:
		g.b.AddLoadLitLong(0)
	case prog.FuncDefFloat:
		g.b.AddLoadLitFloat(0)
	case prog.FuncDefString:
		g.b.AddLoadLitString("")

	case prog.FuncMakeStruct:
		switch n := len(e.Args); n {
		case 0:
			// Empty structs are the int 0.
			g.b.AddLoadLitInt(0)
		case 1:
			// Single-field structs are the field itself.
		default:
			g.b.AddMakeStruct(g.structSize(n))
		}

	case prog.FuncCheckEqUserType, prog.FuncCheckNEqUserType:
		if len(e.Args) != 2 || e.Args[0].Type() != e.Args[1].Type() {
			g.fail("user type equality needs two arguments of the same type")
		}
		invert := decl.Kind == prog.FuncCheckNEqUserType
		mode := novasm.CallNormal
		if tail && !invert {
			mode = novasm.CallTail
		}
		g.b.AddCall(eqLabel(e.Args[0].Type()), 2, mode)
		if invert {
			g.b.AddOp(novasm.OpLogicInvInt)
		}

	default:
		g.fail("unsupported function kind %d (%s)", decl.Kind, decl.Name)
	}
}

// genMakeUnion pushes the discriminant before the value, except for
// nullable unions where the value is the struct or the null struct.
func (g *exprGen) genMakeUnion(e *prog.CallExpr) {
	if len(e.Args) != 1 {
		g.fail("union construction takes one argument, got %d", len(e.Args))
	}
	union := e.Result
	member := e.Args[0].Type()

	if nu, ok := asNullableUnion(g.prog, union); ok {
		g.gen(e.Args[0], false)
		if member == nu.nullType {
			g.b.AddPop()
			g.b.AddMakeNullStruct()
		}
		return
	}

	g.b.AddLoadLitInt(unionTypeID(g.prog, union, member))
	g.gen(e.Args[0], false)
	g.b.AddMakeStruct(2)
}
