package prog

// FuncKind selects how a call to a function is lowered: a user function call,
// or one of the built-in operators and platform actions.
//
// Values are persisted in program files; append only.
type FuncKind uint8

const (
	FuncNoOp FuncKind = iota
	FuncUser

	FuncAddInt
	FuncSubInt
	FuncMulInt
	FuncDivInt
	FuncRemInt
	FuncNegateInt
	FuncIncrementInt
	FuncDecrementInt
	FuncShiftLeftInt
	FuncShiftRightInt
	FuncAndInt
	FuncOrInt
	FuncXorInt
	FuncInvInt
	FuncCheckEqInt
	FuncCheckNEqInt
	FuncCheckLeInt
	FuncCheckLeEqInt
	FuncCheckGtInt
	FuncCheckGtEqInt

	FuncAddLong
	FuncSubLong
	FuncMulLong
	FuncDivLong
	FuncRemLong
	FuncNegateLong
	FuncIncrementLong
	FuncDecrementLong
	FuncCheckEqLong
	FuncCheckNEqLong
	FuncCheckLeLong
	FuncCheckLeEqLong
	FuncCheckGtLong
	FuncCheckGtEqLong

	FuncAddFloat
	FuncSubFloat
	FuncMulFloat
	FuncDivFloat
	FuncModFloat
	FuncPowFloat
	FuncSqrtFloat
	FuncSinFloat
	FuncCosFloat
	FuncTanFloat
	FuncASinFloat
	FuncACosFloat
	FuncATanFloat
	FuncATan2Float
	FuncNegateFloat
	FuncIncrementFloat
	FuncDecrementFloat
	FuncCheckEqFloat
	FuncCheckNEqFloat
	FuncCheckLeFloat
	FuncCheckLeEqFloat
	FuncCheckGtFloat
	FuncCheckGtEqFloat

	FuncInvBool
	FuncCheckEqBool
	FuncCheckNEqBool

	FuncAddString
	FuncLengthString
	FuncIndexString
	FuncSliceString
	FuncCheckEqString
	FuncCheckNEqString

	FuncCombineChar
	FuncAppendChar
	FuncIncrementChar
	FuncDecrementChar

	FuncConvIntLong
	FuncConvIntFloat
	FuncConvLongInt
	FuncConvFloatInt
	FuncConvIntString
	FuncConvLongString
	FuncConvFloatString
	FuncConvBoolString
	FuncConvCharString
	FuncConvIntChar
	FuncConvFloatChar

	FuncDefInt
	FuncDefLong
	FuncDefFloat
	FuncDefBool
	FuncDefString

	FuncMakeStruct
	FuncMakeUnion

	FuncFutureWaitNano
	FuncFutureBlock
	FuncLazyGet

	FuncCheckEqUserType
	FuncCheckNEqUserType

	FuncActionConWriteChar
	FuncActionConWriteString
	FuncActionConWriteStringLine
	FuncActionConReadChar
	FuncActionConReadStringLine
	FuncActionStreamCheckValid
	FuncActionStreamReadString
	FuncActionStreamReadChar
	FuncActionStreamWriteString
	FuncActionStreamWriteChar
	FuncActionStreamFlush
	FuncActionStreamSetOptions
	FuncActionStreamUnsetOptions
	FuncActionFileOpenStream
	FuncActionFileRemove
	FuncActionTcpOpenCon
	FuncActionTcpStartServer
	FuncActionTcpAcceptCon
	FuncActionIpLookupAddress
	FuncActionConsoleOpenStream
	FuncActionTermSetOptions
	FuncActionTermUnsetOptions
	FuncActionTermGetWidth
	FuncActionTermGetHeight
	FuncActionGetEnvArg
	FuncActionGetEnvArgCount
	FuncActionGetEnvVar
	FuncActionClockMicroSinceEpoch
	FuncActionClockNanoSteady
	FuncActionSleepNano
	FuncActionAssert
)

// IsAction reports whether k performs a platform call.
func (k FuncKind) IsAction() bool {
	return k >= FuncActionConWriteChar && k <= FuncActionAssert
}

// FuncDecl is the signature of a function.
type FuncDecl struct {
	ID     FuncID   `msgpack:"id"`
	Name   string   `msgpack:"name"`
	Kind   FuncKind `msgpack:"kind"`
	Input  []TypeID `msgpack:"input"`
	Output TypeID   `msgpack:"output"`
}

// FuncDef is the body of a user function.
type FuncDef struct {
	ID     FuncID
	Consts ConstTable
	Body   Expr
}

// ExecStmt is a top-level statement; each becomes one entry point.
type ExecStmt struct {
	Consts ConstTable
	Expr   Expr
}
