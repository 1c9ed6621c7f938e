package vm_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"novus/internal/novasm"
	"novus/internal/trace"
	"novus/internal/vm"
)

// program assembles a single entry point "main" followed by whatever extra
// functions fn emits after its own code.
func program(t *testing.T, fn func(a *novasm.Assembler)) *novasm.Assembly {
	t.Helper()
	a := novasm.NewAssembler()
	a.Label("main")
	a.AddEntryPoint("main")
	fn(a)
	asm, err := a.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	return asm
}

func run(t *testing.T, asm *novasm.Assembly, plat vm.Platform, opts ...vm.Option) (vm.ExecState, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return vm.Run(ctx, asm, plat, opts...)
}

// expectOutput runs asm and checks its terminal state and stdout.
func expectOutput(t *testing.T, asm *novasm.Assembly, want vm.ExecState, out string) *vm.MemoryPlatform {
	t.Helper()
	plat := vm.NewMemoryPlatform("")
	state, err := run(t, asm, plat)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state != want {
		t.Fatalf("expected state %s, got %s (stderr %q)", want, state, plat.ErrOutput())
	}
	if got := plat.Output(); got != out {
		t.Fatalf("expected output %q, got %q", out, got)
	}
	return plat
}

// printTop writes the string on top of the stack, drops it and returns.
func printTop(a *novasm.Assembler) {
	a.AddPCall(novasm.PCallConWriteString)
	a.AddPop()
	a.AddRet()
}

func TestStringConcat(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString("hello")
		a.AddLoadLitString("world")
		a.AddOp(novasm.OpAddString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "helloworld")
}

func TestIndexString(t *testing.T) {
	tests := []struct {
		idx  int32
		want string
	}{
		{0, "104"},
		{4, "111"},
		{5, "0"},
		{-1, "0"},
	}
	for _, tt := range tests {
		asm := program(t, func(a *novasm.Assembler) {
			a.AddLoadLitString("hello")
			a.AddLoadLitInt(tt.idx)
			a.AddOp(novasm.OpIndexString)
			a.AddOp(novasm.OpConvIntString)
			printTop(a)
		})
		expectOutput(t, asm, vm.StateSuccess, tt.want)
	}
}

func TestSliceStringClamps(t *testing.T) {
	tests := []struct {
		start, end int32
		want       string
	}{
		{-5, 100, "hello"},
		{1, 3, "el"},
		{4, 2, ""},
		{3, -1, ""},
		{2, 5, "llo"},
	}
	for _, tt := range tests {
		asm := program(t, func(a *novasm.Assembler) {
			a.AddLoadLitString("hello")
			a.AddLoadLitInt(tt.start)
			a.AddLoadLitInt(tt.end)
			a.AddOp(novasm.OpSliceString)
			printTop(a)
		})
		expectOutput(t, asm, vm.StateSuccess, tt.want)
	}
}

func TestAppendCharBuildsString(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString("ab")
		a.AddLoadLitInt('c')
		a.AddOp(novasm.OpAppendChar)
		a.AddLoadLitInt('d')
		a.AddOp(novasm.OpAppendChar)
		a.AddDup()
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddOp(novasm.OpLengthString)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "abcd4")
}

func TestIntArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b int32
		op   novasm.OpCode
		want string
	}{
		{"rem", 33, 4, novasm.OpRemInt, "1"},
		{"div", -7, 2, novasm.OpDivInt, "-3"},
		{"wrap", 2147483647, 1, novasm.OpAddInt, "-2147483648"},
		{"min-div", -2147483648, -1, novasm.OpDivInt, "-2147483648"},
		{"shl-mask", 1, 33, novasm.OpShiftLeftInt, "2"},
		{"shr-arith", -8, 1, novasm.OpShiftRightInt, "-4"},
		{"xor", 6, 3, novasm.OpXorInt, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := program(t, func(a *novasm.Assembler) {
				a.AddLoadLitInt(tt.a)
				a.AddLoadLitInt(tt.b)
				a.AddOp(tt.op)
				a.AddOp(novasm.OpConvIntString)
				printTop(a)
			})
			expectOutput(t, asm, vm.StateSuccess, tt.want)
		})
	}
}

func TestLongArithmetic(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitLong(-5)
		a.AddLoadLitLong(3)
		a.AddOp(novasm.OpMulLong)
		a.AddLoadLitLong(1 << 40)
		a.AddOp(novasm.OpAddLong)
		a.AddOp(novasm.OpConvLongString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "1099511627761")
}

func TestFloatToString(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitFloat(1)
		a.AddLoadLitFloat(4)
		a.AddOp(novasm.OpDivFloat)
		a.AddOp(novasm.OpConvFloatString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "0.25")
}

func TestDivByZero(t *testing.T) {
	for _, op := range []novasm.OpCode{novasm.OpDivInt, novasm.OpRemInt} {
		asm := program(t, func(a *novasm.Assembler) {
			a.AddLoadLitInt(1)
			a.AddLoadLitInt(0)
			a.AddOp(op)
			a.AddOp(novasm.OpConvIntString)
			printTop(a)
		})
		expectOutput(t, asm, vm.StateDivByZero, "")
	}

	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitLong(1)
		a.AddLoadLitLong(0)
		a.AddOp(novasm.OpDivLong)
		a.AddOp(novasm.OpConvLongString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateDivByZero, "")
}

// countdown emits a function that counts its argument down to zero and
// returns it, recursing with the given mode.
func countdown(a *novasm.Assembler, mode novasm.CallMode) {
	a.Label("count")
	a.AddReserveConsts(1)
	a.AddStoreConst(0)
	a.AddLoadConst(0)
	a.AddLoadLitInt(0)
	a.AddOp(novasm.OpCheckEqInt)
	a.AddJumpIf("count.done")
	a.AddLoadConst(0)
	a.AddLoadLitInt(1)
	a.AddOp(novasm.OpSubInt)
	a.AddCall("count", 1, mode)
	a.AddRet()
	a.Label("count.done")
	a.AddLoadConst(0)
	a.AddRet()
}

func TestTailRecursionDoesNotGrowCallStack(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1_000_000)
		a.AddCall("count", 1, novasm.CallNormal)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
		countdown(a, novasm.CallTail)
	})
	plat := vm.NewMemoryPlatform("")
	state, err := run(t, asm, plat, vm.WithSettings(vm.Settings{CallStack: 4}))
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "0" {
		t.Fatalf("expected 0, got %q", plat.Output())
	}
}

func TestDeepRecursionOverflows(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(100)
		a.AddCall("count", 1, novasm.CallNormal)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
		countdown(a, novasm.CallNormal)
	})
	state, err := run(t, asm, vm.NewMemoryPlatform(""), vm.WithSettings(vm.Settings{CallStack: 16}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state != vm.StateStackOverflow {
		t.Fatalf("expected stack-overflow, got %s", state)
	}
}

func TestValueLeftOnStackIsContractViolation(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1)
		a.AddRet()
	})
	state, err := run(t, asm, vm.NewMemoryPlatform(""))
	vmErr, ok := vm.AsVMError(err)
	if !ok {
		t.Fatalf("expected VMError, got %v", err)
	}
	if vmErr.Code != vm.PanicEvalStackNotEmpty {
		t.Fatalf("expected %s, got %s", vm.PanicEvalStackNotEmpty, vmErr.Code)
	}
	if state != vm.StateInvalidAssembly {
		t.Fatalf("expected invalid-assembly, got %s", state)
	}
	if !strings.Contains(err.Error(), "VM1002") {
		t.Fatalf("expected VM1002 in %q", err.Error())
	}
}

func TestFailAndBadOpcode(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddFail()
	})
	expectOutput(t, asm, vm.StateInvalidAssembly, "")

	bad := &novasm.Assembly{Instructions: []byte{0xFF}, EntryPoints: []uint32{0}}
	expectOutput(t, bad, vm.StateInvalidAssembly, "")

	truncated := &novasm.Assembly{Instructions: []byte{byte(novasm.OpLoadLitInt), 1}, EntryPoints: []uint32{0}}
	expectOutput(t, truncated, vm.StateInvalidAssembly, "")
}

func TestStructs(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1)
		a.AddLoadLitString("field")
		a.AddMakeStruct(2)
		a.AddLoadStructField(1)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddMakeNullStruct()
		a.AddOp(novasm.OpCheckStructNull)
		a.AddOp(novasm.OpConvBoolString)
		printTop(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "fieldtrue")

	oob := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1)
		a.AddMakeStruct(1)
		a.AddLoadStructField(3)
		a.AddPop()
		a.AddRet()
	})
	expectOutput(t, oob, vm.StateInvalidAssembly, "")
}

func TestClosureCall(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(2)
		a.AddLoadLitInt(40)
		a.AddLoadLitIp("add")
		a.AddMakeStruct(2)
		a.AddCallDyn(1, novasm.CallNormal)
		a.AddLoadLitInt(100)
		a.AddLoadLitIp("neg")
		a.AddCallDyn(1, novasm.CallNormal)
		a.AddOp(novasm.OpAddInt)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)

		a.Label("add")
		a.AddOp(novasm.OpAddInt)
		a.AddRet()
		a.Label("neg")
		a.AddOp(novasm.OpNegInt)
		a.AddRet()
	})
	expectOutput(t, asm, vm.StateSuccess, "-58")
}

// forkAdd emits "add", a function summing its two arguments.
func forkAdd(a *novasm.Assembler) {
	a.Label("add")
	a.AddReserveConsts(2)
	a.AddStoreConst(1)
	a.AddStoreConst(0)
	a.AddLoadConst(0)
	a.AddLoadConst(1)
	a.AddOp(novasm.OpAddInt)
	a.AddRet()
}

func TestForkAndBlock(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(20)
		a.AddLoadLitInt(22)
		a.AddCall("add", 2, novasm.CallForked)
		a.AddOp(novasm.OpFutureBlock)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
		forkAdd(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "42")
}

func TestForkFailurePropagates(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddCall("boom", 0, novasm.CallForked)
		a.AddOp(novasm.OpFutureBlock)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)

		a.Label("boom")
		a.AddLoadLitInt(1)
		a.AddLoadLitInt(0)
		a.AddOp(novasm.OpDivInt)
		a.AddRet()
	})
	expectOutput(t, asm, vm.StateDivByZero, "")
}

// sleeper emits a function that sleeps for d and then prints "late".
func sleeper(a *novasm.Assembler, d time.Duration) {
	a.Label("sleeper")
	a.AddLoadLitLong(int64(d))
	a.AddPCall(novasm.PCallSleepNano)
	a.AddPop()
	a.AddLoadLitString("late")
	a.AddPCall(novasm.PCallConWriteString)
	a.AddRet()
}

func TestFutureWaitTimesOut(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddCall("sleeper", 0, novasm.CallForked)
		a.AddLoadLitLong(int64(time.Millisecond))
		a.AddOp(novasm.OpFutureWaitNano)
		a.AddOp(novasm.OpConvBoolString)
		printTop(a)
		sleeper(a, 10*time.Second)
	})
	start := time.Now()
	expectOutput(t, asm, vm.StateSuccess, "false")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run waited for the forked sleep: %v", elapsed)
	}
}

func TestFutureWaitCompletes(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1)
		a.AddLoadLitInt(2)
		a.AddCall("add", 2, novasm.CallForked)
		a.AddLoadLitLong(int64(5 * time.Second))
		a.AddOp(novasm.OpFutureWaitNano)
		a.AddOp(novasm.OpConvBoolString)
		printTop(a)
		forkAdd(a)
	})
	expectOutput(t, asm, vm.StateSuccess, "true")
}

func TestAbortStopsSleepingFork(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddCall("sleeper", 0, novasm.CallForked)
		a.AddOp(novasm.OpFutureBlock)
		a.AddPop()
		a.AddRet()
		sleeper(a, 10*time.Second)
	})
	plat := vm.NewMemoryPlatform("")
	m := vm.New(asm, plat)
	time.AfterFunc(50*time.Millisecond, m.Abort)

	start := time.Now()
	state, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state != vm.StateAborted {
		t.Fatalf("expected aborted, got %s", state)
	}
	if plat.Output() != "" {
		t.Fatalf("aborted fork kept running: %q", plat.Output())
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("abort took %v", elapsed)
	}
}

func TestContextCancelAborts(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitLong(int64(10 * time.Second))
		a.AddPCall(novasm.PCallSleepNano)
		a.AddPop()
		a.AddRet()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	state, err := vm.Run(ctx, asm, vm.NewMemoryPlatform(""))
	if err != nil || state != vm.StateAborted {
		t.Fatalf("expected aborted, got %s %v", state, err)
	}
}

func TestLazyEvaluatesOnce(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(6)
		a.AddCall("side", 1, novasm.CallLazy)
		a.AddDup()
		a.AddOp(novasm.OpLazyGet)
		a.AddPop()
		a.AddOp(novasm.OpLazyGet)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)

		a.Label("side")
		a.AddLoadLitString("eval")
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitInt(1)
		a.AddOp(novasm.OpAddInt)
		a.AddRet()
	})
	expectOutput(t, asm, vm.StateSuccess, "eval7")
}

func TestAssert(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(1)
		a.AddLoadLitString("fine")
		a.AddPCall(novasm.PCallAssert)
		a.AddPop()
		a.AddLoadLitInt(0)
		a.AddLoadLitString("boom")
		a.AddPCall(novasm.PCallAssert)
		a.AddPop()
		a.AddRet()
	})
	plat := expectOutput(t, asm, vm.StateAssertFailed, "")
	if got := plat.ErrOutput(); got != "Assertion failed: boom\n" {
		t.Fatalf("unexpected stderr %q", got)
	}
}

func TestConsoleRead(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddPCall(novasm.PCallConReadStringLine)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddPCall(novasm.PCallConReadChar)
		a.AddPCall(novasm.PCallConWriteChar)
		a.AddPop()
		a.AddPCall(novasm.PCallConReadChar)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("first line\r\nx")
	state, err := run(t, asm, plat)
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "first linex0" {
		t.Fatalf("unexpected output %q", plat.Output())
	}
}

func TestEnvironment(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddPCall(novasm.PCallGetEnvArgCount)
		a.AddOp(novasm.OpConvIntString)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitInt(1)
		a.AddPCall(novasm.PCallGetEnvArg)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitInt(9)
		a.AddPCall(novasm.PCallGetEnvArg)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitString("HOME")
		a.AddPCall(novasm.PCallGetEnvVar)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitString("MISSING")
		a.AddPCall(novasm.PCallGetEnvVar)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("", "prog", "arg")
	plat.SetEnv("HOME", "/home/novus")
	state, err := run(t, asm, plat)
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "2arg/home/novus" {
		t.Fatalf("unexpected output %q", plat.Output())
	}
}

func TestTerminal(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(int32(vm.TermNoEcho | vm.TermNoBuffer))
		a.AddPCall(novasm.PCallTermSetOptions)
		a.AddPop()
		a.AddLoadLitInt(int32(vm.TermNoBuffer))
		a.AddPCall(novasm.PCallTermUnsetOptions)
		a.AddPop()
		a.AddPCall(novasm.PCallTermGetWidth)
		a.AddOp(novasm.OpConvIntString)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddPCall(novasm.PCallTermGetHeight)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
	})
	plat := expectOutput(t, asm, vm.StateSuccess, "8024")
	if plat.TermOptions() != vm.TermNoEcho {
		t.Fatalf("expected no-echo left set, got %d", plat.TermOptions())
	}
}

func TestFileStreams(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString("out.txt")
		a.AddLoadLitInt(int32(vm.FileCreate))
		a.AddPCall(novasm.PCallFileOpenStream)
		a.AddDup()
		a.AddLoadLitString("data")
		a.AddPCall(novasm.PCallStreamWriteString)
		a.AddPop()
		a.AddDup()
		a.AddLoadLitInt('!')
		a.AddPCall(novasm.PCallStreamWriteChar)
		a.AddPop()
		a.AddPCall(novasm.PCallStreamFlush)
		a.AddPop()

		a.AddLoadLitString("in.txt")
		a.AddLoadLitInt(int32(vm.FileOpen))
		a.AddPCall(novasm.PCallFileOpenStream)
		a.AddDup()
		a.AddLoadLitInt(2)
		a.AddPCall(novasm.PCallStreamReadString)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddDup()
		a.AddPCall(novasm.PCallStreamReadChar)
		a.AddPCall(novasm.PCallConWriteChar)
		a.AddPop()
		a.AddDup()
		a.AddPCall(novasm.PCallStreamReadChar)
		a.AddPop()
		a.AddPCall(novasm.PCallStreamCheckValid)
		a.AddOp(novasm.OpConvBoolString)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()

		a.AddLoadLitString("missing.txt")
		a.AddLoadLitInt(int32(vm.FileOpen))
		a.AddPCall(novasm.PCallFileOpenStream)
		a.AddPCall(novasm.PCallStreamCheckValid)
		a.AddOp(novasm.OpConvBoolString)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("")
	plat.WriteFile("in.txt", []byte("abc"))
	state, err := run(t, asm, plat)
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "abcfalsefalse" {
		t.Fatalf("unexpected output %q", plat.Output())
	}
	data, ok := plat.ReadFile("out.txt")
	if !ok || string(data) != "data!" {
		t.Fatalf("expected out.txt to hold data!, got %q %v", data, ok)
	}
}

func TestFileAutoRemove(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString("tmp.txt")
		a.AddLoadLitInt(int32(vm.FileCreate) | int32(vm.FileAutoRemove)<<8)
		a.AddPCall(novasm.PCallFileOpenStream)
		a.AddPop()
		a.AddRet()
	})
	plat := vm.NewMemoryPlatform("")
	if state, err := run(t, asm, plat); err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if _, ok := plat.ReadFile("tmp.txt"); ok {
		t.Fatal("expected tmp.txt to be removed with its stream")
	}
}

func TestTCPLoopback(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddReserveConsts(2)
		a.AddLoadLitInt(8000)
		a.AddLoadLitInt(1)
		a.AddPCall(novasm.PCallTcpStartServer)
		a.AddStoreConst(0)
		a.AddCall("client", 0, novasm.CallForked)
		a.AddStoreConst(1)
		a.AddLoadConst(0)
		a.AddPCall(novasm.PCallTcpAcceptCon)
		a.AddLoadLitInt(4)
		a.AddPCall(novasm.PCallStreamReadString)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadConst(1)
		a.AddOp(novasm.OpFutureBlock)
		a.AddOp(novasm.OpConvBoolString)
		printTop(a)

		a.Label("client")
		a.AddLoadLitString("localhost")
		a.AddLoadLitInt(8000)
		a.AddPCall(novasm.PCallTcpOpenCon)
		a.AddLoadLitString("ping")
		a.AddPCall(novasm.PCallStreamWriteString)
		a.AddRet()
	})
	expectOutput(t, asm, vm.StateSuccess, "pingtrue")
}

func TestLookupAddress(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString("novus.test")
		a.AddPCall(novasm.PCallIpLookupAddress)
		a.AddPCall(novasm.PCallConWriteString)
		a.AddPop()
		a.AddLoadLitString("unknown.test")
		a.AddPCall(novasm.PCallIpLookupAddress)
		a.AddOp(novasm.OpLengthString)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("")
	plat.AddHost("novus.test", "10.0.0.7")
	state, err := run(t, asm, plat)
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "10.0.0.70" {
		t.Fatalf("unexpected output %q", plat.Output())
	}
}

func TestCollectionDuringRun(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddReserveConsts(2)
		a.AddLoadLitString("")
		a.AddStoreConst(0)
		a.AddLoadLitInt(0)
		a.AddStoreConst(1)
		a.Label("loop")
		a.AddLoadConst(1)
		a.AddLoadLitInt(2000)
		a.AddOp(novasm.OpCheckLeInt)
		a.AddOp(novasm.OpLogicInvInt)
		a.AddJumpIf("done")
		a.AddLoadConst(0)
		a.AddLoadLitInt('a')
		a.AddOp(novasm.OpAppendChar)
		a.AddStoreConst(0)
		a.AddLoadConst(1)
		a.AddOp(novasm.OpConvIntString)
		a.AddPop()
		a.AddLoadConst(1)
		a.AddLoadLitInt(1)
		a.AddOp(novasm.OpAddInt)
		a.AddStoreConst(1)
		a.AddJump("loop")
		a.Label("done")
		a.AddLoadConst(0)
		a.AddOp(novasm.OpLengthString)
		a.AddOp(novasm.OpConvIntString)
		printTop(a)
	})
	tr := trace.NewRingTracer(0, trace.LevelDetail)
	plat := vm.NewMemoryPlatform("")
	state, err := run(t, asm, plat, vm.WithSettings(vm.Settings{GCInterval: 1024}), vm.WithTracer(tr))
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if plat.Output() != "2000" {
		t.Fatalf("expected 2000, got %q", plat.Output())
	}
	var entries int
	for _, ev := range tr.Snapshot() {
		if ev.Kind == trace.KindSpanEnd && ev.Name == "entry" {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("expected one entry span, got %d", entries)
	}
}

func TestHeapLimitFailsAllocation(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitString(strings.Repeat("x", 1024))
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("")
	state, err := run(t, asm, plat, vm.WithSettings(vm.Settings{HeapLimit: 512}))
	if err != nil || state != vm.StateAllocFailed {
		t.Fatalf("expected alloc-failed, got %s %v", state, err)
	}
}

// readStdin opens stdin as a stream and reads up to n bytes from it.
func readStdin(a *novasm.Assembler, n int32) {
	a.AddLoadLitInt(int32(vm.ConsoleStdin))
	a.AddPCall(novasm.PCallConsoleOpenStream)
	a.AddLoadLitInt(n)
	a.AddPCall(novasm.PCallStreamReadString)
}

func TestStreamReadStringReplacesStream(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		readStdin(a, 64)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("hi")
	m := vm.New(asm, plat, vm.WithSettings(vm.Settings{HeapLimit: 1 << 20}))
	state, err := m.Run(context.Background())
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	if got := plat.Output(); got != "hi" {
		t.Fatalf("expected hi, got %q", got)
	}
	if st := m.Heap().Stats(); st.Bytes > 1024 {
		t.Fatalf("expected the unused read buffer to be released, got %d bytes", st.Bytes)
	}
}

func TestStreamReadStringHonoursHeapLimit(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		readStdin(a, 1<<30)
		printTop(a)
	})
	plat := vm.NewMemoryPlatform("hi")
	state, err := run(t, asm, plat, vm.WithSettings(vm.Settings{HeapLimit: 1 << 20}))
	if err != nil || state != vm.StateAllocFailed {
		t.Fatalf("expected alloc-failed, got %s %v", state, err)
	}
	if plat.Output() != "" {
		t.Fatalf("expected no output, got %q", plat.Output())
	}
}

// blockedStdin is a platform whose stdin never delivers input.
type blockedStdin struct {
	*vm.MemoryPlatform
	r *io.PipeReader
}

func (p blockedStdin) Stdin() io.Reader { return p.r }

func TestContextCancelAbortsStdinStreamRead(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(int32(vm.ConsoleStdin))
		a.AddPCall(novasm.PCallConsoleOpenStream)
		a.AddPCall(novasm.PCallStreamReadChar)
		a.AddPop()
		a.AddRet()
	})
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	state, err := vm.Run(ctx, asm, blockedStdin{MemoryPlatform: vm.NewMemoryPlatform(""), r: r})
	if err != nil || state != vm.StateAborted {
		t.Fatalf("expected aborted, got %s %v", state, err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("abort took %v", elapsed)
	}
}

func TestInstrTrace(t *testing.T) {
	asm := program(t, func(a *novasm.Assembler) {
		a.AddLoadLitInt(42)
		a.AddPop()
		a.AddRet()
	})
	var buf strings.Builder
	if state, err := run(t, asm, vm.NewMemoryPlatform(""), vm.WithInstrTrace(&buf)); err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %s %v", state, err)
	}
	for _, want := range []string{"[exec#1] 0x0000 load-lit-int 42", "[exec#1] 0x0005 pop", "[exec#1] success"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in trace:\n%s", want, buf.String())
		}
	}
}
