package vm

import (
	"context"
	"sync/atomic"

	"novus/internal/novasm"
)

// opSizes caches the encoded size of every opcode; zero marks an invalid one.
var opSizes = func() (sizes [256]uint8) {
	for i := range sizes {
		if info, ok := novasm.OpCode(i).Info(); ok {
			sizes[i] = uint8(info.Size())
		}
	}
	return sizes
}()

// executor runs one entry point or one forked call. Its stacks are owned by
// the goroutine running it; the collector only reads them while the
// executor is stopped.
type executor struct {
	id  uint64
	m   *Machine
	asm *novasm.Assembly

	ip     uint32
	curIP  uint32
	eval   evalStack
	consts constStack
	calls  callStack
	state  ExecState

	ctx      context.Context
	cancel   context.CancelFunc
	aborted  atomic.Bool
	pauseReq atomic.Bool
	parked   bool // guarded by registry.mu
	paused   bool // guarded by registry.mu

	fut    *future // set for forked executors
	futRef Value
	result Value
}

func (m *Machine) newExecutor(ip uint32) *executor {
	ctx, cancel := context.WithCancel(m.ctx)
	return &executor{
		m:      m,
		asm:    m.asm,
		ip:     ip,
		eval:   newEvalStack(m.settings.EvalStack),
		consts: newConstStack(m.settings.ConstStack),
		calls:  newCallStack(m.settings.CallStack),
		state:  StateRunning,
		ctx:    ctx,
		cancel: cancel,
	}
}

// abort may be called from any goroutine.
func (e *executor) abort() {
	e.aborted.Store(true)
	e.cancel()
}

// trap reports whether an abort was requested, moving e to Aborted if so.
func (e *executor) trap() bool {
	if e.aborted.Load() {
		e.state = StateAborted
		return true
	}
	return false
}

// pause marks e as blocked; no heap access is allowed until resume.
func (e *executor) pause() {
	e.state = StatePaused
	e.m.reg.enterPaused(e)
}

// resume waits out any collection and reports whether e was aborted meanwhile.
func (e *executor) resume() bool {
	e.m.reg.leavePaused(e)
	e.state = StateRunning
	if e.ctx.Err() != nil {
		e.aborted.Store(true)
	}
	return e.trap()
}

func (e *executor) appendRoots(out []Value) []Value {
	out = append(out, e.eval.live()...)
	out = append(out, e.consts.live()...)
	if e.futRef != 0 {
		out = append(out, e.futRef, e.result)
	}
	return out
}

// exec runs e to a terminal state, converting contract violations into an
// error.
func (e *executor) exec() (state ExecState, err error) {
	defer func() {
		if r := recover(); r != nil {
			vmErr, ok := r.(*VMError)
			if !ok {
				panic(r)
			}
			vmErr.Executor = e.id
			vmErr.IP = e.curIP
			e.state = StateInvalidAssembly
			state, err = e.state, vmErr
		}
	}()
	return e.run(), nil
}

func (e *executor) run() ExecState {
	for e.state == StateRunning {
		if e.pauseReq.Load() {
			e.m.reg.safepoint(e)
		}
		if e.trap() {
			break
		}
		e.step()
	}
	e.m.itrace.state(e.id, e.state)
	return e.state
}

// step fetches, decodes and executes one instruction.
func (e *executor) step() {
	ip := e.ip
	if !e.asm.InBounds(ip, 1) {
		e.state = StateInvalidAssembly
		return
	}
	op := novasm.OpCode(e.asm.Instructions[ip])
	size := opSizes[op]
	if size == 0 || !e.asm.InBounds(ip, int(size)) {
		e.state = StateInvalidAssembly
		return
	}
	e.curIP = ip
	e.ip = ip + uint32(size)
	e.m.itrace.instr(e.id, e.asm, ip, op)
	e.dispatch(op, ip+1)
}

func (e *executor) fail(s ExecState) {
	if e.state == StateRunning {
		e.state = s
	}
}

func (e *executor) push(v Value) {
	if !e.eval.push(v) {
		e.fail(StateStackOverflow)
	}
}

func (e *executor) pushInt(i int32)     { e.push(MakeInt(i)) }
func (e *executor) pushBool(b bool)     { e.push(MakeBool(b)) }
func (e *executor) pushFloat(f float32) { e.push(MakeFloat(f)) }

// pushRef pushes a freshly allocated ref, or fails with AllocFailed.
func (e *executor) pushRef(v Value, ok bool) {
	if !ok {
		e.fail(StateAllocFailed)
		return
	}
	e.push(v)
}

func (e *executor) pushLong(v int64) {
	e.pushRef(e.m.heap.MakeLong(v))
}

func (e *executor) pushString(b []byte) {
	e.pushRef(e.m.heap.NewString(b))
}

func (e *executor) pop() Value        { return e.eval.pop() }
func (e *executor) popInt() int32     { return e.eval.pop().Int() }
func (e *executor) popFloat() float32 { return e.eval.pop().Float() }
func (e *executor) popLong() int64    { return e.m.heap.Long(e.eval.pop()) }
func (e *executor) popBytes() []byte  { return e.m.heap.StringBytes(e.eval.pop()) }
