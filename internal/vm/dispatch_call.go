package vm

import (
	"time"

	"novus/internal/novasm"
	"novus/internal/trace"
)

// call activates target with the top argc values as its arguments.
func (e *executor) call(target uint32, argc int, mode novasm.CallMode) {
	switch mode {
	case novasm.CallNormal:
		f := frame{retIP: e.ip, constBase: e.consts.base, constTop: e.consts.top}
		if !e.calls.push(f) {
			e.fail(StateStackOverflow)
			return
		}
		e.consts.base = e.consts.top
		e.ip = target
	case novasm.CallTail:
		e.consts.release()
		e.ip = target
	case novasm.CallForked:
		e.fork(target, argc)
	case novasm.CallLazy:
		l := &lazyCall{ip: target, args: append([]Value(nil), e.eval.popN(argc)...)}
		e.pushRef(e.m.heap.newLazy(l))
	default:
		e.fail(StateInvalidAssembly)
	}
}

// callDyn calls the closure or function ip on top of the stack. A closure is
// a struct whose last field is the target ip and whose other fields are
// bound arguments appended after the explicit ones.
func (e *executor) callDyn(argc int, mode novasm.CallMode) {
	target := e.pop()
	if !target.IsRef() {
		e.call(uint32(target.Int()), argc, mode)
		return
	}
	fields := e.m.heap.Fields(target)
	if len(fields) == 0 {
		e.fail(StateInvalidAssembly)
		return
	}
	bound := fields[:len(fields)-1]
	for _, v := range bound {
		e.push(v)
	}
	if e.state != StateRunning {
		return
	}
	e.call(uint32(fields[len(fields)-1].Int()), argc+len(bound), mode)
}

// ret returns from the current frame, or finishes the executor when the
// call stack is empty.
func (e *executor) ret() {
	e.consts.release()
	f, ok := e.calls.pop()
	if !ok {
		e.finish()
		return
	}
	e.consts.base = f.constBase
	e.consts.top = f.constTop
	e.ip = f.retIP
	if f.lazy {
		result := e.pop()
		ref := e.pop()
		l := e.m.heap.derefKind(ref, RefLazy).lazy
		l.set(result)
		v, _ := l.get()
		e.push(v)
	}
}

func (e *executor) finish() {
	if e.fut != nil {
		e.result = e.pop()
	}
	if n := e.eval.size(); n != 0 {
		vmPanic(PanicEvalStackNotEmpty, "%d values left on the eval stack", n)
	}
	e.state = StateSuccess
}

// fork starts target on a new executor and pushes a future for its result.
func (e *executor) fork(target uint32, argc int) {
	child := e.m.newExecutor(target)
	for _, v := range e.eval.popN(argc) {
		if !child.eval.push(v) {
			e.fail(StateStackOverflow)
			return
		}
	}
	f := newFuture()
	ref, ok := e.m.heap.newFuture(f)
	if !ok {
		e.fail(StateAllocFailed)
		return
	}
	child.fut = f
	child.futRef = ref
	e.m.start(child)
	e.push(ref)
}

// futureBlock waits for the future on top of the stack and replaces it with
// the result. A failed fork propagates its state.
func (e *executor) futureBlock() {
	f := e.m.heap.derefKind(e.eval.peek(), RefFuture).future
	if !f.isDone() {
		e.pause()
		select {
		case <-f.done:
		case <-e.ctx.Done():
		}
		if e.resume() {
			return
		}
	}
	e.pop()
	v, state := f.outcome()
	if state != StateSuccess {
		e.fail(state)
		return
	}
	e.push(v)
}

// futureWait pops a timeout in nanoseconds and replaces the future below it
// with whether it completed in time.
func (e *executor) futureWait() {
	timeout := time.Duration(e.popLong())
	f := e.m.heap.derefKind(e.eval.peek(), RefFuture).future
	if !f.isDone() && timeout > 0 {
		e.pause()
		t := time.NewTimer(timeout)
		select {
		case <-f.done:
		case <-t.C:
		case <-e.ctx.Done():
		}
		t.Stop()
		if e.resume() {
			return
		}
	}
	e.pop()
	e.pushBool(f.isDone())
}

// lazyGet forces the lazy value on top of the stack. An uncached value runs
// its body in a new frame; ret stores and pushes the result.
func (e *executor) lazyGet() {
	ref := e.eval.peek()
	l := e.m.heap.derefKind(ref, RefLazy).lazy
	if v, ok := l.get(); ok {
		e.pop()
		e.push(v)
		return
	}
	f := frame{retIP: e.ip, constBase: e.consts.base, constTop: e.consts.top, lazy: true}
	if !e.calls.push(f) {
		e.fail(StateStackOverflow)
		return
	}
	e.consts.base = e.consts.top
	for _, v := range l.arguments() {
		e.push(v)
	}
	e.ip = l.ip
}

// start registers child and runs it on its own goroutine.
func (m *Machine) start(child *executor) {
	m.reg.register(child)
	go func() {
		span := trace.Begin(m.tracer, trace.ScopeUnit, "fork", m.span)
		state, err := child.exec()
		m.recordErr(err)
		child.fut.complete(child.result, state)
		m.reg.unregister(child)
		span.WithExtra("exec", formatID(child.id)).End(state.String())
	}()
}
