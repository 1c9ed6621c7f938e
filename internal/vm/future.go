package vm

import "sync"

// future is the completion slot of a forked executor.
type future struct {
	done chan struct{}

	mu       sync.Mutex
	finished bool
	value    Value
	state    ExecState
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(v Value, state ExecState) {
	f.mu.Lock()
	f.finished = true
	f.value = v
	f.state = state
	f.mu.Unlock()
	close(f.done)
}

func (f *future) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// outcome returns the result and terminal state of a finished future.
func (f *future) outcome() (Value, ExecState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.state
}

// result returns the value of a successfully finished future.
func (f *future) result() (Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished || f.state != StateSuccess {
		return 0, false
	}
	return f.value, true
}

// lazyCall is a deferred call: target ip plus its captured arguments. The
// first evaluation caches its result.
type lazyCall struct {
	ip uint32

	mu    sync.Mutex
	args  []Value
	done  bool
	value Value
}

func (l *lazyCall) get() (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.done
}

func (l *lazyCall) arguments() []Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Value(nil), l.args...)
}

func (l *lazyCall) set(v Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.value = v
	l.done = true
	l.args = nil
}

func (l *lazyCall) appendRoots(work []Value) []Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return append(work, l.value)
	}
	return append(work, l.args...)
}
