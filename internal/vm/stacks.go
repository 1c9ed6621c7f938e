package vm

// evalStack is the fixed-capacity operand stack of one executor.
type evalStack struct {
	vals []Value
	sp   int
}

func newEvalStack(capacity int) evalStack {
	return evalStack{vals: make([]Value, capacity)}
}

// push reports false when the stack is full.
func (s *evalStack) push(v Value) bool {
	if s.sp == len(s.vals) {
		return false
	}
	s.vals[s.sp] = v
	s.sp++
	return true
}

func (s *evalStack) pop() Value {
	if s.sp == 0 {
		vmPanic(PanicStackUnderflow, "pop from empty eval stack")
	}
	s.sp--
	v := s.vals[s.sp]
	s.vals[s.sp] = 0
	return v
}

func (s *evalStack) peek() Value {
	return s.peekBehind(0)
}

// peekBehind returns the value n slots below the top.
func (s *evalStack) peekBehind(n int) Value {
	if n >= s.sp {
		vmPanic(PanicStackUnderflow, "peek %d behind with %d values", n, s.sp)
	}
	return s.vals[s.sp-1-n]
}

// popAt removes the value n slots below the top, shifting the ones above.
func (s *evalStack) popAt(n int) Value {
	if n >= s.sp {
		vmPanic(PanicStackUnderflow, "pop %d behind with %d values", n, s.sp)
	}
	i := s.sp - 1 - n
	v := s.vals[i]
	copy(s.vals[i:], s.vals[i+1:s.sp])
	s.sp--
	s.vals[s.sp] = 0
	return v
}

// popN removes the top n values and returns them bottom first. The result
// aliases the stack storage and is only valid until the next push.
func (s *evalStack) popN(n int) []Value {
	if n > s.sp {
		vmPanic(PanicStackUnderflow, "pop %d values with %d on the stack", n, s.sp)
	}
	s.sp -= n
	return s.vals[s.sp : s.sp+n]
}

func (s *evalStack) size() int { return s.sp }

func (s *evalStack) live() []Value { return s.vals[:s.sp] }

// constStack holds the const slots of every active frame. base is the
// first slot of the current frame, top one past its last.
type constStack struct {
	vals []Value
	base int
	top  int
}

func newConstStack(capacity int) constStack {
	return constStack{vals: make([]Value, capacity)}
}

// reserve gives the current frame n zeroed slots; false on overflow.
func (s *constStack) reserve(n int) bool {
	if s.base+n > len(s.vals) {
		return false
	}
	clear(s.vals[s.base : s.base+n])
	s.top = s.base + n
	return true
}

// release drops the slots of the current frame.
func (s *constStack) release() {
	clear(s.vals[s.base:s.top])
	s.top = s.base
}

func (s *constStack) store(slot uint8, v Value) {
	s.vals[s.slotIndex(slot)] = v
}

func (s *constStack) load(slot uint8) Value {
	return s.vals[s.slotIndex(slot)]
}

func (s *constStack) slotIndex(slot uint8) int {
	i := s.base + int(slot)
	if i >= s.top {
		vmPanic(PanicConstOutOfRange, "const slot %d outside the %d reserved", slot, s.top-s.base)
	}
	return i
}

func (s *constStack) live() []Value { return s.vals[:s.top] }

// frame is one call activation. constBase/constTop are the caller's const
// window restored on return.
type frame struct {
	retIP     uint32
	constBase int
	constTop  int
	lazy      bool // evaluating a lazy value; its ref sits below the body's result
}

type callStack struct {
	frames []frame
	limit  int
}

func newCallStack(limit int) callStack {
	return callStack{frames: make([]frame, 0, min(limit, 64)), limit: limit}
}

func (s *callStack) push(f frame) bool {
	if len(s.frames) == s.limit {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *callStack) pop() (frame, bool) {
	n := len(s.frames)
	if n == 0 {
		return frame{}, false
	}
	f := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return f, true
}
