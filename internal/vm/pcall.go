package vm

import (
	"context"
	"fmt"
	"time"

	"fortio.org/safecast"

	"novus/internal/novasm"
)

// pcall performs one platform call. Calls that block pause the executor
// around the blocking part and keep their operands on the eval stack until
// they resume, so a collection in between still sees them.
func (e *executor) pcall(code novasm.PCallCode) {
	m := e.m
	heap := m.heap

	switch code {
	case novasm.PCallConWriteChar:
		ch := byte(e.eval.peek().Int())
		_ = m.console.write(m.console.stdout, []byte{ch})
	case novasm.PCallConWriteString:
		_ = m.console.write(m.console.stdout, heap.StringBytes(e.eval.peek()))
	case novasm.PCallConWriteStringLine:
		b := heap.StringBytes(e.eval.peek())
		line := make([]byte, len(b)+1)
		copy(line, b)
		line[len(b)] = '\n'
		_ = m.console.write(m.console.stdout, line)
	case novasm.PCallConReadChar:
		e.pause()
		ch, err := interruptible(e.ctx, m.console.readByte)
		if e.resume() {
			return
		}
		if err != nil {
			ch = 0
		}
		e.pushInt(int32(ch))
	case novasm.PCallConReadStringLine:
		e.pause()
		line, _ := interruptible(e.ctx, m.console.readLine)
		if e.resume() {
			return
		}
		e.pushString([]byte(line))

	case novasm.PCallStreamCheckValid:
		e.pushBool(e.popStream().isValid())
	case novasm.PCallStreamReadString:
		e.streamReadString()
	case novasm.PCallStreamReadChar:
		s := e.peekStream(0)
		e.pause()
		ch, _ := s.readChar(e.ctx)
		if e.resume() {
			return
		}
		e.pop()
		e.pushInt(int32(ch))
	case novasm.PCallStreamWriteString:
		b := heap.StringBytes(e.eval.peek())
		e.streamWrite(b)
	case novasm.PCallStreamWriteChar:
		ch := byte(e.popInt())
		e.push(MakeInt(int32(ch)))
		e.streamWrite([]byte{ch})
	case novasm.PCallStreamFlush:
		s := e.peekStream(0)
		e.pause()
		ok := s.flush()
		if e.resume() {
			return
		}
		e.pop()
		e.pushBool(ok)
	case novasm.PCallStreamSetOptions, novasm.PCallStreamUnsetOptions:
		opts := StreamOpts(e.popInt())
		s := e.popStream()
		ok := true
		if opts&StreamNoBlock != 0 {
			ok = s.setNonBlocking(code == novasm.PCallStreamSetOptions)
		}
		e.pushBool(ok && s.isValid())

	case novasm.PCallFileOpenStream:
		options := e.popInt()
		path := heap.String(e.pop())
		e.pushStream(m.openFile(path, FileMode(options&0xFF), FileFlags(options>>8&0xFF)))
	case novasm.PCallFileRemove:
		path := heap.String(e.pop())
		e.pushBool(m.plat.RemoveFile(path) == nil)

	case novasm.PCallTcpOpenCon:
		e.tcpOpen()
	case novasm.PCallTcpStartServer:
		backlog := e.popInt()
		port := e.popInt()
		e.pushStream(m.listen(port, backlog))
	case novasm.PCallTcpAcceptCon:
		s := e.peekStream(0)
		e.pause()
		conn, _ := s.accept(e.ctx)
		if e.resume() {
			conn.close()
			return
		}
		e.pop()
		e.pushStream(conn)
	case novasm.PCallIpLookupAddress:
		host := heap.String(e.eval.peek())
		e.pause()
		addr, err := m.plat.LookupIP(e.ctx, host)
		if e.resume() {
			return
		}
		if err != nil {
			addr = ""
		}
		e.pop()
		e.pushString([]byte(addr))

	case novasm.PCallConsoleOpenStream:
		e.pushStream(m.openConsole(ConsoleKind(e.popInt())))

	case novasm.PCallTermSetOptions, novasm.PCallTermUnsetOptions:
		opts := TermOpts(e.popInt())
		tp, ok := m.plat.(TermPlatform)
		if !ok {
			e.pushBool(false)
			return
		}
		var err error
		if code == novasm.PCallTermSetOptions {
			err = tp.SetTermOptions(opts)
		} else {
			err = tp.UnsetTermOptions(opts)
		}
		e.pushBool(err == nil)
	case novasm.PCallTermGetWidth, novasm.PCallTermGetHeight:
		w, h := m.termSize()
		if code == novasm.PCallTermGetWidth {
			e.pushInt(w)
		} else {
			e.pushInt(h)
		}

	case novasm.PCallGetEnvArg:
		args := m.plat.EnvArgs()
		i := int(e.popInt())
		if i < 0 || i >= len(args) {
			e.pushString(nil)
			return
		}
		e.pushString([]byte(args[i]))
	case novasm.PCallGetEnvArgCount:
		e.pushInt(int32(len(m.plat.EnvArgs())))
	case novasm.PCallGetEnvVar:
		v, _ := m.plat.LookupEnv(heap.String(e.pop()))
		e.pushString([]byte(v))

	case novasm.PCallClockMicroSinceEpoch:
		e.pushLong(m.plat.Now().UnixMicro())
	case novasm.PCallClockNanoSteady:
		e.pushLong(m.plat.Steady().Nanoseconds())
	case novasm.PCallSleepNano:
		d := time.Duration(heap.Long(e.eval.peek()))
		e.pause()
		_ = m.plat.Sleep(e.ctx, d)
		e.resume()

	case novasm.PCallAssert:
		msg := e.popBytes()
		if e.eval.peek().Bool() {
			return
		}
		_ = m.console.write(m.console.stderr, fmt.Appendf(nil, "Assertion failed: %s\n", msg))
		e.fail(StateAssertFailed)

	default:
		e.fail(StateInvalidAssembly)
	}
}

func (e *executor) peekStream(behind int) *stream {
	return e.m.heap.derefKind(e.eval.peekBehind(behind), RefStream).stream
}

func (e *executor) popStream() *stream {
	return e.m.heap.derefKind(e.pop(), RefStream).stream
}

// pushStream pushes a ref to s, closing s when the ref cannot be allocated.
func (e *executor) pushStream(s *stream) {
	v, ok := e.m.heap.newStream(s)
	if !ok {
		s.close()
	}
	e.pushRef(v, ok)
}

// streamReadString reads up to max bytes from the stream below max and
// replaces both with the bytes read. The result string is allocated before
// the read so an oversized request fails with AllocFailed.
func (e *executor) streamReadString() {
	limit := max(e.popInt(), 0)
	s := e.peekStream(0)
	str, buf, ok := e.m.heap.newStringBuf(int(limit))
	if !ok {
		e.fail(StateAllocFailed)
		return
	}
	e.push(str)
	e.pause()
	n := s.read(e.ctx, buf)
	if e.resume() {
		return
	}
	e.m.heap.trimString(str, n)
	e.eval.popAt(1)
}

// streamWrite writes b to the stream below the top value and replaces both
// with whether the write succeeded.
func (e *executor) streamWrite(b []byte) {
	s := e.peekStream(1)
	e.pause()
	ok := s.write(b)
	if e.resume() {
		return
	}
	e.pop()
	e.pop()
	e.pushBool(ok)
}

func (e *executor) tcpOpen() {
	port, err := safecast.Conv[uint16](e.popInt())
	host := e.m.heap.String(e.eval.peek())
	if err != nil {
		e.pop()
		e.pushStream(invalidStream())
		return
	}
	e.pause()
	ctx, cancel := context.WithTimeout(e.ctx, e.m.settings.ConnectTimeout)
	conn, err := e.m.plat.DialTCP(ctx, host, int(port))
	cancel()
	s := invalidStream()
	if err == nil {
		s = newConnStream(conn)
	}
	if e.resume() {
		s.close()
		return
	}
	e.pop()
	e.pushStream(s)
}

func (m *Machine) openFile(path string, mode FileMode, flags FileFlags) *stream {
	if mode > FileAppend {
		return invalidStream()
	}
	conn, err := m.plat.OpenFile(path, mode)
	if err != nil {
		return invalidStream()
	}
	s := newConnStream(conn)
	if flags&FileAutoRemove != 0 {
		s.removeOnClose = path
		s.plat = m.plat
	}
	return s
}

func (m *Machine) listen(port, backlog int32) *stream {
	p, err := safecast.Conv[uint16](port)
	if err != nil {
		return invalidStream()
	}
	l, err := m.plat.ListenTCP(int(p), int(max(backlog, 0)))
	if err != nil {
		return invalidStream()
	}
	return newListenerStream(l)
}

// termSize reports 0x0 when the platform has no terminal.
func (m *Machine) termSize() (int32, int32) {
	tp, ok := m.plat.(TermPlatform)
	if !ok {
		return 0, 0
	}
	w, h, err := tp.TermSize()
	if err != nil {
		return 0, 0
	}
	cw, errW := safecast.Conv[int32](w)
	ch, errH := safecast.Conv[int32](h)
	if errW != nil || errH != nil {
		return 0, 0
	}
	return cw, ch
}

// interruptible runs a read that cannot observe ctx and returns early once
// ctx is done. The read keeps running in the background until it completes.
func interruptible[T any](ctx context.Context, read func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := read()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
