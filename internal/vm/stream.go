package vm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// stream is the object behind a stream ref: a platform stream or listener
// plus its validity flag. Once a read hits EOF or any operation fails the
// stream is invalid for good. I/O runs without holding mu.
type stream struct {
	mu       sync.Mutex
	valid    bool
	closed   bool
	conn     Stream
	listener Listener

	removeOnClose string
	plat          Platform
}

func newConnStream(conn Stream) *stream {
	return &stream{valid: conn != nil, conn: conn}
}

func newListenerStream(l Listener) *stream {
	return &stream{valid: l != nil, listener: l}
}

func invalidStream() *stream { return &stream{} }

func (s *stream) isValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid && !s.closed
}

func (s *stream) invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// read fills p from the stream. A non-blocking stream with no data ready
// reads zero bytes and stays valid.
func (s *stream) read(ctx context.Context, p []byte) int {
	if !s.isValid() || s.conn == nil || len(p) == 0 {
		return 0
	}
	var n int
	var err error
	if cr, ok := s.conn.(contextReader); ok {
		n, err = cr.ReadContext(ctx, p)
	} else {
		n, err = s.conn.Read(p)
	}
	if ctx.Err() != nil {
		return n
	}
	if err != nil && !wouldBlock(err) && n == 0 {
		s.invalidate()
	}
	return n
}

func (s *stream) readChar(ctx context.Context) (byte, bool) {
	var b [1]byte
	if s.read(ctx, b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}

func (s *stream) write(p []byte) bool {
	if !s.isValid() || s.conn == nil {
		return false
	}
	if _, err := s.conn.Write(p); err != nil {
		s.invalidate()
		return false
	}
	return true
}

func (s *stream) flush() bool {
	if !s.isValid() || s.conn == nil {
		return false
	}
	if err := s.conn.Flush(); err != nil {
		s.invalidate()
		return false
	}
	return true
}

func (s *stream) accept(ctx context.Context) (*stream, error) {
	if !s.isValid() || s.listener == nil {
		return invalidStream(), ErrUnsupported
	}
	conn, err := s.listener.Accept(ctx)
	if err != nil {
		return invalidStream(), err
	}
	return newConnStream(conn), nil
}

func (s *stream) setNonBlocking(on bool) bool {
	if !s.isValid() {
		return false
	}
	nb, ok := s.conn.(NonBlocker)
	if !ok {
		return false
	}
	return nb.SetNonBlocking(on) == nil
}

// close releases the platform resources; later calls do nothing.
func (s *stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Flush()
		_ = s.conn.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.removeOnClose != "" && s.plat != nil {
		_ = s.plat.RemoveFile(s.removeOnClose)
	}
}

func wouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || isAgain(err)
}

// console serialises access to the platform's standard streams. Console
// pcalls and console streams share the same buffered stdin.
type console struct {
	inMu sync.Mutex
	in   *bufio.Reader

	outMu  sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

func newConsole(p Platform) *console {
	return &console{in: bufio.NewReader(p.Stdin()), stdout: p.Stdout(), stderr: p.Stderr()}
}

func (c *console) read(p []byte) (int, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return c.in.Read(p)
}

func (c *console) readByte() (byte, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return c.in.ReadByte()
}

// readLine returns the next line without its line terminator.
func (c *console) readLine() (string, error) {
	c.inMu.Lock()
	line, err := c.in.ReadString('\n')
	c.inMu.Unlock()
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func (c *console) write(w io.Writer, p []byte) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := w.Write(p)
	return err
}

// contextReader is implemented by streams whose reads cannot otherwise be
// interrupted.
type contextReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// ConsoleKind selects a standard stream for ConsoleOpenStream.
type ConsoleKind int32

const (
	ConsoleStdin ConsoleKind = iota
	ConsoleStdout
	ConsoleStderr
)

// consoleStream adapts one standard stream to Stream. Closing it leaves the
// underlying stream open.
type consoleStream struct {
	c *console
	w io.Writer // nil for stdin
}

func (m *Machine) openConsole(kind ConsoleKind) *stream {
	switch kind {
	case ConsoleStdin:
		return newConnStream(&consoleStream{c: m.console})
	case ConsoleStdout:
		return newConnStream(&consoleStream{c: m.console, w: m.console.stdout})
	case ConsoleStderr:
		return newConnStream(&consoleStream{c: m.console, w: m.console.stderr})
	default:
		return invalidStream()
	}
}

func (s *consoleStream) Read(p []byte) (int, error) {
	if s.w != nil {
		return 0, ErrUnsupported
	}
	return s.c.read(p)
}

// ReadContext reads stdin until ctx is done. An abandoned read still
// consumes the next input.
func (s *consoleStream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if s.w != nil {
		return 0, ErrUnsupported
	}
	return interruptible(ctx, func() (int, error) { return s.c.read(p) })
}

func (s *consoleStream) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrUnsupported
	}
	if err := s.c.write(s.w, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *consoleStream) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		s.c.outMu.Lock()
		defer s.c.outMu.Unlock()
		return f.Flush()
	}
	return nil
}

func (s *consoleStream) Close() error { return nil }
