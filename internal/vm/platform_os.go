package vm

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// OSPlatform connects programs to the host process: its standard streams,
// arguments, environment, files and network.
type OSPlatform struct {
	Args []string

	start time.Time

	termMu    sync.Mutex
	termSaved *termState
}

// NewOSPlatform returns a platform whose program arguments are args.
func NewOSPlatform(args []string) *OSPlatform {
	return &OSPlatform{Args: args, start: time.Now()}
}

func (p *OSPlatform) Stdin() io.Reader  { return os.Stdin }
func (p *OSPlatform) Stdout() io.Writer { return os.Stdout }
func (p *OSPlatform) Stderr() io.Writer { return os.Stderr }

func (p *OSPlatform) EnvArgs() []string { return p.Args }

func (p *OSPlatform) LookupEnv(name string) (string, bool) { return os.LookupEnv(name) }

func (p *OSPlatform) Now() time.Time { return time.Now() }

func (p *OSPlatform) Steady() time.Duration { return time.Since(p.start) }

func (p *OSPlatform) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

func (p *OSPlatform) OpenFile(path string, mode FileMode) (Stream, error) {
	var flag int
	switch mode {
	case FileCreate:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case FileOpen:
		flag = os.O_RDWR
	case FileAppend:
		flag = os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return nil, ErrUnsupported
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileStream{f: f}, nil
}

func (p *OSPlatform) RemoveFile(path string) error { return os.Remove(path) }

func (p *OSPlatform) DialTCP(ctx context.Context, host string, port int) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &connStream{conn: conn}, nil
}

// ListenTCP ignores backlog; the kernel default applies.
func (p *OSPlatform) ListenTCP(port, backlog int) (Listener, error) {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	return &tcpListener{l: l}, nil
}

// LookupIP resolves host, preferring an IPv4 address.
func (p *OSPlatform) LookupIP(ctx context.Context, host string) (string, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

func (p *OSPlatform) SetTermOptions(opts TermOpts) error {
	return p.changeTerm(opts, true)
}

func (p *OSPlatform) UnsetTermOptions(opts TermOpts) error {
	return p.changeTerm(opts, false)
}

func (p *OSPlatform) changeTerm(opts TermOpts, set bool) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ErrNoTerminal
	}
	p.termMu.Lock()
	defer p.termMu.Unlock()
	st, err := getTermState(fd)
	if err != nil {
		return err
	}
	if p.termSaved == nil {
		saved := st
		p.termSaved = &saved
	}
	return setTermState(fd, st.with(opts, set))
}

// RestoreTerminal undoes every terminal option change.
func (p *OSPlatform) RestoreTerminal() error {
	p.termMu.Lock()
	defer p.termMu.Unlock()
	if p.termSaved == nil {
		return nil
	}
	err := setTermState(int(os.Stdin.Fd()), *p.termSaved)
	p.termSaved = nil
	return err
}

func (p *OSPlatform) TermSize() (int, int, error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, ErrNoTerminal
	}
	return term.GetSize(fd)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fileStream struct {
	f *os.File
}

func (s *fileStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *fileStream) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *fileStream) Flush() error                { return nil }
func (s *fileStream) Close() error                { return s.f.Close() }

func (s *fileStream) SetNonBlocking(on bool) error {
	raw, err := s.f.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	if err := raw.Control(func(fd uintptr) { setErr = setNonblock(fd, on) }); err != nil {
		return err
	}
	return setErr
}

// connStream reads with an immediate deadline while non-blocking.
type connStream struct {
	conn    net.Conn
	noBlock atomic.Bool
}

func (s *connStream) Read(p []byte) (int, error) {
	if s.noBlock.Load() {
		_ = s.conn.SetReadDeadline(time.Now())
		n, err := s.conn.Read(p)
		_ = s.conn.SetReadDeadline(time.Time{})
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return s.conn.Read(p)
}

func (s *connStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *connStream) Flush() error                { return nil }
func (s *connStream) Close() error                { return s.conn.Close() }

func (s *connStream) SetNonBlocking(on bool) error {
	s.noBlock.Store(on)
	return nil
}

// acceptPoll bounds how long Accept waits before checking its context.
const acceptPoll = 100 * time.Millisecond

type tcpListener struct {
	l *net.TCPListener
}

func (t *tcpListener) Accept(ctx context.Context) (Stream, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = t.l.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := t.l.Accept()
		if err == nil {
			return &connStream{conn: conn}, nil
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, err
		}
	}
}

func (t *tcpListener) Close() error { return t.l.Close() }
