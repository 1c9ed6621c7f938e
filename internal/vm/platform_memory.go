package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"sync"
	"time"
)

// MemoryPlatform is a self-contained Platform for tests and sandboxed runs:
// scripted stdin, captured output, an in-memory file system and a loopback
// network where DialTCP reaches servers started with ListenTCP.
type MemoryPlatform struct {
	stdin io.Reader
	args  []string
	start time.Time

	mu       sync.Mutex
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	env      map[string]string
	files    map[string]*memFile
	hosts    map[string]string
	ports    map[int]*memListener
	termOpts TermOpts
}

// NewMemoryPlatform returns a platform reading stdin and passing args.
func NewMemoryPlatform(stdin string, args ...string) *MemoryPlatform {
	return &MemoryPlatform{
		stdin: strings.NewReader(stdin),
		args:  args,
		start: time.Now(),
		env:   make(map[string]string),
		files: make(map[string]*memFile),
		hosts: map[string]string{"localhost": "127.0.0.1"},
		ports: make(map[int]*memListener),
	}
}

// Output returns everything written to stdout so far.
func (p *MemoryPlatform) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout.String()
}

// ErrOutput returns everything written to stderr so far.
func (p *MemoryPlatform) ErrOutput() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}

func (p *MemoryPlatform) SetEnv(name, value string) {
	p.mu.Lock()
	p.env[name] = value
	p.mu.Unlock()
}

// AddHost makes LookupIP resolve host to addr.
func (p *MemoryPlatform) AddHost(host, addr string) {
	p.mu.Lock()
	p.hosts[host] = addr
	p.mu.Unlock()
}

func (p *MemoryPlatform) WriteFile(path string, data []byte) {
	p.mu.Lock()
	p.files[path] = &memFile{data: append([]byte(nil), data...)}
	p.mu.Unlock()
}

// ReadFile returns a copy of the file contents.
func (p *MemoryPlatform) ReadFile(path string) ([]byte, bool) {
	p.mu.Lock()
	f, ok := p.files[path]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...), true
}

// TermOptions returns the terminal options currently set.
func (p *MemoryPlatform) TermOptions() TermOpts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termOpts
}

func (p *MemoryPlatform) Stdin() io.Reader  { return p.stdin }
func (p *MemoryPlatform) Stdout() io.Writer { return lockedWriter{mu: &p.mu, buf: &p.stdout} }
func (p *MemoryPlatform) Stderr() io.Writer { return lockedWriter{mu: &p.mu, buf: &p.stderr} }

func (p *MemoryPlatform) EnvArgs() []string { return p.args }

func (p *MemoryPlatform) LookupEnv(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.env[name]
	return v, ok
}

func (p *MemoryPlatform) Now() time.Time        { return time.Now() }
func (p *MemoryPlatform) Steady() time.Duration { return time.Since(p.start) }

func (p *MemoryPlatform) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

func (p *MemoryPlatform) OpenFile(path string, mode FileMode) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[path]
	switch mode {
	case FileCreate:
		f = &memFile{}
		p.files[path] = f
	case FileOpen:
		if !ok {
			return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
		}
	case FileAppend:
		if !ok {
			f = &memFile{}
			p.files[path] = f
		}
		return &memFileStream{f: f, append: true}, nil
	default:
		return nil, ErrUnsupported
	}
	return &memFileStream{f: f}, nil
}

func (p *MemoryPlatform) RemoveFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, fs.ErrNotExist)
	}
	delete(p.files, path)
	return nil
}

// DialTCP connects to a listener on port; host must resolve through
// LookupIP.
func (p *MemoryPlatform) DialTCP(ctx context.Context, host string, port int) (Stream, error) {
	if _, err := p.LookupIP(ctx, host); err != nil {
		return nil, err
	}
	p.mu.Lock()
	l, ok := p.ports[port]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s:%d: connection refused", host, port)
	}
	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return &pipeStream{conn: client}, nil
	case <-l.done:
		return nil, fmt.Errorf("dial %s:%d: connection refused", host, port)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *MemoryPlatform) ListenTCP(port, backlog int) (Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ports[port]; ok {
		return nil, fmt.Errorf("listen :%d: address already in use", port)
	}
	l := &memListener{plat: p, port: port, conns: make(chan net.Conn, max(backlog, 1)), done: make(chan struct{})}
	p.ports[port] = l
	return l, nil
}

func (p *MemoryPlatform) LookupIP(ctx context.Context, host string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	addr, ok := p.hosts[host]
	if !ok {
		return "", &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addr, nil
}

func (p *MemoryPlatform) SetTermOptions(opts TermOpts) error {
	p.mu.Lock()
	p.termOpts |= opts
	p.mu.Unlock()
	return nil
}

func (p *MemoryPlatform) UnsetTermOptions(opts TermOpts) error {
	p.mu.Lock()
	p.termOpts &^= opts
	p.mu.Unlock()
	return nil
}

func (p *MemoryPlatform) TermSize() (int, int, error) { return 80, 24, nil }

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(b)
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

// memFileStream reads and writes at its own position.
type memFileStream struct {
	f      *memFile
	pos    int
	append bool
}

func (s *memFileStream) Read(p []byte) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.pos >= len(s.f.data) {
		return 0, io.EOF
	}
	n := copy(p, s.f.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *memFileStream) Write(p []byte) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.append {
		s.pos = len(s.f.data)
	}
	if end := s.pos + len(p); end > len(s.f.data) {
		s.f.data = append(s.f.data, make([]byte, end-len(s.f.data))...)
	}
	copy(s.f.data[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *memFileStream) Flush() error { return nil }
func (s *memFileStream) Close() error { return nil }

type memListener struct {
	plat  *MemoryPlatform
	port  int
	conns chan net.Conn
	once  sync.Once
	done  chan struct{}
}

var errListenerClosed = errors.New("listener closed")

func (l *memListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case conn := <-l.conns:
		return &pipeStream{conn: conn}, nil
	case <-l.done:
		return nil, errListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.plat.mu.Lock()
		delete(l.plat.ports, l.port)
		l.plat.mu.Unlock()
	})
	return nil
}

type pipeStream struct {
	conn net.Conn
}

func (s *pipeStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *pipeStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *pipeStream) Flush() error                { return nil }
func (s *pipeStream) Close() error                { return s.conn.Close() }
