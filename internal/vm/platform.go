package vm

import (
	"context"
	"errors"
	"io"
	"time"
)

// Stream is a readable and writable byte stream opened through a Platform.
type Stream interface {
	io.Reader
	io.Writer
	Flush() error
	Close() error
}

// Listener accepts incoming connections for a TCP server stream.
type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Close() error
}

// FileMode selects how FileOpenStream opens its path.
type FileMode uint8

const (
	FileCreate FileMode = iota // create or truncate, read-write
	FileOpen                   // existing file, read-write
	FileAppend                 // create or append
)

// FileFlags modify an opened file stream.
type FileFlags uint8

const (
	FileAutoRemove FileFlags = 1 << iota // remove the file when its stream closes
)

// Platform is everything a program can reach outside the machine. All
// blocking methods must honour ctx.
type Platform interface {
	Stdin() io.Reader
	Stdout() io.Writer
	Stderr() io.Writer

	EnvArgs() []string
	LookupEnv(name string) (string, bool)

	Now() time.Time
	Steady() time.Duration
	Sleep(ctx context.Context, d time.Duration) error

	OpenFile(path string, mode FileMode) (Stream, error)
	RemoveFile(path string) error

	DialTCP(ctx context.Context, host string, port int) (Stream, error)
	ListenTCP(port, backlog int) (Listener, error)
	LookupIP(ctx context.Context, host string) (string, error)
}

// TermOpts are terminal mode bits.
type TermOpts int32

const (
	TermNoEcho   TermOpts = 1 << iota // do not echo typed input
	TermNoBuffer                      // deliver input without waiting for a newline
)

// TermPlatform is implemented by platforms attached to a terminal.
type TermPlatform interface {
	SetTermOptions(opts TermOpts) error
	UnsetTermOptions(opts TermOpts) error
	TermSize() (width, height int, err error)
}

// StreamOpts are per-stream option bits.
type StreamOpts int32

const (
	StreamNoBlock StreamOpts = 1 << iota // reads return immediately when no data is ready
)

// NonBlocker is implemented by streams that support StreamNoBlock.
type NonBlocker interface {
	SetNonBlocking(on bool) error
}

var (
	// ErrNoTerminal is returned by terminal operations without a terminal.
	ErrNoTerminal = errors.New("not a terminal")
	// ErrWouldBlock is returned by non-blocking reads with no data ready.
	ErrWouldBlock = errors.New("operation would block")
	// ErrUnsupported is returned for operations a platform cannot perform.
	ErrUnsupported = errors.New("unsupported operation")
)
