package vm

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"novus/internal/novasm"
	"novus/internal/trace"
)

// Machine executes one Assembly against one Platform. Entry points run in
// order on the calling goroutine; forked calls run on goroutines of their own.
type Machine struct {
	asm      *novasm.Assembly
	plat     Platform
	heap     *Heap
	reg      *registry
	gc       *collector
	console  *console
	settings Settings
	ctx      context.Context

	tracer trace.Tracer
	span   uint64
	itrace *instrTracer

	errMu    sync.Mutex
	firstErr error
}

// Option configures a Machine.
type Option func(*Machine)

// WithSettings replaces the default settings; zero stack sizes keep their
// defaults.
func WithSettings(s Settings) Option {
	return func(m *Machine) { m.settings = s.withDefaults() }
}

// WithTracer emits vm, entry point, fork and gc spans to t.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithInstrTrace writes every executed instruction and heap event to w.
func WithInstrTrace(w io.Writer) Option {
	return func(m *Machine) { m.itrace = newInstrTracer(w) }
}

// New prepares a machine. It does not start executing.
func New(asm *novasm.Assembly, plat Platform, opts ...Option) *Machine {
	m := &Machine{
		asm:      asm,
		plat:     plat,
		reg:      newRegistry(),
		settings: DefaultSettings(),
		tracer:   trace.Nop,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.console = newConsole(plat)
	m.heap = NewHeap(m.settings.GCInterval, m.settings.HeapLimit)
	m.heap.trace = m.itrace
	m.gc = newCollector(m.heap, m.reg)
	m.gc.tracer = m.tracer
	m.gc.itrace = m.itrace
	return m
}

// Heap exposes the machine's heap for inspection.
func (m *Machine) Heap() *Heap { return m.heap }

// Collect runs a collection now and waits for it.
func (m *Machine) Collect() GCStats { return m.gc.collect() }

// Abort aborts every running executor. Blocked platform calls are
// interrupted through their context.
func (m *Machine) Abort() { m.reg.abortExecutors() }

// Run executes every entry point in order until one does not succeed, then
// aborts any forked executor still running and waits for it. The returned
// error is the first contract violation raised by any executor.
func (m *Machine) Run(ctx context.Context) (ExecState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.ctx = ctx

	span := trace.Begin(m.tracer, trace.ScopePhase, "vm", trace.CurrentSpan(ctx))
	m.span = span.ID()
	m.gc.parent = m.span

	stop := context.AfterFunc(ctx, m.reg.abortExecutors)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.gc.loop(gctx) })

	state := StateSuccess
	for i, ip := range m.asm.EntryPoints {
		state = m.runEntry(i, ip)
		if state != StateSuccess {
			break
		}
	}

	m.reg.abortExecutors()
	m.reg.wait()
	for _, s := range m.heap.openStreams() {
		s.close()
	}
	cancel()
	if err := g.Wait(); err != nil {
		m.recordErr(err)
	}

	err := m.err()
	span.WithExtra("allocs", strconv.FormatUint(m.heap.Stats().Allocs, 10)).End(state.String())
	return state, err
}

func (m *Machine) runEntry(i int, ip uint32) ExecState {
	span := trace.Begin(m.tracer, trace.ScopeUnit, "entry", m.span)
	e := m.newExecutor(ip)
	m.reg.register(e)
	state, err := e.exec()
	m.reg.unregister(e)
	m.recordErr(err)
	span.WithExtra("index", strconv.Itoa(i)).End(state.String())
	return state
}

// recordErr keeps the first contract violation and aborts every executor.
func (m *Machine) recordErr(err error) {
	if err == nil {
		return
	}
	m.errMu.Lock()
	first := m.firstErr == nil
	if first {
		m.firstErr = err
	}
	m.errMu.Unlock()
	if first {
		m.reg.abortExecutors()
	}
}

func (m *Machine) err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.firstErr
}

// Run executes asm on plat with a fresh machine.
func Run(ctx context.Context, asm *novasm.Assembly, plat Platform, opts ...Option) (ExecState, error) {
	return New(asm, plat, opts...).Run(ctx)
}

// AsVMError reports whether err carries a contract violation.
func AsVMError(err error) (*VMError, bool) {
	var vmErr *VMError
	ok := errors.As(err, &vmErr)
	return vmErr, ok
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
