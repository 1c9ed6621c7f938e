package vm

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"novus/internal/novasm"
)

// instrTracer writes a line per executed instruction and per heap event.
// A nil tracer is valid and prints nothing.
//
// Format:
//
//	[exec#1] 0x0012 load-lit-int 42
//	[heap] alloc string#5
//	[gc] freed 3 live 12
type instrTracer struct {
	mu sync.Mutex
	w  io.Writer
}

func newInstrTracer(w io.Writer) *instrTracer {
	if w == nil {
		return nil
	}
	return &instrTracer{w: w}
}

func (t *instrTracer) printf(format string, args ...any) {
	t.mu.Lock()
	fmt.Fprintf(t.w, format, args...)
	t.mu.Unlock()
}

func (t *instrTracer) instr(exec uint64, asm *novasm.Assembly, ip uint32, op novasm.OpCode) {
	if t == nil {
		return
	}
	info, _ := op.Info()
	var sb strings.Builder
	at := ip + 1
	for _, k := range info.Operands {
		sb.WriteByte(' ')
		switch k {
		case novasm.OperandU8:
			fmt.Fprintf(&sb, "%d", asm.ReadUint8(at))
		case novasm.OperandI32:
			fmt.Fprintf(&sb, "%d", asm.ReadInt32(at))
		case novasm.OperandU32:
			fmt.Fprintf(&sb, "%d", asm.ReadUint32(at))
		case novasm.OperandF32:
			fmt.Fprintf(&sb, "%g", asm.ReadFloat32(at))
		case novasm.OperandI64:
			fmt.Fprintf(&sb, "%d", asm.ReadInt64(at))
		}
		at += uint32(k.Size())
	}
	if op == novasm.OpPCall {
		sb.WriteString(" (" + novasm.PCallCode(asm.ReadUint8(ip+1)).String() + ")")
	}
	t.printf("[exec#%d] 0x%04x %s%s\n", exec, ip, op, sb.String())
}

func (t *instrTracer) state(exec uint64, s ExecState) {
	if t == nil {
		return
	}
	t.printf("[exec#%d] %s\n", exec, s)
}

func (t *instrTracer) alloc(kind RefKind, index uint32) {
	if t == nil {
		return
	}
	t.printf("[heap] alloc %s#%d\n", kind, index)
}

func (t *instrTracer) free(kind RefKind, index uint32) {
	if t == nil {
		return
	}
	t.printf("[heap] free %s#%d\n", kind, index)
}

func (t *instrTracer) gc(stats GCStats) {
	if t == nil {
		return
	}
	t.printf("[gc] freed %d live %d\n", stats.Freed, stats.Live)
}
