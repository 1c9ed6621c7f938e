package vm

import "fmt"

// PanicCode identifies the type of VM panic.
type PanicCode int

// Stable panic codes - do not change values.
const (
	PanicInvalidRef        PanicCode = 1001 // VM1001: freed, foreign or null ref
	PanicEvalStackNotEmpty PanicCode = 1002 // VM1002: values left after the outermost return
	PanicStackUnderflow    PanicCode = 1003 // VM1003: pop from an empty eval stack
	PanicRefKindMismatch   PanicCode = 1004 // VM1004: ref used as the wrong kind
	PanicConstOutOfRange   PanicCode = 1005 // VM1005: const slot outside the reserved window
)

// String returns the code as "VM1001" format.
func (c PanicCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// VMError is a contract violation detected while executing an assembly. It
// can only be caused by a generator bug or a hand-built assembly, never by
// the program itself, so it is raised as a panic and recovered by Run.
type VMError struct {
	Code     PanicCode
	Message  string
	Executor uint64
	IP       uint32
}

// Error implements the error interface.
func (p *VMError) Error() string {
	if p.Executor == 0 {
		return fmt.Sprintf("panic %s: %s", p.Code, p.Message)
	}
	return fmt.Sprintf("panic %s: %s (exec#%d at 0x%04x)", p.Code, p.Message, p.Executor, p.IP)
}

func vmPanic(code PanicCode, format string, args ...any) {
	panic(&VMError{Code: code, Message: fmt.Sprintf(format, args...)})
}
