package vm

import "fmt"

// ExecState is the state of one executor. Running and Paused are the only
// non-terminal states.
type ExecState uint8

const (
	StateRunning ExecState = iota
	StatePaused
	StateSuccess
	StateStackOverflow
	StateAllocFailed
	StateDivByZero
	StateAssertFailed
	StateInvalidAssembly
	StateAborted
)

var stateNames = [...]string{
	StateRunning:         "running",
	StatePaused:          "paused",
	StateSuccess:         "success",
	StateStackOverflow:   "stack-overflow",
	StateAllocFailed:     "alloc-failed",
	StateDivByZero:       "div-by-zero",
	StateAssertFailed:    "assert-failed",
	StateInvalidAssembly: "invalid-assembly",
	StateAborted:         "aborted",
}

func (s ExecState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether an executor in state s has stopped for good.
func (s ExecState) Terminal() bool {
	return s != StateRunning && s != StatePaused
}
