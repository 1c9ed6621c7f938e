//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package vm

type termState struct{}

func getTermState(int) (termState, error) { return termState{}, ErrUnsupported }

func setTermState(int, termState) error { return ErrUnsupported }

func (st termState) with(TermOpts, bool) termState { return st }

func setNonblock(uintptr, bool) error { return ErrUnsupported }

func isAgain(error) bool { return false }
