//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package vm

import (
	"errors"

	"golang.org/x/sys/unix"
)

type termState struct {
	t unix.Termios
}

func getTermState(fd int) (termState, error) {
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return termState{}, err
	}
	return termState{t: *t}, nil
}

func setTermState(fd int, st termState) error {
	return unix.IoctlSetTermios(fd, ioctlSetTermios, &st.t)
}

// with returns st with the local modes for opts switched off (set) or back
// on (!set).
func (st termState) with(opts TermOpts, set bool) termState {
	if opts&TermNoEcho != 0 {
		if set {
			st.t.Lflag &^= unix.ECHO
		} else {
			st.t.Lflag |= unix.ECHO
		}
	}
	if opts&TermNoBuffer != 0 {
		if set {
			st.t.Lflag &^= unix.ICANON
			st.t.Cc[unix.VMIN] = 1
			st.t.Cc[unix.VTIME] = 0
		} else {
			st.t.Lflag |= unix.ICANON
		}
	}
	return st
}

func setNonblock(fd uintptr, on bool) error {
	return unix.SetNonblock(int(fd), on)
}

func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}
