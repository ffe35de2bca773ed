//go:build linux

package fdbridge

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock puts fd into O_NONBLOCK mode, required before it can be
// driven through the bridge's suspend/resume protocol.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// pipe2 creates a pipe with the given flags (e.g. unix.O_NONBLOCK |
// unix.O_CLOEXEC) applied atomically at creation.
func pipe2(flags int) (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], flags); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
