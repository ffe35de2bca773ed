package fdbridge

import (
	"golang.org/x/sys/unix"
)

// FD is a non-blocking file descriptor wrapped by a FdBridge: its Read and
// Write methods behave as if the fd were blocking, from the calling
// fiber's point of view, but without tying up the reactor's thread while
// waiting - the calling fiber suspends through the bridge's Reactor
// instead, resumed once the kernel reports readiness.
type FD struct {
	fd     int32
	bridge *FdBridge
	ref    slabRef
}

// Fd returns the underlying OS file descriptor number.
func (f *FD) Fd() int { return int(f.fd) }

// Read reads into buf, suspending the calling fiber until the fd is
// readable if the read would otherwise block. Returns io.EOF-shaped zero
// reads exactly as the underlying syscall does on peer close.
func (f *FD) Read(buf []byte) (int, error) {
	for {
		n, err := readFD(int(f.fd), buf)
		if err == nil {
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			f.bridge.suspend(f.ref)
			continue
		}
		return 0, &OsError{Op: "read", Fd: int(f.fd), Err: err}
	}
}

// Write writes buf in full, suspending the calling fiber whenever the fd's
// buffer is momentarily full, and resuming the write from where it left
// off once the fd becomes writable again.
func (f *FD) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := writeFD(int(f.fd), buf[written:])
		if err == nil {
			written += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			f.bridge.suspend(f.ref)
			continue
		}
		return written, &OsError{Op: "write", Fd: int(f.fd), Err: err}
	}
	return written, nil
}

// Close unregisters the fd from its bridge and closes it. It is a
// programmer error to Close a FD with a fiber still suspended in Read or
// Write on it; that case panics via ErrOutstandingWaiters rather than
// silently leaving the parked fiber unresumable. Closing an already-closed
// FD is a no-op.
func (f *FD) Close() error {
	if f.fd < 0 {
		return nil
	}
	if f.bridge.hasWaiter(f.ref) {
		panic(ErrOutstandingWaiters)
	}
	f.bridge.unregister(f.ref)
	fd := int(f.fd)
	f.fd = -1
	return closeFD(fd)
}

// Pipe creates an OS pipe and wraps both ends with the bridge in one call,
// atomically non-blocking from creation (unix.Pipe2 with O_NONBLOCK),
// avoiding the race a separate pipe(2)+fcntl(O_NONBLOCK) pair would have
// against a concurrent fork in the same process.
func (b *FdBridge) Pipe() (r, w *FD, err error) {
	rfd, wfd, err := pipe2(unix.O_NONBLOCK | unix.O_CLOEXEC)
	if err != nil {
		return nil, nil, &OsError{Op: "pipe2", Err: err}
	}
	r, err = b.Wrap(rfd)
	if err != nil {
		closeFD(rfd)
		closeFD(wfd)
		return nil, nil, err
	}
	w, err = b.Wrap(wfd)
	if err != nil {
		r.Close()
		closeFD(wfd)
		return nil, nil, err
	}
	return r, w, nil
}
