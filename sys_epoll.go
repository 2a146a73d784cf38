//go:build linux

package zstream

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	readableEvents = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR
	pausedEvents   = unix.EPOLLRDHUP | unix.EPOLLERR
)

// readv fills bs from fd. A negative count from the kernel is reported as 0.
func readv(fd int, bs [][]byte) (n int, err error) {
	n, err = unix.Readv(fd, bs)
	if n < 0 {
		n = 0
	}
	return n, err
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// socketError fetches the pending SO_ERROR of fd.
func socketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v == 0 {
		return errors.New("socket error")
	}
	return unix.Errno(v)
}
