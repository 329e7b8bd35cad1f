//go:build unix

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

func classifyErrno(err error) (Kind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return KindNone, false
	}
	switch errno {
	case unix.EAGAIN, unix.EINTR, unix.EINPROGRESS:
		return KindWouldBlock, true
	case unix.ECONNRESET, unix.ECONNABORTED, unix.EPIPE, unix.ECONNREFUSED:
		return KindConnectionReset, true
	case unix.EBADF, unix.ENOTCONN, unix.ESHUTDOWN:
		return KindConnectionClosed, true
	case unix.ETIMEDOUT:
		return KindTimeout, true
	}
	return KindUnspecified, true
}
