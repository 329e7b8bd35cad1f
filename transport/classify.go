package transport

import (
	"errors"
	"io"
	"net"
)

// Kind is the class of a transport error.
type Kind int

const (
	KindNone Kind = iota
	KindWouldBlock
	KindConnectionClosed
	KindConnectionReset
	KindTimeout
	KindUnspecified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindWouldBlock:
		return "would-block"
	case KindConnectionClosed:
		return "connection-closed"
	case KindConnectionReset:
		return "connection-reset"
	case KindTimeout:
		return "timeout"
	}
	return "unspecified"
}

// Classify reports what kind of error err is.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrWouldBlock):
		return KindWouldBlock
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return KindConnectionClosed
	}
	if k, ok := classifyErrno(err); ok {
		return k
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindWouldBlock
	}
	return KindUnspecified
}
