package connmgr

import (
	"errors"
	"fmt"

	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

var (
	ErrResourceExhausted = errors.New("no free connection slot")
	ErrConnectTimeout    = errors.New("connect timeout")
	ErrConnectError      = errors.New("connect failed")
	ErrHandshakeTimeout  = errors.New("tls handshake timeout")
	ErrHandshakeError    = errors.New("tls handshake failed")
	ErrSendTimeout       = errors.New("send timeout")
	ErrSendError         = errors.New("send failed")
	ErrReceiveFatal      = errors.New("receive failed")
	ErrResponseTimeout   = errors.New("response timeout")
	ErrDNSTimeout        = errors.New("dns lookup timeout")
	ErrDNSFailure        = errors.New("dns lookup failed")
	ErrInvalidHandle     = errors.New("invalid connection handle")
	ErrClosed            = errors.New("connection manager closed")
)

// Error describes a failed operation on a connection. errors.Is matches both
// the sentinel in Err and the underlying Cause.
type Error struct {
	Op     string
	Handle Handle
	Kind   transport.Kind
	Err    error
	Cause  error
}

func newError(op string, h Handle, sentinel, cause error) *Error {
	return &Error{Op: op, Handle: h, Kind: transport.Classify(cause), Err: sentinel, Cause: cause}
}

func (e *Error) Error() string {
	s := "connmgr: " + e.Op
	if e.Handle != InvalidHandle {
		s += " " + e.Handle.String()
	}
	s += ": " + e.Err.Error()
	if e.Cause != nil {
		s += fmt.Sprintf(" (%s): %v", e.Kind, e.Cause)
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
