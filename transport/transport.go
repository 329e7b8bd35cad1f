// Package transport is the byte stream a connection manager drives: a TCP
// connection that can be upgraded to a TLS client session, with reads that
// never block longer than a short poll timeout.
package transport

import (
	"context"
	"errors"
)

// ErrWouldBlock is returned when no data could be moved right now. It is a
// retry signal, never a failure.
var ErrWouldBlock = errors.New("transport: operation would block")

// ErrTimeout is returned by a write that did not complete in time and left
// the session unusable.
var ErrTimeout = errors.New("transport: write deadline exceeded")

type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// StartHandshake runs the client side of a TLS handshake over the
	// connection. Later reads and writes go through the session.
	StartHandshake(ctx context.Context, trust *TrustMaterial) error
	// EndSession notifies the peer that the TLS session is over. It is a
	// no-op on plain connections.
	EndSession() error

	LocalPort() int
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, address string, keepAlive bool) (Transport, error)
}

type DialerFunc func(ctx context.Context, address string, keepAlive bool) (Transport, error)

func (fn DialerFunc) Dial(ctx context.Context, address string, keepAlive bool) (Transport, error) {
	return fn(ctx, address, keepAlive)
}
