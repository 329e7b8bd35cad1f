package transporttest

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

// Fake is a scripted in-memory transport. Reads return the fed chunks in
// order, at most one chunk per call, then ErrWouldBlock or the error set with
// Fail.
type Fake struct {
	// WriteFunc, when set, replaces the default write which records p.
	WriteFunc func(p []byte) (int, error)
	// HandshakeErr is returned by StartHandshake.
	HandshakeErr error
	Port         int

	mu         sync.Mutex
	reads      [][]byte
	readErr    error
	written    bytes.Buffer
	closed     bool
	ended      bool
	handshakes int
	closes     int
}

func NewFake() *Fake {
	return &Fake{Port: 49152}
}

func (f *Fake) Feed(chunks ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.reads = append(f.reads, []byte(c))
	}
}

// Fail makes reads return err once the fed chunks are drained.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	if len(f.reads) > 0 {
		n := copy(p, f.reads[0])
		if n < len(f.reads[0]) {
			f.reads[0] = f.reads[0][n:]
		} else {
			f.reads = f.reads[1:]
		}
		return n, nil
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	return 0, transport.ErrWouldBlock
}

func (f *Fake) Write(p []byte) (int, error) {
	if f.WriteFunc != nil {
		return f.WriteFunc(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	return f.written.Write(p)
}

func (f *Fake) StartHandshake(ctx context.Context, trust *transport.TrustMaterial) error {
	f.mu.Lock()
	f.handshakes++
	f.mu.Unlock()
	if f.HandshakeErr != nil {
		return f.HandshakeErr
	}
	return ctx.Err()
}

func (f *Fake) EndSession() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	return nil
}

func (f *Fake) LocalPort() int { return f.Port }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes++
	return nil
}

func (f *Fake) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Closes reports how many times Close was called.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *Fake) SessionEnded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

func (f *Fake) Handshakes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handshakes
}

// Dialer returns a dialer handing out f on every call.
func (f *Fake) Dialer() transport.DialerFunc {
	return func(ctx context.Context, address string, keepAlive bool) (transport.Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return f, nil
	}
}
