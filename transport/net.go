package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

const (
	DefaultPollTimeout     = 1 * time.Millisecond
	DefaultWriteTimeout    = 60 * time.Second
	DefaultKeepAlivePeriod = 15 * time.Second
)

// NetDialer opens TCP connections with net.Dialer.
type NetDialer struct {
	PollTimeout     time.Duration
	WriteTimeout    time.Duration
	KeepAlivePeriod time.Duration
}

func (d NetDialer) Dial(ctx context.Context, address string, keepAlive bool) (Transport, error) {
	nd := net.Dialer{KeepAlive: -1}
	if keepAlive {
		nd.KeepAlive = d.KeepAlivePeriod
		if nd.KeepAlive <= 0 {
			nd.KeepAlive = DefaultKeepAlivePeriod
		}
	}

	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok && keepAlive {
		_ = tc.SetKeepAlive(true)
	}

	t := NewNetTransport(conn)
	if d.PollTimeout > 0 {
		t.PollTimeout = d.PollTimeout
	}
	if d.WriteTimeout > 0 {
		t.WriteTimeout = d.WriteTimeout
	}
	return t, nil
}

// NetTransport drives a net.Conn as a polled stream. Reads wait at most
// PollTimeout and plain writes wait at most PollTimeout per call, so both
// report ErrWouldBlock instead of blocking. TLS writes cannot be resumed after
// a deadline, so they are given WriteTimeout and fail with ErrTimeout.
type NetTransport struct {
	PollTimeout  time.Duration
	WriteTimeout time.Duration

	raw  net.Conn
	conn net.Conn
	tls  *tls.Conn
}

func NewNetTransport(conn net.Conn) *NetTransport {
	return &NetTransport{
		PollTimeout:  DefaultPollTimeout,
		WriteTimeout: DefaultWriteTimeout,
		raw:          conn,
		conn:         conn,
	}
}

func (t *NetTransport) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.PollTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if n > 0 {
		return n, nil
	}
	if isTimeout(err) {
		return 0, ErrWouldBlock
	}
	return n, err
}

func (t *NetTransport) Write(p []byte) (int, error) {
	timeout := t.PollTimeout
	if t.tls != nil {
		timeout = t.WriteTimeout
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(p)
	if isTimeout(err) {
		if t.tls != nil {
			return n, ErrTimeout
		}
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	return n, err
}

func (t *NetTransport) StartHandshake(ctx context.Context, trust *TrustMaterial) error {
	if t.tls != nil {
		return errors.New("transport: tls session already started")
	}
	host, _, err := net.SplitHostPort(t.raw.RemoteAddr().String())
	if err != nil {
		host = ""
	}
	if err := t.raw.SetDeadline(time.Time{}); err != nil {
		return err
	}

	tc := tls.Client(t.raw, trust.TLSConfig(host))
	if err := tc.HandshakeContext(ctx); err != nil {
		return err
	}
	t.tls = tc
	t.conn = tc
	return nil
}

func (t *NetTransport) EndSession() error {
	if t.tls == nil {
		return nil
	}
	_ = t.tls.SetWriteDeadline(time.Now().Add(t.PollTimeout + 100*time.Millisecond))
	return t.tls.CloseWrite()
}

func (t *NetTransport) LocalPort() int {
	if addr, ok := t.raw.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (t *NetTransport) Close() error {
	return t.raw.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
