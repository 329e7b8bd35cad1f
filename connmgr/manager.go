// Package connmgr owns a fixed number of connection slots and drives their
// transports. A single poll goroutine reads every enabled connection and feeds
// the bytes to the connection's message parser; parser events go to the
// Handler registered with the connection.
package connmgr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

type Endpoint struct {
	Address   string
	Port      uint16
	Type      TransportType
	KeepAlive bool
	Trust     *transport.TrustMaterial
}

type Option func(m *Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = lib.Logger(l) }
}

// WithRegisterer enables the connection metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

func WithDialer(d transport.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithResolver(r Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

type Manager struct {
	cfg      Config
	log      *zap.Logger
	metrics  *metrics
	dialer   transport.Dialer
	resolver Resolver

	ioMu   sync.Mutex // transport lock, taken before poolMu
	poolMu sync.Mutex
	slots  []slot
	closed bool

	dnsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	start sync.Once
	stop  sync.Once
	done  syncx.DoneChan
	wg    sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:      cfg,
		log:      zap.NewNop(),
		resolver: net.DefaultResolver,
		slots:    make([]slot, cfg.MaxConnections),
		done:     syncx.NewDoneChan(),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.dialer = transport.NetDialer{PollTimeout: cfg.ReadPollTimeout, WriteTimeout: cfg.SendTimeout}

	for i := range m.slots {
		m.slots[i].index = i
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Cap() int { return len(m.slots) }

// Len reports the number of slots holding a connection, enabled or not.
func (m *Manager) Len() int {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	n := 0
	for i := range m.slots {
		if m.slots[i].inUse {
			n++
		}
	}
	return n
}

func (m *Manager) Info(h Handle) (ConnInfo, bool) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()
	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	s := m.slotOf(h)
	if s == nil {
		return ConnInfo{}, false
	}
	return s.info(), true
}

// slotOf returns the slot currently named by h, or nil. Either lock must be held.
func (m *Manager) slotOf(h Handle) *slot {
	i := h.index()
	if h == InvalidHandle || i < 0 || i >= len(m.slots) {
		return nil
	}
	s := &m.slots[i]
	if s.handle != h {
		return nil
	}
	return s
}

func (m *Manager) reserve() (*slot, error) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	for i := range m.slots {
		s := &m.slots[i]
		if s.inUse {
			continue
		}
		s.inUse = true
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		if s.recv == nil {
			s.recv = make([]byte, m.cfg.ReceiveBufferSize)
		}
		s.parser = msgparser.Parser{MaxLine: m.cfg.MaxOverflow}
		return s, nil
	}
	return nil, ErrResourceExhausted
}

func (m *Manager) unreserve(s *slot) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	s.free()
}

// CreateConnection opens a connection to ep and registers h for its events.
// It blocks until the connection and, for TLS, the handshake complete.
func (m *Manager) CreateConnection(ctx context.Context, ep Endpoint, h Handler) (Handle, error) {
	if h == nil {
		h = DefaultHandler
	}

	s, err := m.reserve()
	if err != nil {
		err = newError("create", InvalidHandle, err, nil)
		m.metrics.connect(err)
		m.log.Warn("no connection slot", zap.String("address", ep.Address), zap.Error(err))
		return InvalidHandle, err
	}

	t, err := m.open(ctx, ep)
	if err != nil {
		m.unreserve(s)
		m.metrics.connect(err)
		m.log.Warn("connect failed", zap.String("address", ep.Address), zap.Uint16("port", ep.Port), zap.Error(err))
		return InvalidHandle, err
	}

	hd := makeHandle(s.index, s.gen)

	m.ioMu.Lock()
	m.poolMu.Lock()
	if m.closed {
		m.poolMu.Unlock()
		m.ioMu.Unlock()
		_ = t.Close()
		m.unreserve(s)
		return InvalidHandle, newError("create", InvalidHandle, ErrClosed, nil)
	}

	s.handle = hd
	s.t = t
	s.typ = ep.Type
	s.keepAlive = ep.KeepAlive
	s.address = ep.Address
	s.port = ep.Port
	s.localPort = t.LocalPort()
	s.trust = ep.Trust
	s.handler = h
	s.events = m.parserEvents(s, hd, h)
	s.trace = uuid.New()
	s.responsePending = false
	s.enabled = true
	m.poolMu.Unlock()
	m.ioMu.Unlock()

	m.metrics.connect(nil)
	m.log.Debug("connection created",
		zap.Stringer("handle", hd),
		zap.String("trace", s.trace.String()),
		zap.String("address", ep.Address),
		zap.Uint16("port", ep.Port),
		zap.Stringer("type", ep.Type),
		zap.Int("local_port", s.localPort))
	return hd, nil
}

// open dials ep and runs the TLS handshake. The slot is reserved but not yet
// visible to any other operation, so no lock is held.
func (m *Manager) open(ctx context.Context, ep Endpoint) (transport.Transport, error) {
	addr := transport.HostAddr(ep.Address, ep.Port)

	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	t, err := m.dialer.Dial(dctx, addr, ep.KeepAlive)
	cancel()
	if err != nil {
		if isDeadline(err) {
			return nil, newError("create", InvalidHandle, ErrConnectTimeout, err)
		}
		return nil, newError("create", InvalidHandle, ErrConnectError, err)
	}

	if ep.Type != TLS {
		return t, nil
	}

	trust := ep.Trust
	if trust == nil || trust.ServerName == "" {
		var c transport.TrustMaterial
		if trust != nil {
			c = *trust
		}
		c.ServerName = ep.Address
		trust = &c
	}

	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	err = t.StartHandshake(hctx, trust)
	cancel()
	if err != nil {
		_ = t.Close()
		if isDeadline(err) {
			return nil, newError("create", InvalidHandle, ErrHandshakeTimeout, err)
		}
		return nil, newError("create", InvalidHandle, ErrHandshakeError, err)
	}
	return t, nil
}

// parserEvents forwards parser events of the connection hd to h. A finished
// message clears the pending response deadline.
func (m *Manager) parserEvents(s *slot, hd Handle, h Handler) msgparser.Handler {
	return msgparser.HandlerFunc(func(ev msgparser.Event) bool {
		if ev.Type == msgparser.EventFinished {
			m.ioMu.Lock()
			if s.handle == hd {
				s.responsePending = false
			}
			m.ioMu.Unlock()
			m.metrics.message()
		}
		return h.HandleEvent(hd, ev, nil)
	})
}

// SendRequest writes p to the connection. Writes that would block are retried
// every SendRetryInterval until SendTimeout. A positive responseTimeout arms a
// deadline: if no complete message arrives before it, Receive reports
// ErrResponseTimeout. Writes hold only the connection's write lock, so a
// stalled peer does not hold up other connections.
func (m *Manager) SendRequest(h Handle, p []byte, responseTimeout time.Duration) error {
	start := time.Now()
	deadline := start.Add(m.cfg.SendTimeout)

	off := 0
	for {
		t, wmu := m.writer(h)
		if t == nil {
			return newError("send", h, ErrInvalidHandle, nil)
		}

		var n int
		var err error
		if off < len(p) {
			wmu.Lock()
			n, err = t.Write(p[off:])
			wmu.Unlock()
			off += n
		}
		if err == nil && off >= len(p) {
			if responseTimeout > 0 {
				m.armResponse(h, responseTimeout)
			}
			m.metrics.sent(len(p), start)
			return nil
		}

		switch transport.Classify(err) {
		case transport.KindNone, transport.KindWouldBlock:
		case transport.KindTimeout:
			return newError("send", h, ErrSendTimeout, err)
		default:
			m.log.Debug("send failed", zap.Stringer("handle", h), zap.Int("written", off), zap.Error(err))
			return newError("send", h, ErrSendError, err)
		}

		if !time.Now().Before(deadline) {
			return newError("send", h, ErrSendTimeout, err)
		}
		if n > 0 {
			continue
		}
		if err := lib.Sleep(m.ctx, m.cfg.SendRetryInterval); err != nil {
			return newError("send", h, ErrClosed, err)
		}
	}
}

// writer looks up the transport of h and the lock its writes take.
func (m *Manager) writer(h Handle) (transport.Transport, *sync.Mutex) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	s := m.slotOf(h)
	if s == nil || s.t == nil {
		return nil, nil
	}
	return s.t, &s.wmu
}

func (m *Manager) armResponse(h Handle, timeout time.Duration) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	s := m.slotOf(h)
	if s == nil {
		return
	}
	now := time.Now()
	s.responsePending = true
	s.sendStart = now
	s.responseDeadline = now.Add(timeout)
}

// DeleteConnection closes the connection and frees its slot. Deleting a handle
// that no longer names a connection does nothing. When a Receive on the slot
// is in flight the slot is freed once it returns.
func (m *Manager) DeleteConnection(h Handle) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.poolMu.Lock()
	s := m.slotOf(h)
	if s == nil {
		m.poolMu.Unlock()
		return
	}
	t, typ, trace := s.t, s.typ, s.trace
	s.handle = InvalidHandle
	s.t = nil
	s.enabled = false
	s.responsePending = false
	if !s.busy {
		s.free()
	}
	m.poolMu.Unlock()

	if t != nil {
		// A write in flight holds wmu until Close makes it fail; the session is
		// only ended when no write is running.
		if typ == TLS && s.wmu.TryLock() {
			if err := t.EndSession(); err != nil {
				m.log.Debug("end tls session", zap.Stringer("handle", h), zap.Error(err))
			}
			s.wmu.Unlock()
		}
		if err := t.Close(); err != nil {
			m.log.Debug("close transport", zap.Stringer("handle", h), zap.Error(err))
		}
	}
	m.metrics.released()
	m.log.Debug("connection deleted", zap.Stringer("handle", h), zap.String("trace", trace.String()))
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
