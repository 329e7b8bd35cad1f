package connmgr

import (
	"time"

	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

// Receive reads what the connection has available and parses it. Events are
// delivered to the connection's handler with no lock held. A transport
// failure, an expired response deadline or an overlong line disables the
// connection and is reported once as msgparser.EventNetworkFailure; the slot
// stays allocated until DeleteConnection.
//
// Receive returns ErrInvalidHandle if h does not name an enabled connection.
// Failures are not returned; they go to the handler.
func (m *Manager) Receive(h Handle) error {
	m.poolMu.Lock()
	s := m.slotOf(h)
	if s == nil || !s.enabled {
		m.poolMu.Unlock()
		return newError("receive", h, ErrInvalidHandle, nil)
	}
	if s.busy {
		m.poolMu.Unlock()
		return nil
	}
	s.busy = true
	events := s.events
	m.poolMu.Unlock()

	defer m.finishReceive(s)

	data, failure := m.read(s, h)
	if len(data) > 0 {
		if err := m.parse(s, h, data, events); err != nil && failure == nil {
			failure = err
		}
	}
	if failure == nil {
		failure = m.expired(s, h)
	}
	if failure != nil {
		m.fail(s, h, failure)
	}
	return nil
}

// expired reports ErrResponseTimeout once the armed response deadline passed
// without a complete message.
func (m *Manager) expired(s *slot, h Handle) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if s.handle != h || !s.responsePending || !time.Now().After(s.responseDeadline) {
		return nil
	}
	s.responsePending = false
	m.log.Debug("response timed out", zap.Stringer("handle", h), zap.Duration("waited", time.Since(s.sendStart)))
	return newError("receive", h, ErrResponseTimeout, nil)
}

// read moves available bytes into the slot buffers under the transport lock.
// It returns everything buffered for the parser, pending tail included.
func (m *Manager) read(s *slot, h Handle) ([]byte, error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if s.handle != h || s.t == nil {
		return nil, nil
	}

	var data []byte
	var n int
	var err error
	if s.temp != nil {
		pending := s.temp.Len()
		lib.GrowBuffer(s.temp, m.cfg.ReceiveBufferSize, m.cfg.OverflowIncrement)
		n, err = s.t.Read(s.temp.B[pending : pending+m.cfg.ReceiveBufferSize])
		if n < 0 {
			n = 0
		}
		s.temp.B = s.temp.B[:pending+n]
		data = s.temp.B
	} else {
		n, err = s.t.Read(s.recv[:cap(s.recv)])
		if n < 0 {
			n = 0
		}
		data = s.recv[:n]
	}
	m.metrics.read(n)

	switch transport.Classify(err) {
	case transport.KindNone, transport.KindWouldBlock:
		if n == 0 {
			return nil, nil
		}
		return data, nil
	}
	return data, newError("receive", h, ErrReceiveFatal, err)
}

// parse runs the parser over data and keeps the incomplete tail for the next
// Receive. The slot is busy, so its buffers are ours without a lock.
func (m *Manager) parse(s *slot, h Handle, data []byte, events msgparser.Handler) error {
	consumed, err := s.parser.Parse(data, events)
	if err != nil {
		return newError("receive", h, ErrReceiveFatal, err)
	}

	tail := data[consumed:]
	switch {
	case len(tail) == 0:
		if s.temp != nil {
			lib.ReleaseBuffer(s.temp)
			s.temp = nil
		}
	case s.temp == nil:
		s.temp = lib.AcquireBuffer()
		lib.GrowBuffer(s.temp, len(tail), m.cfg.OverflowIncrement)
		s.temp.B = append(s.temp.B, tail...)
	default:
		n := copy(s.temp.B, tail)
		s.temp.B = s.temp.B[:n]
	}
	return nil
}

// fail disables the connection and tells its handler, once.
func (m *Manager) fail(s *slot, h Handle, err error) {
	m.poolMu.Lock()
	report := s.handle == h && s.enabled
	s.enabled = false
	handler := s.handler
	m.poolMu.Unlock()

	if !report {
		return
	}

	m.metrics.failure(err)
	m.log.Info("connection failed", zap.Stringer("handle", h), zap.Error(err))
	if handler != nil {
		handler.HandleEvent(h, msgparser.Event{Type: msgparser.EventNetworkFailure}, err)
	}
}

func (m *Manager) finishReceive(s *slot) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	s.busy = false
	if s.handle == InvalidHandle && s.inUse {
		s.free()
	}
}
