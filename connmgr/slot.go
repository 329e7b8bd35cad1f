package connmgr

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

// slot is a connection control block.
//
// inUse, enabled, busy and gen are guarded by the pool lock. handle and t are
// written holding both locks and may be read holding either. The response
// fields are guarded by the transport lock. recv, temp and parser belong to
// the Receive call that set busy, or to whoever holds the pool lock while the
// slot is not busy. wmu serializes writes to t and is never waited for while
// the transport lock is held.
type slot struct {
	index int
	gen   uint32

	inUse   bool
	enabled bool
	busy    bool

	handle Handle
	t      transport.Transport
	wmu    sync.Mutex

	typ       TransportType
	keepAlive bool
	address   string
	port      uint16
	localPort int
	trust     *transport.TrustMaterial
	handler   Handler
	events    msgparser.Handler
	trace     uuid.UUID

	responsePending  bool
	sendStart        time.Time
	responseDeadline time.Time

	recv   []byte
	temp   *bytebufferpool.ByteBuffer
	parser msgparser.Parser
}

// releaseBuffers drops the receive state kept between reads.
func (s *slot) releaseBuffers() {
	if s.temp != nil {
		lib.ReleaseBuffer(s.temp)
		s.temp = nil
	}
	s.parser.Reset()
}

// free returns the slot to the pool. The pool lock must be held and the slot
// must not be busy.
func (s *slot) free() {
	s.releaseBuffers()
	s.inUse = false
	s.enabled = false
	s.handler = nil
	s.events = nil
	s.trust = nil
}

func (s *slot) info() ConnInfo {
	return ConnInfo{
		Handle:          s.handle,
		Address:         s.address,
		Port:            s.port,
		LocalPort:       s.localPort,
		Type:            s.typ,
		KeepAlive:       s.keepAlive,
		Enabled:         s.enabled,
		ResponsePending: s.responsePending,
		Trace:           s.trace.String(),
	}
}

type ConnInfo struct {
	Handle          Handle
	Address         string
	Port            uint16
	LocalPort       int
	Type            TransportType
	KeepAlive       bool
	Enabled         bool
	ResponsePending bool
	Trace           string
}
