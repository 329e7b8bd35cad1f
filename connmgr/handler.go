package connmgr

import (
	"fmt"

	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
)

// Handle names a connection slot. The zero value never names one.
type Handle uint64

const InvalidHandle Handle = 0

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) index() int { return int(uint32(h)) - 1 }

func (h Handle) gen() uint32 { return uint32(h >> 32) }

func (h Handle) String() string { return fmt.Sprintf("%d/%d", h.index(), h.gen()) }

type TransportType int

const (
	Plain TransportType = iota
	TLS
)

func (t TransportType) String() string {
	if t == TLS {
		return "tls"
	}
	return "plain"
}

// Handler receives the parser events of a connection in protocol order, and
// EventNetworkFailure with err set once when the connection fails. The result
// is consulted only for msgparser.EventLine. Event slices are valid only
// during the call. Handlers run on the goroutine calling Receive and may call
// SendRequest or DeleteConnection.
type Handler interface {
	HandleEvent(h Handle, ev msgparser.Event, err error) bool
}

type HandlerFunc func(h Handle, ev msgparser.Event, err error) bool

func (fn HandlerFunc) HandleEvent(h Handle, ev msgparser.Event, err error) bool {
	return fn(h, ev, err)
}

var DefaultHandler HandlerFunc = func(h Handle, ev msgparser.Event, err error) bool { return true }
