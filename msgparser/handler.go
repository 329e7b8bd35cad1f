package msgparser

import "fmt"

type EventType int

const (
	EventLine EventType = iota
	EventHeader
	EventHeaderEnd
	EventData
	EventFinished
	EventNetworkFailure
)

func (t EventType) String() string {
	switch t {
	case EventLine:
		return "line"
	case EventHeader:
		return "header"
	case EventHeaderEnd:
		return "header-end"
	case EventData:
		return "data"
	case EventFinished:
		return "finished"
	case EventNetworkFailure:
		return "network-failure"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is a single parser event. Name is set for EventHeader only. Value holds
// the line, the header value or the body bytes. Both alias the parsed buffer.
type Event struct {
	Type  EventType
	Name  []byte
	Value []byte
}

// Handler receives the events of one connection in protocol order. Slices
// passed to it are valid only for the duration of the call.
type Handler interface {
	// HandleLine is offered the first non-blank line of a message. Returning
	// false discards the line and the parser keeps looking for a message start.
	HandleLine(line []byte) bool
	HandleHeader(name, value []byte)
	HandleHeaderEnd()
	HandleData(p []byte)
	HandleFinished()
}

// HandlerFunc adapts a single event callback to Handler. The returned bool is
// only consulted for EventLine.
type HandlerFunc func(ev Event) bool

func (fn HandlerFunc) HandleLine(line []byte) bool {
	return fn(Event{Type: EventLine, Value: line})
}

func (fn HandlerFunc) HandleHeader(name, value []byte) {
	fn(Event{Type: EventHeader, Name: name, Value: value})
}

func (fn HandlerFunc) HandleHeaderEnd() { fn(Event{Type: EventHeaderEnd}) }

func (fn HandlerFunc) HandleData(p []byte) { fn(Event{Type: EventData, Value: p}) }

func (fn HandlerFunc) HandleFinished() { fn(Event{Type: EventFinished}) }

var DefaultHandler HandlerFunc = func(ev Event) bool { return true }
