// Package msgparser reconstructs HTTP shaped messages (a first line, Name: Value
// headers, a blank line and Content-Length bytes of body) from input that may
// be split at any byte. The parser keeps its position between calls, so a
// connection can feed it whatever each read returned.
package msgparser

import (
	"bytes"
	"errors"
	"strconv"
)

var ErrLineTooLong = errors.New("msgparser: incomplete line exceeds limit")

type State int

const (
	StatePacketBeginning State = iota
	StateHeaders
	StateContent
)

func (s State) String() string {
	switch s {
	case StatePacketBeginning:
		return "packet-beginning"
	case StateHeaders:
		return "headers"
	case StateContent:
		return "content"
	}
	return "unknown"
}

var contentLength = []byte("Content-Length")

type Parser struct {
	// MaxLine bounds the incomplete tail a caller has to keep between calls.
	// Zero means no limit.
	MaxLine int

	state     State
	remaining int64
}

func (p *Parser) State() State { return p.state }

// Remaining is the number of body bytes still expected.
func (p *Parser) Remaining() int64 { return p.remaining }

func (p *Parser) Reset() {
	p.state = StatePacketBeginning
	p.remaining = 0
}

// Parse feeds buf to the parser and reports events to h. It returns the number
// of bytes consumed; buf[consumed:] is an incomplete line which must be passed
// again, followed by new input, on the next call.
func (p *Parser) Parse(buf []byte, h Handler) (int, error) {
	off := 0
	for off < len(buf) {
		if p.state == StateContent {
			n := len(buf) - off
			if int64(n) > p.remaining {
				n = int(p.remaining)
			}
			h.HandleData(buf[off : off+n])
			off += n
			p.remaining -= int64(n)
			if p.remaining == 0 {
				p.state = StatePacketBeginning
				h.HandleFinished()
			}
			continue
		}

		i := bytes.IndexByte(buf[off:], '\n')
		if i < 0 {
			if p.MaxLine > 0 && len(buf)-off > p.MaxLine {
				return off, ErrLineTooLong
			}
			return off, nil
		}
		line := buf[off : off+i]
		off += i + 1
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}

		if p.state == StatePacketBeginning {
			if len(line) == 0 {
				continue
			}
			if h.HandleLine(line) {
				p.state = StateHeaders
				p.remaining = 0
			}
			continue
		}

		if len(line) == 0 {
			h.HandleHeaderEnd()
			if p.remaining > 0 {
				p.state = StateContent
				continue
			}
			p.state = StatePacketBeginning
			h.HandleFinished()
			continue
		}
		p.header(line, h)
	}
	return off, nil
}

func (p *Parser) header(line []byte, h Handler) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return
	}
	name := line[:i]
	value := bytes.TrimLeft(line[i+1:], " \t")
	h.HandleHeader(name, value)

	if bytes.EqualFold(name, contentLength) {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64)
		if err != nil || n < 0 {
			n = 0
		}
		p.remaining = n
	}
}
