package msgparser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
	reject func(line string) bool
}

func (r *recorder) handler() HandlerFunc {
	return func(ev Event) bool {
		switch ev.Type {
		case EventLine:
			if r.reject != nil && r.reject(string(ev.Value)) {
				return false
			}
			r.events = append(r.events, fmt.Sprintf("line(%s)", ev.Value))
		case EventHeader:
			r.events = append(r.events, fmt.Sprintf("header(%s,%s)", ev.Name, ev.Value))
		case EventData:
			r.events = append(r.events, fmt.Sprintf("data(%s)", ev.Value))
		default:
			r.events = append(r.events, ev.Type.String())
		}
		return true
	}
}

// feed runs chunks through p, carrying the unconsumed tail over to the next
// chunk the way a connection does.
func feed(t *testing.T, p *Parser, h Handler, chunks ...string) {
	t.Helper()
	var pending []byte
	for _, c := range chunks {
		buf := append(pending, c...)
		n, err := p.Parse(buf, h)
		require.NoError(t, err)
		pending = append([]byte(nil), buf[n:]...)
	}
	require.Empty(t, pending)
}

// coalesce merges consecutive data events so chunked and whole deliveries compare equal.
func coalesce(events []string) []string {
	var out []string
	for _, e := range events {
		if strings.HasPrefix(e, "data(") && len(out) > 0 && strings.HasPrefix(out[len(out)-1], "data(") {
			prev := out[len(out)-1]
			out[len(out)-1] = prev[:len(prev)-1] + e[len("data("):]
			continue
		}
		out = append(out, e)
	}
	return out
}

func TestParseRequest(t *testing.T) {
	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(), "GET /x HTTP/1.1\r\nHost: h\r\n\r\n")

	require.Equal(t, []string{
		"line(GET /x HTTP/1.1)",
		"header(Host,h)",
		"header-end",
		"finished",
	}, r.events)
	require.Equal(t, StatePacketBeginning, p.State())
}

func TestParseBodyAcrossReads(t *testing.T) {
	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(),
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n",
		"abc",
		"de",
	)

	require.Equal(t, []string{
		"line(HTTP/1.1 200 OK)",
		"header(Content-Length,5)",
		"header-end",
		"data(abc)",
		"data(de)",
		"finished",
	}, r.events)
}

func TestParseEverySplitPoint(t *testing.T) {
	msg := "HTTP/1.1 200 OK\r\ncontent-length: 11\r\nX-Empty:\r\nServer:   gw\r\n\r\nhello world"

	var whole Parser
	want := &recorder{}
	feed(t, &whole, want.handler(), msg)
	require.Contains(t, want.events, "data(hello world)")

	for i := 1; i < len(msg); i++ {
		for j := i; j < len(msg); j++ {
			var p Parser
			got := &recorder{}
			feed(t, &p, got.handler(), msg[:i], msg[i:j], msg[j:])
			require.Equal(t, want.events, coalesce(got.events), "split at %d,%d", i, j)
		}
	}
}

func TestParseByteAtATime(t *testing.T) {
	msg := "POST /r HTTP/1.1\r\nContent-Length: 4\r\n\r\nping"
	chunks := make([]string, len(msg))
	for i := range msg {
		chunks[i] = msg[i : i+1]
	}

	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(), chunks...)

	finished := 0
	body := 0
	for _, e := range r.events {
		if e == "finished" {
			finished++
		}
		if strings.HasPrefix(e, "data(") {
			body += len(e) - len("data()")
		}
	}
	require.Equal(t, 1, finished)
	require.Equal(t, 4, body)
}

func TestParsePipelined(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n%d", i%10)
	}

	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(), sb.String())

	var data []string
	finished := 0
	for _, e := range r.events {
		switch {
		case e == "finished":
			finished++
		case strings.HasPrefix(e, "data("):
			data = append(data, e)
		}
	}
	require.Equal(t, 50, finished)
	for i, d := range data {
		require.Equal(t, fmt.Sprintf("data(%d)", i%10), d)
	}
}

func TestParseSkipsBlankLinesAndResyncs(t *testing.T) {
	var p Parser
	r := &recorder{reject: func(line string) bool { return !strings.HasPrefix(line, "HTTP/") }}
	feed(t, &p, r.handler(), "\r\n\r\n\n\x00garbage\r\nHTTP/1.1 204 No Content\r\n\r\n")

	require.Equal(t, []string{
		"line(HTTP/1.1 204 No Content)",
		"header-end",
		"finished",
	}, r.events)
}

func TestParseHeaderEdgeCases(t *testing.T) {
	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(),
		"HTTP/1.1 200 OK\r\nno colon here\r\nA: b: c\r\nContent-Length: -3\r\n\r\n",
		"HTTP/1.1 200 OK\r\nContent-Length: nope\r\n\r\n",
	)

	require.Equal(t, []string{
		"line(HTTP/1.1 200 OK)",
		"header(A,b: c)",
		"header(Content-Length,-3)",
		"header-end",
		"finished",
		"line(HTTP/1.1 200 OK)",
		"header(Content-Length,nope)",
		"header-end",
		"finished",
	}, r.events)
}

func TestParseBareLF(t *testing.T) {
	var p Parser
	r := &recorder{}
	feed(t, &p, r.handler(), "HTTP/1.1 200 OK\nContent-Length: 2\n\nok")

	require.Equal(t, []string{
		"line(HTTP/1.1 200 OK)",
		"header(Content-Length,2)",
		"header-end",
		"data(ok)",
		"finished",
	}, r.events)
}

func TestParseIncompleteReturnsOffset(t *testing.T) {
	var p Parser
	r := &recorder{}
	buf := []byte("HTTP/1.1 200 OK\r\nHost: h")
	n, err := p.Parse(buf, r.handler())
	require.NoError(t, err)
	require.Equal(t, len("HTTP/1.1 200 OK\r\n"), n)
	require.Equal(t, StateHeaders, p.State())
}

func TestParseLineTooLong(t *testing.T) {
	p := Parser{MaxLine: 8}
	r := &recorder{}

	n, err := p.Parse([]byte("12345678"), r.handler())
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = p.Parse([]byte("123456789"), r.handler())
	require.ErrorIs(t, err, ErrLineTooLong)
	require.Zero(t, n)

	_, err = p.Parse([]byte("HTTP/1.1 200 OK with a long reason\r\n\r\n"), r.handler())
	require.NoError(t, err)
	require.Equal(t, []string{"line(HTTP/1.1 200 OK with a long reason)", "header-end", "finished"}, r.events)
}

func TestParseNoBodyLeftInContent(t *testing.T) {
	var p Parser
	r := &recorder{}
	n, err := p.Parse([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc"), r.handler())
	require.NoError(t, err)
	require.Equal(t, 42, n)
	require.Equal(t, StateContent, p.State())
	require.EqualValues(t, 7, p.Remaining())

	p.Reset()
	require.Equal(t, StatePacketBeginning, p.State())
	require.Zero(t, p.Remaining())
}
