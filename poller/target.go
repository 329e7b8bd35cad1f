package poller

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
	"github.com/CreatorDev/creator-wifire-app-sub001/scheduler"
)

var httpPrefix = []byte("HTTP/")

type target struct {
	Target
	p *Poller

	mu       sync.Mutex
	handle   connmgr.Handle
	task     scheduler.TaskID
	retry    *backoff.Backoff
	sentAt   time.Time
	inFlight bool

	// response being assembled, touched only from connection events
	status string
	header map[string]string
	body   bytebufferpool.ByteBuffer
}

func (t *target) connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != connmgr.InvalidHandle
}

// connect runs on the thread pool.
func (t *target) connect() {
	p := t.p
	if p.isStopped() {
		return
	}

	ep, err := p.resolve(t.Endpoint)
	if err == nil {
		var h connmgr.Handle
		h, err = p.m.CreateConnection(p.ctx, ep, connmgr.HandlerFunc(t.handleEvent))
		if err == nil {
			t.attach(h)
			return
		}
	}
	p.log.Warn("connect target", zap.String("target", t.Name), zap.Error(err))
	t.reconnectLater()
}

func (t *target) attach(h connmgr.Handle) {
	p := t.p

	t.mu.Lock()
	t.handle = h
	t.inFlight = false
	t.retry.Reset()
	if t.Interval > 0 {
		t.task = p.s.ScheduleTask(t.tick, t.Interval, true)
	}
	t.mu.Unlock()

	if p.isStopped() {
		t.close()
		return
	}
	p.log.Info("target connected", zap.String("target", t.Name), zap.Stringer("handle", h))
	if err := p.pool.AddTask(t.send); err != nil {
		p.log.Warn("queue request", zap.String("target", t.Name), zap.Error(err))
	}
}

// detach forgets h. Only the caller that gets true may reconnect.
func (t *target) detach(h connmgr.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle != h || h == connmgr.InvalidHandle {
		return false
	}
	t.handle = connmgr.InvalidHandle
	t.inFlight = false
	if t.task != scheduler.InvalidTaskID {
		t.p.s.UnscheduleTask(t.task)
		t.task = scheduler.InvalidTaskID
	}
	return true
}

func (t *target) close() {
	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	if t.detach(h) {
		t.p.m.DeleteConnection(h)
	}
}

func (t *target) reconnectLater() {
	p := t.p
	if p.isStopped() {
		return
	}

	t.mu.Lock()
	attempt := int(t.retry.Attempt())
	d := t.retry.Duration()
	t.mu.Unlock()

	if attempt >= p.attempts {
		p.log.Error("giving up on target", zap.String("target", t.Name), zap.Int("attempts", attempt))
		return
	}
	p.log.Info("reconnecting", zap.String("target", t.Name), zap.Duration("in", d))
	p.s.ScheduleTask(func(scheduler.TaskID) {
		if err := p.pool.AddTask(t.connect); err != nil {
			p.log.Warn("queue reconnect", zap.String("target", t.Name), zap.Error(err))
		}
	}, d, false)
}

// tick runs on the scheduler goroutine.
func (t *target) tick(scheduler.TaskID) {
	t.mu.Lock()
	busy := t.inFlight
	t.mu.Unlock()
	if busy {
		return
	}
	if err := t.p.pool.AddTask(t.send); err != nil {
		t.p.log.Warn("queue request", zap.String("target", t.Name), zap.Error(err))
	}
}

// send runs on the thread pool.
func (t *target) send() {
	p := t.p

	t.mu.Lock()
	h := t.handle
	if h == connmgr.InvalidHandle || t.inFlight {
		t.mu.Unlock()
		return
	}
	t.inFlight = true
	t.sentAt = time.Now()
	t.mu.Unlock()

	req := bytebufferpool.Get()
	defer bytebufferpool.Put(req)
	t.request(req)

	if err := p.m.SendRequest(h, req.B, t.ResponseTimeout); err != nil {
		p.log.Warn("send request", zap.String("target", t.Name), zap.Error(err))
		if t.detach(h) {
			p.m.DeleteConnection(h)
			t.reconnectLater()
		}
	}
}

func (t *target) request(b *bytebufferpool.ByteBuffer) {
	b.WriteString(t.Method)
	b.WriteString(" ")
	b.WriteString(t.Path)
	b.WriteString(" HTTP/1.1\r\nHost: ")
	b.WriteString(t.host())
	b.WriteString("\r\n\r\n")
}

func (t *target) host() string {
	if t.Endpoint.Trust != nil && t.Endpoint.Trust.ServerName != "" {
		return t.Endpoint.Trust.ServerName
	}
	return t.Endpoint.Address
}

// handleEvent runs on the connection manager's poll goroutine.
func (t *target) handleEvent(h connmgr.Handle, ev msgparser.Event, err error) bool {
	switch ev.Type {
	case msgparser.EventLine:
		if !bytes.HasPrefix(ev.Value, httpPrefix) {
			return false
		}
		t.status = string(ev.Value)
		t.header = make(map[string]string)
		t.body.Reset()
	case msgparser.EventHeader:
		if t.header != nil {
			t.header[strings.ToLower(string(ev.Name))] = string(ev.Value)
		}
	case msgparser.EventData:
		t.body.Write(ev.Value)
	case msgparser.EventFinished:
		t.finish()
	case msgparser.EventNetworkFailure:
		t.p.log.Warn("target connection failed", zap.String("target", t.Name), zap.Error(err))
		if t.detach(h) {
			t.p.m.DeleteConnection(h)
			t.reconnectLater()
		}
	}
	return true
}

func (t *target) finish() {
	p := t.p

	t.mu.Lock()
	latency := time.Since(t.sentAt)
	t.inFlight = false
	t.mu.Unlock()

	resp := Response{
		Target:  t.Name,
		Status:  t.status,
		Header:  t.header,
		Body:    append([]byte(nil), t.body.B...),
		Latency: latency,
	}
	t.status, t.header = "", nil
	t.body.Reset()

	if err := p.pool.AddTask(func() { p.onResponse(resp) }); err != nil {
		p.log.Warn("queue response", zap.String("target", t.Name), zap.Error(err))
	}
}
