// Package poller keeps a connection open to each configured server and sends
// it a request at a fixed interval. Requests go out from the thread pool,
// timing comes from the scheduler and responses arrive through the connection
// manager's poll loop. Lost connections are re-established with backoff.
package poller

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/scheduler"
	"github.com/CreatorDev/creator-wifire-app-sub001/threadpool"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

const DefaultReconnectAttempts = 8

var ErrStopped = errors.New("poller: stopped")

// Target is a server to poll.
type Target struct {
	Name     string
	Endpoint connmgr.Endpoint
	Method   string
	Path     string
	// Interval between requests. Zero sends a single request.
	Interval        time.Duration
	ResponseTimeout time.Duration
}

// Response is a complete answer from a target.
type Response struct {
	Target  string
	Status  string
	Header  map[string]string
	Body    []byte
	Latency time.Duration
}

type Option func(p *Poller)

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.log = lib.Logger(l) }
}

// WithResponseHandler sets the function responses are handed to. It runs on
// the thread pool.
func WithResponseHandler(fn func(Response)) Option {
	return func(p *Poller) { p.onResponse = fn }
}

// WithReconnect bounds reconnect attempts and their backoff.
func WithReconnect(attempts int, min, max time.Duration) Option {
	return func(p *Poller) {
		p.attempts = attempts
		p.backoffMin = min
		p.backoffMax = max
	}
}

type Poller struct {
	m    *connmgr.Manager
	s    *scheduler.Scheduler
	pool *threadpool.Pool
	log  *zap.Logger

	onResponse func(Response)
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	targets []*target
	stopped bool
}

func New(m *connmgr.Manager, s *scheduler.Scheduler, pool *threadpool.Pool, opts ...Option) *Poller {
	p := &Poller{
		m:          m,
		s:          s,
		pool:       pool,
		log:        zap.NewNop(),
		onResponse: func(Response) {},
		attempts:   DefaultReconnectAttempts,
		backoffMin: 500 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Add starts polling t. The first connection attempt runs on the thread pool.
func (p *Poller) Add(t Target) error {
	if t.Method == "" {
		t.Method = "GET"
	}
	if t.Path == "" {
		t.Path = "/"
	}
	if t.Name == "" {
		t.Name = transport.HostAddr(t.Endpoint.Address, t.Endpoint.Port)
	}

	tg := &target{
		Target: t,
		p:      p,
		retry: &backoff.Backoff{
			Factor: 1.25,
			Jitter: true,
			Min:    p.backoffMin,
			Max:    p.backoffMax,
		},
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.targets = append(p.targets, tg)
	p.mu.Unlock()

	return p.pool.AddTask(tg.connect)
}

// Stop cancels pending work and closes every target's connection.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	targets := p.targets
	p.mu.Unlock()

	p.cancel()
	for _, t := range targets {
		t.close()
	}
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Connected reports how many targets currently hold a connection.
func (p *Poller) Connected() int {
	p.mu.Lock()
	targets := p.targets
	p.mu.Unlock()

	n := 0
	for _, t := range targets {
		if t.connected() {
			n++
		}
	}
	return n
}

// resolve turns a host name into an IPv4 address for dialing. TLS keeps the
// name for certificate checks.
func (p *Poller) resolve(ep connmgr.Endpoint) (connmgr.Endpoint, error) {
	if net.ParseIP(ep.Address) != nil {
		return ep, nil
	}
	ip, err := p.m.GetHostByName(p.ctx, ep.Address)
	if err != nil {
		return ep, err
	}
	if ep.Type == connmgr.TLS {
		var trust transport.TrustMaterial
		if ep.Trust != nil {
			trust = *ep.Trust
		}
		if trust.ServerName == "" {
			trust.ServerName = ep.Address
		}
		ep.Trust = &trust
	}
	ep.Address = ip.String()
	return ep, nil
}
