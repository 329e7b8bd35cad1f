// Package threadpool runs submitted functions on a bounded set of worker
// goroutines fed by a FIFO queue.
package threadpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
)

var (
	ErrPoolClosed = errors.New("thread pool closed")
	ErrQueueFull  = errors.New("thread pool queue full")
	ErrNilTask    = errors.New("nil task")
)

const (
	DefaultQueueSize   = 4096
	DefaultIdleTimeout = 2000 * time.Millisecond
)

type Runnable func()

type Config struct {
	// Min workers are kept once started. More are started, up to Max, while
	// every live worker is busy; those exit again after IdleTimeout without
	// work.
	Min int
	Max int

	// Priority and StackSize are kept for callers that size pools by them.
	// Goroutines have neither.
	Priority  int
	StackSize int

	QueueSize   int
	IdleTimeout time.Duration
}

func (c Config) clamp() Config {
	if c.Min < 1 {
		c.Min = 1
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

type Stats struct {
	Live     int
	Idle     int
	Queued   int
	Executed uint64
	Dropped  uint64
}

type Option func(p *Pool)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.log = lib.Logger(l) }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) { p.metrics = newMetrics(reg) }
}

type Pool struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics

	queue chan Runnable

	mu     sync.Mutex // worker list
	live   int
	idle   int
	closed bool

	executed atomic.Uint64
	dropped  atomic.Uint64

	done syncx.DoneChan
	free sync.Once
	wg   sync.WaitGroup
}

// New creates a pool with no workers; they are started by AddTask.
func New(cfg Config, opts ...Option) *Pool {
	cfg = cfg.clamp()

	p := &Pool{
		cfg:   cfg,
		log:   zap.NewNop(),
		queue: make(chan Runnable, cfg.QueueSize),
		done:  syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Config() Config { return p.cfg }

// AddTask queues fn. A worker is started if fewer than Min are live, or if
// queued work outnumbers idle workers and fewer than Max are live.
func (p *Pool) AddTask(fn Runnable) error {
	if fn == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- fn:
	default:
		p.dropped.Add(1)
		p.metrics.drop()
		p.log.Warn("thread pool queue full", zap.Int("queued", len(p.queue)))
		return ErrQueueFull
	}

	if p.live < p.cfg.Min || (len(p.queue) > p.idle && p.live < p.cfg.Max) {
		p.spawn()
	}
	p.metrics.queued(len(p.queue))
	return nil
}

// spawn starts a worker. The worker list lock must be held.
func (p *Pool) spawn() {
	p.live++
	p.metrics.workers(p.live)
	p.wg.Add(1)
	go p.work()
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		p.idle++
		p.mu.Unlock()

		timer := lib.AcquireTimer(p.cfg.IdleTimeout)
		select {
		case <-p.done:
			lib.ReleaseTimer(timer)
			p.exit(true)
			return

		case fn := <-p.queue:
			lib.ReleaseTimer(timer)
			p.mu.Lock()
			p.idle--
			p.mu.Unlock()

			select {
			case <-p.done:
				p.dropped.Add(1)
				p.exit(false)
				return
			default:
			}
			p.run(fn)

		case <-timer.C:
			lib.ReleaseTimer(timer)
			p.mu.Lock()
			p.idle--
			if p.live > p.cfg.Min {
				p.live--
				p.metrics.workers(p.live)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
		}
	}
}

func (p *Pool) exit(idle bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idle {
		p.idle--
	}
	p.live--
	p.metrics.workers(p.live)
}

func (p *Pool) run(fn Runnable) {
	defer func() {
		if v := recover(); v != nil {
			p.metrics.panicked()
			lib.LogPanic(p.log, "thread pool task panicked", v)
		}
		p.executed.Add(1)
		p.metrics.ran()
	}()
	fn()
}

// Free stops the pool. Queued tasks are dropped, running ones are waited for.
// Free must not be called from a task.
func (p *Pool) Free() {
	p.free.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.done.SetDone()
		n := p.drain()
		p.wg.Wait()
		n += p.drain()

		p.metrics.queued(0)
		p.log.Debug("thread pool freed", zap.Int("dropped", n), zap.Uint64("executed", p.executed.Load()))
	})
}

func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case <-p.queue:
			n++
			p.dropped.Add(1)
		default:
			return n
		}
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Live:     p.live,
		Idle:     p.idle,
		Queued:   len(p.queue),
		Executed: p.executed.Load(),
		Dropped:  p.dropped.Load(),
	}
}
