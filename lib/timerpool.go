package lib

import (
	"context"
	"sync"
	"time"
)

type TimerPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *TimerPool) Acquire(timeout time.Duration) *time.Timer {
	v := p.sp.Get()
	if v == nil {
		p.m.acquiredNew()
		return time.NewTimer(timeout)
	}
	p.m.acquiredReused()
	t := v.(*time.Timer)
	t.Reset(timeout)
	return t
}

func (p *TimerPool) Release(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	p.sp.Put(t)
	p.m.putBack()
}

// Metrics returns the reuse counters of the pool.
func (p *TimerPool) Metrics() *PoolMetrics { return p.m }

// AcquireTimer takes a timer armed for d from the shared timer pool.
func AcquireTimer(d time.Duration) *time.Timer { return timerPool.Acquire(d) }

// ReleaseTimer stops t and hands it back to the shared timer pool.
func ReleaseTimer(t *time.Timer) { timerPool.Release(t) }

// Sleep pauses for d using a pooled timer. It returns ctx.Err() if ctx is
// done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := timerPool.Acquire(d)
	defer timerPool.Release(t)

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
