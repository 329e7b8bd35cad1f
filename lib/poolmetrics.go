package lib

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/someonegg/gox/syncx"
)

var DefaultTickerDuration = 1 * time.Second

// PoolMetrics counts how a pooled object type is used.
// na + nr equal the total number of acquires
// na + nr - np equal the number still checked out.
type PoolMetrics struct {
	na atomic.Uint32 // number of new acquires
	nr atomic.Uint32 // number of reuse from pool
	np atomic.Uint32 // number of put back to pool

	naa atomic.Uint64 // accumulative
	nra atomic.Uint64 // accumulative
	npa atomic.Uint64 // accumulative

	mu      sync.Mutex
	done    syncx.DoneChan
	running bool
	wg      sync.WaitGroup
}

// PoolStats is a point-in-time view of a PoolMetrics.
type PoolStats struct {
	New      uint64
	Reused   uint64
	Returned uint64
}

// InUse reports how many objects were acquired and not returned.
func (s PoolStats) InUse() int64 {
	return int64(s.New+s.Reused) - int64(s.Returned)
}

func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{}
}

func (p *PoolMetrics) acquiredNew()    { p.na.Add(1) }
func (p *PoolMetrics) acquiredReused() { p.nr.Add(1) }
func (p *PoolMetrics) putBack()        { p.np.Add(1) }

func (p *PoolMetrics) fold() {
	p.naa.Add(uint64(p.na.Swap(0)))
	p.nra.Add(uint64(p.nr.Swap(0)))
	p.npa.Add(uint64(p.np.Swap(0)))
}

// start folds the short counters into the accumulative ones on every tick
// until release is called.
func (p *PoolMetrics) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.done = syncx.NewDoneChan()

	done := p.done
	ticker := time.NewTicker(DefaultTickerDuration)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.fold()
			case <-done:
				p.fold()
				return
			}
		}
	}()
}

func (p *PoolMetrics) release() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.done.SetDone()
	p.mu.Unlock()

	p.wg.Wait()
}

// Snapshot returns the totals including the counts not yet folded.
func (p *PoolMetrics) Snapshot() PoolStats {
	return PoolStats{
		New:      p.naa.Load() + uint64(p.na.Load()),
		Reused:   p.nra.Load() + uint64(p.nr.Load()),
		Returned: p.npa.Load() + uint64(p.np.Load()),
	}
}

func (p *PoolMetrics) metricsString() string {
	return fmt.Sprintf("[ %v|%v|%v, %v|%v|%v ]",
		p.na.Load(), p.nr.Load(), p.np.Load(),
		p.naa.Load(), p.nra.Load(), p.npa.Load())
}
