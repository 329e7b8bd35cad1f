package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestClamp(t *testing.T) {
	p := New(Config{Min: 0, Max: -3})
	defer p.Free()

	cfg := p.Config()
	require.Equal(t, 1, cfg.Min)
	require.Equal(t, 1, cfg.Max)
	require.Equal(t, DefaultQueueSize, cfg.QueueSize)
	require.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)

	p2 := New(Config{Min: 4, Max: 2, Priority: 5, StackSize: 8192})
	defer p2.Free()
	require.Equal(t, 4, p2.Config().Max)
	require.Equal(t, 5, p2.Config().Priority)
	require.Equal(t, 8192, p2.Config().StackSize)
}

func TestSpawnsUpToMin(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 3, Max: 3})
	require.Zero(t, p.Stats().Live)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, p.AddTask(func() {
			if i < 3 {
				started.Done()
			}
			<-release
		}))
	}
	started.Wait()
	require.Equal(t, 3, p.Stats().Live)

	close(release)
	require.Eventually(t, func() bool { return p.Stats().Executed == 10 }, 5*time.Second, time.Millisecond)
	require.Equal(t, 3, p.Stats().Live)
	p.Free()
	require.Zero(t, p.Stats().Live)
}

func TestEveryTaskOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 4, Max: 8})

	const n = 2000
	var counts [n]atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		require.NoError(t, p.AddTask(func() {
			counts[i].Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	p.Free()

	for i := range counts {
		require.EqualValues(t, 1, counts[i].Load(), "task %d", i)
	}
	require.EqualValues(t, n, p.Stats().Executed)
}

func TestFIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 1, Max: 1})
	defer p.Free()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, p.AddTask(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}

// Growth above Min is elastic: extra workers start while all are busy and
// leave after an idle timeout.
func TestElasticGrowth(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 1, Max: 4, IdleTimeout: 20 * time.Millisecond})

	release := make(chan struct{})
	var started atomic.Int32
	for i := 0; i < 6; i++ {
		require.NoError(t, p.AddTask(func() {
			started.Add(1)
			<-release
		}))
	}

	require.Eventually(t, func() bool { return started.Load() == 4 }, 5*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 4, p.Stats().Live)
	require.EqualValues(t, 4, started.Load())

	close(release)
	require.Eventually(t, func() bool { return p.Stats().Executed == 6 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Live == 1 }, 5*time.Second, 5*time.Millisecond)

	p.Free()
}

func TestFreeDropsQueued(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 1, Max: 1})

	running := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32
	require.NoError(t, p.AddTask(func() {
		close(running)
		<-release
		ran.Add(1)
	}))
	<-running

	for i := 0; i < 5; i++ {
		require.NoError(t, p.AddTask(func() { ran.Add(1) }))
	}

	freed := make(chan struct{})
	go func() {
		p.Free()
		close(freed)
	}()

	select {
	case <-freed:
		t.Fatal("Free returned while a task was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-freed

	require.EqualValues(t, 1, ran.Load())
	require.ErrorIs(t, p.AddTask(func() { ran.Add(1) }), ErrPoolClosed)
	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 1, ran.Load())

	st := p.Stats()
	require.Zero(t, st.Live)
	require.Zero(t, st.Queued)
	require.EqualValues(t, 5, st.Dropped)

	p.Free()
}

func TestFreeWithoutWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 2, Max: 2})
	p.Free()
	p.Free()
	require.ErrorIs(t, p.AddTask(func() {}), ErrPoolClosed)
}

func TestQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := New(Config{Min: 1, Max: 1, QueueSize: 2})

	release := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, p.AddTask(func() {
		close(running)
		<-release
	}))
	<-running

	require.NoError(t, p.AddTask(func() {}))
	require.NoError(t, p.AddTask(func() {}))
	require.ErrorIs(t, p.AddTask(func() {}), ErrQueueFull)
	require.ErrorIs(t, p.AddTask(nil), ErrNilTask)

	close(release)
	p.Free()
}

func TestPanickingTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	p := New(Config{Min: 1}, WithRegisterer(reg))

	done := make(chan struct{})
	require.NoError(t, p.AddTask(func() { panic("sensor read failed") }))
	require.NoError(t, p.AddTask(func() { close(done) }))
	<-done

	p.Free()
	require.Equal(t, float64(1), testutil.ToFloat64(p.metrics.panics))
	require.Equal(t, float64(2), testutil.ToFloat64(p.metrics.executed))
}
