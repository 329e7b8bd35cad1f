package scheduler

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

type order struct {
	mu  sync.Mutex
	ids []TaskID
}

func (o *order) record(id TaskID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
}

func (o *order) snapshot() []TaskID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TaskID(nil), o.ids...)
}

func TestOneShotOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	var o order
	delays := []time.Duration{50, 10, 40, 20, 30}
	ids := make(map[time.Duration]TaskID)
	for _, d := range delays {
		ids[d] = s.ScheduleTask(o.record, d*time.Millisecond, false)
		require.NotEqual(t, InvalidTaskID, ids[d])
	}

	require.Eventually(t, func() bool { return len(o.snapshot()) == len(delays) }, 5*time.Second, time.Millisecond)
	require.Equal(t, []TaskID{ids[10], ids[20], ids[30], ids[40], ids[50]}, o.snapshot())
	require.Zero(t, s.Len())
}

func TestZeroDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{MaxSleep: time.Hour})
	defer s.Shutdown()

	fired := make(chan TaskID, 1)
	id := s.ScheduleTask(func(id TaskID) { fired <- id }, 0, false)

	select {
	case got := <-fired:
		require.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("zero delay task did not fire")
	}
}

func TestUnscheduleBeforeDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	var fired atomic.Int32
	id := s.ScheduleTask(func(TaskID) { fired.Add(1) }, 30*time.Millisecond, false)
	require.Equal(t, 1, s.Len())
	require.True(t, s.UnscheduleTask(id))
	require.False(t, s.UnscheduleTask(id))
	require.Zero(t, s.Len())

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestUnscheduleWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	id := s.ScheduleTask(func(TaskID) {
		close(started)
		<-release
		close(finished)
	}, 5*time.Millisecond, true)

	<-started
	require.True(t, s.UnscheduleTask(id))
	close(release)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("running task was interrupted")
	}

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, s.Len())
}

func TestUnscheduleCollectedTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	var ran atomic.Bool
	release := make(chan struct{})

	// Both tasks are due in the same cycle; the first one holds the cycle up.
	s.mu.Lock()
	now := time.Now()
	s.push(task{id: 100, fn: func(TaskID) { <-release }, next: now})
	s.push(task{id: 101, fn: func(TaskID) { ran.Store(true) }, next: now.Add(time.Microsecond)})
	s.mu.Unlock()
	s.signal()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.due[101]
		return ok
	}, time.Second, time.Millisecond)

	require.True(t, s.UnscheduleTask(101))
	close(release)

	time.Sleep(20 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestRecurring(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	var mu sync.Mutex
	var times []time.Time
	id := s.ScheduleTask(func(TaskID) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
	}, 10*time.Millisecond, true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(times) >= 4
	}, 5*time.Second, time.Millisecond)
	require.True(t, s.UnscheduleTask(id))

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(times); i++ {
		require.GreaterOrEqual(t, times[i].Sub(times[i-1]), 9*time.Millisecond)
	}
}

func TestSetTaskInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	var fired atomic.Int32
	id := s.ScheduleTask(func(TaskID) { fired.Add(1) }, time.Hour, false)

	require.True(t, s.SetTaskInterval(id, 5*time.Millisecond))
	require.Eventually(t, func() bool { return fired.Load() >= 3 }, 5*time.Second, time.Millisecond)

	require.True(t, s.UnscheduleTask(id))
	require.False(t, s.SetTaskInterval(id, time.Millisecond))
	require.False(t, s.SetTaskInterval(InvalidTaskID, time.Millisecond))
}

func TestNilCallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	require.Equal(t, InvalidTaskID, s.ScheduleTask(nil, time.Millisecond, false))
	require.Zero(t, s.Len())
}

func TestPanickingTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	s := New(Config{}, WithRegisterer(reg))
	defer s.Shutdown()

	s.ScheduleTask(func(TaskID) { panic("boom") }, 0, false)

	fired := make(chan struct{})
	s.ScheduleTask(func(TaskID) { close(fired) }, 5*time.Millisecond, false)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduler stopped after a panic")
	}
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.panics))
	require.Equal(t, float64(2), testutil.ToFloat64(s.metrics.executed))
}

func TestTaskListGrows(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	for i := 0; i < 20; i++ {
		s.ScheduleTask(func(TaskID) {}, time.Hour, false)
	}
	require.Equal(t, 20, s.Len())

	s.mu.Lock()
	require.Equal(t, 32, cap(s.tasks))
	s.mu.Unlock()
}

func TestShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	var fired atomic.Int32
	s.ScheduleTask(func(TaskID) { fired.Add(1) }, 20*time.Millisecond, false)

	s.Shutdown()
	s.Shutdown()

	require.Equal(t, InvalidTaskID, s.ScheduleTask(func(TaskID) {}, 0, false))
	require.Zero(t, s.Len())
	time.Sleep(40 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestMonotonicIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{})
	defer s.Shutdown()

	prev := InvalidTaskID
	for i := 0; i < 10; i++ {
		id := s.ScheduleTask(func(TaskID) {}, time.Hour, false)
		require.Greater(t, id, prev)
		prev = id
	}

	s.mu.Lock()
	s.nextID = ^TaskID(0)
	s.mu.Unlock()
	require.Equal(t, TaskID(1), s.ScheduleTask(func(TaskID) {}, time.Hour, false))
}
