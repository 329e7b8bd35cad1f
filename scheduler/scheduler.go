// Package scheduler runs callbacks at a deadline, once or repeatedly, on a
// single goroutine. Due callbacks run one after another in deadline order, so
// a slow callback delays the ones after it.
package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
)

const DefaultMaxSleep = 60 * time.Second

type TaskID uint32

const InvalidTaskID TaskID = 0

type Func func(id TaskID)

type Config struct {
	// MaxSleep bounds how long the scheduler waits between two checks of the
	// task list.
	MaxSleep time.Duration
}

type Option func(s *Scheduler)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = lib.Logger(l) }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) { s.metrics = newMetrics(reg) }
}

// task is an entry of the task list. A nil fn marks an entry as deleted.
type task struct {
	id       TaskID
	fn       Func
	interval time.Duration
	next     time.Time
}

type dueTask struct {
	id  TaskID
	fn  Func
	due time.Time
}

type Scheduler struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics

	mu     sync.Mutex
	tasks  []task
	due    map[TaskID]struct{} // collected this cycle, not started yet
	nextID TaskID
	closed bool

	wake chan struct{}
	done syncx.DoneChan
	stop sync.Once
	wg   sync.WaitGroup
}

// New starts a scheduler. Call Shutdown to stop it.
func New(cfg Config, opts ...Option) *Scheduler {
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = DefaultMaxSleep
	}

	s := &Scheduler{
		cfg:  cfg,
		log:  zap.NewNop(),
		due:  make(map[TaskID]struct{}),
		wake: make(chan struct{}, 1),
		done: syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// ScheduleTask runs fn after delay, and every delay after that when continuous
// is set. It returns InvalidTaskID if fn is nil or the scheduler is shut down.
func (s *Scheduler) ScheduleTask(fn Func, delay time.Duration, continuous bool) TaskID {
	if fn == nil {
		s.log.Error("schedule task with nil callback")
		return InvalidTaskID
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return InvalidTaskID
	}

	s.nextID++
	if s.nextID == InvalidTaskID {
		s.nextID++
	}
	id := s.nextID

	t := task{id: id, fn: fn, next: time.Now().Add(delay)}
	if continuous {
		t.interval = delay
	}
	s.push(t)
	s.reorder()
	s.metrics.tasks(len(s.tasks))
	s.mu.Unlock()

	s.signal()
	return id
}

// SetTaskInterval makes id recur every delay, starting delay from now.
func (s *Scheduler) SetTaskInterval(id TaskID, delay time.Duration) bool {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	t := s.find(id)
	if t == nil {
		s.mu.Unlock()
		return false
	}
	t.interval = delay
	t.next = time.Now().Add(delay)
	s.reorder()
	s.mu.Unlock()

	s.signal()
	return true
}

// UnscheduleTask stops id from firing again. A call already running is not
// interrupted.
func (s *Scheduler) UnscheduleTask(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, pending := s.due[id]
	delete(s.due, id)

	t := s.find(id)
	if t == nil {
		return pending
	}
	t.fn = nil
	return true
}

// Len reports the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.tasks {
		if s.tasks[i].fn != nil {
			n++
		}
	}
	return n
}

// Shutdown stops the scheduler goroutine and waits for it to exit. It must not
// be called from a task.
func (s *Scheduler) Shutdown() {
	s.stop.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.done.SetDone()
		s.wg.Wait()

		s.mu.Lock()
		s.tasks = nil
		s.due = nil
		s.mu.Unlock()
		s.metrics.tasks(0)
	})
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) find(id TaskID) *task {
	if id == InvalidTaskID {
		return nil
	}
	for i := range s.tasks {
		if t := &s.tasks[i]; t.id == id && t.fn != nil {
			return t
		}
	}
	return nil
}

// push appends t, doubling the backing array when it is full.
func (s *Scheduler) push(t task) {
	if len(s.tasks) == cap(s.tasks) {
		n := 2 * cap(s.tasks)
		if n == 0 {
			n = 8
		}
		grown := make([]task, len(s.tasks), n)
		copy(grown, s.tasks)
		s.tasks = grown
	}
	s.tasks = append(s.tasks, t)
}

// reorder drops deleted entries and sorts the rest by deadline. Selection
// sort; the list is short.
func (s *Scheduler) reorder() {
	live := 0
	for i := range s.tasks {
		if s.tasks[i].fn != nil {
			s.tasks[live] = s.tasks[i]
			live++
		}
	}
	for i := live; i < len(s.tasks); i++ {
		s.tasks[i] = task{}
	}
	s.tasks = s.tasks[:live]

	for i := 0; i < live; i++ {
		lo := i
		for j := i + 1; j < live; j++ {
			if s.tasks[j].next.Before(s.tasks[lo].next) {
				lo = j
			}
		}
		if lo != i {
			s.tasks[i], s.tasks[lo] = s.tasks[lo], s.tasks[i]
		}
	}
}
