package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
)

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		due, sleep := s.collect(time.Now())
		if len(due) > 0 {
			for _, t := range due {
				select {
				case <-s.done:
					return
				default:
				}
				s.execute(t)
			}
			continue
		}

		timer := lib.AcquireTimer(sleep)
		select {
		case <-s.done:
			lib.ReleaseTimer(timer)
			return
		case <-s.wake:
		case <-timer.C:
		}
		lib.ReleaseTimer(timer)
	}
}

// collect takes every task due at now off the list, re-arming recurring ones,
// and returns them in deadline order with the time until the next deadline.
func (s *Scheduler) collect(now time.Time) ([]dueTask, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []dueTask
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.fn == nil {
			continue
		}
		if t.next.After(now) {
			break
		}
		due = append(due, dueTask{id: t.id, fn: t.fn, due: t.next})
		s.due[t.id] = struct{}{}
		if t.interval > 0 {
			t.next = now.Add(t.interval)
		} else {
			t.fn = nil
		}
	}
	if len(due) > 0 {
		s.reorder()
		s.metrics.tasks(len(s.tasks))
	}

	sleep := s.cfg.MaxSleep
	if len(s.tasks) > 0 {
		if d := s.tasks[0].next.Sub(now); d < sleep {
			sleep = d
		}
	}
	if sleep < 0 {
		sleep = 0
	}
	return due, sleep
}

// execute runs t unless it was unscheduled after being collected.
func (s *Scheduler) execute(t dueTask) {
	s.mu.Lock()
	_, ok := s.due[t.id]
	delete(s.due, t.id)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.metrics.ran(time.Since(t.due))
	defer func() {
		if v := recover(); v != nil {
			s.metrics.panicked()
			lib.LogPanic(s.log, "scheduled task panicked", v)
		}
	}()
	s.log.Debug("run task", zap.Uint32("task", uint32(t.id)))
	t.fn(t.id)
}
