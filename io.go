package greenhouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/webriots/greenhouse/poller"
)

// fdState is the scheduler's view of one descriptor: the interest it
// has registered with the poller and the tasks waiting on it.
type fdState struct {
	registered poller.Mask
	waiters    []*ioWaiter
}

type ioWaiter struct {
	task     *Task
	mask     poller.Mask
	got      poller.Mask
	timer    *Timer
	timedOut bool
}

// WaitIO parks t until fd satisfies any condition in mask, and returns
// the satisfied conditions. Error conditions always wake the waiter. A
// positive timeout bounds the wait; expiry returns ErrTimeout.
//
// This is the hook for descriptor wrappers: they attempt a
// non-blocking operation and, on EAGAIN, wait here for readiness.
func (s *Scheduler) WaitIO(t *Task, fd int, mask poller.Mask, timeout time.Duration) (poller.Mask, error) {
	s.mustBeRunning(t)
	if s.closed {
		return 0, ErrClosed
	}
	if mask == 0 {
		mask = poller.All
	}

	st := s.fds[fd]
	if st == nil {
		st = new(fdState)
	}
	w := &ioWaiter{task: t, mask: mask | poller.Error}
	st.waiters = append(st.waiters, w)
	if err := s.rearm(fd, st); err != nil {
		st.waiters = st.waiters[:len(st.waiters)-1]
		if len(st.waiters) == 0 && st.registered == 0 {
			delete(s.fds, fd)
		}
		return 0, err
	}

	if timeout > 0 {
		w.timer = s.addTimer(time.Now().Add(timeout), func() { s.expireIO(fd, w) })
	}

	t.state = taskWaiting
	t.park()

	if w.timedOut {
		return 0, ErrTimeout
	}
	return w.got, nil
}

// rearm brings the poller registration for fd in line with the union
// of its waiters' interest. Registration only ever widens, so a narrower
// interest is applied as a fresh registration.
func (s *Scheduler) rearm(fd int, st *fdState) error {
	var need poller.Mask
	for _, w := range st.waiters {
		need |= w.mask
	}
	if need == st.registered {
		if need == 0 {
			delete(s.fds, fd)
		}
		return nil
	}

	if st.registered&^need != 0 {
		if err := s.poller.Unregister(fd); err != nil && !errors.Is(err, poller.ErrNotRegistered) {
			return fmt.Errorf("greenhouse: unregister fd %d: %w", fd, err)
		}
		st.registered = 0
	}
	if need == 0 {
		delete(s.fds, fd)
		return nil
	}

	if err := s.poller.Register(fd, need); err != nil {
		return fmt.Errorf("greenhouse: register fd %d: %w", fd, err)
	}
	st.registered = need
	s.fds[fd] = st
	return nil
}

// pollIO asks the poller for readiness and readies every waiter whose
// interest intersects what was reported.
func (s *Scheduler) pollIO(timeout time.Duration) error {
	events, err := s.poller.Poll(timeout)
	if err != nil {
		s.log.Error().Err(err).Str("poller", s.poller.Name()).Msg("poll failed")
		return fmt.Errorf("greenhouse: poll: %w", err)
	}

	for _, ev := range events {
		st := s.fds[ev.FD]
		if st == nil {
			continue
		}
		kept := st.waiters[:0]
		for _, w := range st.waiters {
			if w.mask&ev.Mask == 0 {
				kept = append(kept, w)
				continue
			}
			w.got = w.mask & ev.Mask
			if w.timer != nil {
				w.timer.Cancel()
			}
			s.ready(w.task)
		}
		clear(st.waiters[len(kept):])
		st.waiters = kept

		if err := s.rearm(ev.FD, st); err != nil {
			s.log.Warn().Err(err).Int("fd", ev.FD).Msg("rearm failed")
		}
	}
	return nil
}

func (s *Scheduler) expireIO(fd int, w *ioWaiter) {
	st := s.fds[fd]
	if st == nil {
		return
	}
	for i, x := range st.waiters {
		if x != w {
			continue
		}
		st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
		w.timedOut = true
		s.ready(w.task)
		if err := s.rearm(fd, st); err != nil {
			s.log.Warn().Err(err).Int("fd", fd).Msg("rearm failed")
		}
		return
	}
}
