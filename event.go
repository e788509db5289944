package greenhouse

import (
	"context"
	"time"

	"github.com/gammazero/deque"
)

// Event is the wait/notify primitive the other primitives are built
// from. Tasks wait until the event is set; setting it wakes every
// waiter, all of them in the next tick.
type Event struct {
	noCopy    noCopy
	sched     *Scheduler
	set       bool
	waiters   deque.Deque[*eventWaiter]
	callbacks map[*Task]*timeoutCallbacks
	runners   map[*eventWaiter]struct{}
}

// timeoutCallbacks are one task's callbacks on an event, along with the
// exit hook that drops them.
type timeoutCallbacks struct {
	fns    []func() error
	remove func()
}

// eventWaiter is one call to Wait. A task waiting twice has two.
type eventWaiter struct {
	task     *Task
	timer    *Timer
	timedOut bool
	err      error
}

// NewEvent creates an unset event.
func NewEvent(s *Scheduler) *Event {
	return &Event{sched: s}
}

// IsSet reports whether waiting would return immediately.
func (e *Event) IsSet() bool {
	return e.set
}

// Set marks the event and moves every current waiter to the woken set
// as one batch. Pending timeouts of those waiters are disarmed.
func (e *Event) Set() {
	e.set = true
	for w := range e.runners {
		w.timer.Cancel()
	}
	clear(e.runners)
	for e.waiters.Len() > 0 {
		e.sched.wake(e.waiters.PopFront().task)
	}
}

// Clear unmarks the event. Waiters already woken stay woken.
func (e *Event) Clear() {
	e.set = false
}

// Wait parks t until the event is set. It returns at once if the event
// is already set.
func (e *Event) Wait(t *Task) {
	_, _ = e.wait(t, 0, false)
}

// WaitTimeout is Wait bounded by d. It reports whether the event was
// set. On timeout, every callback registered for t with
// AddTimeoutCallback runs first, and the first error among them is
// returned.
func (e *Event) WaitTimeout(t *Task, d time.Duration) (bool, error) {
	return e.wait(t, d, true)
}

func (e *Event) wait(t *Task, d time.Duration, timed bool) (bool, error) {
	s := e.sched
	s.mustBeRunning(t)
	if e.set {
		return true, nil
	}

	w := &eventWaiter{task: t}
	e.waiters.PushBack(w)
	if timed {
		if e.runners == nil {
			e.runners = make(map[*eventWaiter]struct{})
		}
		e.runners[w] = struct{}{}
		w.timer = s.addTimer(time.Now().Add(d), func() {
			s.spawn(func(context.Context, *Task) { e.expire(w) })
		})
	}

	t.Log("EVENT WAIT")
	t.state = taskWaiting
	t.park()

	if w.timedOut {
		return false, w.err
	}
	return true, nil
}

// expire runs in its own task once a waiter's timer fires. The timer
// may have fired in the same tick the event was set; membership in
// runners is the authority on whether the timeout still applies.
func (e *Event) expire(w *eventWaiter) {
	if _, ok := e.runners[w]; !ok {
		return
	}
	delete(e.runners, w)

	if i := e.waiters.Index(func(x *eventWaiter) bool { return x == w }); i >= 0 {
		e.waiters.Remove(i)
	}
	w.timedOut = true

	var fns []func() error
	if cbs := e.callbacks[w.task]; cbs != nil {
		fns = cbs.fns
	}
	for _, cb := range fns {
		if err := runCallback(cb); err != nil && w.err == nil {
			w.err = err
		}
	}
	e.sched.wake(w.task)
}

func runCallback(cb func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newPanicError(p)
		}
	}()
	return cb()
}

// AddTimeoutCallback registers cb to run when a timed wait by t on
// this event expires. It never runs when the wait ends because the
// event was set. Callbacks run in registration order and are dropped
// when t terminates.
func (e *Event) AddTimeoutCallback(t *Task, cb func() error) {
	if e.callbacks == nil {
		e.callbacks = make(map[*Task]*timeoutCallbacks)
	}
	cbs, ok := e.callbacks[t]
	if !ok {
		cbs = new(timeoutCallbacks)
		cbs.remove = t.onExit(func() { delete(e.callbacks, t) })
		e.callbacks[t] = cbs
	}
	cbs.fns = append(cbs.fns, cb)
}

// removeTimeoutCallbacks drops t's callbacks and their exit hook.
// Primitives that create an event per wait call it once the wait is
// over.
func (e *Event) removeTimeoutCallbacks(t *Task) {
	if cbs, ok := e.callbacks[t]; ok {
		delete(e.callbacks, t)
		cbs.remove()
	}
}
