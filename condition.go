package greenhouse

import (
	"time"

	"github.com/gammazero/deque"
)

// reentrantLocker is implemented by locks a condition must release
// completely, whatever the owner's depth, before waiting.
type reentrantLocker interface {
	release(t *Task) (int, error)
	restore(t *Task, depth int)
}

// Condition lets tasks holding a lock wait for a notification. Each
// wait gets its own Event, so notifications wake waiters strictly in
// arrival order.
type Condition struct {
	noCopy  noCopy
	sched   *Scheduler
	lock    Locker
	waiters deque.Deque[*Event]
}

// NewCondition creates a condition over l, or over a new RLock when l
// is nil.
func NewCondition(s *Scheduler, l Locker) *Condition {
	if l == nil {
		l = NewRLock(s)
	}
	return &Condition{sched: s, lock: l}
}

// Lock acquires the underlying lock.
func (c *Condition) Lock(t *Task) {
	c.lock.Lock(t)
}

// Unlock releases the underlying lock.
func (c *Condition) Unlock(t *Task) error {
	return c.lock.Unlock(t)
}

// Wait releases the lock, parks until notified and reacquires the lock
// before returning. t must hold the lock.
func (c *Condition) Wait(t *Task) error {
	_, err := c.wait(t, 0, false)
	return err
}

// WaitTimeout is Wait bounded by d. It reports whether t was notified;
// the lock is reacquired either way.
func (c *Condition) WaitTimeout(t *Task, d time.Duration) (bool, error) {
	return c.wait(t, d, true)
}

func (c *Condition) wait(t *Task, d time.Duration, timed bool) (bool, error) {
	if !c.lock.HeldBy(t) {
		return false, ErrNotOwner
	}

	ev := NewEvent(c.sched)
	c.waiters.PushBack(ev)
	if timed {
		ev.AddTimeoutCallback(t, func() error {
			if i := c.waiters.Index(func(x *Event) bool { return x == ev }); i >= 0 {
				c.waiters.Remove(i)
			}
			return nil
		})
		defer ev.removeTimeoutCallbacks(t)
	}

	depth := 1
	if rl, ok := c.lock.(reentrantLocker); ok {
		n, err := rl.release(t)
		if err != nil {
			return false, err
		}
		depth = n
	} else if err := c.lock.Unlock(t); err != nil {
		return false, err
	}

	notified := true
	var err error
	if timed {
		notified, err = ev.WaitTimeout(t, d)
	} else {
		ev.Wait(t)
	}

	if rl, ok := c.lock.(reentrantLocker); ok {
		rl.restore(t, depth)
	} else {
		c.lock.Lock(t)
	}
	return notified, err
}

// Notify wakes up to n waiters, oldest first. t must hold the lock.
func (c *Condition) Notify(t *Task, n int) error {
	if !c.lock.HeldBy(t) {
		return ErrNotOwner
	}
	c.notify(n)
	return nil
}

// NotifyAll wakes every waiter. t must hold the lock.
func (c *Condition) NotifyAll(t *Task) error {
	return c.Notify(t, c.waiters.Len())
}

func (c *Condition) notify(n int) {
	for ; n > 0 && c.waiters.Len() > 0; n-- {
		c.waiters.PopFront().Set()
	}
}
