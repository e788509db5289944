package greenhouse

import (
	"time"

	"github.com/gammazero/deque"
)

// Semaphore is a counting semaphore for tasks. Acquire blocks while the
// value is zero; waiters are served in arrival order.
type Semaphore struct {
	noCopy  noCopy
	sched   *Scheduler
	value   int
	waiters deque.Deque[*Event]
}

// NewSemaphore creates a semaphore with value n.
func NewSemaphore(s *Scheduler, n int) *Semaphore {
	return &Semaphore{sched: s, value: max(n, 0)}
}

// Acquire takes one unit, waiting for a Release if none is available.
func (sm *Semaphore) Acquire(t *Task) {
	_, _ = sm.acquire(t, 0, false)
}

// AcquireTimeout is Acquire bounded by d. It reports whether a unit was
// taken.
func (sm *Semaphore) AcquireTimeout(t *Task, d time.Duration) (bool, error) {
	return sm.acquire(t, d, true)
}

// TryAcquire takes one unit if one is available.
func (sm *Semaphore) TryAcquire() bool {
	if sm.value > 0 {
		sm.value--
		return true
	}
	return false
}

func (sm *Semaphore) acquire(t *Task, d time.Duration, timed bool) (bool, error) {
	sm.sched.mustBeRunning(t)
	if sm.TryAcquire() {
		return true, nil
	}

	ev := NewEvent(sm.sched)
	sm.waiters.PushBack(ev)
	if !timed {
		ev.Wait(t)
		return true, nil
	}

	ev.AddTimeoutCallback(t, func() error {
		if i := sm.waiters.Index(func(x *Event) bool { return x == ev }); i >= 0 {
			sm.waiters.Remove(i)
		}
		return nil
	})
	defer ev.removeTimeoutCallbacks(t)
	return ev.WaitTimeout(t, d)
}

// Release returns one unit. The unit passes straight to the oldest
// waiter when there is one.
func (sm *Semaphore) Release() {
	if sm.waiters.Len() > 0 {
		sm.waiters.PopFront().Set()
		return
	}
	sm.value++
}

// Value returns the number of units available.
func (sm *Semaphore) Value() int {
	return sm.value
}

// Waiting returns the number of tasks blocked in Acquire.
func (sm *Semaphore) Waiting() int {
	return sm.waiters.Len()
}

// BoundedSemaphore is a Semaphore whose value may never exceed its
// initial value.
type BoundedSemaphore struct {
	sem   Semaphore
	limit int
}

// NewBoundedSemaphore creates a bounded semaphore with value and
// ceiling n.
func NewBoundedSemaphore(s *Scheduler, n int) *BoundedSemaphore {
	n = max(n, 0)
	return &BoundedSemaphore{
		sem:   Semaphore{sched: s, value: n},
		limit: n,
	}
}

func (b *BoundedSemaphore) Acquire(t *Task) {
	b.sem.Acquire(t)
}

func (b *BoundedSemaphore) AcquireTimeout(t *Task, d time.Duration) (bool, error) {
	return b.sem.AcquireTimeout(t, d)
}

func (b *BoundedSemaphore) TryAcquire() bool {
	return b.sem.TryAcquire()
}

// Release returns one unit, failing with ErrSemaphoreOverRelease and
// no change when the value is already at its ceiling.
func (b *BoundedSemaphore) Release() error {
	if b.sem.waiters.Len() == 0 && b.sem.value >= b.limit {
		return ErrSemaphoreOverRelease
	}
	b.sem.Release()
	return nil
}

func (b *BoundedSemaphore) Value() int {
	return b.sem.Value()
}

func (b *BoundedSemaphore) Waiting() int {
	return b.sem.Waiting()
}
