package greenhouse

// Locker is the lock contract Condition builds on.
type Locker interface {
	Lock(t *Task)
	Unlock(t *Task) error
	HeldBy(t *Task) bool
}

// Lock provides mutual exclusion between tasks. It is not reentrant: a
// task locking it twice waits forever.
type Lock struct {
	noCopy noCopy
	locked bool
	owner  *Task
	event  *Event
}

// NewLock creates an unlocked lock.
func NewLock(s *Scheduler) *Lock {
	return &Lock{event: NewEvent(s)}
}

// Lock acquires the lock for t, waiting while another task holds it.
func (l *Lock) Lock(t *Task) {
	for l.locked {
		l.event.Wait(t)
	}
	l.locked = true
	l.owner = t
}

// TryLock acquires the lock if it is free.
func (l *Lock) TryLock(t *Task) bool {
	if l.locked {
		return false
	}
	l.locked = true
	l.owner = t
	return true
}

// Unlock releases the lock and wakes the tasks waiting for it; the
// first of them to run takes it. Any task may release a held lock.
func (l *Lock) Unlock(t *Task) error {
	if !l.locked {
		return ErrNotLocked
	}
	l.locked = false
	l.owner = nil
	l.event.Set()
	l.event.Clear()
	return nil
}

// Locked reports whether the lock is held.
func (l *Lock) Locked() bool {
	return l.locked
}

// HeldBy reports whether t acquired the lock.
func (l *Lock) HeldBy(t *Task) bool {
	return l.locked && l.owner == t
}

// RLock is a lock its owner may acquire repeatedly. It is released
// once Unlock has been called as many times as Lock.
type RLock struct {
	lock  Lock
	count int
}

// NewRLock creates an unlocked reentrant lock.
func NewRLock(s *Scheduler) *RLock {
	return &RLock{lock: Lock{event: NewEvent(s)}}
}

func (l *RLock) Lock(t *Task) {
	if l.lock.HeldBy(t) {
		l.count++
		return
	}
	l.lock.Lock(t)
	l.count = 1
}

func (l *RLock) TryLock(t *Task) bool {
	if l.lock.HeldBy(t) {
		l.count++
		return true
	}
	if !l.lock.TryLock(t) {
		return false
	}
	l.count = 1
	return true
}

func (l *RLock) Unlock(t *Task) error {
	if !l.lock.locked {
		return ErrNotLocked
	}
	if l.lock.owner != t {
		return ErrNotOwner
	}
	l.count--
	if l.count > 0 {
		return nil
	}
	return l.lock.Unlock(t)
}

func (l *RLock) Locked() bool {
	return l.lock.locked
}

func (l *RLock) HeldBy(t *Task) bool {
	return l.lock.HeldBy(t)
}

// Depth returns how many times the owner holds the lock.
func (l *RLock) Depth() int {
	if !l.lock.locked {
		return 0
	}
	return l.count
}

// release fully releases the lock on behalf of a condition wait,
// returning the depth to restore.
func (l *RLock) release(t *Task) (int, error) {
	if !l.lock.HeldBy(t) {
		return 0, ErrNotOwner
	}
	depth := l.count
	l.count = 1
	return depth, l.Unlock(t)
}

func (l *RLock) restore(t *Task, depth int) {
	l.Lock(t)
	l.count = depth
}
