package greenhouse

import (
	"time"

	"github.com/eapache/queue"
)

// Queue is a FIFO queue between tasks, bounded when maxSize is
// positive. Every Put counts as an unfinished item until a matching
// TaskDone; Join waits for that count to reach zero.
type Queue[T any] struct {
	noCopy     noCopy
	sched      *Scheduler
	maxSize    int
	items      *queue.Queue
	mu         *Lock
	notEmpty   *Condition
	notFull    *Condition
	unfinished int
	allDone    *Event
}

// NewQueue creates a queue holding at most maxSize items, or any
// number of them when maxSize is zero or less.
func NewQueue[T any](s *Scheduler, maxSize int) *Queue[T] {
	mu := NewLock(s)
	q := &Queue[T]{
		sched:    s,
		maxSize:  maxSize,
		items:    queue.New(),
		mu:       mu,
		notEmpty: NewCondition(s, mu),
		notFull:  NewCondition(s, mu),
		allDone:  NewEvent(s),
	}
	q.allDone.Set()
	return q
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.items.Length()
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.items.Length() == 0
}

// Full reports whether a Put would block. An unbounded queue is never
// full.
func (q *Queue[T]) Full() bool {
	return q.maxSize > 0 && q.items.Length() >= q.maxSize
}

// Put appends v, waiting while the queue is full.
func (q *Queue[T]) Put(t *Task, v T) {
	q.mu.Lock(t)
	defer q.unlock(t)
	for q.Full() {
		_ = q.notFull.Wait(t)
	}
	q.put(v)
}

// PutTimeout is Put bounded by d. It fails with ErrFull when no room
// was made in time.
func (q *Queue[T]) PutTimeout(t *Task, v T, d time.Duration) error {
	q.mu.Lock(t)
	defer q.unlock(t)
	deadline := time.Now().Add(d)
	for q.Full() {
		left := time.Until(deadline)
		if left <= 0 {
			return ErrFull
		}
		if _, err := q.notFull.WaitTimeout(t, left); err != nil {
			return err
		}
	}
	q.put(v)
	return nil
}

// PutNowait appends v if there is room, and fails with ErrFull
// otherwise.
func (q *Queue[T]) PutNowait(v T) error {
	if q.Full() {
		return ErrFull
	}
	q.put(v)
	return nil
}

// Get removes and returns the oldest item, waiting while the queue is
// empty.
func (q *Queue[T]) Get(t *Task) T {
	q.mu.Lock(t)
	defer q.unlock(t)
	for q.Empty() {
		_ = q.notEmpty.Wait(t)
	}
	return q.get()
}

// GetTimeout is Get bounded by d. It fails with ErrEmpty when nothing
// arrived in time.
func (q *Queue[T]) GetTimeout(t *Task, d time.Duration) (T, error) {
	q.mu.Lock(t)
	defer q.unlock(t)
	deadline := time.Now().Add(d)
	for q.Empty() {
		left := time.Until(deadline)
		if left <= 0 {
			var zero T
			return zero, ErrEmpty
		}
		if _, err := q.notEmpty.WaitTimeout(t, left); err != nil {
			var zero T
			return zero, err
		}
	}
	return q.get(), nil
}

// GetNowait removes and returns the oldest item, or fails with
// ErrEmpty.
func (q *Queue[T]) GetNowait() (T, error) {
	if q.Empty() {
		var zero T
		return zero, ErrEmpty
	}
	return q.get(), nil
}

// TaskDone marks one previously queued item as processed. It fails
// with ErrTaskDone when called more often than Put.
func (q *Queue[T]) TaskDone() error {
	if q.unfinished == 0 {
		return ErrTaskDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.allDone.Set()
	}
	return nil
}

// Join waits until every item put so far has been marked done.
func (q *Queue[T]) Join(t *Task) {
	q.allDone.Wait(t)
}

// Unfinished returns the number of items put but not yet marked done.
func (q *Queue[T]) Unfinished() int {
	return q.unfinished
}

func (q *Queue[T]) put(v T) {
	q.items.Add(v)
	if q.unfinished == 0 {
		q.allDone.Clear()
	}
	q.unfinished++
	q.notEmpty.notify(1)
}

func (q *Queue[T]) get() T {
	v, _ := q.items.Remove().(T)
	q.notFull.notify(1)
	return v
}

func (q *Queue[T]) unlock(t *Task) {
	_ = q.mu.Unlock(t)
}
