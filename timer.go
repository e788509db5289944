package greenhouse

import (
	"container/heap"
	"context"
	"errors"
	"time"
)

// Timer is an entry in the scheduler's timer set. Firing only moves
// work onto the run queue; it never runs task code itself.
type Timer struct {
	sched   *Scheduler
	when    time.Time
	seq     uint64
	index   int
	removed bool
	fire    func()
}

// When returns the wake time.
func (tm *Timer) When() time.Time {
	return tm.when
}

// Cancel withdraws the timer. It reports false when the timer already
// fired or was cancelled, in which case nothing changes.
func (tm *Timer) Cancel() bool {
	if tm.removed {
		return false
	}
	tm.removed = true
	heap.Remove(&tm.sched.timers, tm.index)
	tm.fire = nil
	return true
}

// timerHeap orders timers by wake time, then by insertion order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	tm := x.(*Timer)
	tm.index = len(*h)
	*h = append(*h, tm)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	tm.index = -1
	*h = old[:n-1]
	return tm
}

func (s *Scheduler) addTimer(when time.Time, fire func()) *Timer {
	s.timerSeq++
	tm := &Timer{
		sched: s,
		when:  when,
		seq:   s.timerSeq,
		fire:  fire,
	}
	heap.Push(&s.timers, tm)
	return tm
}

// fireTimers pops every timer due at or before now, in order.
func (s *Scheduler) fireTimers(now time.Time) {
	for len(s.timers) > 0 && !s.timers[0].when.After(now) {
		tm := heap.Pop(&s.timers).(*Timer)
		tm.removed = true
		fire := tm.fire
		tm.fire = nil
		fire()
	}
}

// Recurring runs a task body at a fixed interval until stopped or
// until it has run maxTimes times.
type Recurring struct {
	sched    *Scheduler
	fn       func(context.Context, *Task)
	interval time.Duration
	maxTimes int
	count    int
	next     time.Time
	timer    *Timer
	stopped  bool
}

// ScheduleRecurring starts fn every interval, the first time one
// interval from now. A maxTimes of zero repeats until Stop.
func (s *Scheduler) ScheduleRecurring(interval time.Duration, fn func(context.Context, *Task), maxTimes int) (*Recurring, error) {
	return s.ScheduleRecurringAt(time.Now().Add(interval), interval, fn, maxTimes)
}

// ScheduleRecurringAt is ScheduleRecurring with the first run at start.
// Wake times are computed from the previous scheduled wake rather than
// from when the body ran, so delays do not accumulate.
func (s *Scheduler) ScheduleRecurringAt(start time.Time, interval time.Duration, fn func(context.Context, *Task), maxTimes int) (*Recurring, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if interval <= 0 {
		return nil, errors.New("greenhouse: recurring interval must be positive")
	}
	rc := &Recurring{
		sched:    s,
		fn:       fn,
		interval: interval,
		maxTimes: maxTimes,
		next:     start,
	}
	rc.timer = s.addTimer(rc.next, rc.fireOnce)
	return rc, nil
}

func (rc *Recurring) fireOnce() {
	if rc.stopped {
		return
	}
	rc.count++
	rc.sched.spawn(rc.fn)
	if rc.maxTimes > 0 && rc.count >= rc.maxTimes {
		rc.stopped = true
		return
	}
	rc.next = rc.next.Add(rc.interval)
	rc.timer = rc.sched.addTimer(rc.next, rc.fireOnce)
}

// Count returns how many times the body has been started.
func (rc *Recurring) Count() int {
	return rc.count
}

// Stop prevents any further runs. Runs already started are unaffected.
func (rc *Recurring) Stop() {
	if rc.stopped {
		return
	}
	rc.stopped = true
	rc.timer.Cancel()
}
