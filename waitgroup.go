package greenhouse

// WaitGroup is used to wait for a collection of tasks to finish.
// Tasks call Add(1) when they start and Done() when they finish.
// Other tasks can call Wait() to block until all tasks have finished.
type WaitGroup struct {
	noCopy noCopy
	v      int
	done   *Event
}

// NewWaitGroup creates a wait group with a zero counter.
func NewWaitGroup(s *Scheduler) *WaitGroup {
	wg := &WaitGroup{done: NewEvent(s)}
	wg.done.Set()
	return wg
}

// Add adds delta to the WaitGroup counter. If the counter becomes
// zero, every waiting task is woken. If the counter goes negative, Add
// panics.
func (wg *WaitGroup) Add(delta int) {
	wg.v += delta

	if wg.v < 0 {
		panic("greenhouse: negative WaitGroup counter")
	}

	switch {
	case wg.v == 0:
		wg.done.Set()
	case wg.v == delta:
		wg.done.Clear()
	}
}

// Done decrements the WaitGroup counter by one.
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Count returns the current counter.
func (wg *WaitGroup) Count() int {
	return wg.v
}

// Wait blocks the calling task until the WaitGroup counter is zero.
// If the counter is already zero, it returns immediately.
func (wg *WaitGroup) Wait(t *Task) {
	wg.done.Wait(t)
}
