package greenhouse

// singleFlightCall is an in-flight call shared by every task asking
// for the same key.
type singleFlightCall struct {
	wg   *WaitGroup
	val  any
	err  error
	dups int
}

// SingleFlight deduplicates calls with the same key made by tasks
// while the first such call is still running.
type SingleFlight struct {
	sched *Scheduler
	m     map[any]*singleFlightCall
}

// NewSingleFlight creates an empty call group.
func NewSingleFlight(s *Scheduler) *SingleFlight {
	return &SingleFlight{sched: s}
}

// Do runs fn for key unless a call for key is already in flight, in
// which case t waits for that call and shares its result. shared
// reports whether the result went to more than one caller.
func (g *SingleFlight) Do(t *Task, key any, fn func() (any, error)) (v any, err error, shared bool) {
	if g.m == nil {
		g.m = make(map[any]*singleFlightCall)
	}

	if c, ok := g.m[key]; ok {
		c.dups++
		c.wg.Wait(t)
		return c.val, c.err, true
	}

	c := &singleFlightCall{wg: NewWaitGroup(g.sched)}
	c.wg.Add(1)
	g.m[key] = c

	g.doCall(t, c, key, fn)
	return c.val, c.err, c.dups > 0
}

// Forget drops key so the next Do starts a fresh call.
func (g *SingleFlight) Forget(key any) {
	delete(g.m, key)
}

func (g *SingleFlight) doCall(t *Task, c *singleFlightCall, key any, fn func() (any, error)) {
	defer func() {
		p := recover()
		if p != nil {
			c.err = newPanicError(p)
		}
		c.wg.Done()
		if g.m[key] == c {
			delete(g.m, key)
		}
		if p != nil && t.killed {
			panic(p)
		}
	}()

	c.val, c.err = fn()
}
