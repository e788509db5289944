package greenhouse

import "context"

// PoolFunc is the work a pool applies to each input.
type PoolFunc[In, Out any] func(ctx context.Context, t *Task, in In) Out

type poolInput[In any] struct {
	seq  int
	in   In
	stop bool
}

type poolOutput[Out any] struct {
	seq int
	out Out
}

// Pool runs fn over its inputs on a fixed number of worker tasks.
// Results come back in completion order.
type Pool[In, Out any] struct {
	sched *Scheduler
	fn    PoolFunc[In, Out]
	size  int
	inq   *Queue[poolInput[In]]
	outq  *Queue[poolOutput[Out]]
	seq   int
}

// NewPool creates a pool of size workers. It does nothing until Start.
func NewPool[In, Out any](s *Scheduler, size int, fn PoolFunc[In, Out]) *Pool[In, Out] {
	return &Pool[In, Out]{
		sched: s,
		fn:    fn,
		size:  max(size, 1),
		inq:   NewQueue[poolInput[In]](s, 0),
		outq:  NewQueue[poolOutput[Out]](s, 0),
	}
}

// Start schedules the worker tasks.
func (p *Pool[In, Out]) Start() error {
	for range p.size {
		if _, err := p.sched.Schedule(p.worker); err != nil {
			return err
		}
	}
	return nil
}

// Close stops each worker once the inputs queued before it are
// handled.
func (p *Pool[In, Out]) Close() {
	for range p.size {
		_ = p.inq.PutNowait(poolInput[In]{stop: true})
	}
}

// Put queues one input.
func (p *Pool[In, Out]) Put(t *Task, in In) {
	p.inq.Put(t, poolInput[In]{seq: p.seq, in: in})
	p.seq++
}

// Get waits for the next result.
func (p *Pool[In, Out]) Get(t *Task) Out {
	return p.outq.Get(t).out
}

func (p *Pool[In, Out]) get(t *Task) poolOutput[Out] {
	return p.outq.Get(t)
}

func (p *Pool[In, Out]) worker(ctx context.Context, t *Task) {
	for {
		item := p.inq.Get(t)
		_ = p.inq.TaskDone()
		if item.stop {
			return
		}
		p.outq.Put(t, poolOutput[Out]{seq: item.seq, out: p.fn(ctx, t, item.in)})
	}
}

// OrderedPool is a Pool whose Get returns results in the order the
// inputs were put.
type OrderedPool[In, Out any] struct {
	*Pool[In, Out]
	next  int
	cache map[int]Out
}

// NewOrderedPool creates an ordered pool of size workers.
func NewOrderedPool[In, Out any](s *Scheduler, size int, fn PoolFunc[In, Out]) *OrderedPool[In, Out] {
	return &OrderedPool[In, Out]{
		Pool:  NewPool(s, size, fn),
		cache: make(map[int]Out),
	}
}

// Get waits for the result of the oldest input not yet returned.
func (p *OrderedPool[In, Out]) Get(t *Task) Out {
	for {
		if out, ok := p.cache[p.next]; ok {
			delete(p.cache, p.next)
			p.next++
			return out
		}
		res := p.get(t)
		p.cache[res.seq] = res.out
	}
}

// Map applies fn to every item on size workers and returns the results
// in item order.
func Map[In, Out any](t *Task, size int, fn PoolFunc[In, Out], items []In) ([]Out, error) {
	p := NewOrderedPool(t.sched, size, fn)
	if err := p.Start(); err != nil {
		return nil, err
	}
	defer p.Close()

	for _, item := range items {
		p.Put(t, item)
	}
	out := make([]Out, 0, len(items))
	for range items {
		out = append(out, p.Get(t))
	}
	return out, nil
}
