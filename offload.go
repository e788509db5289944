package greenhouse

import (
	"context"
	"sync"
)

// offloadResult carries the outcome of an offloaded call back to the
// loop.
type offloadResult struct {
	task *Task
	val  any
	err  error
}

// offloadInbox is the only scheduler state written from other
// goroutines, hence the mutex.
type offloadInbox struct {
	mu   sync.Mutex
	done []offloadResult
}

func (in *offloadInbox) push(res offloadResult) {
	in.mu.Lock()
	in.done = append(in.done, res)
	in.mu.Unlock()
}

func (in *offloadInbox) drain(buf []offloadResult) []offloadResult {
	in.mu.Lock()
	buf = append(buf, in.done...)
	clear(in.done)
	in.done = in.done[:0]
	in.mu.Unlock()
	return buf
}

// Offload runs fn on its own goroutine and parks t until it returns,
// so a blocking call does not stall every other task. At most the
// scheduler's offload limit of calls run at once; the rest wait for a
// slot. The task resumes through the ordinary run queue. A panic in fn
// is returned as a *PanicError.
func Offload[T any](t *Task, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	s := t.sched
	s.mustBeRunning(t)
	if s.closed {
		return zero, ErrClosed
	}

	t.Log("OFFLOAD")
	s.offloading++
	ctx := t.ctx
	go func() {
		res := offloadResult{task: t}
		if err := s.offloadSem.Acquire(ctx, 1); err != nil {
			res.err = err
			s.inbox.push(res)
			return
		}
		func() {
			defer s.offloadSem.Release(1)
			defer func() {
				if p := recover(); p != nil {
					res.err = newPanicError(p)
				}
			}()
			res.val, res.err = fn(ctx)
		}()
		s.inbox.push(res)
	}()

	t.state = taskWaiting
	res, _ := t.park().(offloadResult)
	if res.err != nil {
		return zero, res.err
	}
	val, _ := res.val.(T)
	return val, nil
}

// collectOffloads readies the tasks whose offloaded calls finished.
func (s *Scheduler) collectOffloads() {
	if s.offloading == 0 {
		return
	}
	var buf [16]offloadResult
	for _, res := range s.inbox.drain(buf[:0]) {
		s.offloading--
		if res.task.state != taskWaiting {
			continue
		}
		res.task.wake = res
		s.ready(res.task)
	}
}
