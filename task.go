package greenhouse

import (
	"context"
	"fmt"
	"runtime/trace"
	"slices"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "greenhouse-loop"
	taskTraceRegionType = "greenhouse-task"
	taskTraceCategory   = "greenhouse"
)

type taskState uint8

const (
	taskNew taskState = iota
	taskReady
	taskTimed
	taskWaiting
	taskWoken
	taskRunning
	taskDone
)

func (s taskState) String() string {
	switch s {
	case taskNew:
		return "new"
	case taskReady:
		return "ready"
	case taskTimed:
		return "timed"
	case taskWaiting:
		return "waiting"
	case taskWoken:
		return "woken"
	case taskRunning:
		return "running"
	case taskDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Task is a cooperative unit of execution backed by a coroutine. A
// task runs until it suspends through one of the scheduler's
// primitives or returns.
//
// Every blocking operation takes the calling task explicitly and
// panics when it is not the task currently holding control.
type Task struct {
	noCopy  noCopy
	id      uint64
	ctx     context.Context
	sched   *Scheduler
	resume  func(any) (struct{}, bool)
	suspend func() any
	cancel  func()
	state   taskState
	wake    any
	exits   []exitHook
	exitSeq uint64
	killed  bool
}

type exitHook struct {
	id uint64
	fn func()
}

func newTask(s *Scheduler, fn func(context.Context, *Task)) *Task {
	s.nextID++
	task := &Task{
		id:    s.nextID,
		sched: s,
	}
	task.ctx = withTaskContext(s.ctx, task)

	resume, cancel := coro.New(
		func(_ func(struct{}) any, suspend func() any) (z struct{}) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer region.End()

			defer func() {
				if p := recover(); p != nil {
					if task.killed {
						panic(p)
					}
					s.fail(task, newPanicError(p))
				}
			}()

			task.suspend = suspend
			fn(task.ctx, task)
			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	s.tasks[task.id] = task
	return task
}

// ID returns the task's identity, stable for its lifetime.
func (t *Task) ID() uint64 {
	return t.id
}

// Context returns the task's context. It carries the task itself, see
// TaskFromContext, and is cancelled when the scheduler closes.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Scheduler returns the scheduler that owns the task.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// Done reports whether the task has terminated.
func (t *Task) Done() bool {
	return t.state == taskDone
}

func (t *Task) String() string {
	return fmt.Sprintf("task(%d %v)", t.id, t.state)
}

// park gives control back to whoever resumed the task, returning the
// value passed by the next resume. The caller records where the task
// is parked before calling.
func (t *Task) park() any {
	if t.sched.current != t {
		panic(errNotRunning)
	}
	t.Log("SUSPEND")
	return t.suspend()
}

// onExit registers fn to run when the task terminates, most recent
// first. The returned func withdraws it.
func (t *Task) onExit(fn func()) (remove func()) {
	t.exitSeq++
	id := t.exitSeq
	t.exits = append(t.exits, exitHook{id: id, fn: fn})
	return func() {
		for i := len(t.exits) - 1; i >= 0; i-- {
			if t.exits[i].id == id {
				t.exits = slices.Delete(t.exits, i, i+1)
				return
			}
		}
	}
}

func (t *Task) release() {
	t.state = taskDone
	exits := t.exits
	t.exits = nil
	for i := len(exits) - 1; i >= 0; i-- {
		exits[i].fn()
	}
	t.wake = nil
}

func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		trace.Log(t.ctx, taskTraceCategory, fmt.Sprintf("%d %s", t.id, msg))
	}
}

func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		trace.Log(t.ctx, taskTraceCategory, fmt.Sprintf("%d ", t.id)+fmt.Sprintf(format, args...))
	}
}

// noCopy is embedded in values that must not be copied after first
// use; go vet's copylocks check recognises the Lock/Unlock pair.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
