package greenhouse

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/webriots/greenhouse/poller"
)

// Scheduler owns all scheduling state: the run queue, the timer set,
// the woken set and the descriptor waits. It is not safe for use from
// more than one goroutine; tasks and the dispatch loop hand control to
// each other so that exactly one of them touches it at a time.
type Scheduler struct {
	noCopy noCopy

	poller    poller.Poller
	ownPoller bool
	quantum   time.Duration
	log       zerolog.Logger
	handlers  []FailureHandler

	ctx    context.Context
	cancel context.CancelFunc

	runq     deque.Deque[*Task]
	woken    deque.Deque[*Task]
	timers   timerHeap
	timerSeq uint64
	fds      map[int]*fdState
	batch    []*Task

	tasks   map[uint64]*Task
	nextID  uint64
	current *Task
	ticks   uint64
	running bool
	closed  bool

	offloadSem *semaphore.Weighted
	offloading int
	inbox      offloadInbox
}

// New creates a scheduler. Without WithPoller it probes for the best
// available multiplexer and closes it again in Close.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		poller:     cfg.poller,
		quantum:    cfg.quantum,
		log:        cfg.logger,
		fds:        make(map[int]*fdState),
		tasks:      make(map[uint64]*Task),
		offloadSem: semaphore.NewWeighted(cfg.offloadLimit),
	}
	if s.poller == nil {
		s.poller = poller.Best()
		s.ownPoller = true
	}
	s.ctx, s.cancel = context.WithCancel(cfg.ctx)
	s.handlers = append([]FailureHandler{s.logFailure}, cfg.handlers...)

	s.log.Debug().Str("poller", s.poller.Name()).Dur("quantum", s.quantum).Msg("scheduler created")
	return s, nil
}

// Schedule creates a task running fn and appends it to the run queue.
func (s *Scheduler) Schedule(fn func(context.Context, *Task)) (*Task, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.spawn(fn), nil
}

// Go is Schedule for bodies that only need the context. The task is
// available through TaskFromContext.
func (s *Scheduler) Go(fn func(context.Context)) (*Task, error) {
	return s.Schedule(s.Fn(fn))
}

// Fn adapts a context-only function to the task body signature.
func (s *Scheduler) Fn(fn func(context.Context)) func(context.Context, *Task) {
	return func(ctx context.Context, _ *Task) { fn(ctx) }
}

// ScheduleAt creates a task running fn once when is reached. The task
// does not exist until the timer fires, so a cancelled timer never
// runs fn.
func (s *Scheduler) ScheduleAt(when time.Time, fn func(context.Context, *Task)) (*Timer, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.addTimer(when, func() { s.spawn(fn) }), nil
}

// ScheduleAfter is ScheduleAt relative to now.
func (s *Scheduler) ScheduleAfter(d time.Duration, fn func(context.Context, *Task)) (*Timer, error) {
	return s.ScheduleAt(time.Now().Add(d), fn)
}

func (s *Scheduler) spawn(fn func(context.Context, *Task)) *Task {
	task := newTask(s, fn)
	s.ready(task)
	return task
}

// Suspend moves t to the back of the run queue and yields.
func (s *Scheduler) Suspend(t *Task) {
	s.mustBeRunning(t)
	s.ready(t)
	t.park()
}

// SuspendUntil parks t in the timer set until when.
func (s *Scheduler) SuspendUntil(t *Task, when time.Time) {
	s.mustBeRunning(t)
	s.addTimer(when, func() { s.ready(t) })
	t.state = taskTimed
	t.park()
}

// SuspendFor parks t in the timer set for d.
func (s *Scheduler) SuspendFor(t *Task, d time.Duration) {
	s.SuspendUntil(t, time.Now().Add(d))
}

// Current returns the task holding control, or nil on the loop.
func (s *Scheduler) Current() *Task {
	return s.current
}

// Ticks returns the number of dispatch ticks started so far.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}

// AddFailureHandler registers another observer for task failures.
func (s *Scheduler) AddFailureHandler(h FailureHandler) {
	if h != nil {
		s.handlers = append(s.handlers, h)
	}
}

// SetPoller swaps the multiplexer. It is only allowed between runs and
// while no descriptor waits are outstanding. A nil poller selects the
// best available backend.
func (s *Scheduler) SetPoller(p poller.Poller) error {
	switch {
	case s.closed:
		return ErrClosed
	case s.running:
		return ErrRunning
	case len(s.fds) > 0:
		return ErrBusy
	}

	var err error
	if s.ownPoller {
		err = s.poller.Close()
	}
	s.ownPoller = p == nil
	if p == nil {
		p = poller.Best()
	}
	s.poller = p
	s.log.Debug().Str("poller", p.Name()).Msg("poller replaced")
	return err
}

// Poller returns the active multiplexer.
func (s *Scheduler) Poller() poller.Poller {
	return s.poller
}

// Run drives the dispatch loop until ctx is done or the scheduler is
// closed.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.loop(ctx, false)
}

// RunUntilIdle drives the dispatch loop until there is nothing left
// that could make progress: no ready or woken tasks, no timers, no
// descriptor waits and no offloaded calls. Tasks still parked on an
// event or channel at that point can never be resumed.
func (s *Scheduler) RunUntilIdle(ctx context.Context) error {
	return s.loop(ctx, true)
}

// Tick runs exactly one dispatch tick.
func (s *Scheduler) Tick() error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	return s.tick()
}

func (s *Scheduler) enter() error {
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return ErrRunning
	}
	s.running = true
	return nil
}

func (s *Scheduler) exit() {
	s.running = false
	if s.closed {
		if err := s.teardown(); err != nil {
			s.log.Warn().Err(err).Msg("teardown")
		}
	}
}

func (s *Scheduler) loop(ctx context.Context, untilIdle bool) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	ctx, tracer := trace.NewTask(ctx, taskTraceTaskType)
	defer tracer.End()

	s.log.Debug().Bool("until_idle", untilIdle).Msg("loop started")
	defer s.log.Debug().Uint64("ticks", s.ticks).Msg("loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed {
			return nil
		}
		if untilIdle && s.idle() {
			return nil
		}
		if err := s.tick(); err != nil {
			return err
		}
	}
}

func (s *Scheduler) idle() bool {
	return s.runq.Len() == 0 &&
		s.woken.Len() == 0 &&
		len(s.timers) == 0 &&
		len(s.fds) == 0 &&
		s.offloading == 0
}

// tick is one pass of the dispatch loop: poll, due timers, woken set,
// then the run queue snapshot. Tasks made ready while the snapshot runs
// wait for the next tick.
func (s *Scheduler) tick() error {
	s.ticks++

	if err := s.pollIO(s.pollTimeout(time.Now())); err != nil {
		return err
	}
	s.collectOffloads()
	s.fireTimers(time.Now())

	for s.woken.Len() > 0 {
		task := s.woken.PopFront()
		if task.state == taskWoken {
			s.ready(task)
		}
	}

	batch := s.batch[:0]
	for s.runq.Len() > 0 {
		batch = append(batch, s.runq.PopFront())
	}
	for _, task := range batch {
		if s.closed {
			break
		}
		if task.state != taskReady {
			continue
		}
		wake := task.wake
		task.wake = nil
		s.switchTo(task, wake)
	}
	clear(batch)
	s.batch = batch[:0]
	return nil
}

func (s *Scheduler) pollTimeout(now time.Time) time.Duration {
	if s.runq.Len() > 0 || s.woken.Len() > 0 {
		return 0
	}
	timeout := s.quantum
	if len(s.timers) > 0 {
		timeout = min(timeout, max(s.timers[0].when.Sub(now), 0))
	}
	return timeout
}

// switchTo resumes t with v and returns when t next suspends or
// terminates. It nests: a running task may switch into another, which
// is how a channel send hands control straight to a receiver.
func (s *Scheduler) switchTo(t *Task, v any) {
	prev := s.current
	s.current = t
	t.state = taskRunning
	t.Log("RESUME")

	_, alive := t.resume(v)

	s.current = prev
	if !alive {
		s.finish(t)
	}
}

func (s *Scheduler) finish(t *Task) {
	t.Log("DONE")
	delete(s.tasks, t.id)
	t.release()
	t.cancel()
}

func (s *Scheduler) ready(t *Task) {
	t.state = taskReady
	s.runq.PushBack(t)
}

// wake puts t in the woken set; it joins the run queue next tick. A
// task already woken is not added twice.
func (s *Scheduler) wake(t *Task) {
	if t.state == taskWoken || t.state == taskDone {
		return
	}
	t.state = taskWoken
	s.woken.PushBack(t)
}

func (s *Scheduler) mustBeRunning(t *Task) {
	if t == nil || t.sched != s || s.current != t {
		panic(errNotRunning)
	}
}

func (s *Scheduler) fail(t *Task, err error) {
	for _, h := range s.handlers {
		func() {
			// a failing observer must not take the loop down with it
			defer func() { _ = recover() }()
			h(t, err)
		}()
	}
}

func (s *Scheduler) logFailure(t *Task, err error) {
	ev := s.log.Error().Err(err).Uint64("task", t.id)
	var perr *PanicError
	if errors.As(err, &perr) {
		ev = ev.Bytes("stack", perr.Stack)
	}
	ev.Msg("task failed")
}

// Close shuts the scheduler down. Further scheduling fails with
// ErrClosed. Suspended tasks are cancelled without running further,
// descriptor registrations are dropped and an owned poller is closed.
// Called from inside a task, the teardown happens once the loop
// returns.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.log.Debug().Int("tasks", len(s.tasks)).Msg("closing")
	if s.running {
		return nil
	}
	return s.teardown()
}

func (s *Scheduler) teardown() error {
	var errs []error

	for _, tm := range s.timers {
		tm.removed = true
		tm.fire = nil
	}
	s.timers = nil
	s.runq.Clear()
	s.woken.Clear()

	for fd, st := range s.fds {
		if st.registered != 0 {
			if err := s.poller.Unregister(fd); err != nil && !errors.Is(err, poller.ErrNotRegistered) {
				errs = append(errs, fmt.Errorf("greenhouse: unregister fd %d: %w", fd, err))
			}
		}
		delete(s.fds, fd)
	}

	for id, task := range s.tasks {
		delete(s.tasks, id)
		task.killed = true
		task.cancel()
		task.release()
	}

	if s.ownPoller {
		if err := s.poller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("greenhouse: close poller: %w", err))
		}
		s.ownPoller = false
	}
	return errors.Join(errs...)
}
