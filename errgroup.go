package greenhouse

import "context"

// ErrGroup runs a group of tasks and collects the first error among
// them. The first error also cancels the context handed to the rest of
// the group.
type ErrGroup struct {
	task   *Task
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     *WaitGroup
	err    error
}

// NewErrGroup creates a group owned by t. Its context derives from t's.
func NewErrGroup(t *Task) *ErrGroup {
	ctx, cancel := context.WithCancelCause(t.ctx)
	return &ErrGroup{
		task:   t,
		ctx:    ctx,
		cancel: cancel,
		wg:     NewWaitGroup(t.sched),
	}
}

// Context returns the group context.
func (g *ErrGroup) Context() context.Context {
	return g.ctx
}

// Go starts a new task that runs f with the group's context. If f
// returns an error, the group's context is cancelled.
func (g *ErrGroup) Go(f func(context.Context) error) error {
	return g.goctx(g.ctx, f)
}

// GoWithContext starts a new task with ctx, which must derive from the
// group owner's task.
func (g *ErrGroup) GoWithContext(ctx context.Context, f func(context.Context) error) error {
	if task := MustTaskFromContext(ctx); task != g.task {
		panic("greenhouse: ctx task does not match errgroup task")
	}
	return g.goctx(ctx, f)
}

func (g *ErrGroup) goctx(ctx context.Context, f func(context.Context) error) error {
	g.wg.Add(1)
	_, err := g.task.sched.Schedule(func(_ context.Context, t *Task) {
		defer g.wg.Done()
		if err := f(withTaskContext(ctx, t)); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
	if err != nil {
		g.wg.Done()
	}
	return err
}

// Wait blocks until every task in the group has completed and returns
// the first error any of them reported.
func (g *ErrGroup) Wait(t *Task) error {
	g.wg.Wait(t)
	g.cancel(g.err)
	return g.err
}
