package greenhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventWaitAfterSet(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	ev.Set()
	r.True(ev.IsSet())

	var before, after uint64
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		before = s.Ticks()
		ev.Wait(task)
		after = s.Ticks()
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(before, after)

	ev.Clear()
	r.False(ev.IsSet())
}

func TestEventWakesCohortTogether(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	var order []int
	var ticks []uint64
	for i := range 3 {
		_, err := s.Schedule(func(_ context.Context, task *Task) {
			ev.Wait(task)
			order = append(order, i)
			ticks = append(ticks, s.Ticks())
		})
		r.NoError(err)
	}

	var setAt uint64
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		s.Suspend(task)
		setAt = s.Ticks()
		ev.Set()
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal([]int{0, 1, 2}, order)
	r.Equal([]uint64{setAt + 1, setAt + 1, setAt + 1}, ticks)
}

func TestEventClearKeepsWokenWaiters(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	woke := false
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.Wait(task)
		woke = true
	})
	r.NoError(err)
	_, err = s.Schedule(func(context.Context, *Task) {
		ev.Set()
		ev.Clear()
	})
	r.NoError(err)

	runIdle(t, s)
	r.True(woke)
	r.False(ev.IsSet())
}

func TestEventWaitTimeout(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	var signaled bool
	var waitErr error
	var waited time.Duration
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		start := time.Now()
		signaled, waitErr = ev.WaitTimeout(task, 5*time.Millisecond)
		waited = time.Since(start)
	})
	r.NoError(err)

	runIdle(t, s)
	r.False(signaled)
	r.NoError(waitErr)
	r.GreaterOrEqual(waited, 5*time.Millisecond)
}

func TestEventTimeoutCallbacks(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	first := errors.New("first")
	second := errors.New("second")

	var calls []string
	var waitErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.AddTimeoutCallback(task, func() error {
			calls = append(calls, "a")
			return first
		})
		ev.AddTimeoutCallback(task, func() error {
			calls = append(calls, "b")
			return second
		})
		_, waitErr = ev.WaitTimeout(task, time.Millisecond)
		calls = append(calls, "woke")
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal([]string{"a", "b", "woke"}, calls)
	r.ErrorIs(waitErr, first)
}

func TestEventTimeoutCallbackPanic(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	var waitErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.AddTimeoutCallback(task, func() error { panic("callback") })
		_, waitErr = ev.WaitTimeout(task, time.Millisecond)
	})
	r.NoError(err)

	runIdle(t, s)
	var perr *PanicError
	r.ErrorAs(waitErr, &perr)
	r.Equal("callback", perr.Value)
}

func TestEventSetDisarmsTimeout(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	callback := false
	var signaled bool
	var waitErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.AddTimeoutCallback(task, func() error {
			callback = true
			return nil
		})
		signaled, waitErr = ev.WaitTimeout(task, time.Second)
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		s.Suspend(task)
		ev.Set()
	})
	r.NoError(err)

	start := time.Now()
	runIdle(t, s)
	r.True(signaled)
	r.NoError(waitErr)
	r.False(callback)
	r.Less(time.Since(start), time.Second)
}

func TestEventSetInTickTimeoutFires(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	callback := false
	resumed := 0
	var signaled bool
	var waitErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.AddTimeoutCallback(task, func() error {
			callback = true
			return nil
		})
		signaled, waitErr = ev.WaitTimeout(task, 2*time.Millisecond)
		resumed++
	})
	r.NoError(err)

	// The timeout task is spawned behind this one in the same tick, so
	// Set lands between the timer firing and the timeout running.
	raced := false
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		for len(s.timers) > 0 || len(ev.runners) != 1 {
			s.Suspend(task)
		}
		ev.Set()
		raced = true
	})
	r.NoError(err)

	runIdle(t, s)
	r.True(raced)
	r.True(signaled)
	r.NoError(waitErr)
	r.False(callback)
	r.Equal(1, resumed)
	r.Empty(ev.runners)
}

func TestEventSetFromOutsideLoop(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ev := NewEvent(s)
	woke := false
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		ev.Wait(task)
		woke = true
	})
	r.NoError(err)

	r.NoError(s.Tick())
	r.False(woke)

	ev.Set()
	runIdle(t, s)
	r.True(woke)
}
