package greenhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	q := NewQueue[int](s, 0)
	r.True(q.Empty())
	r.False(q.Full())
	for i := range 5 {
		r.NoError(q.PutNowait(i))
	}
	r.Equal(5, q.Len())

	var got []int
	var emptyErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		for range 5 {
			got = append(got, q.Get(task))
		}
		_, emptyErr = q.GetNowait()
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal([]int{0, 1, 2, 3, 4}, got)
	r.ErrorIs(emptyErr, ErrEmpty)
}

func TestQueuePutBlocksWhenFull(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	q := NewQueue[int](s, 1)
	var events []string
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		q.Put(task, 1)
		q.Put(task, 2)
		events = append(events, "put 2")
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		if q.Full() {
			events = append(events, "full")
		}
		if q.Get(task) == 1 {
			events = append(events, "got 1")
		}
		if q.Get(task) == 2 {
			events = append(events, "got 2")
		}
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal([]string{"full", "got 1", "put 2", "got 2"}, events)
}

func TestQueuePutNowaitFull(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	q := NewQueue[string](s, 1)
	r.NoError(q.PutNowait("a"))
	r.True(q.Full())
	r.ErrorIs(q.PutNowait("b"), ErrFull)
	r.Equal(1, q.Len())

	v, err := q.GetNowait()
	r.NoError(err)
	r.Equal("a", v)
}

func TestQueueTimeouts(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	full := NewQueue[int](s, 1)
	r.NoError(full.PutNowait(1))
	empty := NewQueue[int](s, 0)

	var putErr, getErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		putErr = full.PutTimeout(task, 2, 2*time.Millisecond)
		_, getErr = empty.GetTimeout(task, 2*time.Millisecond)
	})
	r.NoError(err)

	runIdle(t, s)
	r.ErrorIs(putErr, ErrFull)
	r.ErrorIs(getErr, ErrEmpty)
	r.Equal(1, full.Len())
	r.True(empty.Empty())
}

func TestQueueGetTimeoutReceives(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	q := NewQueue[int](s, 0)
	var got int
	var getErr error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		got, getErr = q.GetTimeout(task, time.Second)
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		s.Suspend(task)
		q.Put(task, 42)
	})
	r.NoError(err)

	runIdle(t, s)
	r.NoError(getErr)
	r.Equal(42, got)
}

func TestQueueJoin(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	q := NewQueue[int](s, 0)
	for i := range 3 {
		r.NoError(q.PutNowait(i))
	}
	r.Equal(3, q.Unfinished())

	done := 0
	var joined int
	var doneErrs []error
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		q.Join(task)
		joined = done
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		for range 3 {
			_ = q.Get(task)
			s.Suspend(task)
			done++
			doneErrs = append(doneErrs, q.TaskDone())
		}
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(3, joined)
	r.Equal([]error{nil, nil, nil}, doneErrs)
	r.Zero(q.Unfinished())
	r.ErrorIs(q.TaskDone(), ErrTaskDone)
}
