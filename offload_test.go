package greenhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOffload(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	var got int
	var offErr error
	var events []string
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		got, offErr = Offload(task, func(context.Context) (int, error) {
			time.Sleep(5 * time.Millisecond)
			return 7, nil
		})
		events = append(events, "offloaded")
	})
	r.NoError(err)
	_, err = s.Schedule(func(context.Context, *Task) {
		events = append(events, "other")
	})
	r.NoError(err)

	runIdle(t, s)
	r.NoError(offErr)
	r.Equal(7, got)
	r.Equal([]string{"other", "offloaded"}, events)
}

func TestOffloadErrors(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t, WithOffloadLimit(1))

	boom := errors.New("boom")
	var errs []error
	for _, fn := range []func(context.Context) (string, error){
		func(context.Context) (string, error) { return "", boom },
		func(context.Context) (string, error) { panic("offload") },
	} {
		_, err := s.Schedule(func(_ context.Context, task *Task) {
			_, err := Offload(task, fn)
			errs = append(errs, err)
		})
		r.NoError(err)
	}

	runIdle(t, s)
	r.Len(errs, 2)

	var perr *PanicError
	for _, err := range errs {
		if !errors.Is(err, boom) {
			r.ErrorAs(err, &perr)
		}
	}
	r.NotNil(perr)
}
