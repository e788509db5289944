package greenhouse

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelHotPotato(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	const hops = 10
	chans := make([]*Channel[int], hops+1)
	for i := range chans {
		chans[i] = NewChannel[int](s)
	}

	for i := range hops {
		_, err := s.Schedule(func(_ context.Context, task *Task) {
			v := chans[i].Receive(task)
			chans[i+1].Send(task, v+1)
		})
		r.NoError(err)
	}

	var got int
	var gotAt, sentAt uint64
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		got = chans[hops].Receive(task)
		gotAt = s.Ticks()
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		chans[0].Send(task, 0)
		sentAt = s.Ticks()
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(hops, got)
	r.Equal(uint64(1), gotAt)
	r.Equal(uint64(1), sentAt)
	for _, ch := range chans {
		r.Zero(ch.Balance())
	}
}

func TestChannelHotPotatoOneChannel(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	const passers = 10
	c := NewChannel[int](s)
	passes := 0
	flag := false
	var flagAfterSend, flagAfterSuspend bool
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		for range passers {
			_, _ = s.Schedule(func(_ context.Context, task *Task) {
				v := c.Receive(task)
				passes++
				c.Send(task, v+1)
			})
		}
		s.Suspend(task)

		_, _ = s.Schedule(func(context.Context, *Task) {
			flag = true
		})
		c.Send(task, 0)
		flagAfterSend = flag
		s.Suspend(task)
		flagAfterSuspend = flag
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(passers, passes)
	r.False(flagAfterSend)
	r.True(flagAfterSuspend)
	// the last passer finds no receiver and stays blocked sending
	r.Equal(1, c.Balance())
}

func TestChannelSendTransfersControl(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ch := NewChannel[int](s)
	var events []string
	for _, name := range []string{"r1", "r2"} {
		_, err := s.Schedule(func(_ context.Context, task *Task) {
			v := ch.Receive(task)
			events = append(events, fmt.Sprintf("%s:%d", name, v))
		})
		r.NoError(err)
	}

	var balance int
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		balance = ch.Balance()
		ch.Send(task, 1)
		events = append(events, "sent1")
		ch.Send(task, 2)
		events = append(events, "sent2")
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(-2, balance)
	r.Equal([]string{"r1:1", "sent1", "r2:2", "sent2"}, events)
	r.Zero(ch.Balance())
}

func TestChannelReceiveFromBlockedSenders(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ch := NewChannel[string](s)
	var events []string
	for _, v := range []string{"x", "y"} {
		_, err := s.Schedule(func(_ context.Context, task *Task) {
			ch.Send(task, v)
			events = append(events, "sent "+v)
		})
		r.NoError(err)
	}

	var balance int
	var before, after uint64
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		balance = ch.Balance()
		before = s.Ticks()
		a := ch.Receive(task)
		b := ch.Receive(task)
		after = s.Ticks()
		events = append(events, "got "+a+b)
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal(2, balance)
	r.Equal(before, after)
	r.Equal([]string{"got xy", "sent x", "sent y"}, events)
	r.Zero(ch.Balance())
}

func TestChannelPingPong(t *testing.T) {
	r := require.New(t)
	s := newScheduler(t)

	ping := NewChannel[int](s)
	pong := NewChannel[int](s)

	var seen []int
	_, err := s.Schedule(func(_ context.Context, task *Task) {
		for {
			v := ping.Receive(task)
			if v < 0 {
				return
			}
			pong.Send(task, v*2)
		}
	})
	r.NoError(err)
	_, err = s.Schedule(func(_ context.Context, task *Task) {
		for i := range 5 {
			ping.Send(task, i)
			seen = append(seen, pong.Receive(task))
		}
		ping.Send(task, -1)
	})
	r.NoError(err)

	runIdle(t, s)
	r.Equal([]int{0, 2, 4, 6, 8}, seen)
}
