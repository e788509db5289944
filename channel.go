package greenhouse

import "github.com/gammazero/deque"

// Channel is a synchronous rendezvous: nothing is buffered, and a send
// completes only once a receiver has taken the value.
//
// The two directions differ in how they hand over control. A send to a
// waiting receiver resumes the receiver immediately, from inside the
// sender, and the sender continues only once the receiver suspends
// again. A chain of receive-then-send tasks therefore completes within
// one tick, ahead of anything else on the run queue. A receive from a
// waiting sender only puts the sender back on the run queue, and the
// receiver keeps running.
type Channel[T any] struct {
	noCopy    noCopy
	sched     *Scheduler
	balance   int
	senders   deque.Deque[*chanSender[T]]
	receivers deque.Deque[*Task]
}

type chanSender[T any] struct {
	task  *Task
	value T
}

// NewChannel creates a channel.
func NewChannel[T any](s *Scheduler) *Channel[T] {
	return &Channel[T]{sched: s}
}

// Balance is the number of blocked senders minus the number of blocked
// receivers.
func (c *Channel[T]) Balance() int {
	return c.balance
}

// Send delivers v to a receiver, waiting for one if none is blocked.
func (c *Channel[T]) Send(t *Task, v T) {
	s := c.sched
	s.mustBeRunning(t)

	if c.receivers.Len() > 0 {
		rcv := c.receivers.PopFront()
		c.balance++
		t.Logf("SEND TRANSFER %d", rcv.id)
		s.switchTo(rcv, v)
		return
	}

	c.senders.PushBack(&chanSender[T]{task: t, value: v})
	c.balance++
	t.state = taskWaiting
	t.park()
}

// Receive takes a value from the oldest blocked sender, or waits for a
// send.
func (c *Channel[T]) Receive(t *Task) T {
	s := c.sched
	s.mustBeRunning(t)

	if c.senders.Len() > 0 {
		snd := c.senders.PopFront()
		c.balance--
		s.ready(snd.task)
		return snd.value
	}

	c.receivers.PushBack(t)
	c.balance--
	t.state = taskWaiting
	v, _ := t.park().(T)
	return v
}
