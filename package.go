// Package greenhouse is a cooperative task runtime. Many tasks share a
// single dispatch loop and switch only at explicit suspension points,
// which makes thousands of concurrent I/O-bound flows cheap.
//
// Key components:
//
//   - Scheduler: Owns the run queue, the timer set, the woken set and
//     the descriptor waits, and drives them from a dispatch loop
//     (Run, RunUntilIdle or Tick). There is no global scheduler.
//
//   - Task: A coroutine-backed unit of work. Blocking operations take
//     the calling task explicitly.
//
//   - poller.Poller: The pluggable readiness multiplexer behind
//     WaitIO, with epoll, poll and select backends.
//
//   - Event: The wait/notify primitive everything else builds on.
//     Setting it wakes every waiter in the next tick; timed waits can
//     carry timeout callbacks.
//
//   - Channel: A synchronous rendezvous. A send to a waiting receiver
//     transfers control to it directly.
//
//   - Lock, RLock, Condition, Semaphore, BoundedSemaphore, Queue:
//     Compositions of Event with the familiar contracts.
//
//   - WaitGroup, ErrGroup, SingleFlight, Local, Pool, OrderedPool and
//     Map: Structured helpers for groups of tasks.
//
//   - Offload: Runs a blocking call on its own goroutine and resumes
//     the task once it returns.
package greenhouse
