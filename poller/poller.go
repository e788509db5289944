// Package poller provides the readiness multiplexers used by the
// greenhouse scheduler. Every backend implements the same Poller
// contract so the scheduler never needs to know which host facility
// it is talking to.
//
// Backends, best first:
//
//   - Epoll: edge-triggered bitmask readiness (linux).
//   - Poll: level-triggered bitmask readiness (unix).
//   - Select: read/write/error descriptor sets (linux, darwin).
//   - Null: no descriptors, only bounded sleeping.
//
// Best probes them in that order and returns the first one the host
// supports.
package poller

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mask is a set of readiness conditions.
type Mask uint32

const (
	// Read indicates the descriptor can be read without blocking.
	Read Mask = 1 << iota
	// Write indicates the descriptor can be written without blocking.
	Write
	// Error indicates an error or hangup condition on the descriptor.
	Error

	// All is the interest used when a registration passes a zero mask.
	All = Read | Write | Error
)

// String renders the mask as a "|" separated list, for logs.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&Read != 0 {
		parts = append(parts, "read")
	}
	if m&Write != 0 {
		parts = append(parts, "write")
	}
	if m&Error != 0 {
		parts = append(parts, "error")
	}
	if rest := m &^ All; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

func normalize(m Mask) Mask {
	if m == 0 {
		return All
	}
	return m & All
}

// Event is one descriptor reported ready by Poll, with the conditions
// that were satisfied.
type Event struct {
	FD   int
	Mask Mask
}

// Poller is the uniform multiplexer contract.
//
// Register merges mask into any existing registration for fd by
// bitwise OR. A call that adds no new bits is a no-op, and a change of
// mask never drops readiness that was already pending. A zero mask
// registers All.
//
// Unregister removes all interest in fd. Callers track registration
// state themselves; unregistering an unknown fd returns
// ErrNotRegistered.
//
// Poll waits up to timeout and returns the ready descriptors. It never
// blocks longer than timeout, even with nothing registered, and a
// non-positive timeout checks readiness without blocking.
type Poller interface {
	Name() string
	Register(fd int, mask Mask) error
	Unregister(fd int) error
	Poll(timeout time.Duration) ([]Event, error)
	Close() error
}

// Kind names a backend for New.
type Kind int

const (
	KindEpoll Kind = iota
	KindPoll
	KindSelect
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindEpoll:
		return "epoll"
	case KindPoll:
		return "poll"
	case KindSelect:
		return "select"
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrUnsupported   = errors.New("poller: backend not supported on this platform")
	ErrNotRegistered = errors.New("poller: fd not registered")
	ErrClosed        = errors.New("poller: poller closed")
	ErrFDOutOfRange  = errors.New("poller: fd out of range")
)

// New creates the backend of the given kind, or ErrUnsupported when
// the host lacks it.
func New(kind Kind) (Poller, error) {
	switch kind {
	case KindEpoll:
		return newEpoll()
	case KindPoll:
		return newPoll()
	case KindSelect:
		return newSelect()
	case KindNull:
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("poller: unknown kind %v", kind)
	}
}

// Best returns the most capable backend the host supports, falling
// back to Null.
func Best() Poller {
	for _, kind := range []Kind{KindEpoll, KindPoll, KindSelect} {
		if p, err := New(kind); err == nil {
			return p
		}
	}
	return NewNull()
}

// millis converts a poll timeout to whole milliseconds, truncating so
// the wait never outlasts timeout. A sub-millisecond timeout becomes a
// non-blocking check; the caller polls again for the remainder.
func millis(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	return int(timeout / time.Millisecond)
}
