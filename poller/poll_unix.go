//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sys/unix"
)

// Poll is the level-triggered poll(2) backend. The registry is kept in
// a map and the pollfd array is rebuilt on every call, so a mask
// change is a single map update.
type Poll struct {
	regs   map[int]Mask
	fds    []unix.PollFd
	closed bool
}

// NewPoll creates a poll(2) backend.
func NewPoll() *Poll {
	return &Poll{regs: make(map[int]Mask)}
}

func newPoll() (Poller, error) {
	return NewPoll(), nil
}

func (p *Poll) Name() string { return KindPoll.String() }

func (p *Poll) Register(fd int, mask Mask) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	mask = normalize(mask)
	if old, ok := p.regs[fd]; ok && old&mask == mask {
		return nil
	}
	p.regs[fd] |= mask
	return nil
}

func (p *Poll) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.regs[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.regs, fd)
	return nil
}

func (p *Poll) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}

	p.fds = p.fds[:0]
	for _, fd := range slices.Sorted(maps.Keys(p.regs)) {
		p.fds = append(p.fds, unix.PollFd{
			Fd:     int32(fd),
			Events: maskToPoll(p.regs[fd]),
		})
	}

	n, err := unix.Poll(p.fds, millis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		interest := p.regs[int(pfd.Fd)] | Error
		if m := pollToMask(pfd.Revents) & interest; m != 0 {
			out = append(out, Event{FD: int(pfd.Fd), Mask: m})
		}
	}
	return out, nil
}

func (p *Poll) Close() error {
	p.closed = true
	p.regs = nil
	p.fds = nil
	return nil
}

func maskToPoll(m Mask) int16 {
	var ev int16
	if m&Read != 0 {
		ev |= unix.POLLIN
	}
	if m&Write != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func pollToMask(rev int16) Mask {
	var m Mask
	if rev&unix.POLLIN != 0 {
		m |= Read
	}
	if rev&unix.POLLOUT != 0 {
		m |= Write
	}
	if rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		m |= Error
	}
	return m
}
