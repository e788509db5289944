//go:build linux

package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const epollBatch = 256

// Epoll is the edge-triggered epoll(7) backend.
//
// A registration change is a single EPOLL_CTL_MOD, so widening the
// mask never opens a window in which readiness could be lost. Adding
// or modifying a registration re-arms the edge, so a descriptor that
// is already ready is reported by the next Poll.
type Epoll struct {
	epfd   int
	events []unix.EpollEvent
	regs   map[int]Mask
	closed bool
}

// NewEpoll creates an epoll instance.
func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll create: %w", err)
	}
	return &Epoll{
		epfd:   epfd,
		events: make([]unix.EpollEvent, epollBatch),
		regs:   make(map[int]Mask),
	}, nil
}

func newEpoll() (Poller, error) {
	return NewEpoll()
}

func (p *Epoll) Name() string { return KindEpoll.String() }

func (p *Epoll) Register(fd int, mask Mask) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}

	mask = normalize(mask)
	old, ok := p.regs[fd]
	if ok && old&mask == mask {
		return nil
	}

	merged := old | mask
	ev := unix.EpollEvent{Events: maskToEpoll(merged), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("poller: epoll ctl fd %d: %w", fd, err)
	}

	p.regs[fd] = merged
	return nil
}

func (p *Epoll) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.regs[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.regs, fd)

	// a closed descriptor has already left the interest list
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("poller: epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *Epoll) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}

	n, err := unix.EpollWait(p.epfd, p.events, millis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: epoll wait: %w", err)
	}

	var out []Event
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		interest, ok := p.regs[fd]
		if !ok {
			continue
		}
		if m := epollToMask(p.events[i].Events) & (interest | Error); m != 0 {
			out = append(out, Event{FD: fd, Mask: m})
		}
	}
	return out, nil
}

func (p *Epoll) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.regs = nil
	return unix.Close(p.epfd)
}

func maskToEpoll(m Mask) uint32 {
	ev := uint32(unix.EPOLLET)
	if m&Read != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if m&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if m&Error != 0 {
		ev |= unix.EPOLLERR
	}
	return ev
}

func epollToMask(ev uint32) Mask {
	var m Mask
	if ev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		m |= Read
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= Write
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= Error
	}
	return m
}
