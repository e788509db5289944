//go:build linux || darwin

package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// selectSetSize is FD_SETSIZE on the supported hosts.
const selectSetSize = 1024

// Select is the select(2) fallback backend. It builds read, write and
// error descriptor sets from its registry on every Poll.
type Select struct {
	regs   map[int]Mask
	closed bool
}

// NewSelect creates a select(2) backend.
func NewSelect() *Select {
	return &Select{regs: make(map[int]Mask)}
}

func newSelect() (Poller, error) {
	return NewSelect(), nil
}

func (p *Select) Name() string { return KindSelect.String() }

func (p *Select) Register(fd int, mask Mask) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 || fd >= selectSetSize {
		return ErrFDOutOfRange
	}
	mask = normalize(mask)
	if old, ok := p.regs[fd]; ok && old&mask == mask {
		return nil
	}
	p.regs[fd] |= mask
	return nil
}

func (p *Select) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.regs[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.regs, fd)
	return nil
}

func (p *Select) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if timeout < 0 {
		timeout = 0
	}

	var rset, wset, eset unix.FdSet
	maxfd := -1
	for fd, m := range p.regs {
		if m&Read != 0 {
			rset.Set(fd)
		}
		if m&Write != 0 {
			wset.Set(fd)
		}
		if m&Error != 0 {
			eset.Set(fd)
		}
		maxfd = max(maxfd, fd)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(maxfd+1, &rset, &wset, &eset, &tv)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: select: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}

	var out []Event
	for fd := 0; fd <= maxfd; fd++ {
		var m Mask
		if rset.IsSet(fd) {
			m |= Read
		}
		if wset.IsSet(fd) {
			m |= Write
		}
		if eset.IsSet(fd) {
			m |= Error
		}
		if m != 0 {
			out = append(out, Event{FD: fd, Mask: m})
		}
	}
	return out, nil
}

func (p *Select) Close() error {
	p.closed = true
	p.regs = nil
	return nil
}
