package poller

import "time"

// Null is a backend that accepts no descriptors. Poll only sleeps for
// the timeout, which keeps the scheduler's idle loop bounded on hosts
// without a readiness facility and in tests that need no I/O.
type Null struct {
	closed bool
}

// NewNull creates a Null poller.
func NewNull() *Null {
	return new(Null)
}

func (p *Null) Name() string { return KindNull.String() }

func (p *Null) Register(fd int, mask Mask) error {
	if p.closed {
		return ErrClosed
	}
	return ErrUnsupported
}

func (p *Null) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	return ErrNotRegistered
}

func (p *Null) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return nil, nil
}

func (p *Null) Close() error {
	p.closed = true
	return nil
}
