//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package poller

func newPoll() (Poller, error) {
	return nil, ErrUnsupported
}
