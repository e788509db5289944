//go:build !linux && !darwin

package poller

func newSelect() (Poller, error) {
	return nil, ErrUnsupported
}
