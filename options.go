package greenhouse

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/webriots/greenhouse/poller"
)

const (
	// DefaultQuantum bounds how long the loop blocks in the poller, so
	// descriptors registered while it sleeps are noticed promptly.
	DefaultQuantum = 5 * time.Millisecond

	// DefaultOffloadLimit defines the maximum number of concurrent
	// offloaded calls.
	DefaultOffloadLimit = 128
)

// FailureHandler observes task failures. It runs on the failing task's
// coroutine as the body unwinds, before the task is torn down, so
// t.Done() still reports false.
type FailureHandler func(t *Task, err error)

type options struct {
	poller       poller.Poller
	quantum      time.Duration
	logger       zerolog.Logger
	handlers     []FailureHandler
	ctx          context.Context
	offloadLimit int64
}

// Option configures a Scheduler.
type Option interface {
	applyScheduler(*options) error
}

type optionImpl struct {
	applySchedulerFunc func(*options) error
}

func (o *optionImpl) applyScheduler(opts *options) error {
	return o.applySchedulerFunc(opts)
}

// WithPoller forces a specific multiplexer backend. The scheduler does
// not close a poller passed this way.
func WithPoller(p poller.Poller) Option {
	return &optionImpl{func(opts *options) error {
		opts.poller = p
		return nil
	}}
}

// WithQuantum caps how long a single poll may block.
func WithQuantum(d time.Duration) Option {
	return &optionImpl{func(opts *options) error {
		if d <= 0 {
			return errors.New("greenhouse: quantum must be positive")
		}
		opts.quantum = d
		return nil
	}}
}

// WithLogger sets the structured logger. The default discards
// everything.
func WithLogger(l zerolog.Logger) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = l
		return nil
	}}
}

// WithFailureHandler adds an observer for task failures.
func WithFailureHandler(h FailureHandler) Option {
	return &optionImpl{func(opts *options) error {
		if h == nil {
			return errors.New("greenhouse: nil failure handler")
		}
		opts.handlers = append(opts.handlers, h)
		return nil
	}}
}

// WithContext sets the parent of every task context. Close cancels the
// derived context.
func WithContext(ctx context.Context) Option {
	return &optionImpl{func(opts *options) error {
		if ctx == nil {
			return errors.New("greenhouse: nil context")
		}
		opts.ctx = ctx
		return nil
	}}
}

// WithOffloadLimit bounds the number of offloaded calls running at
// once.
func WithOffloadLimit(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n <= 0 {
			return errors.New("greenhouse: offload limit must be positive")
		}
		opts.offloadLimit = int64(n)
		return nil
	}}
}

func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		quantum:      DefaultQuantum,
		logger:       zerolog.Nop(),
		ctx:          context.Background(),
		offloadLimit: DefaultOffloadLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
