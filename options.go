// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"maps"
	"time"

	"github.com/joeycumines/logiface"
	"gitlab.com/tozd/go/errors"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger          *logiface.Logger[logiface.Event]
	eventHandler    func(ev *Event)
	disasterHandler func(d *Disaster)
	fdHooks         FDHooks
	timeoutHooks    TimeoutHooks
	timeouts        bool
	maxWatches      int
	warnRates       map[time.Duration]int
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the logger. A nil logger disables logging, which is the
// default.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithEventHandler sets the function that receives native events. It is
// called with the execution lock held, from [Loop.Run] or [Loop.Do], and may
// re-enter the Loop. The event is owned by the handler.
func WithEventHandler(handler func(ev *Event)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.eventHandler = handler
		return nil
	}}
}

// WithDisasterHandler sets the function that is notified of a native
// disaster, before [Loop.Run] returns it. It cannot resume the Loop.
func WithDisasterHandler(handler func(d *Disaster)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.disasterHandler = handler
		return nil
	}}
}

// WithFDHooks adds hooks that observe (and may reject) descriptor watch
// changes. They are called before the Loop's own watch set is updated.
func WithFDHooks(hooks FDHooks) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.fdHooks = hooks
		return nil
	}}
}

// WithTimeoutHooks relays timeout registrations to hooks, which must report
// them via [Loop.ReportTimeout]. See also WithTimeouts.
func WithTimeoutHooks(hooks TimeoutHooks) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.timeoutHooks = hooks
		return nil
	}}
}

// WithTimeouts enables timeout delivery by the Loop itself. When disabled
// (the default), and no TimeoutHooks are set, timeout registrations succeed
// but are ignored, leaving the native library to its own clock.
func WithTimeouts(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.timeouts = enabled
		return nil
	}}
}

// WithMaxWatches limits the number of live watches, fd and timeout
// combined. Registrations beyond the limit fail with
// [ErrResourceExhausted]. Zero (the default) means no limit.
func WithMaxWatches(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return errors.Errorf(`xlevent: invalid max watches: %d`, n)
		}
		opts.maxWatches = n
		return nil
	}}
}

// WithWarnRates sets the per-category rate limits applied to warning logs.
// An empty map disables rate limiting.
func WithWarnRates(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if len(rates) != 0 {
			if _, err := newRateLimiter(rates); err != nil {
				return err
			}
		}
		opts.warnRates = maps.Clone(rates)
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		warnRates: defaultWarnRates,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
