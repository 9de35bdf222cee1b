// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Loop drives a native event engine. It owns the execution lock under which
// all native calls are made, the [Multiplexer] that waits on the native
// library's descriptors, and the relays between the two sides.
type Loop struct {
	lock     execLock
	mux      *Multiplexer
	native   Native
	relay    *relay
	delivery *delivery
	watches  *watchSet
	timers   *timerSet
	log      *logger

	eventHandler    func(ev *Event)
	disasterHandler func(d *Disaster)

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// hooks implements NativeHooks for a Loop.
type hooks struct {
	loop *Loop
}

var _ NativeHooks = (*hooks)(nil)

// New creates a Loop, then opens the native context via open.
func New(open NativeOpener, opts ...LoopOption) (*Loop, error) {
	if open == nil {
		return nil, errors.New(`xlevent: nil native opener`)
	}

	options, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(options.logger, options.warnRates)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		log:             log,
		eventHandler:    options.eventHandler,
		disasterHandler: options.disasterHandler,
		done:            make(chan struct{}),
	}

	l.mux, err = NewMultiplexer(&l.lock)
	if err != nil {
		return nil, err
	}

	l.watches = newWatchSet(l.wake)

	fdHooks := []FDHooks{l.watches}
	if options.fdHooks != nil {
		fdHooks = []FDHooks{options.fdHooks, l.watches}
	}

	var timeoutHooks []TimeoutHooks
	if options.timeoutHooks != nil {
		timeoutHooks = append(timeoutHooks, options.timeoutHooks)
	}
	if options.timeouts {
		l.timers = newTimerSet(l.wake)
		timeoutHooks = append(timeoutHooks, l.timers)
	}

	l.relay = newRelay(log, options.maxWatches, fdHooks, timeoutHooks)
	l.delivery = newDelivery(log, l.wake)

	native, err := open(&hooks{loop: l})
	if err != nil {
		_ = l.mux.Close()
		return nil, err
	}
	if native == nil {
		_ = l.mux.Close()
		return nil, errors.New(`xlevent: native opener returned nil`)
	}
	l.native = native

	return l, nil
}

// Run drives the native event engine until ctx is done, the Loop is closed,
// or a disaster occurs. Events are dispatched between waits.
//
// Only one call to Run may be in progress.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	defer l.running.Store(false)

	l.lock.Lock()
	defer l.lock.Unlock()

	for {
		if err := l.drainLocked(); err != nil {
			return err
		}
		if err := l.usable(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.fireTimeoutsLocked(); err != nil {
			if errors.Is(err, ErrDisaster) {
				// dispatch what was queued ahead of it, then the disaster
				continue
			}
			return err
		}

		watches := l.watches.snapshot()
		fds := make([]FDInterest, len(watches))
		for i, w := range watches {
			fds[i] = FDInterest{FD: w.FD, Interests: w.Interests}
		}

		observed, err := l.mux.poll(ctx, fds)
		if err != nil {
			if errors.Is(err, ErrMultiplexerClosed) {
				return ErrLoopClosed
			}
			if ctx.Err() != nil {
				return err
			}
			l.log.err(logCategoryPoll).Err(err).Int(`fds`, len(fds)).Log(`poll failed`)
			return err
		}

		for i, m := range observed {
			revents := m.Decode()
			if len(revents) == 0 {
				continue
			}
			// the registered interests may have been modified by an earlier
			// report in this batch
			err := l.reportFDLocked(watches[i].Token, watches[i].FD, nil, revents)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrUnknownWatch) {
				// deregistered by an earlier report in this batch
				continue
			}
			if errors.Is(err, ErrDisaster) {
				// raised by an earlier report, dispatched at the top
				break
			}
			return err
		}
	}
}

// Do calls fn with the native context, holding the execution lock, then
// dispatches any events queued by the call. It may be called re-entrantly,
// e.g. from an event handler, in which case dispatch is left to the outer
// call.
//
// If the Loop has suffered a disaster, fn is not called, and the disaster is
// returned.
func (l *Loop) Do(fn func(native Native) error) error {
	release, nested := l.lock.acquire()
	defer release()

	if err := l.usable(); err != nil {
		return err
	}

	err := fn(l.native)

	if !nested {
		if e := l.drainLocked(); err == nil {
			err = e
		}
	}

	return err
}

// ReportFD reports activity on a registered descriptor to the native
// library. Run does this automatically, this is for use with custom
// [FDHooks]. A nil requested reports the interests currently registered for
// the watch. An unknown or mismatched watch is an error, and the native
// library is not called.
func (l *Loop) ReportFD(token Token, fd int, requested, observed []Interest) error {
	return l.Do(func(Native) error {
		return l.reportFDLocked(token, fd, requested, observed)
	})
}

// ReportTimeout reports that a registered timeout has elapsed, which also
// deregisters it.
func (l *Loop) ReportTimeout(token Token) error {
	return l.Do(func(Native) error {
		return l.reportTimeoutLocked(token)
	})
}

// Drain dispatches queued events. Run and Do drain automatically.
func (l *Loop) Drain() error {
	release, _ := l.lock.acquire()
	defer release()
	return l.drainLocked()
}

// Wake interrupts the current (or next) wait within Run.
func (l *Loop) Wake() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	return l.mux.Wake()
}

// Disaster returns the disaster that poisoned the Loop, or nil.
func (l *Loop) Disaster() *Disaster {
	return l.delivery.poison()
}

// Done is closed when the Loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops Run, then closes the native context. It is safe to call more
// than once, and from an event handler.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)

		// interrupts Run, which releases the lock
		muxErr := l.mux.Close()

		release, _ := l.lock.acquire()
		defer release()

		if l.timers != nil {
			l.timers.stop()
		}

		l.closeErr = l.native.Close()
		if l.closeErr == nil {
			l.closeErr = muxErr
		}

		l.log.debug(logCategoryWatch).Log(`loop closed`)
	})
	return l.closeErr
}

// usable returns the error to fail native calls with, if any.
func (l *Loop) usable() error {
	if d := l.delivery.poison(); d != nil {
		return d
	}
	if l.closed.Load() {
		return ErrLoopClosed
	}
	return nil
}

func (l *Loop) reportFDLocked(token Token, fd int, requested, observed []Interest) error {
	if err := l.usable(); err != nil {
		return err
	}
	entry, err := l.relay.lookupFD(token, fd)
	if err != nil {
		l.log.warning(logCategoryWatch).Uint64(`token`, uint64(token)).Int(`fd`, fd).Err(err).Log(`fd occurrence for unknown watch`)
		return err
	}
	events := entry.events
	if requested != nil {
		events = Encode(requested...)
	}
	revents := Encode(observed...)
	l.log.debug(logCategoryWatch).
		Uint64(`token`, uint64(token)).
		Int(`fd`, fd).
		Stringer(`revents`, revents).
		Log(`fd occurred`)
	// the relay lock is not held, the native library may re-register
	l.native.OccurredFD(entry.forNative, fd, events, revents)
	return nil
}

func (l *Loop) reportTimeoutLocked(token Token) error {
	if err := l.usable(); err != nil {
		return err
	}
	entry, err := l.relay.takeTimeout(token)
	if err != nil {
		l.log.warning(logCategoryTimeout).Uint64(`token`, uint64(token)).Err(err).Log(`timeout occurrence for unknown watch`)
		return err
	}
	l.log.debug(logCategoryTimeout).Uint64(`token`, uint64(token)).Log(`timeout occurred`)
	l.native.OccurredTimeout(entry.forNative)
	return nil
}

func (l *Loop) fireTimeoutsLocked() error {
	if l.timers == nil {
		return nil
	}
	for _, token := range l.timers.takeDue() {
		if err := l.reportTimeoutLocked(token); err != nil {
			if errors.Is(err, ErrUnknownWatch) {
				continue
			}
			return err
		}
	}
	return nil
}

// drainLocked dispatches queued items until the queue is empty, or a
// disaster is dispatched, which is returned.
func (l *Loop) drainLocked() error {
	for {
		item, ok := l.delivery.pop()
		if !ok {
			return nil
		}
		switch v := item.(type) {
		case *Event:
			l.delivery.notify(v)
			if l.eventHandler != nil {
				l.eventHandler(v)
			}
		case *Disaster:
			if l.disasterHandler != nil {
				l.disasterHandler(v)
			}
			return v
		}
	}
}

func (l *Loop) wake() {
	if err := l.mux.Wake(); err != nil && !errors.Is(err, ErrMultiplexerClosed) {
		l.log.err(logCategoryPoll).Err(err).Log(`wake failed`)
	}
}

func (x *hooks) FDRegister(fd int, events Mask, forNative uintptr) (Token, error) {
	return x.loop.relay.fdRegister(fd, events, forNative)
}

func (x *hooks) FDModify(token Token, fd int, events Mask) (Token, error) {
	return x.loop.relay.fdModify(token, fd, events)
}

func (x *hooks) FDDeregister(token Token, fd int) {
	x.loop.relay.fdDeregister(token, fd)
}

func (x *hooks) TimeoutRegister(deadline time.Time, forNative uintptr) (Token, error) {
	return x.loop.relay.timeoutRegister(deadline, forNative)
}

func (x *hooks) TimeoutModify(token Token, deadline time.Time) (Token, error) {
	return x.loop.relay.timeoutModify(token, deadline)
}

func (x *hooks) TimeoutDeregister(token Token) {
	x.loop.relay.timeoutDeregister(token)
}

func (x *hooks) EventOccurs(ev *Event) {
	x.loop.delivery.eventOccurs(ev)
}

func (x *hooks) Disaster(d Disaster) {
	x.loop.delivery.disasterOccurs(d)
}
