// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package xlevent

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// Multiplexer waits for readiness on many descriptors, with an internal
// wakeup descriptor so that a wait can be interrupted, see [Multiplexer.Wake].
//
// Concurrent calls to Wait are permitted but are serialised.
type Multiplexer struct {
	lock   sync.Locker
	mu     sync.RWMutex
	waitMu sync.Mutex
	wake   *wakeFd
	closed atomic.Bool
}

// NewMultiplexer returns a Multiplexer that releases lock while blocked.
// The lock may be nil.
func NewMultiplexer(lock sync.Locker) (*Multiplexer, error) {
	wake, err := newWakeFd()
	if err != nil {
		return nil, errors.Errorf(`xlevent: wakeup descriptor: %w`, err)
	}
	return &Multiplexer{lock: lock, wake: wake}, nil
}

// Wait blocks until at least one of fds has activity, [Multiplexer.Wake] is
// called, or ctx is done. If the Multiplexer was constructed with a lock, the
// caller must hold it, and it is released while blocked.
//
// A wakeup without activity returns an empty result and a nil error.
// Cancellation returns ctx.Err(). Otherwise, behaves like [Wait].
func (x *Multiplexer) Wait(ctx context.Context, fds []FDInterest) ([]FDReady, error) {
	observed, err := x.poll(ctx, fds)
	if err != nil {
		return nil, err
	}
	return collectReady(fds, observed), nil
}

// Wake interrupts a blocked (or the next) call to Wait. Wakeups coalesce.
func (x *Multiplexer) Wake() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed.Load() {
		return ErrMultiplexerClosed
	}
	return x.wake.signal()
}

// Close interrupts any blocked Wait, then releases the wakeup descriptor.
// Subsequent calls are no-ops.
func (x *Multiplexer) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = x.wake.signal()
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.wake.close()
}

// poll returns the observed mask for each of fds, by index.
func (x *Multiplexer) poll(ctx context.Context, fds []FDInterest) ([]Mask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pfds, err := buildPollFds(fds, 1)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = x.Wake() })
	defer stop()

	err = Yield(x.lock, func() error {
		x.waitMu.Lock()
		defer x.waitMu.Unlock()

		x.mu.RLock()
		defer x.mu.RUnlock()

		if x.closed.Load() {
			return ErrMultiplexerClosed
		}

		wake := &pfds[len(pfds)-1]
		*wake = unix.PollFd{Fd: int32(x.wake.r), Events: unix.POLLIN}

		if err := pollRetry(pfds); err != nil {
			return err
		}

		if wake.Revents != 0 {
			x.wake.drain()
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x.closed.Load() {
		return nil, ErrMultiplexerClosed
	}

	return pollRevents(pfds[:len(fds)]), nil
}

func waitIndefinite(fds []FDInterest) ([]FDReady, error) {
	pfds, err := buildPollFds(fds, 0)
	if err != nil {
		return nil, err
	}
	if err := pollRetry(pfds); err != nil {
		return nil, err
	}
	return collectReady(fds, pollRevents(pfds)), nil
}

// buildPollFds allocates extra trailing entries for the caller to fill.
func buildPollFds(fds []FDInterest, extra int) ([]unix.PollFd, error) {
	pfds := make([]unix.PollFd, len(fds), len(fds)+extra)
	for i, v := range fds {
		if v.FD < 0 {
			return nil, errors.WithDetails(ErrInvalidFD, `fd`, v.FD)
		}
		pfds[i] = unix.PollFd{Fd: int32(v.FD), Events: int16(Encode(v.Interests...))}
	}
	return pfds[:len(fds)+extra], nil
}

func pollRevents(pfds []unix.PollFd) []Mask {
	out := make([]Mask, len(pfds))
	for i := range pfds {
		out[i] = Mask(pfds[i].Revents)
	}
	return out
}

// pollRetry waits indefinitely, resuming after EINTR, which the Go runtime
// raises routinely for preemption.
func pollRetry(pfds []unix.PollFd) error {
	for {
		_, err := unix.Poll(pfds, -1)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return errors.WithStack(&PollError{Errno: errno})
		}
		return errors.WithStack(err)
	}
}
