// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"strconv"
	"syscall"

	"gitlab.com/tozd/go/errors"
)

// Standard errors.
var (
	// ErrUnknownInterest is returned by [ParseInterest] for unrecognised names.
	ErrUnknownInterest error = errors.Base(`xlevent: unknown interest`)

	// ErrUnknownWatch indicates a token that is not (or is no longer)
	// registered. Reporting against a stale token is always a bug.
	ErrUnknownWatch error = errors.Base(`xlevent: unknown watch token`)

	// ErrWatchMismatch indicates a token that does not match the descriptor
	// it was reported with.
	ErrWatchMismatch error = errors.Base(`xlevent: watch does not match descriptor`)

	// ErrInvalidFD is returned for negative file descriptors.
	ErrInvalidFD error = errors.Base(`xlevent: invalid file descriptor`)

	// ErrResourceExhausted is returned when a registration or native
	// allocation cannot be satisfied.
	ErrResourceExhausted error = errors.Base(`xlevent: resource exhausted`)

	// ErrPollFailed is matched by every [*PollError].
	ErrPollFailed error = errors.Base(`xlevent: poll failed`)

	// ErrNativeCall is matched by every [*NativeError].
	ErrNativeCall error = errors.Base(`xlevent: native call failed`)

	// ErrDisaster is matched by every [*Disaster].
	ErrDisaster error = errors.Base(`xlevent: native disaster`)

	// ErrLoopClosed is returned when operating on a closed Loop.
	ErrLoopClosed error = errors.Base(`xlevent: loop closed`)

	// ErrLoopAlreadyRunning is returned by [Loop.Run] if another call is
	// already in progress.
	ErrLoopAlreadyRunning error = errors.Base(`xlevent: loop already running`)

	// ErrMultiplexerClosed is returned when waiting on a closed [Multiplexer].
	ErrMultiplexerClosed error = errors.Base(`xlevent: multiplexer closed`)

	// ErrNotSupported is returned by native openers that are unavailable in
	// the current build.
	ErrNotSupported error = errors.Base(`xlevent: not supported`)
)

// PollError is a failure of the poll(2) system call.
type PollError struct {
	Errno syscall.Errno
}

func (e *PollError) Error() string {
	return `xlevent: poll: ` + e.Errno.Error()
}

func (e *PollError) Unwrap() error { return e.Errno }

func (e *PollError) Is(target error) bool { return target == ErrPollFailed }

// NativeError is a non-zero return code from a native library call.
type NativeError struct {
	Op string
	RC int
}

func (e *NativeError) Error() string {
	return `xlevent: ` + e.Op + `: rc ` + strconv.Itoa(e.RC)
}

func (e *NativeError) Is(target error) bool { return target == ErrNativeCall }
