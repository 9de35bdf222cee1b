// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

type (
	// Token identifies a watch registered by the native library. Tokens
	// start at 1, and are never reused.
	Token uint64

	// Watch is a descriptor watch, as presented to [FDHooks].
	Watch struct {
		Token     Token
		FD        int
		Interests []Interest
	}

	// TimeoutWatch is a timeout, as presented to [TimeoutHooks]. A zero
	// Deadline means as soon as possible.
	TimeoutWatch struct {
		Token    Token
		Deadline time.Time
	}

	// FDHooks receives descriptor watch changes, synchronously, from
	// whichever context the native library is running in. Implementations
	// must not block, or call into the native library. Occurrences are
	// reported via [Loop.ReportFD].
	FDHooks interface {
		// RegisterFD returns an error to reject the watch.
		RegisterFD(w Watch) error
		// ModifyFD returns an error to reject the change, in which case
		// the previous interests remain in effect.
		ModifyFD(w Watch) error
		DeregisterFD(w Watch)
	}

	// TimeoutHooks is the timeout counterpart of [FDHooks]. A timeout is
	// implicitly deregistered once reported via [Loop.ReportTimeout].
	TimeoutHooks interface {
		RegisterTimeout(t TimeoutWatch) error
		ModifyTimeout(t TimeoutWatch) error
		DeregisterTimeout(t TimeoutWatch)
	}

	// relay is the registration side table, mapping tokens to the native
	// correlation values they stand for. It is the only mutator of that
	// mapping.
	relay struct {
		mu           sync.Mutex
		nextToken    Token
		fds          map[Token]fdEntry
		timeouts     map[Token]timeoutEntry
		maxWatches   int
		fdHooks      []FDHooks
		timeoutHooks []TimeoutHooks
		log          *logger
	}

	fdEntry struct {
		fd        int
		events    Mask
		forNative uintptr
	}

	timeoutEntry struct {
		deadline  time.Time
		forNative uintptr
	}
)

func newRelay(log *logger, maxWatches int, fdHooks []FDHooks, timeoutHooks []TimeoutHooks) *relay {
	return &relay{
		nextToken:    1,
		fds:          make(map[Token]fdEntry),
		timeouts:     make(map[Token]timeoutEntry),
		maxWatches:   maxWatches,
		fdHooks:      fdHooks,
		timeoutHooks: timeoutHooks,
		log:          log,
	}
}

// timeoutsRelayed is false in the default configuration, where timeout
// registrations are accepted and ignored.
func (x *relay) timeoutsRelayed() bool {
	return len(x.timeoutHooks) != 0
}

// allocLocked must be called with x.mu held.
func (x *relay) allocLocked() (Token, error) {
	if x.maxWatches > 0 && len(x.fds)+len(x.timeouts) >= x.maxWatches {
		return 0, errors.WithDetails(ErrResourceExhausted, `maxWatches`, x.maxWatches)
	}
	token := x.nextToken
	x.nextToken++
	return token, nil
}

func (x *relay) fdRegister(fd int, events Mask, forNative uintptr) (Token, error) {
	if fd < 0 {
		return 0, errors.WithDetails(ErrInvalidFD, `fd`, fd)
	}

	x.mu.Lock()
	token, err := x.allocLocked()
	if err == nil {
		x.fds[token] = fdEntry{fd: fd, events: events, forNative: forNative}
	}
	x.mu.Unlock()
	if err != nil {
		x.log.warning(logCategoryWatch).Int(`fd`, fd).Err(err).Log(`fd registration rejected`)
		return 0, err
	}

	w := Watch{Token: token, FD: fd, Interests: events.Decode()}
	for i, h := range x.fdHooks {
		if err := h.RegisterFD(w); err != nil {
			for j := i - 1; j >= 0; j-- {
				x.fdHooks[j].DeregisterFD(w)
			}
			x.mu.Lock()
			delete(x.fds, token)
			x.mu.Unlock()
			x.log.warning(logCategoryWatch).Int(`fd`, fd).Err(err).Log(`fd registration rejected by hook`)
			return 0, err
		}
	}

	x.log.debug(logCategoryWatch).
		Uint64(`token`, uint64(token)).
		Int(`fd`, fd).
		Stringer(`events`, events).
		Log(`fd registered`)

	return token, nil
}

func (x *relay) fdModify(token Token, fd int, events Mask) (Token, error) {
	x.mu.Lock()
	entry, err := x.lookupFDLocked(token, fd)
	prev := entry.events
	if err == nil {
		entry.events = events
		x.fds[token] = entry
	}
	x.mu.Unlock()
	if err != nil {
		x.log.warning(logCategoryWatch).Uint64(`token`, uint64(token)).Int(`fd`, fd).Err(err).Log(`fd modify for unknown watch`)
		return 0, err
	}

	w := Watch{Token: token, FD: fd, Interests: events.Decode()}
	for i, h := range x.fdHooks {
		if err := h.ModifyFD(w); err != nil {
			restore := Watch{Token: token, FD: fd, Interests: prev.Decode()}
			for j := i - 1; j >= 0; j-- {
				_ = x.fdHooks[j].ModifyFD(restore)
			}
			x.mu.Lock()
			if e, ok := x.fds[token]; ok {
				e.events = prev
				x.fds[token] = e
			}
			x.mu.Unlock()
			x.log.warning(logCategoryWatch).Uint64(`token`, uint64(token)).Int(`fd`, fd).Err(err).Log(`fd modify rejected by hook`)
			return 0, err
		}
	}

	x.log.debug(logCategoryWatch).
		Uint64(`token`, uint64(token)).
		Int(`fd`, fd).
		Stringer(`events`, events).
		Log(`fd modified`)

	return token, nil
}

func (x *relay) fdDeregister(token Token, fd int) {
	x.mu.Lock()
	entry, err := x.lookupFDLocked(token, fd)
	if err == nil {
		delete(x.fds, token)
	}
	x.mu.Unlock()
	if err != nil {
		x.log.warning(logCategoryWatch).Uint64(`token`, uint64(token)).Int(`fd`, fd).Err(err).Log(`fd deregister for unknown watch`)
		return
	}

	w := Watch{Token: token, FD: fd, Interests: entry.events.Decode()}
	for i := len(x.fdHooks) - 1; i >= 0; i-- {
		x.fdHooks[i].DeregisterFD(w)
	}

	x.log.debug(logCategoryWatch).Uint64(`token`, uint64(token)).Int(`fd`, fd).Log(`fd deregistered`)
}

// lookupFD returns the entry for a live token, failing loudly otherwise.
func (x *relay) lookupFD(token Token, fd int) (fdEntry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lookupFDLocked(token, fd)
}

func (x *relay) lookupFDLocked(token Token, fd int) (fdEntry, error) {
	entry, ok := x.fds[token]
	if !ok {
		return fdEntry{}, errors.WithDetails(ErrUnknownWatch, `token`, uint64(token), `fd`, fd)
	}
	if entry.fd != fd {
		return fdEntry{}, errors.WithDetails(ErrWatchMismatch, `token`, uint64(token), `fd`, fd, `registeredFD`, entry.fd)
	}
	return entry, nil
}

func (x *relay) timeoutRegister(deadline time.Time, forNative uintptr) (Token, error) {
	if !x.timeoutsRelayed() {
		return 0, nil
	}

	x.mu.Lock()
	token, err := x.allocLocked()
	if err == nil {
		x.timeouts[token] = timeoutEntry{deadline: deadline, forNative: forNative}
	}
	x.mu.Unlock()
	if err != nil {
		x.log.warning(logCategoryTimeout).Err(err).Log(`timeout registration rejected`)
		return 0, err
	}

	t := TimeoutWatch{Token: token, Deadline: deadline}
	for i, h := range x.timeoutHooks {
		if err := h.RegisterTimeout(t); err != nil {
			for j := i - 1; j >= 0; j-- {
				x.timeoutHooks[j].DeregisterTimeout(t)
			}
			x.mu.Lock()
			delete(x.timeouts, token)
			x.mu.Unlock()
			x.log.warning(logCategoryTimeout).Err(err).Log(`timeout registration rejected by hook`)
			return 0, err
		}
	}

	x.log.debug(logCategoryTimeout).Uint64(`token`, uint64(token)).Log(`timeout registered`)

	return token, nil
}

func (x *relay) timeoutModify(token Token, deadline time.Time) (Token, error) {
	if !x.timeoutsRelayed() {
		return token, nil
	}

	x.mu.Lock()
	entry, ok := x.timeouts[token]
	prev := entry.deadline
	if ok {
		entry.deadline = deadline
		x.timeouts[token] = entry
	}
	x.mu.Unlock()
	if !ok {
		err := errors.WithDetails(ErrUnknownWatch, `token`, uint64(token))
		x.log.warning(logCategoryTimeout).Err(err).Log(`timeout modify for unknown watch`)
		return 0, err
	}

	t := TimeoutWatch{Token: token, Deadline: deadline}
	for i, h := range x.timeoutHooks {
		if err := h.ModifyTimeout(t); err != nil {
			restore := TimeoutWatch{Token: token, Deadline: prev}
			for j := i - 1; j >= 0; j-- {
				_ = x.timeoutHooks[j].ModifyTimeout(restore)
			}
			x.mu.Lock()
			if e, ok := x.timeouts[token]; ok {
				e.deadline = prev
				x.timeouts[token] = e
			}
			x.mu.Unlock()
			x.log.warning(logCategoryTimeout).Err(err).Log(`timeout modify rejected by hook`)
			return 0, err
		}
	}

	return token, nil
}

func (x *relay) timeoutDeregister(token Token) {
	if !x.timeoutsRelayed() {
		return
	}

	x.mu.Lock()
	entry, ok := x.timeouts[token]
	if ok {
		delete(x.timeouts, token)
	}
	x.mu.Unlock()
	if !ok {
		// the native library may deregister after occurrence, or race
		// with it, so this is not misuse
		x.log.debug(logCategoryTimeout).Uint64(`token`, uint64(token)).Log(`timeout deregister for unknown watch`)
		return
	}

	t := TimeoutWatch{Token: token, Deadline: entry.deadline}
	for i := len(x.timeoutHooks) - 1; i >= 0; i-- {
		x.timeoutHooks[i].DeregisterTimeout(t)
	}
}

// takeTimeout removes a timeout that is about to be reported.
func (x *relay) takeTimeout(token Token) (timeoutEntry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	entry, ok := x.timeouts[token]
	if !ok {
		return timeoutEntry{}, errors.WithDetails(ErrUnknownWatch, `token`, uint64(token))
	}
	delete(x.timeouts, token)
	return entry, nil
}

// watchCount returns the number of live fd and timeout watches.
func (x *relay) watchCount() (fds, timeouts int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.fds), len(x.timeouts)
}
