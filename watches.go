// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// watchSet is the Loop's own FDHooks, the set of descriptors polled by Run.
type watchSet struct {
	mu      sync.Mutex
	watches map[Token]Watch
	wake    func()
}

// timerSet is the Loop's own TimeoutHooks, enabled by WithTimeouts. Timers
// that fire are marked due, then reported by Run.
type timerSet struct {
	mu      sync.Mutex
	entries map[Token]*timerEntry
	due     map[Token]struct{}
	wake    func()
}

type timerEntry struct {
	timer *time.Timer
}

var (
	_ FDHooks      = (*watchSet)(nil)
	_ TimeoutHooks = (*timerSet)(nil)
)

func newWatchSet(wake func()) *watchSet {
	return &watchSet{watches: make(map[Token]Watch), wake: wake}
}

func (x *watchSet) RegisterFD(w Watch) error {
	x.put(w)
	return nil
}

func (x *watchSet) ModifyFD(w Watch) error {
	x.put(w)
	return nil
}

func (x *watchSet) DeregisterFD(w Watch) {
	x.mu.Lock()
	delete(x.watches, w.Token)
	x.mu.Unlock()
	x.wake()
}

func (x *watchSet) put(w Watch) {
	x.mu.Lock()
	x.watches[w.Token] = w
	x.mu.Unlock()
	x.wake()
}

// snapshot returns the current watches, in registration order.
func (x *watchSet) snapshot() []Watch {
	x.mu.Lock()
	watches := make([]Watch, 0, len(x.watches))
	for _, w := range x.watches {
		watches = append(watches, w)
	}
	x.mu.Unlock()
	slices.SortFunc(watches, func(a, b Watch) int { return cmp.Compare(a.Token, b.Token) })
	return watches
}

func newTimerSet(wake func()) *timerSet {
	return &timerSet{
		entries: make(map[Token]*timerEntry),
		due:     make(map[Token]struct{}),
		wake:    wake,
	}
}

func (x *timerSet) RegisterTimeout(t TimeoutWatch) error {
	x.schedule(t)
	return nil
}

func (x *timerSet) ModifyTimeout(t TimeoutWatch) error {
	x.schedule(t)
	return nil
}

func (x *timerSet) DeregisterTimeout(t TimeoutWatch) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.cancelLocked(t.Token)
}

func (x *timerSet) schedule(t TimeoutWatch) {
	x.mu.Lock()
	x.cancelLocked(t.Token)
	var d time.Duration
	if !t.Deadline.IsZero() {
		d = time.Until(t.Deadline)
	}
	if d <= 0 {
		x.due[t.Token] = struct{}{}
		x.mu.Unlock()
		x.wake()
		return
	}
	entry := new(timerEntry)
	x.entries[t.Token] = entry
	entry.timer = time.AfterFunc(d, func() { x.fire(t.Token, entry) })
	x.mu.Unlock()
}

func (x *timerSet) fire(token Token, entry *timerEntry) {
	x.mu.Lock()
	if x.entries[token] != entry {
		// modified or deregistered since
		x.mu.Unlock()
		return
	}
	delete(x.entries, token)
	x.due[token] = struct{}{}
	x.mu.Unlock()
	x.wake()
}

func (x *timerSet) cancelLocked(token Token) {
	if entry, ok := x.entries[token]; ok {
		entry.timer.Stop()
		delete(x.entries, token)
	}
	delete(x.due, token)
}

// takeDue returns and clears the due timeouts, in registration order.
func (x *timerSet) takeDue() []Token {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.due) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(x.due))
	for token := range x.due {
		tokens = append(tokens, token)
	}
	clear(x.due)
	slices.Sort(tokens)
	return tokens
}

func (x *timerSet) stop() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for token := range x.entries {
		x.cancelLocked(token)
	}
	clear(x.due)
}
