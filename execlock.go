// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// execLock is the Loop's execution lock. It tracks the owning goroutine so
// that code running under the lock (handlers, native re-entry) may call back
// into the Loop.
type execLock struct {
	mu    sync.Mutex
	owner atomic.Uint64
}

func (x *execLock) Lock() {
	x.mu.Lock()
	x.owner.Store(getGoroutineID())
}

func (x *execLock) Unlock() {
	x.owner.Store(0)
	x.mu.Unlock()
}

// held reports whether the calling goroutine holds the lock.
func (x *execLock) held() bool {
	id := x.owner.Load()
	return id != 0 && id == getGoroutineID()
}

// acquire locks unless the calling goroutine already holds the lock.
func (x *execLock) acquire() (release func(), nested bool) {
	if x.held() {
		return func() {}, true
	}
	x.Lock()
	return x.Unlock, false
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
