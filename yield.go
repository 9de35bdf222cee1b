// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"sync"
)

// Yield releases l for the duration of fn, then reacquires it before
// returning, including when fn panics. The caller must hold l. A nil l runs
// fn without any locking.
func Yield(l sync.Locker, fn func() error) error {
	if l == nil {
		return fn()
	}
	l.Unlock()
	defer l.Lock()
	return fn()
}
