// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package xlevent

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// wakeFd is the wakeup descriptor pair of a [Multiplexer]. Signals coalesce
// until the next drain.
type wakeFd struct {
	r, w    int
	pending atomic.Uint32
	buf     [8]byte
}

func newWakeFd() (*wakeFd, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &wakeFd{r: r, w: w}, nil
}

func (x *wakeFd) signal() error {
	if !x.pending.CompareAndSwap(0, 1) {
		return nil
	}
	// native endianness, eventfd requires exactly 8 bytes
	var one uint64 = 1
	_, err := unix.Write(x.w, (*[8]byte)(unsafe.Pointer(&one))[:])
	if err == unix.EAGAIN {
		// counter or pipe already full, a wakeup is guaranteed
		return nil
	}
	if err != nil {
		// nothing was written, so the next signal must retry
		x.pending.Store(0)
	}
	return err
}

// drain must only be called from the goroutine that polls x.r.
func (x *wakeFd) drain() {
	for {
		if _, err := unix.Read(x.r, x.buf[:]); err != nil {
			break
		}
	}
	x.pending.Store(0)
}

func (x *wakeFd) close() error {
	err := unix.Close(x.r)
	if x.w != x.r {
		if e := unix.Close(x.w); err == nil {
			err = e
		}
	}
	return err
}
