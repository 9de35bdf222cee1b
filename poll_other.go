// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package xlevent

import (
	"context"
	"sync"
)

// Multiplexer is unavailable on this platform.
type Multiplexer struct{}

// NewMultiplexer always fails with [ErrNotSupported] on this platform.
func NewMultiplexer(sync.Locker) (*Multiplexer, error) { return nil, ErrNotSupported }

func (x *Multiplexer) Wait(context.Context, []FDInterest) ([]FDReady, error) {
	return nil, ErrNotSupported
}

func (x *Multiplexer) Wake() error { return ErrNotSupported }

func (x *Multiplexer) Close() error { return nil }

func (x *Multiplexer) poll(context.Context, []FDInterest) ([]Mask, error) {
	return nil, ErrNotSupported
}

func waitIndefinite([]FDInterest) ([]FDReady, error) { return nil, ErrNotSupported }
