// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package batch receives values from a channel in bounded batches, so that
// output can be flushed once per batch rather than once per value.
package batch

import (
	"context"
	"io"
	"time"
)

// Config bounds a batch. The zero value uses the documented defaults.
type Config struct {
	// MaxSize is the maximum number of values per batch, defaulting to 64.
	// Negative means unbounded.
	MaxSize int

	// MinSize is the number of values to wait for, defaulting to 1. Once
	// FlushInterval elapses after the first value, a smaller batch is
	// accepted.
	MinSize int

	// FlushInterval defaults to 100ms.
	FlushInterval time.Duration
}

// Receive blocks until at least one value has been received and passed to
// handler, then continues to receive until the batch is full, or no more
// values are immediately available after MinSize (or FlushInterval) is
// reached.
//
// Returns io.EOF if ch is closed, after handling any values received, the
// first error from handler, or the ctx error.
func Receive[T any](ctx context.Context, cfg *Config, ch <-chan T, handler func(value T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	maxSize, minSize, interval := 64, 1, 100*time.Millisecond
	if cfg != nil {
		if cfg.MaxSize != 0 {
			maxSize = cfg.MaxSize
		}
		if cfg.MinSize > 0 {
			minSize = cfg.MinSize
		}
		if cfg.FlushInterval > 0 {
			interval = cfg.FlushInterval
		}
	}
	if maxSize > 0 && minSize > maxSize {
		minSize = maxSize
	}

	full := func(n int) bool { return maxSize > 0 && n >= maxSize }

	var (
		n     int
		flush <-chan time.Time
	)

	// blocking phase, until the minimum, or the flush interval
	for n < minSize && !full(n) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flush:
			minSize = n
		case value, ok := <-ch:
			if !ok {
				return io.EOF
			}
			if n == 0 {
				timer := time.NewTimer(interval)
				defer timer.Stop()
				flush = timer.C
			}
			n++
			if err := handler(value); err != nil {
				return err
			}
		}
	}

	// non-blocking phase, take whatever is already available
	for !full(n) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case value, ok := <-ch:
			if !ok {
				return io.EOF
			}
			n++
			if err := handler(value); err != nil {
				return err
			}
		default:
			return ctx.Err()
		}
	}

	return ctx.Err()
}
