// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !xenlight || !cgo

package xlevent

import (
	"gitlab.com/tozd/go/errors"
)

// OpenXenlight requires cgo and the "xenlight" build tag, and otherwise
// fails with [ErrNotSupported].
func OpenXenlight(NativeHooks) (Native, error) {
	return nil, errors.WithDetails(ErrNotSupported, `native`, `xenlight`)
}
