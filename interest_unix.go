// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package xlevent

import (
	"golang.org/x/sys/unix"
)

var interestBits = [interestCount]Mask{
	InterestReadable: unix.POLLIN,
	InterestPriority: unix.POLLPRI,
	InterestWritable: unix.POLLOUT,
	InterestError:    unix.POLLERR,
	InterestHangup:   unix.POLLHUP,
	InterestInvalid:  unix.POLLNVAL,
}
