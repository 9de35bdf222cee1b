// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package xlevent

// The values used by Linux and Darwin, so masks remain meaningful in tests.
var interestBits = [interestCount]Mask{
	InterestReadable: 0x1,
	InterestPriority: 0x2,
	InterestWritable: 0x4,
	InterestError:    0x8,
	InterestHangup:   0x10,
	InterestInvalid:  0x20,
}
