// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Interest is a single readiness condition, as understood by poll(2).
type Interest uint8

const (
	InterestReadable Interest = iota
	InterestPriority
	InterestWritable
	InterestError
	InterestHangup
	InterestInvalid

	interestCount
)

// Mask is a native POLL* bitmask, as exchanged with libxl.
type Mask int16

var interestNames = [interestCount]string{
	InterestReadable: `readable`,
	InterestPriority: `priority`,
	InterestWritable: `writable`,
	InterestError:    `error`,
	InterestHangup:   `hangup`,
	InterestInvalid:  `invalid`,
}

// AllInterests returns every defined Interest, in ascending order.
func AllInterests() []Interest {
	all := make([]Interest, interestCount)
	for i := range all {
		all[i] = Interest(i)
	}
	return all
}

func (x Interest) String() string {
	if x < interestCount {
		return interestNames[x]
	}
	return `unknown`
}

// ParseInterest is the inverse of [Interest.String].
func ParseInterest(s string) (Interest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range interestNames {
		if name == s {
			return Interest(i), nil
		}
	}
	return 0, errors.WithDetails(ErrUnknownInterest, `interest`, s)
}

// Bit returns the native bit for x, or 0 if x is not defined.
func (x Interest) Bit() Mask {
	if x < interestCount {
		return interestBits[x]
	}
	return 0
}

// Encode converts a set of interests to a native bitmask. Duplicates collapse,
// and undefined values are ignored.
func Encode(interests ...Interest) Mask {
	var m Mask
	for _, v := range interests {
		m |= v.Bit()
	}
	return m
}

// Decode converts a native bitmask to interests, in ascending order. Bits
// that do not correspond to a defined Interest are dropped.
func (x Mask) Decode() []Interest {
	var out []Interest
	for i, bit := range interestBits {
		if x&bit != 0 {
			out = append(out, Interest(i))
		}
	}
	return out
}

// Has reports whether every bit of interest i is set.
func (x Mask) Has(i Interest) bool {
	bit := i.Bit()
	return bit != 0 && x&bit == bit
}

func (x Mask) String() string {
	interests := x.Decode()
	if len(interests) == 0 {
		return `none`
	}
	var b strings.Builder
	for i, v := range interests {
		if i != 0 {
			b.WriteByte('|')
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// FormatInterests renders interests as a comma separated list.
func FormatInterests(interests []Interest) string {
	names := make([]string, len(interests))
	for i, v := range interests {
		names[i] = v.String()
	}
	return strings.Join(names, `,`)
}

// ParseInterests parses a comma separated list of interest names.
func ParseInterests(s string) ([]Interest, error) {
	var out []Interest
	for _, part := range strings.Split(s, `,`) {
		if strings.TrimSpace(part) == `` {
			continue
		}
		v, err := ParseInterest(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
