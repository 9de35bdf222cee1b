// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

// FDInterest is a descriptor paired with the conditions to wait for.
type FDInterest struct {
	FD        int
	Interests []Interest
}

// FDReady is a descriptor paired with the conditions that were observed.
type FDReady struct {
	FD       int
	Observed []Interest
}

// Wait blocks until at least one of fds has activity, then returns each
// descriptor with activity, in input order. Callers must treat the result as
// a set.
//
// There is no timeout. An empty (or nil) fds blocks forever, the same as
// poll(2) with no descriptors and an infinite timeout. Use a [Multiplexer]
// for a wait that may be interrupted.
//
// A failure of the underlying system call is returned as a [*PollError], and
// is not retried. EINTR is not treated as a failure.
func Wait(fds []FDInterest) ([]FDReady, error) {
	return waitIndefinite(fds)
}

func collectReady(fds []FDInterest, observed []Mask) []FDReady {
	var ready []FDReady
	for i, m := range observed {
		if v := m.Decode(); len(v) != 0 {
			ready = append(ready, FDReady{FD: fds[i].FD, Observed: v})
		}
	}
	return ready
}
