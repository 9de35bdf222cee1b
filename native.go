// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"time"
)

type (
	// Native is the outbound half of the boundary with the native library.
	// Methods are only called with the Loop's execution lock held.
	Native interface {
		// OccurredFD reports activity on a descriptor registered via
		// [NativeHooks.FDRegister], see libxl_osevent_occurred_fd.
		OccurredFD(forNative uintptr, fd int, events, revents Mask)

		// OccurredTimeout reports that a registered timeout elapsed, see
		// libxl_osevent_occurred_timeout.
		OccurredTimeout(forNative uintptr)

		// Close releases the native context. No other method is called
		// after Close.
		Close() error
	}

	// DomainWatcher is implemented by Native implementations that can
	// enable per-domain death events.
	DomainWatcher interface {
		EnableDomainDeath(domid Domid, forUser uint64) (DeathHandle, error)
		DisableDomainDeath(h DeathHandle)
	}

	// DeathHandle identifies an enabled domain death watch, it is
	// interpreted only by the Native implementation.
	DeathHandle uint64

	// NativeHooks is the inbound half of the boundary. It is implemented by
	// the Loop, and handed to a [NativeOpener].
	//
	// Every method may be called from any goroutine or native thread,
	// including re-entrantly from within a call to [Native]. None of them
	// block on I/O, or on the execution lock.
	NativeHooks interface {
		// FDRegister begins watching fd, returning the token the native
		// library must use to identify the watch.
		FDRegister(fd int, events Mask, forNative uintptr) (Token, error)

		// FDModify changes the events of an existing watch. The returned
		// token replaces the existing one, though in practice it is
		// unchanged.
		FDModify(token Token, fd int, events Mask) (Token, error)

		// FDDeregister stops watching fd. The token must not be used again.
		FDDeregister(token Token, fd int)

		// TimeoutRegister requests a call to [Native.OccurredTimeout] at
		// deadline. A zero deadline means as soon as possible.
		TimeoutRegister(deadline time.Time, forNative uintptr) (Token, error)

		// TimeoutModify changes the deadline of a registered timeout.
		TimeoutModify(token Token, deadline time.Time) (Token, error)

		// TimeoutDeregister cancels a timeout that has not yet occurred.
		TimeoutDeregister(token Token)

		// EventOccurs queues a copy of ev for delivery.
		EventOccurs(ev *Event)

		// Disaster queues d for delivery, and poisons the Loop.
		Disaster(d Disaster)
	}

	// NativeOpener creates a native context, which must register hooks
	// for all of its event callbacks before returning.
	NativeOpener func(hooks NativeHooks) (Native, error)
)
