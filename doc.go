// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package xlevent bridges the event-notification model of libxl (the Xen
// toolstack library) into Go.
//
// libxl drives its asynchronous machinery through application-provided
// hooks: it asks the application to watch file descriptors and timeouts, and
// expects to be told when they fire. It also reports domain events and fatal
// "disasters" through callbacks, which may arrive on arbitrary threads.
//
// This package provides:
//
//   - An interest codec, between POLL* bitmasks and [Interest] symbols.
//   - A readiness multiplexer ([Wait], [Multiplexer]), which blocks in poll(2)
//     with the caller's execution lock released, see [Yield].
//   - A registration relay, the [NativeHooks] implementation handed to the
//     native binding, backed by a side table of [Token] handles that are
//     never reused.
//   - A delivery relay, which queues [Event] and [Disaster] notifications and
//     dispatches them at safe points, in order, at most once.
//
// [Loop] ties these together. A typical program:
//
//	loop, err := xlevent.New(xlevent.OpenXenlight,
//		xlevent.WithEventHandler(func(ev *xlevent.Event) { ... }),
//	)
//	if err != nil {
//		return err
//	}
//	defer loop.Close()
//	return loop.Run(ctx)
//
// The real libxl binding requires cgo and the "xenlight" build tag.
// Without it, [OpenXenlight] returns [ErrNotSupported].
//
// # Execution lock
//
// Every call into the native library happens with the Loop's execution lock
// held. The lock is released only while blocked in poll(2). Event handlers
// run with the lock held, on the goroutine that reached the safe point, and
// may re-enter the Loop via [Loop.Do].
//
// # Timeouts
//
// By default, timeout registrations are accepted and ignored, leaving libxl
// to its own internal clock. [WithTimeouts] enables real timeout delivery.
//
// # Disasters
//
// A [Disaster] poisons the Loop. Subsequent native calls fail with the
// disaster as the error, and [Loop.Run] returns it.
package xlevent
