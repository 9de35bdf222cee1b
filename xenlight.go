// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build xenlight && cgo

package xlevent

/*
#cgo LDFLAGS: -lxenlight -lxentoollog
#include "xenlight_hooks.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"gitlab.com/tozd/go/errors"
)

// xenlight is a libxl context, the Native implementation used in production.
type xenlight struct {
	hooks  NativeHooks
	handle cgo.Handle
	ctx    *C.libxl_ctx
	logger *C.xentoollog_logger

	mu        sync.Mutex
	deaths    map[DeathHandle]*C.libxl_evgen_domain_death
	nextDeath DeathHandle
}

var (
	_ Native        = (*xenlight)(nil)
	_ DomainWatcher = (*xenlight)(nil)
)

// OpenXenlight allocates a libxl context, with every osevent and event
// callback routed to hooks.
func OpenXenlight(hooks NativeHooks) (Native, error) {
	x := &xenlight{
		hooks:     hooks,
		deaths:    make(map[DeathHandle]*C.libxl_evgen_domain_death),
		nextDeath: 1,
	}

	x.logger = C.xlevent_logger_create()
	if x.logger == nil {
		return nil, errors.WithDetails(ErrResourceExhausted, `op`, `xtl_createlogger_stdiostream`)
	}

	if rc := C.libxl_ctx_alloc(&x.ctx, C.LIBXL_VERSION, 0, x.logger); rc != 0 {
		C.xlevent_logger_destroy(x.logger)
		return nil, errors.WithStack(&NativeError{Op: `libxl_ctx_alloc`, RC: int(rc)})
	}

	// must precede any other use of the context
	x.handle = cgo.NewHandle(x)
	C.xlevent_register_hooks(x.ctx, C.uintptr_t(x.handle))

	return x, nil
}

func (x *xenlight) OccurredFD(forNative uintptr, fd int, events, revents Mask) {
	C.xlevent_occurred_fd(x.ctx, C.uintptr_t(forNative), C.int(fd), C.short(events), C.short(revents))
}

func (x *xenlight) OccurredTimeout(forNative uintptr) {
	C.xlevent_occurred_timeout(x.ctx, C.uintptr_t(forNative))
}

func (x *xenlight) EnableDomainDeath(domid Domid, forUser uint64) (DeathHandle, error) {
	var gen *C.libxl_evgen_domain_death
	if rc := C.libxl_evenable_domain_death(x.ctx, C.uint32_t(domid), C.libxl_ev_user(forUser), &gen); rc != 0 {
		return 0, errors.WithDetails(&NativeError{Op: `libxl_evenable_domain_death`, RC: int(rc)}, `domid`, uint32(domid))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	h := x.nextDeath
	x.nextDeath++
	x.deaths[h] = gen
	return h, nil
}

func (x *xenlight) DisableDomainDeath(h DeathHandle) {
	x.mu.Lock()
	gen, ok := x.deaths[h]
	delete(x.deaths, h)
	x.mu.Unlock()
	if ok {
		C.libxl_evdisable_domain_death(x.ctx, gen)
	}
}

func (x *xenlight) Close() error {
	// frees any remaining evgens
	C.libxl_ctx_free(x.ctx)
	C.xlevent_logger_destroy(x.logger)
	x.handle.Delete()
	return nil
}

func xenlightFromUser(user C.uintptr_t) *xenlight {
	return cgo.Handle(uintptr(user)).Value().(*xenlight)
}

// nativeRC maps an error from the hooks to a libxl error code.
func nativeRC(err error) C.int {
	if errors.Is(err, ErrResourceExhausted) {
		return C.ERROR_NOMEM
	}
	return C.ERROR_OSEVENT_REG_FAIL
}

// timevalDeadline converts a libxl absolute time, where {0,0} means now.
func timevalDeadline(sec, usec C.longlong) time.Time {
	if sec == 0 && usec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond))
}

//export xleventFDRegister
func xleventFDRegister(user C.uintptr_t, fd C.int, events C.short, forLibxl C.uintptr_t, token *C.uint64_t) C.int {
	t, err := xenlightFromUser(user).hooks.FDRegister(int(fd), Mask(events), uintptr(forLibxl))
	if err != nil {
		return nativeRC(err)
	}
	*token = C.uint64_t(t)
	return 0
}

//export xleventFDModify
func xleventFDModify(user C.uintptr_t, fd C.int, events C.short, token *C.uint64_t) C.int {
	t, err := xenlightFromUser(user).hooks.FDModify(Token(*token), int(fd), Mask(events))
	if err != nil {
		return nativeRC(err)
	}
	*token = C.uint64_t(t)
	return 0
}

//export xleventFDDeregister
func xleventFDDeregister(user C.uintptr_t, fd C.int, token C.uint64_t) {
	xenlightFromUser(user).hooks.FDDeregister(Token(token), int(fd))
}

//export xleventTimeoutRegister
func xleventTimeoutRegister(user C.uintptr_t, sec, usec C.longlong, forLibxl C.uintptr_t, token *C.uint64_t) C.int {
	t, err := xenlightFromUser(user).hooks.TimeoutRegister(timevalDeadline(sec, usec), uintptr(forLibxl))
	if err != nil {
		return nativeRC(err)
	}
	*token = C.uint64_t(t)
	return 0
}

//export xleventTimeoutModify
func xleventTimeoutModify(user C.uintptr_t, sec, usec C.longlong, token *C.uint64_t) C.int {
	t, err := xenlightFromUser(user).hooks.TimeoutModify(Token(*token), timevalDeadline(sec, usec))
	if err != nil {
		return nativeRC(err)
	}
	*token = C.uint64_t(t)
	return 0
}

//export xleventTimeoutDeregister
func xleventTimeoutDeregister(user C.uintptr_t, token C.uint64_t) {
	xenlightFromUser(user).hooks.TimeoutDeregister(Token(token))
}

//export xleventEventOccurs
func xleventEventOccurs(user C.uintptr_t, event *C.libxl_event) {
	x := xenlightFromUser(user)

	ev := Event{
		Domid:   Domid(event.domid),
		ForUser: uint64(event.for_user),
		Type:    EventType(event._type),
	}
	C.xlevent_event_uuid(event, (*C.uint8_t)(unsafe.Pointer(&ev.DomUUID[0])))
	switch ev.Type {
	case EventTypeDomainShutdown:
		ev.ShutdownReason = ShutdownReason(C.xlevent_event_shutdown_reason(event))
	case EventTypeDiskEject:
		if vdev := C.xlevent_event_disk_eject_vdev(event); vdev != nil {
			ev.DiskEjectVdev = C.GoString(vdev)
		}
	case EventTypeOperationComplete:
		ev.OperationRC = int(C.xlevent_event_operation_rc(event))
	}

	// ownership passes to the application, and nothing is retained
	C.libxl_event_free(x.ctx, event)

	x.hooks.EventOccurs(&ev)
}

//export xleventDisaster
func xleventDisaster(user C.uintptr_t, typ C.int, msg *C.char, errnoval C.int) {
	d := Disaster{
		Type:  EventType(typ),
		Errno: syscall.Errno(errnoval),
	}
	if msg != nil {
		d.Message = C.GoString(msg)
	}
	xenlightFromUser(user).hooks.Disaster(d)
}
