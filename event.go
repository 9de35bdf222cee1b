// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"encoding/hex"
	"strconv"
	"syscall"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

type (
	// Domid is a Xen domain ID.
	Domid uint32

	// UUID is a domain UUID.
	UUID [16]byte

	// EventType enumerates libxl_event_type.
	EventType int

	// ShutdownReason enumerates libxl_shutdown_reason.
	ShutdownReason int

	// Event is a copy of a native event record. It is owned by the receiver.
	Event struct {
		Domid   Domid
		DomUUID UUID
		// ForUser is the value supplied when the event was enabled.
		ForUser uint64
		Type    EventType

		// ShutdownReason is set for EventTypeDomainShutdown.
		ShutdownReason ShutdownReason
		// DiskEjectVdev is set for EventTypeDiskEject.
		DiskEjectVdev string
		// OperationRC is set for EventTypeOperationComplete.
		OperationRC int
	}

	// Disaster is an unrecoverable failure reported by the native library.
	// The native context must not be used after a Disaster.
	Disaster struct {
		Type    EventType
		Message string
		Errno   syscall.Errno
	}
)

const (
	EventTypeDomainShutdown EventType = iota + 1
	EventTypeDomainDeath
	EventTypeDiskEject
	EventTypeOperationComplete
	EventTypeDomainCreateConsoleAvailable
)

const (
	ShutdownReasonUnknown ShutdownReason = iota - 1
	ShutdownReasonPoweroff
	ShutdownReasonReboot
	ShutdownReasonSuspend
	ShutdownReasonCrash
	ShutdownReasonWatchdog
	ShutdownReasonSoftReset
)

func (x EventType) String() string {
	switch x {
	case EventTypeDomainShutdown:
		return `domain_shutdown`
	case EventTypeDomainDeath:
		return `domain_death`
	case EventTypeDiskEject:
		return `disk_eject`
	case EventTypeOperationComplete:
		return `operation_complete`
	case EventTypeDomainCreateConsoleAvailable:
		return `domain_create_console_available`
	default:
		return `event_type_` + strconv.Itoa(int(x))
	}
}

func (x ShutdownReason) String() string {
	switch x {
	case ShutdownReasonUnknown:
		return `unknown`
	case ShutdownReasonPoweroff:
		return `poweroff`
	case ShutdownReasonReboot:
		return `reboot`
	case ShutdownReasonSuspend:
		return `suspend`
	case ShutdownReasonCrash:
		return `crash`
	case ShutdownReasonWatchdog:
		return `watchdog`
	case ShutdownReasonSoftReset:
		return `soft_reset`
	default:
		return `shutdown_reason_` + strconv.Itoa(int(x))
	}
}

// String formats x in the canonical 8-4-4-4-12 form.
func (x UUID) String() string {
	var b [36]byte
	hex.Encode(b[0:8], x[0:4])
	b[8] = '-'
	hex.Encode(b[9:13], x[4:6])
	b[13] = '-'
	hex.Encode(b[14:18], x[6:8])
	b[18] = '-'
	hex.Encode(b[19:23], x[8:10])
	b[23] = '-'
	hex.Encode(b[24:], x[10:])
	return string(b[:])
}

// AppendJSON appends x as a single JSON object.
func (x *Event) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"type":`...)
	dst = jsonenc.AppendString(dst, x.Type.String())
	dst = append(dst, `,"domid":`...)
	dst = strconv.AppendUint(dst, uint64(x.Domid), 10)
	dst = append(dst, `,"uuid":`...)
	dst = jsonenc.AppendString(dst, x.DomUUID.String())
	if x.ForUser != 0 {
		dst = append(dst, `,"for_user":`...)
		dst = strconv.AppendUint(dst, x.ForUser, 10)
	}
	switch x.Type {
	case EventTypeDomainShutdown:
		dst = append(dst, `,"shutdown_reason":`...)
		dst = jsonenc.AppendString(dst, x.ShutdownReason.String())
	case EventTypeDiskEject:
		dst = append(dst, `,"vdev":`...)
		dst = jsonenc.AppendString(dst, x.DiskEjectVdev)
	case EventTypeOperationComplete:
		dst = append(dst, `,"rc":`...)
		dst = strconv.AppendInt(dst, int64(x.OperationRC), 10)
	}
	return append(dst, '}')
}

func (x *Disaster) Error() string {
	s := `xlevent: native disaster (` + x.Type.String() + `): ` + x.Message
	if x.Errno != 0 {
		s += `: ` + x.Errno.Error()
	}
	return s
}

func (x *Disaster) Is(target error) bool { return target == ErrDisaster }

func (x *Disaster) Unwrap() error {
	if x.Errno == 0 {
		return nil
	}
	return x.Errno
}

// AppendJSON appends x as a single JSON object.
func (x *Disaster) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"disaster":`...)
	dst = jsonenc.AppendString(dst, x.Message)
	dst = append(dst, `,"type":`...)
	dst = jsonenc.AppendString(dst, x.Type.String())
	dst = append(dst, `,"errno":`...)
	dst = strconv.AppendInt(dst, int64(x.Errno), 10)
	return append(dst, '}')
}
