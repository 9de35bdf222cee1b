// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package libvirtsource

import (
	"github.com/digitalocean/go-libvirt"
	"github.com/joeycumines/go-xlevent"
)

// ConvertLifecycle maps a libvirt lifecycle event onto the libxl event
// model. Events without an equivalent report false, as do events for
// inactive domains, which carry no domid.
func ConvertLifecycle(msg libvirt.DomainEventLifecycleMsg) (xlevent.Event, bool) {
	if msg.Dom.ID < 0 {
		return xlevent.Event{}, false
	}
	return lifecycleEvent(msg, xlevent.Domid(msg.Dom.ID))
}

func lifecycleEvent(msg libvirt.DomainEventLifecycleMsg, domid xlevent.Domid) (xlevent.Event, bool) {
	ev := xlevent.Event{Domid: domid, DomUUID: xlevent.UUID(msg.Dom.UUID)}

	switch libvirt.DomainEventType(msg.Event) {
	case libvirt.DomainEventStopped:
		ev.Type = xlevent.EventTypeDomainDeath
	case libvirt.DomainEventShutdown:
		ev.Type = xlevent.EventTypeDomainShutdown
		ev.ShutdownReason = xlevent.ShutdownReasonPoweroff
	case libvirt.DomainEventCrashed:
		ev.Type = xlevent.EventTypeDomainShutdown
		ev.ShutdownReason = xlevent.ShutdownReasonCrash
	default:
		return ev, false
	}

	return ev, true
}
