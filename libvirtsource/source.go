// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package libvirtsource implements an [xlevent.Native] backed by libvirt
// domain lifecycle events, for hosts managed through libvirtd rather than
// libxl directly.
//
// libvirt performs its own I/O, so no descriptors or timeouts are ever
// registered. Events arrive on a goroutine owned by the libvirt client, and
// are queued by the Loop for dispatch at its next safe point.
package libvirtsource

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/joeycumines/go-xlevent"
	"gitlab.com/tozd/go/errors"
)

// DefaultSocket is the system libvirtd socket.
const DefaultSocket = `/var/run/libvirt/libvirt-sock`

// Config configures the libvirt connection.
type Config struct {
	// Socket defaults to DefaultSocket.
	Socket string
	// DialTimeout defaults to the dialer's own default.
	DialTimeout time.Duration
}

// Source is the Native implementation, returned by the opener.
type Source struct {
	hooks  xlevent.NativeHooks
	conn   *libvirt.Libvirt
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	mu         sync.Mutex
	watches    map[xlevent.DeathHandle]deathWatch
	nextHandle xlevent.DeathHandle
	domids     map[libvirt.UUID]xlevent.Domid
}

type deathWatch struct {
	domid   xlevent.Domid
	forUser uint64
}

var (
	_ xlevent.Native        = (*Source)(nil)
	_ xlevent.DomainWatcher = (*Source)(nil)
)

// Opener returns an [xlevent.NativeOpener] that connects to libvirtd.
func Opener(cfg Config) xlevent.NativeOpener {
	return func(hooks xlevent.NativeHooks) (xlevent.Native, error) {
		return Open(hooks, cfg)
	}
}

// Open connects to libvirtd, and subscribes to lifecycle events for all
// domains.
func Open(hooks xlevent.NativeHooks, cfg Config) (*Source, error) {
	socket := cfg.Socket
	if socket == `` {
		socket = DefaultSocket
	}
	opts := []dialers.LocalOption{dialers.WithSocket(socket)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, dialers.WithLocalTimeout(cfg.DialTimeout))
	}

	conn := libvirt.NewWithDialer(dialers.NewLocal(opts...))
	if err := conn.Connect(); err != nil {
		return nil, errors.Errorf(`libvirtsource: connect %s: %w`, socket, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := conn.LifecycleEvents(ctx)
	if err != nil {
		cancel()
		_ = conn.Disconnect()
		return nil, errors.Errorf(`libvirtsource: lifecycle events: %w`, err)
	}

	x := newSource(hooks)
	x.conn = conn
	x.cancel = cancel
	go x.pump(ctx, events)

	return x, nil
}

func newSource(hooks xlevent.NativeHooks) *Source {
	return &Source{
		hooks:      hooks,
		done:       make(chan struct{}),
		watches:    make(map[xlevent.DeathHandle]deathWatch),
		nextHandle: 1,
		domids:     make(map[libvirt.UUID]xlevent.Domid),
	}
}

// OccurredFD is never called, since no descriptors are registered.
func (x *Source) OccurredFD(uintptr, int, xlevent.Mask, xlevent.Mask) {}

// OccurredTimeout is never called, since no timeouts are registered.
func (x *Source) OccurredTimeout(uintptr) {}

// EnableDomainDeath tags subsequent events for domid with forUser. Events
// for all domains are delivered regardless.
func (x *Source) EnableDomainDeath(domid xlevent.Domid, forUser uint64) (xlevent.DeathHandle, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	h := x.nextHandle
	x.nextHandle++
	x.watches[h] = deathWatch{domid: domid, forUser: forUser}
	return h, nil
}

func (x *Source) DisableDomainDeath(h xlevent.DeathHandle) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.watches, h)
}

// Close stops the event subscription, and disconnects.
func (x *Source) Close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	x.mu.Unlock()

	if x.cancel != nil {
		x.cancel()
	}
	var err error
	if x.conn != nil {
		err = x.conn.Disconnect()
	}
	<-x.done
	return err
}

// pump forwards events until events is closed. Closure before ctx is
// cancelled means the connection was lost, which is a disaster.
func (x *Source) pump(ctx context.Context, events <-chan libvirt.DomainEventLifecycleMsg) {
	defer close(x.done)
	for msg := range events {
		ev, ok := x.convert(msg)
		if !ok {
			continue
		}
		x.hooks.EventOccurs(&ev)
	}
	if ctx.Err() == nil {
		x.hooks.Disaster(xlevent.Disaster{
			Message: `libvirt lifecycle event stream closed`,
			Errno:   syscall.ECONNRESET,
		})
	}
}

func (x *Source) convert(msg libvirt.DomainEventLifecycleMsg) (xlevent.Event, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	// inactive domains report an ID of -1, so the domid is only known if
	// the domain was seen while active
	var domid xlevent.Domid
	if msg.Dom.ID >= 0 {
		domid = xlevent.Domid(msg.Dom.ID)
		x.domids[msg.Dom.UUID] = domid
	} else if v, ok := x.domids[msg.Dom.UUID]; ok {
		domid = v
	} else {
		return xlevent.Event{}, false
	}

	ev, ok := lifecycleEvent(msg, domid)
	if !ok {
		return ev, false
	}
	if ev.Type == xlevent.EventTypeDomainDeath {
		delete(x.domids, msg.Dom.UUID)
	}

	for _, w := range x.watches {
		if w.domid == ev.Domid {
			ev.ForUser = w.forUser
			break
		}
	}

	return ev, true
}
