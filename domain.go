// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"context"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// DeathWatch is an enabled domain death watch, see [Loop.WatchDomainDeath].
type DeathWatch struct {
	loop   *Loop
	domid  Domid
	handle DeathHandle
	once   sync.Once
	err    error
}

// WatchDomainDeath asks the native library to deliver an
// [EventTypeDomainDeath] event, tagged with forUser, when domid dies.
// The native context must implement [DomainWatcher].
func (l *Loop) WatchDomainDeath(domid Domid, forUser uint64) (*DeathWatch, error) {
	w := &DeathWatch{loop: l, domid: domid}
	err := l.Do(func(native Native) error {
		watcher, ok := native.(DomainWatcher)
		if !ok {
			return errors.WithDetails(ErrNotSupported, `op`, `EnableDomainDeath`)
		}
		h, err := watcher.EnableDomainDeath(domid, forUser)
		if err != nil {
			return err
		}
		w.handle = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.debug(logCategoryDelivery).Int64(`domid`, int64(domid)).Log(`domain death watch enabled`)
	return w, nil
}

// Domid returns the watched domain.
func (x *DeathWatch) Domid() Domid { return x.domid }

// Close disables the watch. Once the Loop is closed or poisoned, the native
// context no longer accepts calls, and the error is returned.
func (x *DeathWatch) Close() error {
	x.once.Do(func() {
		x.err = x.loop.Do(func(native Native) error {
			native.(DomainWatcher).DisableDomainDeath(x.handle)
			return nil
		})
	})
	return x.err
}

// WaitDomainDeath watches domid for death, then blocks until it dies, ctx
// is done, the Loop is closed, or the Loop suffers a disaster. Events are
// only dispatched while something drives the Loop, typically [Loop.Run].
func (l *Loop) WaitDomainDeath(ctx context.Context, domid Domid) (*Event, error) {
	events, unsubscribe := l.delivery.subscribe(domid, EventTypeDomainDeath)
	defer unsubscribe()

	w, err := l.WatchDomainDeath(domid, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = w.Close() }()

	select {
	case ev := <-events:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.delivery.poisoned:
		return nil, l.delivery.poison()
	case <-l.done:
		return nil, ErrLoopClosed
	}
}
