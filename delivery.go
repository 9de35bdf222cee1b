// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// delivery queues native events and disasters, which may arrive on any
// thread, for dispatch at the Loop's next safe point. Items are dispatched in
// arrival order, and each at most once.
type delivery struct {
	mu    sync.Mutex
	queue *queue.Queue
	wake  func()
	log   *logger

	disaster   atomic.Pointer[Disaster]
	poisoned   chan struct{}
	poisonOnce sync.Once

	subMu sync.Mutex
	subs  map[Domid][]subscription
}

type subscription struct {
	typ EventType
	ch  chan *Event
}

func newDelivery(log *logger, wake func()) *delivery {
	return &delivery{
		queue:    queue.New(),
		wake:     wake,
		log:      log,
		poisoned: make(chan struct{}),
		subs:     make(map[Domid][]subscription),
	}
}

// eventOccurs copies ev, since the caller retains ownership.
func (x *delivery) eventOccurs(ev *Event) {
	if ev == nil {
		return
	}
	cp := *ev
	x.log.debug(logCategoryDelivery).
		Stringer(`type`, cp.Type).
		Int64(`domid`, int64(cp.Domid)).
		Log(`event queued`)
	x.push(&cp)
}

func (x *delivery) disasterOccurs(d Disaster) {
	ptr := &d
	x.disaster.CompareAndSwap(nil, ptr)
	x.poisonOnce.Do(func() { close(x.poisoned) })
	x.log.crit(logCategoryDisaster).
		Stringer(`type`, d.Type).
		Str(`message`, d.Message).
		Int(`errno`, int(d.Errno)).
		Log(`native disaster`)
	x.push(ptr)
}

func (x *delivery) push(v any) {
	x.mu.Lock()
	x.queue.Add(v)
	x.mu.Unlock()
	x.wake()
}

// pop removes the oldest item, which is either an *Event or a *Disaster.
func (x *delivery) pop() (any, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.queue.Length() == 0 {
		return nil, false
	}
	return x.queue.Remove(), true
}

func (x *delivery) pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.queue.Length()
}

// poison returns the first disaster, or nil.
func (x *delivery) poison() *Disaster {
	return x.disaster.Load()
}

// subscribe registers for dispatched events of domid and typ. The channel
// buffers one event, later events are dropped until it is read.
func (x *delivery) subscribe(domid Domid, typ EventType) (<-chan *Event, func()) {
	ch := make(chan *Event, 1)
	x.subMu.Lock()
	x.subs[domid] = append(x.subs[domid], subscription{typ: typ, ch: ch})
	x.subMu.Unlock()
	return ch, func() {
		x.subMu.Lock()
		defer x.subMu.Unlock()
		subs := x.subs[domid]
		for i, v := range subs {
			if v.ch == ch {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(x.subs, domid)
		} else {
			x.subs[domid] = subs
		}
	}
}

func (x *delivery) notify(ev *Event) {
	x.subMu.Lock()
	defer x.subMu.Unlock()
	for _, sub := range x.subs[ev.Domid] {
		if sub.typ != ev.Type {
			continue
		}
		cp := *ev
		select {
		case sub.ch <- &cp:
		default:
		}
	}
}
