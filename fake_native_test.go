package xlevent

import (
	"sync"
	"sync/atomic"
	"testing"
)

// fakeNative simulates the native event engine. Its callbacks run under the
// Loop's execution lock, and may call back into hooks, as libxl does.
type fakeNative struct {
	hooks NativeHooks

	mu           sync.Mutex
	fdCalls      []fdCall
	timeoutCalls []uintptr
	deaths       map[DeathHandle]Domid
	nextDeath    DeathHandle
	disabled     []DeathHandle

	onOpen    func(f *fakeNative)
	onFD      func(f *fakeNative, call fdCall)
	onTimeout func(f *fakeNative, forNative uintptr)
	onDeath   func(f *fakeNative, domid Domid, forUser uint64)

	closed atomic.Int32
}

type fdCall struct {
	forNative uintptr
	fd        int
	events    Mask
	revents   Mask
}

var (
	_ Native        = (*fakeNative)(nil)
	_ DomainWatcher = (*fakeNative)(nil)
)

func (f *fakeNative) opener() NativeOpener {
	return func(hooks NativeHooks) (Native, error) {
		f.hooks = hooks
		if f.onOpen != nil {
			f.onOpen(f)
		}
		return f, nil
	}
}

func (f *fakeNative) OccurredFD(forNative uintptr, fd int, events, revents Mask) {
	call := fdCall{forNative: forNative, fd: fd, events: events, revents: revents}
	f.mu.Lock()
	f.fdCalls = append(f.fdCalls, call)
	f.mu.Unlock()
	if f.onFD != nil {
		f.onFD(f, call)
	}
}

func (f *fakeNative) OccurredTimeout(forNative uintptr) {
	f.mu.Lock()
	f.timeoutCalls = append(f.timeoutCalls, forNative)
	f.mu.Unlock()
	if f.onTimeout != nil {
		f.onTimeout(f, forNative)
	}
}

func (f *fakeNative) EnableDomainDeath(domid Domid, forUser uint64) (DeathHandle, error) {
	f.mu.Lock()
	if f.deaths == nil {
		f.deaths = make(map[DeathHandle]Domid)
	}
	f.nextDeath++
	h := f.nextDeath
	f.deaths[h] = domid
	f.mu.Unlock()
	if f.onDeath != nil {
		f.onDeath(f, domid, forUser)
	}
	return h, nil
}

func (f *fakeNative) DisableDomainDeath(h DeathHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deaths, h)
	f.disabled = append(f.disabled, h)
}

func (f *fakeNative) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeNative) getFDCalls() []fdCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fdCall(nil), f.fdCalls...)
}

func (f *fakeNative) getTimeoutCalls() []uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uintptr(nil), f.timeoutCalls...)
}

func newTestLoop(t *testing.T, f *fakeNative, opts ...LoopOption) *Loop {
	t.Helper()
	l, err := New(f.opener(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}
