//go:build linux || darwin

package xlevent

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestWait_readable(t *testing.T) {
	r, w := testPipe(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte{1})
	}()

	ready, err := Wait([]FDInterest{{FD: fdOf(r), Interests: []Interest{InterestReadable}}})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, fdOf(r), ready[0].FD)
	assert.Contains(t, ready[0].Observed, InterestReadable)
}

func TestWait_onlyWritableOfThree(t *testing.T) {
	r1, _ := testPipe(t)
	_, w2 := testPipe(t)
	r3, _ := testPipe(t)

	ready, err := Wait([]FDInterest{
		{FD: fdOf(r1), Interests: []Interest{InterestReadable}},
		{FD: fdOf(w2), Interests: []Interest{InterestWritable}},
		{FD: fdOf(r3), Interests: []Interest{InterestReadable, InterestError}},
	})
	require.NoError(t, err)
	assert.Equal(t, []FDReady{{FD: fdOf(w2), Observed: []Interest{InterestWritable}}}, ready)
}

func TestWait_resultIsASet(t *testing.T) {
	r1, w1 := testPipe(t)
	r2, w2 := testPipe(t)
	_, _ = w1.Write([]byte{1})
	_, _ = w2.Write([]byte{1})

	ready, err := Wait([]FDInterest{
		{FD: fdOf(r1), Interests: []Interest{InterestReadable}},
		{FD: fdOf(r2), Interests: []Interest{InterestReadable}},
	})
	require.NoError(t, err)

	var fds []int
	for _, v := range ready {
		fds = append(fds, v.FD)
	}
	assert.ElementsMatch(t, []int{fdOf(r1), fdOf(r2)}, fds)
}

func TestWait_emptyBlocksIndefinitely(t *testing.T) {
	done := make(chan struct{})
	go func() {
		// never returns, the goroutine is abandoned
		_, _ = Wait(nil)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait with no descriptors returned")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWait_closedDescriptorIsInvalid(t *testing.T) {
	r, w, err := osPipeFDs()
	require.NoError(t, err)
	require.NoError(t, syscall.Close(w))
	require.NoError(t, syscall.Close(r))

	ready, err := Wait([]FDInterest{{FD: r, Interests: []Interest{InterestReadable}}})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, r, ready[0].FD)
	assert.Contains(t, ready[0].Observed, InterestInvalid)
}

func TestWait_negativeDescriptor(t *testing.T) {
	_, err := Wait([]FDInterest{{FD: -1, Interests: []Interest{InterestReadable}}})
	assert.ErrorIs(t, err, ErrInvalidFD)
}

func TestPollError(t *testing.T) {
	var err error = errors.WithStack(&PollError{Errno: syscall.EINVAL})
	assert.ErrorIs(t, err, ErrPollFailed)
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.NotErrorIs(t, err, ErrDisaster)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, syscall.EINVAL, pollErr.Errno)
	assert.Contains(t, err.Error(), "poll")
}

func TestMultiplexer_releasesLockWhileBlocked(t *testing.T) {
	var mu sync.Mutex
	mux, err := NewMultiplexer(&mu)
	require.NoError(t, err)
	defer mux.Close()

	r, _ := testPipe(t)

	type result struct {
		ready []FDReady
		err   error
	}
	results := make(chan result, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		ready, err := mux.Wait(context.Background(), []FDInterest{{FD: fdOf(r), Interests: []Interest{InterestReadable}}})
		results <- result{ready, err}
	}()

	// the wait must be blocked, with mu released
	time.Sleep(50 * time.Millisecond)
	locked := make(chan struct{})
	go func() {
		mu.Lock()
		mu.Unlock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released during wait")
	}

	require.NoError(t, mux.Wake())

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Empty(t, res.ready)
	case <-time.After(5 * time.Second):
		t.Fatal("wake did not interrupt wait")
	}

	// reacquired before returning
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestMultiplexer_wakeBeforeWait(t *testing.T) {
	mux, err := NewMultiplexer(nil)
	require.NoError(t, err)
	defer mux.Close()

	require.NoError(t, mux.Wake())
	require.NoError(t, mux.Wake())

	r, _ := testPipe(t)
	ready, err := mux.Wait(context.Background(), []FDInterest{{FD: fdOf(r), Interests: []Interest{InterestReadable}}})
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestMultiplexer_contextCancel(t *testing.T) {
	mux, err := NewMultiplexer(nil)
	require.NoError(t, err)
	defer mux.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ready, err := mux.Wait(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, ready)

	_, err = mux.Wait(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiplexer_closeInterruptsWait(t *testing.T) {
	mux, err := NewMultiplexer(nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := mux.Wait(context.Background(), nil)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrMultiplexerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not interrupt wait")
	}

	assert.ErrorIs(t, mux.Wake(), ErrMultiplexerClosed)
	_, err = mux.Wait(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMultiplexerClosed)
}

func TestMultiplexer_reportsActivity(t *testing.T) {
	mux, err := NewMultiplexer(nil)
	require.NoError(t, err)
	defer mux.Close()

	r, w := testPipe(t)
	_, _ = w.Write([]byte("x"))

	ready, err := mux.Wait(context.Background(), []FDInterest{
		{FD: fdOf(r), Interests: []Interest{InterestReadable}},
		{FD: fdOf(w), Interests: []Interest{InterestWritable}},
	})
	require.NoError(t, err)
	assert.Equal(t, []FDReady{
		{FD: fdOf(r), Observed: []Interest{InterestReadable}},
		{FD: fdOf(w), Observed: []Interest{InterestWritable}},
	}, ready)
}
