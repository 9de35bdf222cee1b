package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-xlevent"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deathNative reports each watched domain as dead, immediately.
type deathNative struct {
	hooks xlevent.NativeHooks
}

func (x *deathNative) OccurredFD(uintptr, int, xlevent.Mask, xlevent.Mask) {}

func (x *deathNative) OccurredTimeout(uintptr) {}

func (x *deathNative) Close() error { return nil }

func (x *deathNative) EnableDomainDeath(domid xlevent.Domid, forUser uint64) (xlevent.DeathHandle, error) {
	x.hooks.EventOccurs(&xlevent.Event{Domid: domid, ForUser: forUser, Type: xlevent.EventTypeDomainDeath})
	return xlevent.DeathHandle(domid), nil
}

func (x *deathNative) DisableDomainDeath(xlevent.DeathHandle) {}

func TestRunMonitor(t *testing.T) {
	cfg := defaultConfig()
	cfg.Domains = []uint32{3, 4}

	var stderr bytes.Buffer
	logger := newLogger(&stderr, logiface.LevelInformational)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	var out bytes.Buffer
	err := runMonitor(ctx, cfg, func(hooks xlevent.NativeHooks) (xlevent.Native, error) {
		return &deathNative{hooks: hooks}, nil
	}, logger, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"domain_death"`)
	assert.Contains(t, lines[0], `"domid":3`)
	assert.Contains(t, lines[0], `"for_user":3`)
	assert.Contains(t, lines[1], `"domid":4`)

	assert.Contains(t, stderr.String(), `monitoring`)
}

func TestRunMonitor_disaster(t *testing.T) {
	cfg := defaultConfig()

	var out bytes.Buffer
	err := runMonitor(context.Background(), cfg, func(hooks xlevent.NativeHooks) (xlevent.Native, error) {
		go hooks.Disaster(xlevent.Disaster{Message: `gone`})
		return &deathNative{hooks: hooks}, nil
	}, nil, &out)
	require.ErrorIs(t, err, xlevent.ErrDisaster)
	assert.Contains(t, out.String(), `"disaster":"gone"`)
}
