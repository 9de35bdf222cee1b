// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package xlevent

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"gitlab.com/tozd/go/errors"
)

// Log categories, set as the "category" field.
const (
	logCategoryWatch    = `watch`
	logCategoryTimeout  = `timeout`
	logCategoryPoll     = `poll`
	logCategoryDelivery = `delivery`
	logCategoryDisaster = `disaster`
)

// defaultWarnRates bounds protocol misuse warnings, per category.
var defaultWarnRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

type logger struct {
	l       *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func newLogger(l *logiface.Logger[logiface.Event], rates map[time.Duration]int) (*logger, error) {
	x := &logger{l: l}
	if len(rates) != 0 {
		limiter, err := newRateLimiter(rates)
		if err != nil {
			return nil, err
		}
		x.limiter = limiter
	}
	return x, nil
}

// newRateLimiter converts the panic catrate raises for inconsistent rates
// into an error.
func newRateLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf(`xlevent: invalid warn rates: %v`, r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

func (x *logger) debug(category string) *logiface.Builder[logiface.Event] {
	return x.l.Debug().Str(`category`, category)
}

// warning is rate limited by category, returning nil if suppressed.
func (x *logger) warning(category string) *logiface.Builder[logiface.Event] {
	if _, ok := x.limiter.Allow(category); !ok {
		return nil
	}
	return x.l.Warning().Str(`category`, category)
}

func (x *logger) err(category string) *logiface.Builder[logiface.Event] {
	return x.l.Err().Str(`category`, category)
}

func (x *logger) crit(category string) *logiface.Builder[logiface.Event] {
	return x.l.Crit().Str(`category`, category)
}
