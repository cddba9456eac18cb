// go-mdb
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mdb.
//
// go-mdb is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mdb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mdb; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package polling drives the periodic POLL cycle for the peripherals on one
// bus and dispatches their events to callbacks.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/cashless"
	"github.com/ZaparooProject/go-mdb/coin"
	"go.uber.org/zap"
)

// Callbacks receive events in poll order. They run on the goroutine that
// called Run, so they may issue further commands on the same bus.
type Callbacks struct {
	OnCoinEvent     func(ctx context.Context, ev coin.Event) error
	OnCashlessEvent func(ctx context.Context, ev cashless.Event) error
	OnPollError     func(err error)
}

// Metrics is a snapshot of loop counters
type Metrics struct {
	PollCycles      int64         // Completed poll cycles
	PollErrors      int64         // Failed peripheral polls
	CoinEvents      int64         // Coin events dispatched
	CashlessEvents  int64         // Cashless events dispatched
	CallbackErrors  int64         // Callbacks that returned an error other than ErrStop
	LastPollLatency time.Duration // Duration of the last cycle
}

// Loop polls a coin acceptor and/or cashless reader sharing one bus
type Loop struct {
	bus       *mdb.Bus
	acceptor  *coin.Acceptor
	reader    *cashless.Device
	config    *Config
	callbacks Callbacks
	log       *zap.Logger
	now       func() time.Time
	lastEvent time.Time

	pollCycles      atomic.Int64
	pollErrors      atomic.Int64
	coinEvents      atomic.Int64
	cashlessEvents  atomic.Int64
	callbackErrors  atomic.Int64
	lastPollLatency atomic.Int64
	currentInterval atomic.Int64
}

// NewLoop creates a loop. Either acceptor or reader may be nil, not both.
func NewLoop(bus *mdb.Bus, acceptor *coin.Acceptor, reader *cashless.Device,
	config *Config, callbacks Callbacks,
) (*Loop, error) {
	if bus == nil {
		return nil, errors.New("bus must not be nil")
	}
	if acceptor == nil && reader == nil {
		return nil, ErrNoPeripherals
	}
	if config == nil {
		config = DefaultConfig()
	}
	l := &Loop{
		bus:       bus,
		acceptor:  acceptor,
		reader:    reader,
		config:    config,
		callbacks: callbacks,
		log:       bus.Logger().Named("polling"),
		now:       time.Now,
	}
	l.lastEvent = l.now()
	l.currentInterval.Store(int64(config.Interval))
	return l, nil
}

// Run polls until ctx is done, a callback returns ErrStop or too many cycles
// in a row fail. It blocks the calling goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.lastEvent = l.now()
	failures := 0

	for {
		err := l.Step(ctx)
		switch {
		case errors.Is(err, ErrStop):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			if l.config.MaxConsecutiveErrors > 0 && failures >= l.config.MaxConsecutiveErrors {
				return fmt.Errorf("%w: %w", ErrTooManyErrors, err)
			}
		default:
			failures = 0
		}

		if err := l.bus.Sleep(ctx, l.CurrentInterval()); err != nil {
			return err
		}
	}
}

// Step runs one poll cycle over every attached peripheral. It returns the
// last poll error, or ErrStop if a callback asked to stop.
func (l *Loop) Step(ctx context.Context) error {
	start := l.now()
	defer func() {
		l.pollCycles.Add(1)
		l.lastPollLatency.Store(int64(l.now().Sub(start)))
	}()

	var pollErr error
	got := 0

	if l.acceptor != nil {
		events, err := l.acceptor.Poll(ctx, l.bus)
		if err != nil {
			pollErr = l.pollFailed("coin", err)
		}
		for _, ev := range events {
			got++
			l.coinEvents.Add(1)
			if l.callbacks.OnCoinEvent == nil {
				continue
			}
			if err := l.dispatch(l.callbacks.OnCoinEvent(ctx, ev)); err != nil {
				return err
			}
		}
	}

	if l.reader != nil {
		events, err := l.reader.Poll(ctx, l.bus)
		if err != nil {
			pollErr = l.pollFailed("cashless", err)
		}
		for _, ev := range events {
			got++
			l.cashlessEvents.Add(1)
			if l.callbacks.OnCashlessEvent == nil {
				continue
			}
			if err := l.dispatch(l.callbacks.OnCashlessEvent(ctx, ev)); err != nil {
				return err
			}
		}
	}

	l.adjustInterval(got > 0)
	return pollErr
}

func (l *Loop) pollFailed(peripheral string, err error) error {
	l.pollErrors.Add(1)
	l.log.Debug("poll failed", zap.String("peripheral", peripheral), zap.Error(err))
	if l.callbacks.OnPollError != nil {
		l.callbacks.OnPollError(err)
	}
	return fmt.Errorf("%s poll: %w", peripheral, err)
}

// dispatch filters a callback result down to ErrStop
func (l *Loop) dispatch(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStop) {
		return ErrStop
	}
	l.callbackErrors.Add(1)
	l.log.Warn("event callback failed", zap.Error(err))
	return nil
}

// adjustInterval backs off to IdleInterval when nothing has happened for
// IdleAfter
func (l *Loop) adjustInterval(sawEvents bool) {
	now := l.now()
	if sawEvents {
		l.lastEvent = now
	}
	interval := l.config.Interval
	if l.config.IdleInterval > 0 && now.Sub(l.lastEvent) > l.config.IdleAfter {
		interval = l.config.IdleInterval
	}
	l.currentInterval.Store(int64(interval))
}

// CurrentInterval returns the pause before the next cycle
func (l *Loop) CurrentInterval() time.Duration {
	return time.Duration(l.currentInterval.Load())
}

// GetMetrics returns current operational metrics
func (l *Loop) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      l.pollCycles.Load(),
		PollErrors:      l.pollErrors.Load(),
		CoinEvents:      l.coinEvents.Load(),
		CashlessEvents:  l.cashlessEvents.Load(),
		CallbackErrors:  l.callbackErrors.Load(),
		LastPollLatency: time.Duration(l.lastPollLatency.Load()),
	}
}
