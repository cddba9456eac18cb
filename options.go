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

package mdb

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DelayFunc suspends for d or until ctx is done
type DelayFunc func(ctx context.Context, d time.Duration) error

// Option is a functional option for configuring a Bus
type Option func(*Bus) error

// WithLogger sets the logger used by the bus and the peripherals driven
// through it
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithDelayFunc replaces the delay primitive. Tests use this to run polling
// loops without waiting.
func WithDelayFunc(fn DelayFunc) Option {
	return func(b *Bus) error {
		if fn == nil {
			return errors.New("delay function must not be nil")
		}
		b.delay = fn
		return nil
	}
}

// WithResetDelay sets how long peripherals are given to recover after RESET
func WithResetDelay(d time.Duration) Option {
	return func(b *Bus) error {
		if d < 0 {
			return errors.New("reset delay must not be negative")
		}
		b.resetDelay = d
		return nil
	}
}

// sleepContext is the default DelayFunc
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
