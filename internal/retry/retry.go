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

// Package retry provides the bounded polling loop shared by the peripheral
// state machines
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt ran without a final answer
var ErrExhausted = errors.New("attempts exhausted")

// Operation is one attempt of a polling loop
// Returns: data, shouldRetry, error
// - data: the result if done
// - shouldRetry: true if another attempt should be made
// - error: a permanent error that stops the loop
type Operation[T any] func(ctx context.Context, attempt int) (T, bool, error)

// SleepFunc waits between attempts
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures a polling loop
type Config struct {
	Sleep       SleepFunc
	Description string
	MaxAttempts int
	Interval    time.Duration
}

// Poll runs operation until it reports done, fails, or MaxAttempts is reached.
// Interval is waited between attempts, never after the last one.
func Poll[T any](ctx context.Context, config Config, operation Operation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, shouldRetry, err := operation(ctx, attempt)
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}

		if attempt+1 >= config.MaxAttempts {
			break
		}
		if err := sleep(ctx, config, config.Interval); err != nil {
			return zero, err
		}
	}

	return zero, ErrExhausted
}

func sleep(ctx context.Context, config Config, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if config.Sleep != nil {
		return config.Sleep(ctx, d)
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
