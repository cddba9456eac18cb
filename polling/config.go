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

package polling

import (
	"errors"
	"time"
)

// Config holds polling loop configuration
type Config struct {
	// Interval is the pause between poll cycles while peripherals are busy
	Interval time.Duration
	// IdleInterval is used once no event has arrived for IdleAfter. Zero
	// disables backing off.
	IdleInterval time.Duration
	IdleAfter    time.Duration
	// MaxConsecutiveErrors stops the loop after that many failed cycles in a
	// row. Zero never stops.
	MaxConsecutiveErrors int
}

// DefaultConfig returns the default loop configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:             100 * time.Millisecond,
		IdleInterval:         250 * time.Millisecond,
		IdleAfter:            5 * time.Second,
		MaxConsecutiveErrors: 10,
	}
}

// Loop errors
var (
	// ErrStop may be returned by a callback to end Run without error
	ErrStop = errors.New("stop polling")
	// ErrTooManyErrors ends Run after MaxConsecutiveErrors failed cycles
	ErrTooManyErrors = errors.New("too many consecutive poll errors")
	ErrNoPeripherals = errors.New("no peripheral to poll")
)
