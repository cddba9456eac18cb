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

/*
Package mdb provides a pure Go host (VMC) driver for the MDB/ICP Multi-Drop Bus
used in vending machines.

The controller talks to coin changers and cashless payment readers over a
9-bit serial bus. This package implements the session layer: framing,
checksums, ACK/NAK handling and the single command in flight rule. The
peripheral state machines live in the coin and cashless subpackages.

Features:
  - Serial and WebSocket bridges (transport/uart, transport/ws)
  - Coin changers at levels 2 and 3, including alternative payout and
    extended diagnostics
  - Cashless readers at levels 1 to 3 with vend, refund and cash sale
  - A polling loop that dispatches peripheral events in order
  - Structured logging through zap

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-mdb"
	    "github.com/ZaparooProject/go-mdb/coin"
	    "github.com/ZaparooProject/go-mdb/transport/uart"
	)

	transport, err := uart.New(uart.Config{PortName: "/dev/ttyUSB0"})
	if err != nil {
	    log.Fatal(err)
	}
	defer transport.Close()

	bus, err := mdb.New(transport, mdb.WithLogger(logger))
	if err != nil {
	    log.Fatal(err)
	}

	changer, err := coin.Init(ctx, bus, nil)
	if err != nil {
	    log.Fatal(err)
	}

	// Return 1.50 in change
	paid, err := changer.Payout(ctx, bus, 150)

Transport Selection:

The bus only needs an io.Reader and io.Writer that carry [mode, data] byte
pairs, one reply per Read:

  - transport/uart: USB or on-board serial link to a bridge board
  - transport/ws: bridge reachable over a WebSocket
  - internal/testing: scripted replies for tests

Error Handling:

Codec failures are wrapped in *TransportError and can be inspected with
errors.Is:

	if errors.Is(err, mdb.ErrTimeout) {
	    // peripheral did not answer
	}

Peripheral protocol failures use ErrNotAcknowledged, ErrUnexpectedReply and
ErrHandshake.

Thread Safety:

A Bus is not thread-safe. MDB allows one command at a time, so drive every
peripheral on a bus from one goroutine; polling.Loop runs its callbacks on the
caller's goroutine for this reason.
*/
package mdb
