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

import "io"

// Transport is the byte-level link to the 9-bit UART.
//
// Every byte crosses the transport as a [mode, data] pair where mode is the
// 9th bit. A single Read must return one complete peripheral reply; a Read
// that returns 0 bytes means the peripheral did not answer in time.
// Implementations exist for serial and WebSocket bridges under transport/.
type Transport interface {
	io.Reader
	io.Writer
}

// Status is a bus-level flow control frame
type Status byte

// Status frame values
const (
	ACK Status = 0x00
	NAK Status = 0xFF
	RET Status = 0xAA
)

func (s Status) String() string {
	switch s {
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case RET:
		return "RET"
	default:
		return "UNKNOWN"
	}
}

// Response describes what a peripheral sent back for one command
type Response struct {
	// Len is the number of data bytes written to the caller's buffer
	Len int
	// Status is meaningful when IsData is false
	Status Status
	IsData bool
}

// IsACK reports whether the response is an ACK status frame
func (r Response) IsACK() bool {
	return !r.IsData && r.Status == ACK
}
