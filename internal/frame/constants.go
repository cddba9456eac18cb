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

// Package frame provides the MDB wire codec: 9-bit pair encoding, checksums
// and classification of peripheral replies.
package frame

// Mode flags carried in the first byte of every [mode, data] pair
const (
	ModeData    = 0x00 // 9th bit clear
	ModeAddress = 0x01 // 9th bit set: address byte on transmit, end of frame on receive
)

// Status bytes used for flow control
const (
	ACK = 0x00 // Acknowledge
	NAK = 0xFF // Negative acknowledge
	RET = 0xAA // Retransmit (VMC only)
)

// Frame size limits
const (
	MaxFrameLength = 36                 // Data bytes plus checksum
	ScratchSize    = 2 * MaxFrameLength // Each byte arrives as a pair
	PairSize       = 2
	statusPadding  = 0x00
)
