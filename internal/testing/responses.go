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

package testing

import "github.com/ZaparooProject/go-mdb/internal/frame"

// Data builds a peripheral data reply: every byte as a data pair and the
// checksum pair carrying the end of frame flag
func Data(data ...byte) []byte {
	raw := make([]byte, 0, (len(data)+1)*frame.PairSize)
	for _, b := range data {
		raw = append(raw, frame.ModeData, b)
	}
	return append(raw, frame.ModeAddress, frame.CalculateChecksum(data))
}

// BadChecksum builds a data reply whose checksum is off by one
func BadChecksum(data ...byte) []byte {
	raw := Data(data...)
	raw[len(raw)-1]++
	return raw
}

// Ack builds a peripheral ACK
func Ack() []byte {
	return []byte{frame.ModeAddress, frame.ACK}
}

// Nak builds a peripheral NAK
func Nak() []byte {
	return []byte{frame.ModeAddress, frame.NAK}
}

// Timeout is a reply that never arrives
func Timeout() []byte {
	return []byte{}
}

// Concat joins sub-events into one poll payload
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// CoinSetupReply builds the 23 byte coin acceptor SETUP reply
func CoinSetupReply(level byte, country [2]byte, scale, decimals byte, routeMask uint16, values [16]byte) []byte {
	data := []byte{level, country[0], country[1], scale, decimals, byte(routeMask >> 8), byte(routeMask)}
	data = append(data, values[:]...)
	return Data(data...)
}

// CoinIdentReply builds the 33 byte L3 IDENT reply
func CoinIdentReply(manufacturer, serial, model, version string, options byte) []byte {
	data := make([]byte, 0, 33)
	data = append(data, pad(manufacturer, 3)...)
	data = append(data, pad(serial, 12)...)
	data = append(data, pad(model, 12)...)
	data = append(data, pad(version, 2)...)
	data = append(data, 0x00, 0x00, 0x00, options)
	return Data(data...)
}

// TubeStatusReply builds the 18 byte TUBE_STATUS reply
func TubeStatusReply(fullMask uint16, counts [16]byte) []byte {
	data := []byte{byte(fullMask >> 8), byte(fullMask)}
	data = append(data, counts[:]...)
	return Data(data...)
}

// ReaderSetupReply builds the 8 byte cashless reader config reply
func ReaderSetupReply(level byte, country uint16, scale, decimals, maxResponse, options byte) []byte {
	return Data(0x01, level, byte(country>>8), byte(country), scale, decimals, maxResponse, options)
}

// ReaderIDPayload builds the peripheral ID payload (first byte 0x09). L3
// readers append two option bytes after two reserved bytes.
func ReaderIDPayload(l3 bool, optHi, optLo byte) []byte {
	data := make([]byte, 0, 34)
	data = append(data, 0x09)
	data = append(data, pad("ZAP", 3)...)
	data = append(data, pad("000000004242", 12)...)
	data = append(data, pad("READER1", 12)...)
	data = append(data, 0x01, 0x02)
	if l3 {
		data = append(data, 0x00, 0x00, optHi, optLo)
	}
	return data
}

func pad(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}
