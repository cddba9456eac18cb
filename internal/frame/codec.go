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

package frame

import (
	"errors"
	"fmt"
)

// Codec errors. The root package re-exports these.
var (
	ErrTimeout          = errors.New("timeout waiting for peripheral")
	ErrWrongChecksum    = errors.New("wrong checksum")
	ErrBufferOverrun    = errors.New("buffer overrun")
	ErrMalformedMessage = errors.New("malformed message")
)

// Kind identifies what a peripheral reply turned out to be
type Kind int

const (
	// KindData is a checksummed data frame
	KindData Kind = iota
	// KindStatus is a single status byte (ACK or NAK)
	KindStatus
)

// Reply is the classification of a raw reply
type Reply struct {
	Kind Kind
	// Len is the number of data bytes copied out, checksum excluded
	Len int
	// Status holds the status byte for KindStatus replies
	Status byte
	// Checksum is the checksum the peripheral transmitted
	Checksum byte
}

// CalculateChecksum returns the low 8 bits of the sum of data
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Encode builds the pair representation of a command. The first byte carries
// the address flag, every other byte (checksum included) does not.
func Encode(msg []byte) []byte {
	out := make([]byte, 0, (len(msg)+1)*PairSize)
	for i, b := range msg {
		mode := byte(ModeData)
		if i == 0 {
			mode = ModeAddress
		}
		out = append(out, mode, b)
	}
	return append(out, ModeData, CalculateChecksum(msg))
}

// EncodeStatus builds a status frame. Status frames have no checksum and no
// address flag. Unlike command bytes they are not written as a [mode, data]
// pair: the bridge takes the status byte first followed by one 0x00 padding
// byte, so a NAK goes out as FF 00 rather than 00 FF.
func EncodeStatus(status byte) []byte {
	return []byte{status, statusPadding}
}

// Decode is the inverse of Encode. It returns the command bytes of a
// well-formed command frame, verifying the address flag and checksum.
func Decode(raw []byte) ([]byte, error) {
	if len(raw) < 2*PairSize || len(raw)%PairSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedMessage, len(raw))
	}
	if raw[0] != ModeAddress {
		return nil, fmt.Errorf("%w: first byte missing address flag", ErrMalformedMessage)
	}
	n := len(raw)/PairSize - 1
	msg := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && raw[i*PairSize] != ModeData {
			return nil, fmt.Errorf("%w: address flag on byte %d", ErrMalformedMessage, i)
		}
		msg = append(msg, raw[i*PairSize+1])
	}
	if raw[len(raw)-1] != CalculateChecksum(msg) {
		return nil, ErrWrongChecksum
	}
	return msg, nil
}

// Classify interprets raw as a peripheral reply in pair representation and
// copies data bytes into out.
func Classify(raw, out []byte) (Reply, error) {
	count := len(raw)
	switch {
	case count == 0:
		return Reply{}, ErrTimeout
	case count == PairSize:
		return classifyStatus(raw[1])
	case count%PairSize != 0:
		return Reply{}, fmt.Errorf("%w: odd pair count (%d bytes)", ErrMalformedMessage, count)
	}

	if raw[count-2] != ModeAddress {
		return Reply{}, fmt.Errorf("%w: end of frame flag missing", ErrMalformedMessage)
	}

	var sum byte
	n := 0
	for i := 1; i < count-1; i += PairSize {
		if n >= len(out) {
			return Reply{}, fmt.Errorf("%w: need more than %d bytes", ErrBufferOverrun, len(out))
		}
		out[n] = raw[i]
		sum += raw[i]
		n++
	}

	checksum := raw[count-1]
	if checksum != sum {
		return Reply{}, fmt.Errorf("%w: got 0x%02X, expected 0x%02X", ErrWrongChecksum, checksum, sum)
	}
	return Reply{Kind: KindData, Len: n, Checksum: checksum}, nil
}

func classifyStatus(b byte) (Reply, error) {
	switch b {
	case ACK, NAK:
		return Reply{Kind: KindStatus, Status: b}, nil
	default:
		return Reply{}, fmt.Errorf("%w: 1 byte reply 0x%02X is neither ACK nor NAK", ErrMalformedMessage, b)
	}
}
