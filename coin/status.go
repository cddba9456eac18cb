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

package coin

import "fmt"

// StatusCode is a single byte changer status reported by POLL
type StatusCode uint8

const (
	StatusEscrowRequest         StatusCode = 0x01
	StatusPayoutBusy            StatusCode = 0x02
	StatusNoCredit              StatusCode = 0x03
	StatusDefectiveTubeSensor   StatusCode = 0x04
	StatusDoubleArrival         StatusCode = 0x05
	StatusAcceptorUnplugged     StatusCode = 0x06
	StatusTubeJam               StatusCode = 0x07
	StatusROMChecksumError      StatusCode = 0x08
	StatusCoinRoutingError      StatusCode = 0x09
	StatusChangerBusy           StatusCode = 0x0A
	StatusChangerReset          StatusCode = 0x0B
	StatusCoinJam               StatusCode = 0x0C
	StatusPossibleCreditRemoval StatusCode = 0x0D
)

var statusNames = map[StatusCode]string{
	StatusEscrowRequest:         "escrow request",
	StatusPayoutBusy:            "payout busy",
	StatusNoCredit:              "no credit",
	StatusDefectiveTubeSensor:   "defective tube sensor",
	StatusDoubleArrival:         "double arrival",
	StatusAcceptorUnplugged:     "acceptor unplugged",
	StatusTubeJam:               "tube jam",
	StatusROMChecksumError:      "ROM checksum error",
	StatusCoinRoutingError:      "coin routing error",
	StatusChangerBusy:           "changer busy",
	StatusChangerReset:          "changer was reset",
	StatusCoinJam:               "coin jam",
	StatusPossibleCreditRemoval: "possible credited coin removal",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02X", uint8(s))
}
