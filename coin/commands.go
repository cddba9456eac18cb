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

// Coin changer command codes
const (
	cmdReset      = 0x08
	cmdSetup      = 0x09
	cmdTubeStatus = 0x0A
	cmdPoll       = 0x0B
	cmdCoinType   = 0x0C
	cmdDispense   = 0x0D
)

// Level 3 expansion commands, all prefixed with cmdExpansion
const (
	cmdExpansion        = 0x0F
	subIdent            = 0x00
	subFeatureEnable    = 0x01
	subPayout           = 0x02
	subPayoutStatus     = 0x03
	subPayoutValuePoll  = 0x04
	subDiagnosticStatus = 0x05
)

// Reply sizes
const (
	setupReplyLen      = 23
	identReplyLen      = 33
	tubeStatusReplyLen = 18
	identOptionsOffset = 32
)

// Poll reply bits
const (
	pollManualDispense = 0x80
	pollCoinDeposited  = 0x40
	pollSlug           = 0x20
	slugCountMask      = 0x1F
	coinTypeMask       = 0x0F
	routingMask        = 0x30
	dispenseCountMask  = 0x07
)

// pollJustReset is the POLL reply of a changer that has just been reset
const pollJustReset = byte(StatusChangerReset)

// NumCoinTypes is the number of coin type slots a changer reports
const NumCoinTypes = 16

// maxDispenseBatch is the largest count the 4 bit count nibble of DISPENSE
// can carry
const maxDispenseBatch = 15

// L3 optional feature bits reported by IDENT and set by FEATURE ENABLE
const (
	FeatureAltPayout            byte = 0x01
	FeatureExtendedDiagnostic   byte = 0x02
	FeatureControlledFillPayout byte = 0x04
	FeatureFTL                  byte = 0x08
)
