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

package cashless

// Reader command codes
const (
	cmdReset     = 0x10
	cmdSetup     = 0x11
	cmdPoll      = 0x12
	cmdVend      = 0x13
	cmdReader    = 0x14
	cmdExpansion = 0x17
)

// Sub-commands
const (
	setupConfigData = 0x00
	setupPrices     = 0x01

	vendRequest         = 0x00
	vendCancel          = 0x01
	vendSuccess         = 0x02
	vendFailure         = 0x03
	vendSessionComplete = 0x04
	vendCashSale        = 0x05

	readerDisable = 0x00
	readerEnable  = 0x01

	expansionRequestID     = 0x00
	expansionEnableOptions = 0x04
)

// Poll reply sub-event codes
const (
	pollJustReset            = 0x00
	pollReaderConfigData     = 0x01
	pollDisplayRequest       = 0x02
	pollBeginSession         = 0x03
	pollSessionCancelRequest = 0x04
	pollVendApproved         = 0x05
	pollVendDenied           = 0x06
	pollEndSession           = 0x07
	pollCancelled            = 0x08
	pollPeripheralID         = 0x09
	pollMalfunction          = 0x0A
	pollCmdOutOfSequence     = 0x0B
	pollRevalueApproved      = 0x0D
	pollRevalueDenied        = 0x0E
	pollRevalueLimitAmount   = 0x0F
	pollUserFileData         = 0x10
	pollTimeDateRequest      = 0x11
	pollDataEntryRequest     = 0x12
)

// VMC setup: level 3 VMC, no display rows or columns
var vmcSetupData = []byte{cmdSetup, setupConfigData, 0x03, 0x00, 0x00, 0x00}

// Min/max prices unknown
var vmcPriceData = []byte{cmdSetup, setupPrices, 0xFF, 0xFF, 0x00, 0x00}

// Reply sizes
const (
	readerConfigLen = 8
	idReplyLen      = 30
	idReplyLenL3    = 34
	l3OptionsHi     = 32
	l3OptionsLo     = 33
)

// Basic option bits from the reader config
const (
	optRestoreFunds = 0x01
	optMultivend    = 0x02
	optDisplay      = 0x04
	optCashSale     = 0x08
)

// L3 option bits at offset 33 of the peripheral ID
const (
	optFTL           = 0x01
	optMoney32       = 0x02
	optMultiCurrency = 0x04
	optNegativeVend  = 0x08
	optDataEntry     = 0x10
	optAlwaysIdle    = 0x20
	optRemoteVend    = 0x40
	optBasket        = 0x80
)

// L3 option bits at offset 32 of the peripheral ID
const (
	optCoupon           = 0x01
	optAskBeginSession  = 0x02
	optEnhancedItemInfo = 0x04
)

// enableAlwaysIdle is the option mask written by the feature enable command
const enableAlwaysIdle = optAlwaysIdle
