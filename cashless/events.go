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

import "fmt"

// Event is one sub-event of a reader POLL reply
type Event interface {
	cashlessEvent()
}

// JustReset is sent once after the reader has been reset
type JustReset struct{}

// ReaderConfigData repeats the setup reply unprompted
type ReaderConfigData struct {
	Config ReaderConfig
}

// BeginSessionBasic starts a session on an L1 reader
type BeginSessionBasic struct {
	Funds uint16
}

// BeginSessionAdvanced starts a session on an L2 or L3 reader
type BeginSessionAdvanced struct {
	Funds       uint16
	MediaID     uint32
	PaymentType uint8
	PaymentData uint16
}

// SessionCancelRequest asks the VMC to end the session
type SessionCancelRequest struct{}

// VendApproved authorizes a vend for up to Amount
type VendApproved struct {
	Amount uint16
}

// VendDenied refuses the pending vend request
type VendDenied struct{}

// EndSession confirms the session is over
type EndSession struct{}

// Cancelled acknowledges a reader cancel
type Cancelled struct{}

// PeripheralID carries the reader identification
type PeripheralID struct {
	Identity Identity
	L3       L3Options
}

// Malfunction reports a reader error
type Malfunction struct {
	Code MalfunctionCode
}

// CmdOutOfSequence reports a command the reader did not expect. Status is
// only present on L2 and L3 readers.
type CmdOutOfSequence struct {
	Status uint8
}

// RevalueApproved accepts a revalue request
type RevalueApproved struct{}

// RevalueDenied refuses a revalue request
type RevalueDenied struct{}

// RevalueLimitAmount is the most the reader accepts as revalue
type RevalueLimitAmount struct {
	Amount uint16
}

// UserFileData is FTL file data. Its length is not known to the parser, so it
// takes the rest of the frame.
type UserFileData struct {
	Payload []byte
}

// TimeDateRequest asks the VMC for the current time
type TimeDateRequest struct{}

// DataEntryRequest asks the VMC to collect keypad input
type DataEntryRequest struct {
	LengthFormat uint8
}

func (JustReset) cashlessEvent()            {}
func (ReaderConfigData) cashlessEvent()     {}
func (BeginSessionBasic) cashlessEvent()    {}
func (BeginSessionAdvanced) cashlessEvent() {}
func (SessionCancelRequest) cashlessEvent() {}
func (VendApproved) cashlessEvent()         {}
func (VendDenied) cashlessEvent()           {}
func (EndSession) cashlessEvent()           {}
func (Cancelled) cashlessEvent()            {}
func (PeripheralID) cashlessEvent()         {}
func (Malfunction) cashlessEvent()          {}
func (CmdOutOfSequence) cashlessEvent()     {}
func (RevalueApproved) cashlessEvent()      {}
func (RevalueDenied) cashlessEvent()        {}
func (RevalueLimitAmount) cashlessEvent()   {}
func (UserFileData) cashlessEvent()         {}
func (TimeDateRequest) cashlessEvent()      {}
func (DataEntryRequest) cashlessEvent()     {}

// MalfunctionCode is the second byte of a Malfunction sub-event
type MalfunctionCode uint8

const (
	MalfunctionPaymentMedia         MalfunctionCode = 0x00
	MalfunctionInvalidPaymentMedia  MalfunctionCode = 0x01
	MalfunctionTamper               MalfunctionCode = 0x02
	MalfunctionManufacturerDefined1 MalfunctionCode = 0x03
	MalfunctionCommunications2      MalfunctionCode = 0x04
	MalfunctionRequiresService      MalfunctionCode = 0x05
	MalfunctionUnassigned           MalfunctionCode = 0x06
	MalfunctionManufacturerDefined2 MalfunctionCode = 0x07
	MalfunctionReaderFailure        MalfunctionCode = 0x08
	MalfunctionCommunications3      MalfunctionCode = 0x09
	MalfunctionPaymentMediaJammed   MalfunctionCode = 0x0A
	MalfunctionManufacturerDefined3 MalfunctionCode = 0x0B
	MalfunctionRefund               MalfunctionCode = 0x0C
)

// ParseMalfunctionCode maps b to a known code. Anything out of range is
// Unassigned.
func ParseMalfunctionCode(b byte) MalfunctionCode {
	if b > byte(MalfunctionRefund) {
		return MalfunctionUnassigned
	}
	return MalfunctionCode(b)
}

var malfunctionNames = [...]string{
	MalfunctionPaymentMedia:         "payment media error",
	MalfunctionInvalidPaymentMedia:  "invalid payment media",
	MalfunctionTamper:               "tamper error",
	MalfunctionManufacturerDefined1: "manufacturer defined error 1",
	MalfunctionCommunications2:      "communications error 2",
	MalfunctionRequiresService:      "reader requires service",
	MalfunctionUnassigned:           "unassigned",
	MalfunctionManufacturerDefined2: "manufacturer defined error 2",
	MalfunctionReaderFailure:        "reader failure",
	MalfunctionCommunications3:      "communications error 3",
	MalfunctionPaymentMediaJammed:   "payment media jammed",
	MalfunctionManufacturerDefined3: "manufacturer defined error",
	MalfunctionRefund:               "refund error",
}

func (c MalfunctionCode) String() string {
	if int(c) < len(malfunctionNames) {
		return malfunctionNames[c]
	}
	return fmt.Sprintf("malfunction 0x%02X", uint8(c))
}
