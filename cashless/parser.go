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

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// MaxPollEvents is the most events one POLL reply can carry
const MaxPollEvents = 36

// Parser splits a POLL reply into sub-events. Sub-events carry no length,
// so their size depends on the reader feature level.
type Parser struct {
	Level Level
}

// SubEventLength returns the size of the sub-event starting with code,
// including the code byte. ok is false for codes without a fixed size.
func (p Parser) SubEventLength(code byte) (n int, ok bool) {
	switch code {
	case pollJustReset, pollSessionCancelRequest, pollVendDenied, pollEndSession,
		pollCancelled, pollRevalueApproved, pollRevalueDenied, pollTimeDateRequest:
		return 1, true
	case pollDisplayRequest, pollMalfunction, pollDataEntryRequest:
		return 2, true
	case pollVendApproved, pollRevalueLimitAmount:
		return 3, true
	case pollReaderConfigData:
		return readerConfigLen, true
	case pollBeginSession:
		if p.Level == Level1 {
			return 3, true
		}
		return 10, true
	case pollPeripheralID:
		if p.Level == Level3 {
			return idReplyLenL3, true
		}
		return idReplyLen, true
	case pollCmdOutOfSequence:
		if p.Level == Level1 {
			return 1, true
		}
		return 2, true
	default:
		return 0, false
	}
}

// Parse decodes data in order. It stops at an unknown or unsupported code or
// a truncated sub-event and returns what was decoded up to that point.
func (p Parser) Parse(data []byte, log *zap.Logger) []Event {
	if log == nil {
		log = zap.NewNop()
	}
	events := make([]Event, 0, 4)

	for len(data) > 0 && len(events) < MaxPollEvents {
		code := data[0]

		if code == pollUserFileData {
			events = append(events, UserFileData{Payload: append([]byte(nil), data[1:]...)})
			return events
		}
		if code == pollDisplayRequest {
			log.Error("display request is not supported, dropping rest of poll reply")
			return events
		}

		n, ok := p.SubEventLength(code)
		if !ok {
			log.Error("unknown poll sub-event, dropping rest of poll reply",
				zap.Uint8("code", code), zap.Int("remaining", len(data)))
			return events
		}
		if len(data) < n {
			log.Error("truncated poll sub-event",
				zap.Uint8("code", code), zap.Int("want", n), zap.Int("have", len(data)))
			return events
		}

		events = append(events, p.decode(data[:n], log))
		data = data[n:]
	}
	return events
}

func (p Parser) decode(b []byte, log *zap.Logger) Event {
	switch b[0] {
	case pollJustReset:
		return JustReset{}
	case pollReaderConfigData:
		return ReaderConfigData{Config: parseReaderConfig(b)}
	case pollBeginSession:
		if len(b) == 3 {
			return BeginSessionBasic{Funds: binary.BigEndian.Uint16(b[1:])}
		}
		return BeginSessionAdvanced{
			Funds:       binary.BigEndian.Uint16(b[1:3]),
			MediaID:     binary.BigEndian.Uint32(b[3:7]),
			PaymentType: b[7],
			PaymentData: binary.BigEndian.Uint16(b[8:10]),
		}
	case pollSessionCancelRequest:
		return SessionCancelRequest{}
	case pollVendApproved:
		return VendApproved{Amount: binary.BigEndian.Uint16(b[1:])}
	case pollVendDenied:
		return VendDenied{}
	case pollEndSession:
		return EndSession{}
	case pollCancelled:
		return Cancelled{}
	case pollPeripheralID:
		id, l3 := parsePeripheralID(b, log)
		return PeripheralID{Identity: id, L3: l3}
	case pollMalfunction:
		return Malfunction{Code: ParseMalfunctionCode(b[1])}
	case pollCmdOutOfSequence:
		if len(b) > 1 {
			return CmdOutOfSequence{Status: b[1]}
		}
		return CmdOutOfSequence{}
	case pollRevalueApproved:
		return RevalueApproved{}
	case pollRevalueDenied:
		return RevalueDenied{}
	case pollRevalueLimitAmount:
		return RevalueLimitAmount{Amount: binary.BigEndian.Uint16(b[1:])}
	case pollTimeDateRequest:
		return TimeDateRequest{}
	default:
		return DataEntryRequest{LengthFormat: b[1]}
	}
}
