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

import (
	"context"
	"fmt"

	mdb "github.com/ZaparooProject/go-mdb"
	"go.uber.org/zap"
)

// MaxPollEvents is the most events one POLL reply can carry
const MaxPollEvents = 16

// Routing is where an inserted coin went
type Routing uint8

const (
	RoutingCashBox Routing = iota
	RoutingTube
	RoutingReject
	RoutingUnknown
)

func (r Routing) String() string {
	switch r {
	case RoutingCashBox:
		return "cash box"
	case RoutingTube:
		return "tube"
	case RoutingReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Event is one poll event. It is one of SlugCount, Status, CoinInserted or
// ManualDispense.
type Event interface {
	coinEvent()
}

// SlugCount reports objects rejected as not-a-coin since the last poll
type SlugCount struct {
	Count uint8
}

// Status is a changer status byte
type Status struct {
	Code StatusCode
}

// CoinInserted reports an accepted coin
type CoinInserted struct {
	UnscaledValue  uint16
	CoinType       uint8
	Routing        Routing
	CoinsRemaining uint8
}

// ManualDispense reports coins dispensed with the changer's own buttons
type ManualDispense struct {
	UnscaledValue  uint16
	CoinType       uint8
	Count          uint8
	CoinsRemaining uint8
}

func (SlugCount) coinEvent()      {}
func (Status) coinEvent()         {}
func (CoinInserted) coinEvent()   {}
func (ManualDispense) coinEvent() {}

type parseState int

const (
	stateIdle parseState = iota
	stateManualDispense
	stateCoinDeposited
)

// Poll asks the changer for activity. An ACK reply means nothing happened.
func (a *Acceptor) Poll(ctx context.Context, bus *mdb.Bus) ([]Event, error) {
	buf := make([]byte, MaxPollEvents)
	resp, err := bus.Exchange(ctx, []byte{cmdPoll}, buf)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	if !resp.IsData {
		if resp.IsACK() {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w (%s)", mdb.ErrNotAcknowledged, resp.Status)
	}

	log := bus.Logger().Named("coin")
	log.Debug("parsing poll reply", zap.Int("len", resp.Len))
	return a.ParsePoll(buf[:resp.Len], log), nil
}

// ParsePoll decodes a POLL reply. Two byte events that are cut short by the
// end of the reply are dropped.
func (a *Acceptor) ParsePoll(data []byte, log *zap.Logger) []Event {
	if log == nil {
		log = zap.NewNop()
	}
	events := make([]Event, 0, MaxPollEvents)
	state := stateIdle
	var first byte

	for _, b := range data {
		if len(events) == MaxPollEvents {
			break
		}
		switch state {
		case stateIdle:
			switch {
			case b&pollManualDispense != 0:
				state, first = stateManualDispense, b
			case b&pollCoinDeposited != 0:
				state, first = stateCoinDeposited, b
			case b&pollSlug != 0:
				events = append(events, SlugCount{Count: b & slugCountMask})
			default:
				events = append(events, Status{Code: StatusCode(b)})
			}

		case stateCoinDeposited:
			id := first & coinTypeMask
			value, ok := a.unscaledValue(id)
			if !ok {
				log.Error("non existent coin deposited", zap.Uint8("type", id))
			}
			events = append(events, CoinInserted{
				CoinType:       id,
				UnscaledValue:  value,
				Routing:        decodeRouting(first, log),
				CoinsRemaining: b,
			})
			state = stateIdle

		case stateManualDispense:
			id := first & coinTypeMask
			value, ok := a.unscaledValue(id)
			if !ok {
				log.Error("non existent coin manually dispensed", zap.Uint8("type", id))
			}
			events = append(events, ManualDispense{
				CoinType:       id,
				UnscaledValue:  value,
				Count:          (first >> 4) & dispenseCountMask,
				CoinsRemaining: b,
			})
			state = stateIdle
		}
	}

	if state != stateIdle {
		log.Error("poll reply ended inside a two byte event", zap.Uint8("first", first))
	}
	return events
}

func decodeRouting(b byte, log *zap.Logger) Routing {
	switch b & routingMask {
	case 0x00:
		return RoutingCashBox
	case 0x10:
		return RoutingTube
	case 0x30:
		return RoutingReject
	default:
		log.Error("unexpected coin routing", zap.Uint8("routing", b&routingMask))
		return RoutingUnknown
	}
}
