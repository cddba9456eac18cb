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
	"context"
	"errors"
	"fmt"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/internal/retry"
	"go.uber.org/zap"
)

// Vend session errors
var (
	ErrVendDenied   = errors.New("vend denied")
	ErrVendTimeout  = errors.New("no vend decision from reader")
	ErrRefundFailed = errors.New("refund not confirmed, credit lost")
	ErrInvalidState = errors.New("command not valid in current session state")
)

// State is the vend session state
type State int

const (
	// StateIdle means the reader is disabled
	StateIdle State = iota
	StateEnabled
	StateSessionActive
	StateVendPending
	StateVendAuthorized
	StateDenied
	StateRefundInFlight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnabled:
		return "enabled"
	case StateSessionActive:
		return "session active"
	case StateVendPending:
		return "vend pending"
	case StateVendAuthorized:
		return "vend authorized"
	case StateDenied:
		return "denied"
	case StateRefundInFlight:
		return "refund in flight"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StartTransaction requests a vend of amount (unscaled) for item and waits
// for the reader's decision. It returns the approved amount. Denial, a
// session cancel request or no decision ends the session.
func (d *Device) StartTransaction(ctx context.Context, bus *mdb.Bus, amount uint16, item [2]byte) (uint16, error) {
	switch d.state {
	case StateEnabled, StateSessionActive, StateDenied:
	default:
		return 0, fmt.Errorf("%w: vend request while %s", ErrInvalidState, d.state)
	}
	log := bus.Logger().Named("cashless")

	// decide scans one reply for the reader's verdict. Other events are kept
	// for the next Poll.
	decide := func(events []Event) (uint16, bool, error) {
		for i, ev := range events {
			switch e := ev.(type) {
			case VendApproved:
				log.Debug("card reader approved vend", zap.Uint16("amount", e.Amount))
				d.queue(events[i+1:]...)
				return e.Amount, true, nil
			case VendDenied:
				log.Debug("card reader denied vend")
				d.queue(events[i+1:]...)
				return 0, true, ErrVendDenied
			case SessionCancelRequest:
				log.Debug("card reader requested end of session")
				d.queue(events[i+1:]...)
				return 0, true, fmt.Errorf("%w: session cancel requested", ErrVendDenied)
			default:
				d.queue(ev)
			}
		}
		return 0, false, nil
	}

	// The reader may miss the ACK or answer with its verdict directly. Either
	// way the decision arrives through the poll loop or this reply.
	msg := []byte{cmdVend, vendRequest, byte(amount >> 8), byte(amount), item[0], item[1]}
	d.state = StateVendPending
	approved, decided, err := d.vendRequest(ctx, bus, msg, decide, log)
	if !decided && err == nil {
		cfg := d.cfg()
		approved, err = retry.Poll(ctx, retry.Config{
			Description: "vend decision",
			MaxAttempts: cfg.VendPollLimit,
			Interval:    cfg.VendPollInterval,
			Sleep:       bus.Sleep,
		}, func(ctx context.Context, _ int) (uint16, bool, error) {
			events, err := d.pollOnce(ctx, bus)
			if err != nil {
				if ctx.Err() != nil {
					return 0, false, ctx.Err()
				}
				log.Debug("unexpected non-response reply", zap.Error(err))
				return 0, true, nil
			}
			amount, done, err := decide(events)
			return amount, !done, err
		})
	}

	switch {
	case err == nil:
		d.state = StateVendAuthorized
		return approved, nil
	case errors.Is(err, retry.ErrExhausted):
		err = ErrVendTimeout
	case ctx.Err() != nil:
		return 0, err
	}

	d.state = StateDenied
	d.endAfterFailedVend(ctx, bus, log)
	return 0, err
}

// vendRequest sends the vend request. A missing ACK is logged only. A data
// reply is parsed like a poll reply and may already carry the verdict.
func (d *Device) vendRequest(
	ctx context.Context,
	bus *mdb.Bus,
	msg []byte,
	decide func([]Event) (uint16, bool, error),
	log *zap.Logger,
) (uint16, bool, error) {
	buf := make([]byte, mdb.MaxFrameLength)
	resp, err := bus.Exchange(ctx, msg, buf)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return 0, true, ctx.Err()
		}
		log.Warn("vend request not acknowledged", zap.Error(err))
		return 0, false, nil
	case resp.IsData:
		return decide(d.parseReply(buf[:resp.Len], log))
	case !resp.IsACK():
		log.Warn("vend request not acknowledged", zap.Stringer("status", resp.Status))
	}
	return 0, false, nil
}

func (d *Device) endAfterFailedVend(ctx context.Context, bus *mdb.Bus, log *zap.Logger) {
	if err := d.EndSession(ctx, bus); err != nil {
		log.Error("end session after failed vend", zap.Error(err))
	}
}

// CancelTransaction asks the reader to abort the pending vend. The reader
// confirms with VendDenied.
func (d *Device) CancelTransaction(ctx context.Context, bus *mdb.Bus) error {
	log := bus.Logger().Named("cashless")
	if !bus.SendCommandExpectAck(ctx, []byte{cmdVend, vendCancel}) {
		log.Debug("vend cancel not acknowledged")
	}

	events, err := d.pollOnce(ctx, bus)
	if err != nil {
		return fmt.Errorf("vend cancel: %w", err)
	}
	found := d.await(events, func(ev Event) bool {
		_, ok := ev.(VendDenied)
		return ok
	})
	if !found {
		return fmt.Errorf("vend cancel: %w: no vend denied", mdb.ErrUnexpectedReply)
	}

	if d.state == StateVendPending || d.state == StateVendAuthorized || d.state == StateDenied {
		d.state = StateSessionActive
	}
	log.Debug("transaction cancelled")
	return nil
}

// VendSuccess reports the approved item was dispensed
func (d *Device) VendSuccess(ctx context.Context, bus *mdb.Bus, item [2]byte) error {
	if d.state != StateVendAuthorized {
		return fmt.Errorf("%w: vend success while %s", ErrInvalidState, d.state)
	}
	if !bus.SendCommandExpectAck(ctx, []byte{cmdVend, vendSuccess, item[0], item[1]}) {
		return fmt.Errorf("vend success: %w", mdb.ErrNotAcknowledged)
	}
	d.state = StateSessionActive
	return nil
}

// VendFailed reports the approved item could not be dispensed and waits for
// the reader to refund the customer. An ACK to POLL is taken as the refund
// confirmation.
func (d *Device) VendFailed(ctx context.Context, bus *mdb.Bus) error {
	if d.state != StateVendAuthorized {
		return fmt.Errorf("%w: vend failure while %s", ErrInvalidState, d.state)
	}
	log := bus.Logger().Named("cashless")

	if !bus.SendCommandExpectAck(ctx, []byte{cmdVend, vendFailure}) {
		log.Error("vend failure not acknowledged")
	}
	d.state = StateRefundInFlight

	cfg := d.cfg()
	buf := make([]byte, mdb.MaxFrameLength)
	_, err := retry.Poll(ctx, retry.Config{
		Description: "refund confirmation",
		MaxAttempts: cfg.RefundPollLimit,
		Interval:    cfg.RefundPollInterval,
		Sleep:       bus.Sleep,
	}, func(ctx context.Context, _ int) (struct{}, bool, error) {
		resp, err := bus.Exchange(ctx, []byte{cmdPoll}, buf)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, false, ctx.Err()
			}
			return struct{}{}, true, nil
		}
		if resp.IsData {
			events := d.Parser().Parse(buf[:resp.Len], log)
			for _, ev := range events {
				d.observe(ev, log)
			}
			d.queue(events...)
			return struct{}{}, true, nil
		}
		return struct{}{}, !resp.IsACK(), nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			log.Error("refund failed, credit lost")
			return ErrRefundFailed
		}
		return err
	}

	d.state = StateSessionActive
	log.Debug("refund complete")
	return nil
}

// EndSession tells the reader the session is complete. The command is
// always sent; only an EndSession event moves the state to enabled.
func (d *Device) EndSession(ctx context.Context, bus *mdb.Bus) error {
	log := bus.Logger().Named("cashless")
	if !bus.SendCommandExpectAck(ctx, []byte{cmdVend, vendSessionComplete}) {
		log.Debug("session complete not acknowledged")
	}

	events, err := d.pollOnce(ctx, bus)
	if err != nil {
		log.Error("end session failed", zap.Error(err))
		return fmt.Errorf("end session: %w", err)
	}
	found := d.await(events, func(ev Event) bool {
		_, ok := ev.(EndSession)
		return ok
	})
	if !found {
		log.Error("end session failed", zap.Int("events", len(events)))
		return fmt.Errorf("end session: %w: no end session event", mdb.ErrUnexpectedReply)
	}

	log.Debug("end session")
	return nil
}

// await reports whether events holds a match and queues everything else
func (d *Device) await(events []Event, match func(Event) bool) bool {
	found := false
	for _, ev := range events {
		if !found && match(ev) {
			found = true
			continue
		}
		d.queue(ev)
	}
	return found
}

// RecordCashTransaction reports a cash sale of item for amount (unscaled).
// It does not need a cashless session.
func (d *Device) RecordCashTransaction(ctx context.Context, bus *mdb.Bus, amount uint16, item [2]byte) error {
	msg := []byte{cmdVend, vendCashSale, byte(amount >> 8), byte(amount), item[0], item[1]}
	if !bus.SendCommandExpectAck(ctx, msg) {
		bus.Logger().Named("cashless").Debug("record cash sale transaction failed")
		return fmt.Errorf("cash sale: %w", mdb.ErrNotAcknowledged)
	}
	bus.Logger().Named("cashless").Debug("record cash sale transaction success", zap.Uint16("amount", amount))
	return nil
}
