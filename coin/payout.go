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
	"errors"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/internal/retry"
	"go.uber.org/zap"
)

func (a *Acceptor) cfg() *Config {
	if a.config == nil {
		a.config = DefaultConfig()
	}
	return a.config
}

// Payout pays out up to credit (unscaled) and returns the amount actually
// paid, which may be less than requested. L3 changers that support the
// alternative payout command use it; everything else uses DISPENSE. Tube
// counts are refreshed afterwards. The error is only non-nil if ctx ended.
func (a *Acceptor) Payout(ctx context.Context, bus *mdb.Bus, credit uint16) (uint16, error) {
	log := bus.Logger().Named("coin")
	if credit == 0 {
		return 0, nil
	}

	var paid uint16
	if a.L3 != nil && a.L3.AltPayout {
		paid = a.PayoutLevel3(ctx, bus, credit)
	} else {
		paid = a.PayoutLevel2(ctx, bus, credit)
	}

	if paid == credit {
		log.Info("payout complete", zap.Uint16("paid", paid))
	} else {
		log.Info("incomplete payout", zap.Uint16("requested", credit), zap.Uint16("paid", paid))
	}

	if err := ctx.Err(); err != nil {
		return paid, err
	}
	if err := a.UpdateCoinCounts(ctx, bus); err != nil {
		log.Error("tube status after payout failed", zap.Error(err))
	}
	return paid, nil
}

// PayoutLevel2 pays credit greedily, largest denomination first, never
// dispensing more coins than a tube holds
func (a *Acceptor) PayoutLevel2(ctx context.Context, bus *mdb.Bus, credit uint16) uint16 {
	log := bus.Logger().Named("coin")
	log.Debug("starting level 2 payout", zap.Uint16("credit", credit))

	var paid uint16
	for i := len(a.CoinTypes) - 1; i >= 0 && paid < credit; i-- {
		ct := a.CoinTypes[i]
		if ct == nil || ct.UnscaledValue == 0 {
			continue
		}

		n := (credit - paid) / ct.UnscaledValue
		if n > uint16(ct.NumCoins) {
			n = uint16(ct.NumCoins)
		}

		for n > 0 {
			batch := min(n, maxDispenseBatch)
			log.Debug("dispensing",
				zap.Int("type", i),
				zap.Uint16("count", batch),
				zap.Uint16("value", ct.UnscaledValue))

			if !bus.SendCommandExpectAck(ctx, []byte{cmdDispense, byte(i) | byte(batch)<<4}) {
				log.Error("dispense not acknowledged", zap.Int("type", i))
				break
			}
			paid += ct.UnscaledValue * batch
			n -= batch
		}

		if ctx.Err() != nil {
			break
		}
	}
	return paid
}

// PayoutLevel3 pays credit with the L3 alternative payout command and reads
// back what the changer actually dispensed
func (a *Acceptor) PayoutLevel3(ctx context.Context, bus *mdb.Bus, credit uint16) uint16 {
	log := bus.Logger().Named("coin")
	log.Debug("starting level 3 payout", zap.Uint16("credit", credit))

	if a.ScalingFactor == 0 {
		log.Error("scaling factor is zero")
		return 0
	}
	scaled := credit / uint16(a.ScalingFactor)
	if scaled > 0xFF {
		log.Debug("payout value exceeds allowable limit", zap.Uint16("scaled", scaled))
		return 0
	}

	if !bus.SendCommandExpectAck(ctx, []byte{cmdExpansion, subPayout, byte(scaled)}) {
		log.Error("payout command not acknowledged")
		return 0
	}

	cfg := a.cfg()
	buf := make([]byte, NumCoinTypes)
	_, err := retry.Poll(ctx, retry.Config{
		Description: "payout value poll",
		MaxAttempts: cfg.PayoutPollLimit,
		Interval:    cfg.PayoutPollInterval,
		Sleep:       bus.Sleep,
	}, func(ctx context.Context, _ int) (struct{}, bool, error) {
		resp, err := bus.Exchange(ctx, []byte{cmdExpansion, subPayoutValuePoll}, buf)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, false, ctx.Err()
			}
			return struct{}{}, true, nil
		}
		// Data replies carry the value paid so far; ACK means done
		return struct{}{}, !resp.IsACK(), nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			log.Error("payout did not complete in time")
		} else {
			return 0
		}
	}

	n, err := bus.SendCommandExpectData(ctx, []byte{cmdExpansion, subPayoutStatus}, buf)
	if err != nil {
		log.Error("payout status failed", zap.Error(err))
		return 0
	}

	var paid uint32
	for i, count := range buf[:n] {
		if ct := a.CoinTypes[i]; ct != nil {
			paid += uint32(ct.UnscaledValue) * uint32(count)
		}
	}
	if paid > uint32(credit) {
		log.Error("changer reported more than requested", zap.Uint32("reported", paid), zap.Uint16("requested", credit))
		paid = uint32(credit)
	}
	return uint16(paid)
}
