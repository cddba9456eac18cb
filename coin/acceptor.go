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

// Package coin drives an MDB coin acceptor/changer: initialization and
// feature discovery, the coin type table, tube inventory, L2 and L3 payout,
// poll event parsing and L3 diagnostics.
package coin

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	mdb "github.com/ZaparooProject/go-mdb"
	"go.uber.org/zap"
)

// Level is the changer feature level
type Level uint8

const (
	Level2 Level = 2
	Level3 Level = 3
)

func (l Level) String() string {
	return fmt.Sprintf("L%d", uint8(l))
}

// CoinType is one occupied slot of the coin type table
type CoinType struct {
	// UnscaledValue is the raw coin value times the scaling factor
	UnscaledValue uint16
	// RouteableToTube is set at setup from the tube routing mask
	RouteableToTube bool
	// TubeFull is reported by the changer, never derived
	TubeFull bool
	// NumCoins is the current tube count
	NumCoins uint8
}

// L3Features holds what a Level 3 changer reports about itself
type L3Features struct {
	Manufacturer    string
	SerialNumber    string
	Model           string
	SoftwareVersion string

	AltPayout            bool
	ExtendedDiagnostic   bool
	ControlledFillPayout bool
	FTL                  bool
}

// Config contains configuration options for an Acceptor
type Config struct {
	// PayoutPollLimit bounds the L3 payout value poll loop
	PayoutPollLimit int
	// PayoutPollInterval is the pause between payout value polls
	PayoutPollInterval time.Duration
}

// DefaultConfig returns default acceptor configuration
func DefaultConfig() *Config {
	return &Config{
		PayoutPollLimit:    250,
		PayoutPollInterval: 100 * time.Millisecond,
	}
}

// withDefaults returns a copy of c with zero fields taken from DefaultConfig
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PayoutPollLimit <= 0 {
		out.PayoutPollLimit = def.PayoutPollLimit
	}
	if out.PayoutPollInterval <= 0 {
		out.PayoutPollInterval = def.PayoutPollInterval
	}
	return &out
}

// Acceptor is an initialized coin acceptor/changer. It owns no I/O; every
// command borrows the bus for the duration of the call.
type Acceptor struct {
	config        *Config
	L3            *L3Features
	CoinTypes     [NumCoinTypes]*CoinType
	CountryCode   [2]byte
	FeatureLevel  Level
	ScalingFactor uint8
	DecimalPlaces uint8
}

// Init resets the changer and runs the setup handshake. RESET, the just
// reset POLL and SETUP are mandatory; L3 identification, feature enable and
// the first tube status read are best effort.
func Init(ctx context.Context, bus *mdb.Bus, config *Config) (*Acceptor, error) {
	config = config.withDefaults()
	log := bus.Logger().Named("coin")

	if !bus.SendCommandExpectAck(ctx, []byte{cmdReset}) {
		return nil, fmt.Errorf("%w: reset not acknowledged", mdb.ErrHandshake)
	}

	if err := bus.Sleep(ctx, bus.ResetDelay()); err != nil {
		return nil, fmt.Errorf("waiting for reset: %w", err)
	}

	buf := make([]byte, 48)
	n, err := bus.SendCommandExpectData(ctx, []byte{cmdPoll}, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: initial poll: %w", mdb.ErrHandshake, err)
	}
	if n != 1 || buf[0] != pollJustReset {
		return nil, fmt.Errorf("%w: unexpected poll reply % X", mdb.ErrHandshake, buf[:n])
	}
	log.Debug("initial poll successful - just reset")

	n, err = bus.SendCommandExpectData(ctx, []byte{cmdSetup}, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: setup: %w", mdb.ErrHandshake, err)
	}
	if n != setupReplyLen {
		return nil, fmt.Errorf("%w: setup reply is %d bytes, expected %d", mdb.ErrHandshake, n, setupReplyLen)
	}

	acc := parseSetup(buf[:n], log)
	acc.config = config
	log.Debug("initial coin acceptor discovery complete",
		zap.Stringer("level", acc.FeatureLevel),
		zap.Uint8("scaling", acc.ScalingFactor),
		zap.Uint8("decimals", acc.DecimalPlaces))

	if acc.FeatureLevel == Level3 {
		acc.discoverL3(ctx, bus, log)
	}

	if err := acc.UpdateCoinCounts(ctx, bus); err != nil {
		log.Error("initial tube status failed", zap.Error(err))
	}

	return acc, nil
}

func parseSetup(buf []byte, log *zap.Logger) *Acceptor {
	acc := &Acceptor{
		CountryCode:   [2]byte{buf[1], buf[2]},
		ScalingFactor: buf[3],
		DecimalPlaces: buf[4],
	}

	switch buf[0] {
	case byte(Level2):
		acc.FeatureLevel = Level2
	case byte(Level3):
		acc.FeatureLevel = Level3
	default:
		log.Debug("unknown feature level - assuming L2", zap.Uint8("level", buf[0]))
		acc.FeatureLevel = Level2
	}

	routing := uint16(buf[5])<<8 | uint16(buf[6])
	for i, raw := range buf[7:setupReplyLen] {
		if raw == 0 {
			continue
		}
		acc.CoinTypes[i] = &CoinType{
			UnscaledValue:   uint16(raw) * uint16(acc.ScalingFactor),
			RouteableToTube: routing&(1<<i) != 0,
		}
	}
	return acc
}

func (a *Acceptor) discoverL3(ctx context.Context, bus *mdb.Bus, log *zap.Logger) {
	log.Debug("probing L3 features")
	buf := make([]byte, 48)
	n, err := bus.SendCommandExpectData(ctx, []byte{cmdExpansion, subIdent}, buf)
	if err != nil {
		log.Error("L3 identify failed", zap.Error(err))
		return
	}
	if n != identReplyLen {
		log.Error("L3 identify reply has wrong length", zap.Int("len", n))
		return
	}

	opts := buf[identOptionsOffset]
	l3 := &L3Features{
		Manufacturer:         identString(buf[0:3], "manufacturer", log),
		SerialNumber:         identString(buf[3:15], "serial number", log),
		Model:                identString(buf[15:27], "model", log),
		SoftwareVersion:      identString(buf[27:29], "software version", log),
		AltPayout:            opts&FeatureAltPayout != 0,
		ExtendedDiagnostic:   opts&FeatureExtendedDiagnostic != 0,
		ControlledFillPayout: opts&FeatureControlledFillPayout != 0,
		FTL:                  opts&FeatureFTL != 0,
	}
	a.L3 = l3

	var enable byte
	if l3.AltPayout {
		enable |= FeatureAltPayout
	}
	if l3.ExtendedDiagnostic {
		enable |= FeatureExtendedDiagnostic
	}
	if err := a.L3EnableFeatures(ctx, bus, enable); err != nil {
		log.Error("L3 features failed to enable", zap.Error(err))
		return
	}
	log.Debug("L3 features enabled OK", zap.Uint8("mask", enable))
}

func identString(b []byte, field string, log *zap.Logger) string {
	if !utf8.Valid(b) {
		log.Error("non UTF-8 text in identification", zap.String("field", field))
		return ""
	}
	return strings.TrimRight(string(b), " \x00")
}

// L3EnableFeatures turns on the optional L3 features in mask
func (a *Acceptor) L3EnableFeatures(ctx context.Context, bus *mdb.Bus, mask byte) error {
	if a.FeatureLevel != Level3 {
		return fmt.Errorf("%w: L3 feature enable on %s changer", mdb.ErrUnsupported, a.FeatureLevel)
	}
	if !bus.SendCommandExpectAck(ctx, []byte{cmdExpansion, subFeatureEnable, 0x00, 0x00, 0x00, mask}) {
		return fmt.Errorf("feature enable: %w", mdb.ErrNotAcknowledged)
	}
	return nil
}

// UpdateCoinCounts refreshes tube counts and tube full flags
func (a *Acceptor) UpdateCoinCounts(ctx context.Context, bus *mdb.Bus) error {
	buf := make([]byte, tubeStatusReplyLen)
	n, err := bus.SendCommandExpectData(ctx, []byte{cmdTubeStatus}, buf)
	if err != nil {
		return fmt.Errorf("tube status: %w", err)
	}
	if n != tubeStatusReplyLen {
		return fmt.Errorf("%w: tube status reply is %d bytes", mdb.ErrUnexpectedReply, n)
	}

	full := uint16(buf[0])<<8 | uint16(buf[1])
	for i, ct := range a.CoinTypes {
		if ct == nil {
			continue
		}
		ct.NumCoins = buf[i+2]
		ct.TubeFull = full&(1<<i) != 0
	}
	bus.Logger().Named("coin").Debug("coin counts updated")
	return nil
}

// EnableCoins sets which coin types are accepted. Manual dispense is always
// enabled for every coin.
func (*Acceptor) EnableCoins(ctx context.Context, bus *mdb.Bus, mask uint16) error {
	if !bus.SendCommandExpectAck(ctx, []byte{cmdCoinType, byte(mask), byte(mask >> 8), 0xFF, 0xFF}) {
		return fmt.Errorf("coin type: %w", mdb.ErrNotAcknowledged)
	}
	return nil
}

// CoinTypeMask returns a mask with a bit set for every occupied slot
func (a *Acceptor) CoinTypeMask() uint16 {
	var mask uint16
	for i, ct := range a.CoinTypes {
		if ct != nil {
			mask |= 1 << i
		}
	}
	return mask
}

// TubeValue returns the unscaled value of every coin currently in the tubes
func (a *Acceptor) TubeValue() uint32 {
	var total uint32
	for _, ct := range a.CoinTypes {
		if ct != nil {
			total += uint32(ct.UnscaledValue) * uint32(ct.NumCoins)
		}
	}
	return total
}

// unscaledValue returns the value of slot id, or 0 for an empty slot
func (a *Acceptor) unscaledValue(id uint8) (uint16, bool) {
	if int(id) >= len(a.CoinTypes) || a.CoinTypes[id] == nil {
		return 0, false
	}
	return a.CoinTypes[id].UnscaledValue, true
}
