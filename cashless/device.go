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

// Package cashless drives an MDB cashless payment reader: the setup
// handshake, reader enable, poll sub-event parsing and the vend session.
package cashless

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	mdb "github.com/ZaparooProject/go-mdb"
	"go.uber.org/zap"
)

// Level is the reader feature level
type Level uint8

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
)

func (l Level) String() string {
	return fmt.Sprintf("L%d", uint8(l))
}

// Options are the basic option bits of the reader config
type Options struct {
	RestoreFunds bool
	Multivend    bool
	HasDisplay   bool
	CashSale     bool
}

// ReaderConfig is the reader's answer to the VMC setup
type ReaderConfig struct {
	Options         Options
	CountryCode     uint16
	FeatureLevel    Level
	ScaleFactor     uint8
	DecimalPlaces   uint8
	MaxResponseTime uint8
}

// Identity is the manufacturer, serial, model and software version block
// exchanged by the expansion request
type Identity struct {
	Manufacturer    string
	SerialNumber    string
	Model           string
	SoftwareVersion string
}

// L3Options are the optional features a Level 3 reader reports. Readers
// below L3 leave them all false.
type L3Options struct {
	FTL              bool
	Money32          bool
	MultiCurrency    bool
	NegativeVend     bool
	DataEntry        bool
	AlwaysIdle       bool
	RemoteVend       bool
	Basket           bool
	Coupon           bool
	AskBeginSession  bool
	EnhancedItemInfo bool
}

// DefaultVMCIdentity is how the VMC identifies itself to readers
var DefaultVMCIdentity = Identity{
	Manufacturer:    "DMP",
	SerialNumber:    "000000000001",
	Model:           "000000000001",
	SoftwareVersion: "01",
}

// Config contains configuration options for a Device
type Config struct {
	VMCIdentity Identity
	// VendPollLimit bounds the polls waiting for a vend decision
	VendPollLimit int
	// RefundPollLimit bounds the polls waiting for a refund after a failed vend
	RefundPollLimit    int
	VendPollInterval   time.Duration
	RefundPollInterval time.Duration
}

// DefaultConfig returns default reader configuration
func DefaultConfig() *Config {
	return &Config{
		VMCIdentity:        DefaultVMCIdentity,
		VendPollLimit:      150,
		VendPollInterval:   200 * time.Millisecond,
		RefundPollLimit:    100,
		RefundPollInterval: 100 * time.Millisecond,
	}
}

// withDefaults returns a copy of c with zero fields taken from DefaultConfig
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.VMCIdentity == (Identity{}) {
		out.VMCIdentity = def.VMCIdentity
	}
	if out.VendPollLimit <= 0 {
		out.VendPollLimit = def.VendPollLimit
	}
	if out.VendPollInterval <= 0 {
		out.VendPollInterval = def.VendPollInterval
	}
	if out.RefundPollLimit <= 0 {
		out.RefundPollLimit = def.RefundPollLimit
	}
	if out.RefundPollInterval <= 0 {
		out.RefundPollInterval = def.RefundPollInterval
	}
	return &out
}

// Device is an initialized cashless reader. Like the coin acceptor it owns
// no I/O and borrows the bus for each call. A Device is not safe for
// concurrent use.
type Device struct {
	ReaderConfig
	Identity Identity
	L3       L3Options

	config  *Config
	pending []Event
	state   State
}

// Init resets the reader and runs the setup handshake. The reader is left
// disabled; call SetDeviceEnabled to accept payments.
func Init(ctx context.Context, bus *mdb.Bus, config *Config) (*Device, error) {
	config = config.withDefaults()
	log := bus.Logger().Named("cashless")

	if !bus.SendCommandExpectAck(ctx, []byte{cmdReset}) {
		return nil, fmt.Errorf("%w: reset not acknowledged", mdb.ErrHandshake)
	}

	buf := make([]byte, mdb.MaxFrameLength)
	n, err := bus.SendCommandExpectData(ctx, []byte{cmdPoll}, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: initial poll: %w", mdb.ErrHandshake, err)
	}
	if n < 1 || buf[0] != pollJustReset {
		return nil, fmt.Errorf("%w: unexpected reply after reset % X", mdb.ErrHandshake, buf[:n])
	}
	log.Debug("received just reset from cashless device")

	n, err = bus.SendCommandExpectData(ctx, vmcSetupData, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: setup: %w", mdb.ErrHandshake, err)
	}
	if n != readerConfigLen {
		return nil, fmt.Errorf("%w: setup reply is %d bytes, expected %d", mdb.ErrHandshake, n, readerConfigLen)
	}

	dev := &Device{
		config:       config,
		ReaderConfig: parseReaderConfig(buf[:n]),
		state:        StateIdle,
	}
	log.Debug("reader config",
		zap.Stringer("level", dev.FeatureLevel),
		zap.Uint16("country", dev.CountryCode),
		zap.Uint8("scale", dev.ScaleFactor),
		zap.Uint8("decimals", dev.DecimalPlaces))

	if !bus.SendCommandExpectAck(ctx, vmcPriceData) {
		return nil, fmt.Errorf("%w: min/max prices not acknowledged", mdb.ErrHandshake)
	}

	n, err = bus.SendCommandExpectData(ctx, expansionRequest(config.VMCIdentity), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: expansion request: %w", mdb.ErrHandshake, err)
	}
	want := idReplyLen
	if dev.FeatureLevel == Level3 {
		want = idReplyLenL3
	}
	if n != want {
		return nil, fmt.Errorf("%w: %s reader sent %d bytes of expansion data, expected %d",
			mdb.ErrHandshake, dev.FeatureLevel, n, want)
	}
	dev.Identity, dev.L3 = parsePeripheralID(buf[:n], log)

	if dev.FeatureLevel == Level3 {
		enable := []byte{cmdExpansion, expansionEnableOptions, 0x00, 0x00, 0x00, enableAlwaysIdle}
		if bus.SendCommandExpectAck(ctx, enable) {
			log.Debug("always idle enabled")
		} else {
			log.Error("optional feature enable not acknowledged")
		}
	}

	return dev, nil
}

func parseReaderConfig(b []byte) ReaderConfig {
	cfg := ReaderConfig{
		FeatureLevel:    Level1,
		CountryCode:     uint16(b[2])<<8 | uint16(b[3]),
		ScaleFactor:     b[4],
		DecimalPlaces:   b[5],
		MaxResponseTime: b[6],
		Options: Options{
			RestoreFunds: b[7]&optRestoreFunds != 0,
			Multivend:    b[7]&optMultivend != 0,
			HasDisplay:   b[7]&optDisplay != 0,
			CashSale:     b[7]&optCashSale != 0,
		},
	}
	switch b[1] {
	case 0x02:
		cfg.FeatureLevel = Level2
	case 0x03:
		cfg.FeatureLevel = Level3
	}
	return cfg
}

func parsePeripheralID(b []byte, log *zap.Logger) (Identity, L3Options) {
	id := Identity{
		Manufacturer:    idString(b[1:4], log),
		SerialNumber:    idString(b[4:16], log),
		Model:           idString(b[16:28], log),
		SoftwareVersion: idString(b[28:30], log),
	}
	if len(b) < idReplyLenL3 {
		return id, L3Options{}
	}

	lo, hi := b[l3OptionsLo], b[l3OptionsHi]
	return id, L3Options{
		FTL:              lo&optFTL != 0,
		Money32:          lo&optMoney32 != 0,
		MultiCurrency:    lo&optMultiCurrency != 0,
		NegativeVend:     lo&optNegativeVend != 0,
		DataEntry:        lo&optDataEntry != 0,
		AlwaysIdle:       lo&optAlwaysIdle != 0,
		RemoteVend:       lo&optRemoteVend != 0,
		Basket:           lo&optBasket != 0,
		Coupon:           hi&optCoupon != 0,
		AskBeginSession:  hi&optAskBeginSession != 0,
		EnhancedItemInfo: hi&optEnhancedItemInfo != 0,
	}
}

func idString(b []byte, log *zap.Logger) string {
	if !utf8.Valid(b) {
		log.Error("non UTF-8 peripheral id field", zap.Binary("raw", b))
		return ""
	}
	return strings.TrimRight(string(b), " \x00")
}

// expansionRequest builds the 31 byte request id command
func expansionRequest(id Identity) []byte {
	msg := make([]byte, 0, 31)
	msg = append(msg, cmdExpansion, expansionRequestID)
	msg = appendField(msg, id.Manufacturer, 3)
	msg = appendField(msg, id.SerialNumber, 12)
	msg = appendField(msg, id.Model, 12)
	return appendField(msg, id.SoftwareVersion, 2)
}

// appendField writes s into exactly n bytes, space padded
func appendField(msg []byte, s string, n int) []byte {
	for i := 0; i < n; i++ {
		if i < len(s) {
			msg = append(msg, s[i])
		} else {
			msg = append(msg, ' ')
		}
	}
	return msg
}

func (d *Device) cfg() *Config {
	if d.config == nil {
		d.config = DefaultConfig()
	}
	return d.config
}

// State returns the vend session state
func (d *Device) State() State {
	return d.state
}

// Parser returns a parser sized for this reader
func (d *Device) Parser() Parser {
	return Parser{Level: d.FeatureLevel}
}

// SetDeviceEnabled enables or disables the reader. Enabling an enabled reader
// keeps its state.
func (d *Device) SetDeviceEnabled(ctx context.Context, bus *mdb.Bus, enable bool) error {
	sub := byte(readerDisable)
	if enable {
		sub = readerEnable
	}
	if !bus.SendCommandExpectAck(ctx, []byte{cmdReader, sub}) {
		return fmt.Errorf("reader enable=%t: %w", enable, mdb.ErrNotAcknowledged)
	}

	switch {
	case !enable:
		d.state = StateIdle
	case d.state == StateIdle:
		d.state = StateEnabled
	}
	bus.Logger().Named("cashless").Debug("reader enable", zap.Bool("enabled", enable), zap.Stringer("state", d.state))
	return nil
}

// Poll returns queued events first, then polls the reader. An ACK reply
// means nothing new happened.
func (d *Device) Poll(ctx context.Context, bus *mdb.Bus) ([]Event, error) {
	events := d.takePending(MaxPollEvents)
	if len(events) == MaxPollEvents {
		return events, nil
	}

	fresh, err := d.pollOnce(ctx, bus)
	if err != nil {
		d.pending = append(events, d.pending...)
		return nil, err
	}

	room := MaxPollEvents - len(events)
	if len(fresh) > room {
		d.pending = append(d.pending, fresh[room:]...)
		fresh = fresh[:room]
	}
	return append(events, fresh...), nil
}

// pollOnce sends one POLL and applies state changes for what it returns
func (d *Device) pollOnce(ctx context.Context, bus *mdb.Bus) ([]Event, error) {
	buf := make([]byte, mdb.MaxFrameLength)
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

	return d.parseReply(buf[:resp.Len], bus.Logger().Named("cashless")), nil
}

// parseReply tokenizes a data reply and applies its state changes
func (d *Device) parseReply(data []byte, log *zap.Logger) []Event {
	events := d.Parser().Parse(data, log)
	for _, ev := range events {
		d.observe(ev, log)
	}
	return events
}

func (d *Device) takePending(limit int) []Event {
	n := min(len(d.pending), limit)
	events := make([]Event, n, MaxPollEvents)
	copy(events, d.pending)
	d.pending = d.pending[n:]
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return events
}

// queue keeps events for the next Poll
func (d *Device) queue(events ...Event) {
	d.pending = append(d.pending, events...)
}

// observe applies the state change an event implies
func (d *Device) observe(ev Event, log *zap.Logger) {
	prev := d.state
	switch e := ev.(type) {
	case JustReset:
		d.state = StateIdle
	case BeginSessionBasic, BeginSessionAdvanced:
		if d.state == StateEnabled {
			d.state = StateSessionActive
		}
	case EndSession:
		if d.state != StateIdle {
			d.state = StateEnabled
		}
	case VendApproved:
		if d.state == StateVendPending {
			d.state = StateVendAuthorized
		}
	case VendDenied:
		if d.state == StateVendPending {
			d.state = StateDenied
		}
	case Malfunction:
		log.Error("reader malfunction", zap.Stringer("code", e.Code))
	case ReaderConfigData:
		d.ReaderConfig = e.Config
	}
	if d.state != prev {
		log.Debug("session state", zap.Stringer("from", prev), zap.Stringer("to", d.state))
	}
}
