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
	"encoding/binary"
	"fmt"
	"strings"

	mdb "github.com/ZaparooProject/go-mdb"
	"go.uber.org/zap"
)

// MaxDiagStatuses is the most status words one diagnostic reply carries
const MaxDiagStatuses = 8

// DiagStatus is a two byte L3 diagnostic status, main code in the high byte
type DiagStatus uint16

const (
	DiagPoweringUp                 DiagStatus = 0x0100
	DiagPoweringDown               DiagStatus = 0x0200
	DiagOK                         DiagStatus = 0x0300
	DiagKeypadShifted              DiagStatus = 0x0400
	DiagManualActive               DiagStatus = 0x0510
	DiagNewInventoryInformation    DiagStatus = 0x0520
	DiagInhibited                  DiagStatus = 0x0600
	DiagGeneralError               DiagStatus = 0x1000
	DiagGeneralChecksum1           DiagStatus = 0x1001
	DiagGeneralChecksum2           DiagStatus = 0x1002
	DiagGeneralVoltage             DiagStatus = 0x1003
	DiagDiscriminatorError         DiagStatus = 0x1100
	DiagDiscriminatorFlightOpen    DiagStatus = 0x1110
	DiagDiscriminatorReturnOpen    DiagStatus = 0x1111
	DiagDiscriminatorJam           DiagStatus = 0x1130
	DiagDiscriminatorBelowStandard DiagStatus = 0x1141
	DiagDiscriminatorSensorA       DiagStatus = 0x1150
	DiagDiscriminatorSensorB       DiagStatus = 0x1151
	DiagDiscriminatorSensorC       DiagStatus = 0x1152
	DiagDiscriminatorTemperature   DiagStatus = 0x1153
	DiagDiscriminatorOptics        DiagStatus = 0x1154
	DiagAccepterError              DiagStatus = 0x1200
	DiagAccepterJam                DiagStatus = 0x1230
	DiagAccepterAlarm              DiagStatus = 0x1231
	DiagAccepterEmpty              DiagStatus = 0x1240
	DiagAccepterExitBeforeEnter    DiagStatus = 0x1250
	DiagSeparatorError             DiagStatus = 0x1300
	DiagSeparatorSortSensor        DiagStatus = 0x1310
	DiagDispenserError             DiagStatus = 0x1400
	DiagStorageError               DiagStatus = 0x1500
	DiagStorageCassetteRemoved     DiagStatus = 0x1502
	DiagStorageCashboxSensor       DiagStatus = 0x1503
	DiagStorageAmbientLight        DiagStatus = 0x1504
)

var diagNames = map[DiagStatus]string{
	DiagPoweringUp:                 "powering up",
	DiagPoweringDown:               "powering down",
	DiagOK:                         "ok",
	DiagKeypadShifted:              "keypad shifted",
	DiagManualActive:               "manual fill/payout active",
	DiagNewInventoryInformation:    "new inventory information",
	DiagInhibited:                  "inhibited by VMC",
	DiagGeneralError:               "general error",
	DiagGeneralChecksum1:           "checksum error #1",
	DiagGeneralChecksum2:           "checksum error #2",
	DiagGeneralVoltage:             "low line voltage",
	DiagDiscriminatorError:         "discriminator error",
	DiagDiscriminatorFlightOpen:    "flight deck open",
	DiagDiscriminatorReturnOpen:    "escrow return stuck open",
	DiagDiscriminatorJam:           "coin jam in sensor",
	DiagDiscriminatorBelowStandard: "discrimination below standard",
	DiagDiscriminatorSensorA:       "validation sensor A out of range",
	DiagDiscriminatorSensorB:       "validation sensor B out of range",
	DiagDiscriminatorSensorC:       "validation sensor C out of range",
	DiagDiscriminatorTemperature:   "operating temperature exceeded",
	DiagDiscriminatorOptics:        "sizing optics failure",
	DiagAccepterError:              "accept gate error",
	DiagAccepterJam:                "coins entered gate but did not exit",
	DiagAccepterAlarm:              "accept gate alarm active",
	DiagAccepterEmpty:              "accept gate open but no coin detected",
	DiagAccepterExitBeforeEnter:    "post gate sensor covered before gate opened",
	DiagSeparatorError:             "separator error",
	DiagSeparatorSortSensor:        "sort sensor error",
	DiagDispenserError:             "dispenser error",
	DiagStorageError:               "coin cassette error",
	DiagStorageCassetteRemoved:     "cassette removed",
	DiagStorageCashboxSensor:       "cash box sensor error",
	DiagStorageAmbientLight:        "sunlight on tube sensors",
}

func (d DiagStatus) String() string {
	if name, ok := diagNames[d]; ok {
		return name
	}
	return fmt.Sprintf("diag 0x%04X", uint16(d))
}

// DiagResult is the set of statuses from one diagnostic request
type DiagResult []DiagStatus

// OK reports whether the changer has nothing to complain about
func (r DiagResult) OK() bool {
	return len(r) == 0 || (len(r) == 1 && r[0] == DiagOK)
}

func (r DiagResult) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}

// ParseDiagResult decodes big-endian status words. A trailing odd byte is
// ignored and at most MaxDiagStatuses words are returned.
func ParseDiagResult(b []byte) DiagResult {
	n := min(len(b)/2, MaxDiagStatuses)
	result := make(DiagResult, n)
	for i := range result {
		result[i] = DiagStatus(binary.BigEndian.Uint16(b[i*2:]))
	}
	return result
}

// L3DiagnosticStatus requests the extended diagnostic status
func (a *Acceptor) L3DiagnosticStatus(ctx context.Context, bus *mdb.Bus) (DiagResult, error) {
	if a.FeatureLevel != Level3 {
		return nil, fmt.Errorf("%w: diagnostics on %s changer", mdb.ErrUnsupported, a.FeatureLevel)
	}

	buf := make([]byte, MaxDiagStatuses*2)
	n, err := bus.SendCommandExpectData(ctx, []byte{cmdExpansion, subDiagnosticStatus}, buf)
	if err != nil {
		return nil, fmt.Errorf("diagnostic status: %w", err)
	}
	if n%2 != 0 {
		bus.Logger().Named("coin").Debug("odd length diagnostic reply", zap.Int("len", n))
	}
	return ParseDiagResult(buf[:n]), nil
}
