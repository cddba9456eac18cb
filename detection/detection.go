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

// Package detection finds serial ports that may host an MDB bridge.
package detection

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// Options controls which ports FindPorts reports
type Options struct {
	// Blocklist holds VID:PID pairs to skip. Nil means DefaultBlocklist.
	Blocklist []string
	// IgnorePaths holds device paths to skip
	IgnorePaths []string
	// USBOnly drops ports without USB descriptors, such as on-board UARTs
	USBOnly bool
}

// DefaultOptions returns options that list every port not blocklisted
func DefaultOptions() Options {
	return Options{}
}

// PortInfo describes one candidate port
type PortInfo struct {
	Path         string
	VIDPID       string
	SerialNumber string
	Product      string
	IsUSB        bool
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Path
	}
	s := fmt.Sprintf("%s [%s]", p.Path, p.VIDPID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.SerialNumber != "" {
		s += " sn=" + p.SerialNumber
	}
	return s
}

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// FindPorts lists serial ports sorted by path, minus blocked and ignored ones
func FindPorts(opts Options) ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return filterPorts(details, opts), nil
}

func filterPorts(details []*enumerator.PortDetails, opts Options) []PortInfo {
	blocklist := opts.Blocklist
	if blocklist == nil {
		blocklist = DefaultBlocklist()
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		if IsPathIgnored(d.Name, opts.IgnorePaths) {
			continue
		}
		if !d.IsUSB && opts.USBOnly {
			continue
		}

		info := PortInfo{Path: d.Name, IsUSB: d.IsUSB}
		if d.IsUSB {
			info.VIDPID = ParseVIDPID(d.VID + ":" + d.PID)
			info.SerialNumber = d.SerialNumber
			info.Product = d.Product
			if IsBlocked(info.VIDPID, blocklist) {
				continue
			}
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports
}
