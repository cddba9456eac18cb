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

// Package uart connects the bus to a serial MDB bridge.
//
// The bridge drives the 9-bit UART and exchanges every bus byte with the host
// as a [mode, data] pair over an ordinary 8N1 serial link.
package uart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mdb/internal/frame"
	"go.bug.st/serial"
)

// Defaults for the serial link to the bridge
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 50 * time.Millisecond
)

// ErrClosed is returned by operations on a closed transport
var ErrClosed = errors.New("uart transport closed")

// Port is the subset of serial.Port the transport needs
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Config describes the serial link
type Config struct {
	PortName    string
	BaudRate    int
	ReadTimeout time.Duration
}

// Transport implements mdb.Transport over a serial bridge
type Transport struct {
	port     Port
	portName string
	pending  []byte
	mu       sync.Mutex
}

// New opens the serial port described by cfg
func New(cfg Config) (*Transport, error) {
	if cfg.PortName == "" {
		return nil, errors.New("port name must not be empty")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.PortName, err)
	}

	t, err := NewWithPort(port, cfg.ReadTimeout)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	t.portName = cfg.PortName
	return t, nil
}

// NewWithPort wraps an already open port
func NewWithPort(port Port, readTimeout time.Duration) (*Transport, error) {
	if port == nil {
		return nil, errors.New("port must not be nil")
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return &Transport{port: port}, nil
}

// PortName returns the device path, empty for wrapped ports
func (t *Transport) PortName() string {
	return t.portName
}

// Read returns one peripheral reply in pair representation. It collects
// pairs until one carries the end of frame flag or p is full. A read timeout
// returns whatever was collected, 0 bytes if nothing arrived.
func (t *Transport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return 0, ErrClosed
	}

	var chunk [frame.ScratchSize]byte
	for {
		if end := t.frameEnd(); end > 0 {
			return t.drain(p, end), nil
		}
		if len(t.pending) >= len(p) {
			return t.drain(p, len(t.pending)), nil
		}

		got, err := t.port.Read(chunk[:])
		if err != nil {
			return 0, fmt.Errorf("serial read: %w", err)
		}
		if got == 0 {
			return t.drain(p, len(t.pending)), nil
		}
		t.pending = append(t.pending, chunk[:got]...)
	}
}

// frameEnd returns the length of the pending prefix that ends with an end of
// frame pair, or 0 if no complete frame is pending
func (t *Transport) frameEnd() int {
	for i := 0; i+frame.PairSize <= len(t.pending); i += frame.PairSize {
		if t.pending[i] == frame.ModeAddress {
			return i + frame.PairSize
		}
	}
	return 0
}

// drain moves up to limit pending bytes into dst
func (t *Transport) drain(dst []byte, limit int) int {
	n := copy(dst, t.pending[:limit])
	t.pending = t.pending[n:]
	if len(t.pending) == 0 {
		t.pending = nil
	}
	return n
}

// Write sends p unchanged
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return 0, ErrClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write: %w", err)
	}
	return n, nil
}

// Close releases the port. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.pending = nil
	return err
}
