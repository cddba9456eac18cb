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

// Package testing provides a scripted MDB transport and reply builders for
// tests. Import it as testutil.
package testing

import (
	"bytes"
	"sync"

	"github.com/ZaparooProject/go-mdb/internal/frame"
)

// Handler produces the reply to a decoded command. Returning nil simulates a
// peripheral that does not answer.
type Handler func(cmd []byte) []byte

// MockTransport records everything the VMC writes and replays scripted
// replies, one per Read.
type MockTransport struct {
	handler  Handler
	readErr  error
	writeErr error
	replies  [][]byte
	writes   [][]byte
	reads    int
	mu       sync.Mutex
}

// NewMockTransport creates a transport that answers with replies in order
func NewMockTransport(replies ...[]byte) *MockTransport {
	m := &MockTransport{}
	m.Queue(replies...)
	return m
}

// NewMockTransportWithHandler creates a transport whose replies are computed
// from each command written to it
func NewMockTransportWithHandler(fn Handler) *MockTransport {
	return &MockTransport{handler: fn}
}

// Queue appends scripted replies
func (m *MockTransport) Queue(replies ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.replies = append(m.replies, append([]byte(nil), r...))
	}
}

// SetReadError makes every following Read fail with err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes every following Write fail with err
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Read pops the next reply. An exhausted script reads as a timeout.
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.replies) == 0 {
		return 0, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return copy(p, reply), nil
}

// Write records p and, in handler mode, queues the reply to the command
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), p...))

	if m.handler != nil && len(p) > 0 && p[0] == frame.ModeAddress {
		cmd, err := frame.Decode(p)
		if err == nil {
			if reply := m.handler(cmd); reply != nil {
				m.replies = append(m.replies, reply)
			}
		}
	}
	return len(p), nil
}

// Writes returns every raw write in order
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Commands returns the decoded command frames, skipping status frames
func (m *MockTransport) Commands() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cmds [][]byte
	for _, w := range m.writes {
		if len(w) == 0 || w[0] != frame.ModeAddress {
			continue
		}
		if cmd, err := frame.Decode(w); err == nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// CommandCount returns how many commands started with prefix
func (m *MockTransport) CommandCount(prefix ...byte) int {
	count := 0
	for _, cmd := range m.Commands() {
		if bytes.HasPrefix(cmd, prefix) {
			count++
		}
	}
	return count
}

// AckCount returns how many ACK status frames the VMC sent
func (m *MockTransport) AckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ack := frame.EncodeStatus(frame.ACK)
	count := 0
	for _, w := range m.writes {
		if bytes.Equal(w, ack) {
			count++
		}
	}
	return count
}

// Pending returns the number of replies not yet read
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// ReadCount returns how many times Read was called
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
