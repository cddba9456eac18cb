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

package uart

import (
	"context"
	"errors"
	"testing"
	"time"

	mdb "github.com/ZaparooProject/go-mdb"
	testutil "github.com/ZaparooProject/go-mdb/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort hands out chunks one per Read, then reads as a timeout
type fakePort struct {
	readErr error
	chunks  [][]byte
	written [][]byte
	timeout time.Duration
	closed  int
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	if n < len(f.chunks[0]) {
		f.chunks[0] = f.chunks[0][n:]
	} else {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	return nil
}

func (f *fakePort) Close() error {
	f.closed++
	return nil
}

func TestNewWithPort(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr, err := NewWithPort(port, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultReadTimeout, port.timeout)
	assert.Empty(t, tr.PortName())

	_, err = NewWithPort(nil, time.Second)
	require.Error(t, err)
}

func TestNew_RequiresPortName(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
}

func TestTransport_Read(t *testing.T) {
	t.Parallel()

	reply := testutil.Data(0x01, 0x02, 0x03)

	tests := []struct {
		name   string
		chunks [][]byte
		want   []byte
		bufLen int
	}{
		{
			name:   "Whole_Frame",
			chunks: [][]byte{reply},
			want:   reply,
		},
		{
			name:   "Split_Across_Reads",
			chunks: [][]byte{reply[:3], reply[3:5], reply[5:]},
			want:   reply,
		},
		{
			name:   "Status",
			chunks: [][]byte{testutil.Ack()},
			want:   testutil.Ack(),
		},
		{
			name:   "Timeout",
			chunks: nil,
			want:   []byte{},
		},
		{
			name:   "Partial_Then_Timeout",
			chunks: [][]byte{reply[:4]},
			want:   reply[:4],
		},
		{
			name:   "Buffer_Full",
			chunks: [][]byte{reply},
			want:   reply[:4],
			bufLen: 4,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := NewWithPort(&fakePort{chunks: tt.chunks}, time.Millisecond)
			require.NoError(t, err)

			size := tt.bufLen
			if size == 0 {
				size = 72
			}
			buf := make([]byte, size)
			n, err := tr.Read(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf[:n])
		})
	}
}

func TestTransport_Read_KeepsNextFrame(t *testing.T) {
	t.Parallel()

	first := testutil.Ack()
	second := testutil.Data(0x07)
	tr, err := NewWithPort(&fakePort{chunks: [][]byte{append(append([]byte(nil), first...), second...)}}, time.Millisecond)
	require.NoError(t, err)

	buf := make([]byte, 72)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, first, buf[:n])

	n, err = tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, second, buf[:n])
}

func TestTransport_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("device unplugged")
	tr, err := NewWithPort(&fakePort{readErr: boom}, time.Millisecond)
	require.NoError(t, err)

	_, err = tr.Read(make([]byte, 8))
	require.ErrorIs(t, err, boom)
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()
	port := &fakePort{}
	tr, err := NewWithPort(port, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, port.closed)

	_, err = tr.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrClosed)
	_, err = tr.Write([]byte{0x00})
	require.ErrorIs(t, err, ErrClosed)
}

func TestTransport_DrivesBus(t *testing.T) {
	t.Parallel()

	port := &fakePort{chunks: [][]byte{testutil.Data(0x00)}}
	tr, err := NewWithPort(port, time.Millisecond)
	require.NoError(t, err)
	bus, err := mdb.New(tr)
	require.NoError(t, err)

	out := make([]byte, mdb.MaxFrameLength)
	n, err := bus.SendCommandExpectData(context.Background(), []byte{0x0B}, out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, out[:n])

	require.Len(t, port.written, 2)
	assert.Equal(t, []byte{0x01, 0x0B, 0x00, 0x0B}, port.written[0])
	assert.Equal(t, []byte{0x00, 0x00}, port.written[1], "data reply acknowledged")
}
