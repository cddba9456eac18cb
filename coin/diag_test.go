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
	"testing"

	mdb "github.com/ZaparooProject/go-mdb"
	testutil "github.com/ZaparooProject/go-mdb/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want DiagResult
		ok   bool
	}{
		{name: "Empty", data: nil, want: DiagResult{}, ok: true},
		{name: "OK", data: []byte{0x03, 0x00}, want: DiagResult{DiagOK}, ok: true},
		{
			name: "Errors",
			data: []byte{0x11, 0x30, 0x15, 0x02},
			want: DiagResult{DiagDiscriminatorJam, DiagStorageCassetteRemoved},
		},
		{name: "Odd_Trailing_Byte", data: []byte{0x06, 0x00, 0x10}, want: DiagResult{DiagInhibited}},
		{
			name: "Capped",
			data: []byte{
				0x10, 0x00, 0x10, 0x01, 0x10, 0x02, 0x10, 0x03,
				0x11, 0x00, 0x12, 0x00, 0x13, 0x00, 0x14, 0x00, 0x15, 0x00,
			},
			want: DiagResult{
				DiagGeneralError, DiagGeneralChecksum1, DiagGeneralChecksum2, DiagGeneralVoltage,
				DiagDiscriminatorError, DiagAccepterError, DiagSeparatorError, DiagDispenserError,
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDiagResult(tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, got.OK())
		})
	}
}

func TestAcceptor_L3DiagnosticStatus(t *testing.T) {
	t.Parallel()

	t.Run("Level3", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport(testutil.Data(0x05, 0x10, 0x03, 0x00))
		result, err := level3Acceptor().L3DiagnosticStatus(context.Background(), newTestBus(t, mock))
		require.NoError(t, err)
		assert.Equal(t, DiagResult{DiagManualActive, DiagOK}, result)
		assert.False(t, result.OK())
		assert.Equal(t, "manual fill/payout active, ok", result.String())
		assert.Equal(t, []byte{0x0F, 0x05}, mock.Commands()[0])
	})

	t.Run("Level2", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport()
		_, err := level2Acceptor().L3DiagnosticStatus(context.Background(), newTestBus(t, mock))
		require.ErrorIs(t, err, mdb.ErrUnsupported)
		assert.Empty(t, mock.Writes())
	})

	t.Run("Status_Reply", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport(testutil.Nak())
		_, err := level3Acceptor().L3DiagnosticStatus(context.Background(), newTestBus(t, mock))
		assert.ErrorIs(t, err, mdb.ErrUnexpectedStatus)
	})
}

func TestDiagStatus_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "tube jam", StatusTubeJam.String())
	assert.Equal(t, "coin jam in sensor", DiagDiscriminatorJam.String())
	assert.Equal(t, "diag 0x7777", DiagStatus(0x7777).String())
}
