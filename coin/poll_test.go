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

func TestParsePoll(t *testing.T) {
	t.Parallel()
	acc := level3Acceptor()

	tests := []struct {
		name string
		data []byte
		want []Event
	}{
		{
			name: "Status",
			data: []byte{0x0B},
			want: []Event{Status{Code: StatusChangerReset}},
		},
		{
			name: "Slug_Count",
			data: []byte{0x3F},
			want: []Event{SlugCount{Count: 0x1F}},
		},
		{
			name: "Coin_To_Tube",
			data: []byte{0x52, 0x07},
			want: []Event{CoinInserted{CoinType: 2, UnscaledValue: 25, Routing: RoutingTube, CoinsRemaining: 7}},
		},
		{
			name: "Coin_To_Cash_Box",
			data: []byte{0x47, 0x00},
			want: []Event{CoinInserted{CoinType: 7, UnscaledValue: 1000, Routing: RoutingCashBox}},
		},
		{
			name: "Coin_Rejected",
			data: []byte{0x70, 0x01},
			want: []Event{CoinInserted{CoinType: 0, UnscaledValue: 5, Routing: RoutingReject, CoinsRemaining: 1}},
		},
		{
			name: "Coin_Unknown_Routing",
			data: []byte{0x61, 0x02},
			want: []Event{CoinInserted{CoinType: 1, UnscaledValue: 10, Routing: RoutingUnknown, CoinsRemaining: 2}},
		},
		{
			name: "Manual_Dispense",
			data: []byte{0xB3, 0x04},
			want: []Event{ManualDispense{CoinType: 3, UnscaledValue: 50, Count: 3, CoinsRemaining: 4}},
		},
		{
			name: "Unknown_Coin_Type",
			data: []byte{0x4C, 0x00},
			want: []Event{CoinInserted{CoinType: 12, Routing: RoutingCashBox}},
		},
		{
			name: "Mixed_In_Order",
			data: []byte{0x03, 0x52, 0x07, 0x21, 0x81, 0x09},
			want: []Event{
				Status{Code: StatusNoCredit},
				CoinInserted{CoinType: 2, UnscaledValue: 25, Routing: RoutingTube, CoinsRemaining: 7},
				SlugCount{Count: 1},
				ManualDispense{CoinType: 1, UnscaledValue: 10, Count: 0, CoinsRemaining: 9},
			},
		},
		{
			name: "Truncated_Pair_Dropped",
			data: []byte{0x0A, 0x52},
			want: []Event{Status{Code: StatusChangerBusy}},
		},
		{
			name: "Empty",
			data: nil,
			want: []Event{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, acc.ParsePoll(tt.data, nil))
		})
	}
}

func TestParsePoll_EventCap(t *testing.T) {
	t.Parallel()
	data := make([]byte, 20)
	for i := range data {
		data[i] = 0x21
	}
	events := level3Acceptor().ParsePoll(data, nil)
	assert.Len(t, events, MaxPollEvents)
}

func TestAcceptor_Poll(t *testing.T) {
	t.Parallel()

	t.Run("ACK_Means_No_Events", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport(testutil.Ack())
		events, err := level3Acceptor().Poll(context.Background(), newTestBus(t, mock))
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Equal(t, []byte{0x0B}, mock.Commands()[0])
	})

	t.Run("Data_Is_Parsed_And_Acknowledged", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport(testutil.Data(0x52, 0x07, 0x02))
		events, err := level3Acceptor().Poll(context.Background(), newTestBus(t, mock))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.IsType(t, CoinInserted{}, events[0])
		assert.Equal(t, Status{Code: StatusPayoutBusy}, events[1])
		assert.Equal(t, 1, mock.AckCount())
	})

	t.Run("NAK", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport(testutil.Nak())
		_, err := level3Acceptor().Poll(context.Background(), newTestBus(t, mock))
		assert.ErrorIs(t, err, mdb.ErrNotAcknowledged)
	})

	t.Run("Timeout", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport()
		_, err := level3Acceptor().Poll(context.Background(), newTestBus(t, mock))
		assert.ErrorIs(t, err, mdb.ErrTimeout)
		assert.True(t, mdb.IsRetryable(err))
	})
}

func TestStatusCode_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "changer was reset", StatusChangerReset.String())
	assert.Equal(t, "status 0x1F", StatusCode(0x1F).String())
	assert.Equal(t, "tube", RoutingTube.String())
}
