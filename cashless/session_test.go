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

package cashless

import (
	"context"
	"testing"

	mdb "github.com/ZaparooProject/go-mdb"
	testutil "github.com/ZaparooProject/go-mdb/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var item = [2]byte{0x00, 0x01}

func TestStartTransaction_Approved(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(
		testutil.Ack(),
		testutil.Ack(),
		testutil.Data(0x05, 0x01, 0x2C),
		testutil.Ack(),
		testutil.Ack(),
		testutil.Data(0x07),
	)

	approved, err := dev.StartTransaction(context.Background(), bus, 300, item)
	require.NoError(t, err)
	assert.Equal(t, uint16(300), approved)
	assert.Equal(t, StateVendAuthorized, dev.State())

	require.NoError(t, dev.VendSuccess(context.Background(), bus, item))
	assert.Equal(t, StateSessionActive, dev.State())

	require.NoError(t, dev.EndSession(context.Background(), bus))
	assert.Equal(t, StateEnabled, dev.State())

	assert.Equal(t, 1, mock.CommandCount(0x13, 0x00, 0x01, 0x2C, 0x00, 0x01))
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x02, 0x00, 0x01))
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x04))
	assert.Equal(t, 0, mock.Pending())
}

func TestStartTransaction_Denied(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(
		testutil.Ack(),
		testutil.Data(0x06),
		testutil.Ack(),
		testutil.Data(0x07),
	)

	approved, err := dev.StartTransaction(context.Background(), bus, 300, item)
	require.ErrorIs(t, err, ErrVendDenied)
	assert.Zero(t, approved)
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x04), "session ended automatically")
	assert.Equal(t, StateEnabled, dev.State())
}

func TestStartTransaction_SessionCancelRequest(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(testutil.Ack(), testutil.Data(0x04), testutil.Ack(), testutil.Data(0x07))

	_, err := dev.StartTransaction(context.Background(), bus, 150, item)
	require.ErrorIs(t, err, ErrVendDenied)
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x04))
}

func TestStartTransaction_Timeout(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)
	dev.config.VendPollLimit = 3
	polls := mock.CommandCount(0x12)

	mock.Queue(testutil.Ack(), testutil.Ack(), testutil.Timeout(), testutil.Ack())
	mock.Queue(testutil.Ack(), testutil.Data(0x07))

	_, err := dev.StartTransaction(context.Background(), bus, 150, item)
	require.ErrorIs(t, err, ErrVendTimeout)
	assert.Equal(t, polls+4, mock.CommandCount(0x12), "three vend polls and one end session poll")
	assert.Equal(t, StateEnabled, dev.State())
}

func TestStartTransaction_RequestNotAcknowledged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply []byte
	}{
		{name: "Timeout", reply: testutil.Timeout()},
		{name: "Nak", reply: testutil.Nak()},
		{name: "Bad_Checksum", reply: testutil.BadChecksum(0x05, 0x01, 0x2C)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := testutil.NewMockTransport()
			bus := newTestBus(t, mock)
			dev := initDevice(t, mock, bus)

			mock.Queue(tt.reply, testutil.Data(0x05, 0x01, 0x2C))

			approved, err := dev.StartTransaction(context.Background(), bus, 300, item)
			require.NoError(t, err)
			assert.Equal(t, uint16(300), approved)
			assert.Equal(t, StateVendAuthorized, dev.State())
			assert.Equal(t, 0, mock.CommandCount(0x13, 0x04), "session kept")
			assert.Equal(t, 0, mock.Pending())
		})
	}
}

func TestStartTransaction_ApprovedInRequestReply(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)
	polls := mock.CommandCount(0x12)
	acks := mock.AckCount()

	mock.Queue(testutil.Data(0x05, 0x01, 0x2C))

	approved, err := dev.StartTransaction(context.Background(), bus, 300, item)
	require.NoError(t, err)
	assert.Equal(t, uint16(300), approved)
	assert.Equal(t, StateVendAuthorized, dev.State())
	assert.Equal(t, polls, mock.CommandCount(0x12), "no vend polls needed")
	assert.Equal(t, acks+1, mock.AckCount(), "approval acknowledged")

	mock.Queue(testutil.Ack())
	events, err := dev.Poll(context.Background(), bus)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStartTransaction_DeniedInRequestReply(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(testutil.Data(0x06), testutil.Ack(), testutil.Data(0x07))

	_, err := dev.StartTransaction(context.Background(), bus, 300, item)
	require.ErrorIs(t, err, ErrVendDenied)
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x04))
	assert.Equal(t, StateEnabled, dev.State())
}

func TestStartTransaction_QueuesOtherEvents(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(
		testutil.Ack(),
		testutil.Data(0x0A, 0x05),
		testutil.Data(0x05, 0x00, 0x96, 0x11),
	)

	approved, err := dev.StartTransaction(context.Background(), bus, 150, item)
	require.NoError(t, err)
	assert.Equal(t, uint16(150), approved)

	mock.Queue(testutil.Ack())
	events, err := dev.Poll(context.Background(), bus)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		Malfunction{Code: MalfunctionRequiresService},
		TimeDateRequest{},
	}, events)
}

func TestStartTransaction_InvalidState(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport(l3InitReplies(0)...)
	bus := newTestBus(t, mock)
	dev, err := Init(context.Background(), bus, nil)
	require.NoError(t, err)
	before := len(mock.Writes())

	_, err = dev.StartTransaction(context.Background(), bus, 100, item)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, mock.Writes(), before)
}

func TestVendSuccess_RequiresApproval(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	require.ErrorIs(t, dev.VendSuccess(context.Background(), bus, item), ErrInvalidState)
	require.ErrorIs(t, dev.VendFailed(context.Background(), bus), ErrInvalidState)
	assert.Equal(t, 0, mock.CommandCount(0x13))
}

func approvedDevice(t *testing.T, mock *testutil.MockTransport) (*Device, *mdb.Bus) {
	t.Helper()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)
	mock.Queue(testutil.Ack(), testutil.Data(0x05, 0x01, 0x2C))
	_, err := dev.StartTransaction(context.Background(), bus, 300, item)
	require.NoError(t, err)
	return dev, bus
}

func TestVendFailed_Refund(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	dev, bus := approvedDevice(t, mock)

	mock.Queue(testutil.Ack(), testutil.Timeout(), testutil.Data(0x06), testutil.Ack())

	require.NoError(t, dev.VendFailed(context.Background(), bus))
	assert.Equal(t, StateSessionActive, dev.State())
	assert.Equal(t, 1, mock.CommandCount(0x13, 0x03))

	mock.Queue(testutil.Ack())
	events, err := dev.Poll(context.Background(), bus)
	require.NoError(t, err)
	assert.Equal(t, []Event{VendDenied{}}, events)
}

func TestVendFailed_RefundNotConfirmed(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	dev, bus := approvedDevice(t, mock)
	dev.config.RefundPollLimit = 4

	mock.Queue(testutil.Ack(), testutil.Nak(), testutil.Nak(), testutil.Nak(), testutil.Nak())

	require.ErrorIs(t, dev.VendFailed(context.Background(), bus), ErrRefundFailed)
	assert.Equal(t, StateRefundInFlight, dev.State())
}

func TestCancelTransaction(t *testing.T) {
	t.Parallel()

	t.Run("Vend_Denied_Confirms", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport()
		dev, bus := approvedDevice(t, mock)

		mock.Queue(testutil.Ack(), testutil.Data(0x06))
		require.NoError(t, dev.CancelTransaction(context.Background(), bus))
		assert.Equal(t, StateSessionActive, dev.State())
	})

	t.Run("No_Confirmation", func(t *testing.T) {
		t.Parallel()
		mock := testutil.NewMockTransport()
		bus := newTestBus(t, mock)
		dev := initDevice(t, mock, bus)

		mock.Queue(testutil.Ack(), testutil.Data(0x07))
		require.ErrorIs(t, dev.CancelTransaction(context.Background(), bus), mdb.ErrUnexpectedReply)

		mock.Queue(testutil.Ack())
		events, err := dev.Poll(context.Background(), bus)
		require.NoError(t, err)
		assert.Equal(t, []Event{EndSession{}}, events)
	})
}

func TestEndSession_AlreadyEnded(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport()
	bus := newTestBus(t, mock)
	dev := initDevice(t, mock, bus)

	mock.Queue(testutil.Ack(), testutil.Ack())
	require.ErrorIs(t, dev.EndSession(context.Background(), bus), mdb.ErrUnexpectedReply)
	assert.Equal(t, StateEnabled, dev.State())

	mock.Queue(testutil.Ack(), testutil.Ack())
	require.Error(t, dev.EndSession(context.Background(), bus))
	assert.Equal(t, StateEnabled, dev.State())
	assert.Equal(t, 2, mock.CommandCount(0x13, 0x04))
}

func TestRecordCashTransaction(t *testing.T) {
	t.Parallel()
	mock := testutil.NewMockTransport(testutil.Ack(), testutil.Nak())
	dev := &Device{}
	bus := newTestBus(t, mock)

	require.NoError(t, dev.RecordCashTransaction(context.Background(), bus, 0x0190, [2]byte{0x00, 0x07}))
	assert.Equal(t, []byte{0x13, 0x05, 0x01, 0x90, 0x00, 0x07}, mock.Commands()[0])

	require.ErrorIs(t, dev.RecordCashTransaction(context.Background(), bus, 100, item), mdb.ErrNotAcknowledged)
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "vend authorized", StateVendAuthorized.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "L3", Level3.String())
}
