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

package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/cashless"
	"github.com/ZaparooProject/go-mdb/coin"
	testutil "github.com/ZaparooProject/go-mdb/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, mock *testutil.MockTransport) *mdb.Bus {
	t.Helper()
	bus, err := mdb.New(mock,
		mdb.WithLogger(zap.NewNop()),
		mdb.WithDelayFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	require.NoError(t, err)
	return bus
}

func testAcceptor() *coin.Acceptor {
	acc := &coin.Acceptor{FeatureLevel: coin.Level2, ScalingFactor: 5}
	acc.CoinTypes[2] = &coin.CoinType{UnscaledValue: 25, RouteableToTube: true}
	return acc
}

// peripherals answers coin and cashless polls from separate scripts; an
// empty script ACKs
func peripherals(coinReplies, cashlessReplies [][]byte) *testutil.MockTransport {
	return testutil.NewMockTransportWithHandler(func(cmd []byte) []byte {
		next := func(script *[][]byte) []byte {
			if len(*script) == 0 {
				return testutil.Ack()
			}
			r := (*script)[0]
			*script = (*script)[1:]
			return r
		}
		switch cmd[0] {
		case 0x0B:
			return next(&coinReplies)
		case 0x12:
			return next(&cashlessReplies)
		default:
			return nil
		}
	})
}

func TestNewLoop(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, testutil.NewMockTransport())

	_, err := NewLoop(nil, testAcceptor(), nil, nil, Callbacks{})
	require.Error(t, err)

	_, err = NewLoop(bus, nil, nil, nil, Callbacks{})
	require.ErrorIs(t, err, ErrNoPeripherals)

	loop, err := NewLoop(bus, testAcceptor(), nil, nil, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Interval, loop.CurrentInterval())
}

func TestLoop_Step_DispatchesInOrder(t *testing.T) {
	t.Parallel()

	mock := peripherals(
		[][]byte{testutil.Data(0x42, 0x05, 0x0B)},
		[][]byte{testutil.Data(0x11, 0x07)},
	)
	bus := newTestBus(t, mock)

	var got []string
	loop, err := NewLoop(bus, testAcceptor(), &cashless.Device{}, nil, Callbacks{
		OnCoinEvent: func(_ context.Context, ev coin.Event) error {
			switch e := ev.(type) {
			case coin.CoinInserted:
				assert.Equal(t, uint16(25), e.UnscaledValue)
				assert.Equal(t, coin.RoutingCashBox, e.Routing)
				got = append(got, "coin inserted")
			case coin.Status:
				got = append(got, e.Code.String())
			}
			return nil
		},
		OnCashlessEvent: func(_ context.Context, ev cashless.Event) error {
			switch ev.(type) {
			case cashless.TimeDateRequest:
				got = append(got, "time date request")
			case cashless.EndSession:
				got = append(got, "end session")
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, []string{
		"coin inserted", coin.StatusChangerReset.String(), "time date request", "end session",
	}, got)

	m := loop.GetMetrics()
	assert.Equal(t, int64(1), m.PollCycles)
	assert.Equal(t, int64(2), m.CoinEvents)
	assert.Equal(t, int64(2), m.CashlessEvents)
	assert.Zero(t, m.PollErrors)
	assert.Equal(t, 2, mock.AckCount(), "both data replies acknowledged")
}

func TestLoop_Run_StopFromCallback(t *testing.T) {
	t.Parallel()

	mock := peripherals([][]byte{testutil.Ack(), testutil.Ack(), testutil.Data(0x42, 0x01)}, nil)
	loop, err := NewLoop(newTestBus(t, mock), testAcceptor(), nil, nil, Callbacks{
		OnCoinEvent: func(context.Context, coin.Event) error { return ErrStop },
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, int64(3), loop.GetMetrics().PollCycles)
	assert.Equal(t, 3, mock.CommandCount(0x0B))
}

func TestLoop_Run_TooManyErrors(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	var pollErrs []error
	loop, err := NewLoop(newTestBus(t, mock), testAcceptor(), nil,
		&Config{Interval: time.Millisecond, MaxConsecutiveErrors: 3},
		Callbacks{OnPollError: func(err error) { pollErrs = append(pollErrs, err) }},
	)
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, ErrTooManyErrors)
	require.ErrorIs(t, err, mdb.ErrTimeout)
	assert.Len(t, pollErrs, 3)
	assert.Equal(t, int64(3), loop.GetMetrics().PollErrors)
}

func TestLoop_Run_ErrorsResetOnSuccess(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport(
		testutil.Timeout(), testutil.Timeout(), testutil.Ack(),
		testutil.Timeout(), testutil.Timeout(), testutil.Data(0x42, 0x01),
	)
	loop, err := NewLoop(newTestBus(t, mock), testAcceptor(), nil,
		&Config{Interval: time.Millisecond, MaxConsecutiveErrors: 3},
		Callbacks{OnCoinEvent: func(context.Context, coin.Event) error { return ErrStop }},
	)
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, int64(4), loop.GetMetrics().PollErrors)
}

func TestLoop_CallbackErrorKeepsPolling(t *testing.T) {
	t.Parallel()

	mock := peripherals([][]byte{testutil.Data(0x0B, 0x0B)}, nil)
	calls := 0
	loop, err := NewLoop(newTestBus(t, mock), testAcceptor(), nil, nil, Callbacks{
		OnCoinEvent: func(context.Context, coin.Event) error {
			calls++
			return errors.New("display offline")
		},
	})
	require.NoError(t, err)

	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), loop.GetMetrics().CallbackErrors)
}

func TestLoop_Run_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop, err := NewLoop(newTestBus(t, peripherals(nil, nil)), testAcceptor(), nil, nil, Callbacks{})
	require.NoError(t, err)

	require.ErrorIs(t, loop.Run(ctx), context.Canceled)
}

func TestLoop_IdleBackoff(t *testing.T) {
	t.Parallel()

	clock := time.Unix(1_700_000_000, 0)
	mock := peripherals([][]byte{testutil.Ack(), testutil.Ack(), testutil.Data(0x0B)}, nil)
	loop, err := NewLoop(newTestBus(t, mock), testAcceptor(), nil, &Config{
		Interval:     10 * time.Millisecond,
		IdleInterval: 200 * time.Millisecond,
		IdleAfter:    time.Second,
	}, Callbacks{})
	require.NoError(t, err)
	loop.now = func() time.Time { return clock }
	loop.lastEvent = clock

	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, 10*time.Millisecond, loop.CurrentInterval())

	clock = clock.Add(2 * time.Second)
	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, 200*time.Millisecond, loop.CurrentInterval(), "idle for longer than IdleAfter")

	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, 10*time.Millisecond, loop.CurrentInterval(), "event restores the fast interval")
}
