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

package mdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mdb/internal/frame"
	"go.uber.org/zap"
)

// DefaultResetDelay is how long a peripheral gets to recover from RESET
const DefaultResetDelay = 100 * time.Millisecond

// MaxFrameLength is the longest frame a peripheral may send, checksum included
const MaxFrameLength = frame.MaxFrameLength

// Bus is the VMC side of an MDB bus.
//
// Thread Safety: Bus is NOT thread-safe. The protocol allows one command in
// flight at a time, so all peripherals sharing a bus must be driven from a
// single goroutine. Peripheral values borrow the bus only for the duration of
// each call.
type Bus struct {
	transport  Transport
	logger     *zap.Logger
	delay      DelayFunc
	resetDelay time.Duration
	scratch    [frame.ScratchSize]byte
}

// New creates a bus handle that takes ownership of transport
func New(transport Transport, opts ...Option) (*Bus, error) {
	if transport == nil {
		return nil, errors.New("transport must not be nil")
	}

	bus := &Bus{
		transport:  transport,
		logger:     zap.NewNop(),
		delay:      sleepContext,
		resetDelay: DefaultResetDelay,
	}

	for _, opt := range opts {
		if err := opt(bus); err != nil {
			return nil, err
		}
	}

	return bus, nil
}

// Transport returns the underlying transport
func (b *Bus) Transport() Transport {
	return b.transport
}

// Logger returns the bus logger
func (b *Bus) Logger() *zap.Logger {
	return b.logger
}

// ResetDelay returns the configured post-reset recovery time
func (b *Bus) ResetDelay() time.Duration {
	return b.resetDelay
}

// Sleep waits for d using the configured delay primitive
func (b *Bus) Sleep(ctx context.Context, d time.Duration) error {
	return b.delay(ctx, d)
}

// SendStatus sends an ACK, NAK or RET frame
func (b *Bus) SendStatus(ctx context.Context, status Status) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending status: %w", err)
	}
	if _, err := b.transport.Write(frame.EncodeStatus(byte(status))); err != nil {
		return NewTransportError("send status", fmt.Errorf("%w: %w", ErrUART, err), ErrorTypeTransient)
	}
	return nil
}

// SendData sends a command. The first byte of msg is the address byte.
func (b *Bus) SendData(ctx context.Context, msg []byte) error {
	if len(msg) == 0 {
		return errors.New("empty command")
	}
	if len(msg) >= frame.MaxFrameLength {
		return fmt.Errorf("command too long: %d bytes", len(msg))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending command: %w", err)
	}

	b.logger.Debug("send", zap.Binary("cmd", msg))
	if _, err := b.transport.Write(frame.Encode(msg)); err != nil {
		return NewTransportError("send", fmt.Errorf("%w: %w", ErrUART, err), ErrorTypeTransient)
	}
	return nil
}

// ReceiveResponse reads one reply. Data bytes are copied into buf; a valid
// data frame is acknowledged before ReceiveResponse returns.
func (b *Bus) ReceiveResponse(ctx context.Context, buf []byte) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("context cancelled before receiving: %w", err)
	}

	n, err := b.transport.Read(b.scratch[:])
	if err != nil {
		return Response{}, NewTransportError("receive", fmt.Errorf("%w: %w", ErrUART, err), ErrorTypeTransient)
	}

	reply, err := frame.Classify(b.scratch[:n], buf)
	if err != nil {
		if !errors.Is(err, ErrTimeout) {
			b.logger.Error("invalid reply", zap.Error(err), zap.Binary("raw", b.scratch[:n]))
		}
		return Response{}, NewTransportError("receive", err, classifyCodecError(err))
	}

	if reply.Kind == frame.KindStatus {
		return Response{Status: Status(reply.Status)}, nil
	}

	b.logger.Debug("received", zap.Int("len", reply.Len), zap.Binary("data", buf[:reply.Len]))
	if err := b.SendStatus(ctx, ACK); err != nil {
		return Response{}, err
	}
	return Response{IsData: true, Len: reply.Len}, nil
}

// Exchange sends msg and reads the reply into out
func (b *Bus) Exchange(ctx context.Context, msg, out []byte) (Response, error) {
	if err := b.SendData(ctx, msg); err != nil {
		return Response{}, err
	}
	return b.ReceiveResponse(ctx, out)
}

// SendCommandExpectAck sends msg and reports whether the peripheral answered
// with an ACK. Any other outcome, including errors, yields false.
func (b *Bus) SendCommandExpectAck(ctx context.Context, msg []byte) bool {
	resp, err := b.Exchange(ctx, msg, nil)
	if err != nil {
		b.logger.Debug("no ack", zap.Binary("cmd", msg), zap.Error(err))
		return false
	}
	if !resp.IsACK() {
		b.logger.Debug("no ack", zap.Binary("cmd", msg), zap.Stringer("status", resp.Status))
		return false
	}
	return true
}

// SendCommandExpectData sends msg and reads a data reply into out, returning
// its length. A status reply yields a *StatusError.
func (b *Bus) SendCommandExpectData(ctx context.Context, msg, out []byte) (int, error) {
	resp, err := b.Exchange(ctx, msg, out)
	if err != nil {
		return 0, err
	}
	if !resp.IsData {
		return 0, &StatusError{Status: resp.Status}
	}
	return resp.Len, nil
}
