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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/detection"
	"github.com/ZaparooProject/go-mdb/transport/uart"
	"github.com/ZaparooProject/go-mdb/transport/ws"
	"go.uber.org/zap"
)

// transport is what openBus needs from either bridge
type transport interface {
	mdb.Transport
	io.Closer
}

var errNoBridge = errors.New("no MDB bridge found, pass --port or --url")

// openTransport connects to the bridge named by s. Without --port or --url
// the first USB serial port that is not blocklisted is used.
func openTransport(ctx context.Context, s *settings, log *zap.Logger) (transport, string, error) {
	if s.URL != "" {
		t, err := ws.Dial(ctx, wsConfig(s))
		if err != nil {
			return nil, "", err
		}
		return t, "websocket " + s.URL, nil
	}

	port := s.Port
	if port == "" {
		opts := detection.DefaultOptions()
		opts.USBOnly = true
		ports, err := detection.FindPorts(opts)
		if err != nil {
			return nil, "", err
		}
		if len(ports) == 0 {
			return nil, "", errNoBridge
		}
		port = ports[0].Path
		log.Info("using detected serial port", zap.Stringer("port", ports[0]))
	}

	t, err := uart.New(uart.Config{PortName: port, BaudRate: s.Baud, ReadTimeout: s.ReadTimeout})
	if err != nil {
		return nil, "", err
	}
	return t, fmt.Sprintf("serial %s @ %d", port, s.Baud), nil
}

// openBus connects and wraps the transport in a bus. The returned close
// function releases the transport.
func openBus(ctx context.Context, s *settings, log *zap.Logger) (*mdb.Bus, func(), error) {
	t, info, err := openTransport(ctx, s, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	log.Info("connected", zap.String("bridge", info))

	bus, err := mdb.New(t, mdb.WithLogger(log), mdb.WithResetDelay(s.ResetDelay))
	if err != nil {
		_ = t.Close()
		return nil, nil, err
	}
	return bus, func() {
		if err := t.Close(); err != nil {
			log.Warn("close transport", zap.Error(err))
		}
	}, nil
}

func wsConfig(s *settings) ws.Config {
	return ws.Config{
		URL:           s.URL,
		Username:      s.Username,
		Password:      s.Password,
		ReadTimeout:   s.ReadTimeout,
		SkipSSLVerify: s.SkipSSL,
	}
}
