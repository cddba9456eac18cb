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

// Package ws connects the bus to an MDB bridge over WebSocket.
//
// The bridge sends each peripheral reply as one binary message in pair
// representation and accepts each VMC frame as one binary message.
package ws

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dial and I/O defaults
const (
	DefaultReadTimeout      = 100 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second
	maxMessageSize          = 512
)

// ErrClosed is returned once the connection has failed or been closed
var ErrClosed = errors.New("websocket connection closed")

// Config describes how to reach the bridge
type Config struct {
	URL           string
	Username      string
	Password      string
	ReadTimeout   time.Duration
	SkipSSLVerify bool
}

// Transport implements mdb.Transport over a WebSocket connection.
//
// A background goroutine owns all reads from the connection because a
// gorilla read error is permanent; Read waits on it with a timer instead.
type Transport struct {
	conn        *websocket.Conn
	replies     chan []byte
	done        chan struct{}
	err         error
	readTimeout time.Duration
	errMu       sync.Mutex
	writeMu     sync.Mutex
	closeOnce   sync.Once
}

// Dial connects to the bridge described by cfg
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify, //nolint:gosec // opt-in for bridges with self-signed certs
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return NewWithConn(conn, cfg.ReadTimeout), nil
}

// NewWithConn wraps an established connection and starts its read pump
func NewWithConn(conn *websocket.Conn, readTimeout time.Duration) *Transport {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	t := &Transport{
		conn:        conn,
		replies:     make(chan []byte, 4),
		done:        make(chan struct{}),
		readTimeout: readTimeout,
	}
	conn.SetReadLimit(maxMessageSize)
	go t.readPump()
	return t
}

func (t *Transport) readPump() {
	defer close(t.done)
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.setErr(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case t.replies <- data:
		default:
			// Nobody is waiting for this many replies; drop the oldest.
			select {
			case <-t.replies:
			default:
			}
			t.replies <- data
		}
	}
}

func (t *Transport) setErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Transport) failure() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, t.err)
}

// Read waits up to the read timeout for the next reply. Expiry yields 0
// bytes. A reply longer than p is truncated.
func (t *Transport) Read(p []byte) (int, error) {
	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()

	select {
	case data := <-t.replies:
		return copy(p, data), nil
	case <-t.done:
		select {
		case data := <-t.replies:
			return copy(p, data), nil
		default:
			return 0, t.failure()
		}
	case <-timer.C:
		return 0, nil
	}
}

// Write sends p as one binary message. Replies that arrived after their
// Read timed out are discarded first so they cannot answer this frame.
func (t *Transport) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, t.failure()
	default:
	}
	t.discardStale()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("websocket write: %w", err)
	}
	return len(p), nil
}

func (t *Transport) discardStale() {
	for {
		select {
		case <-t.replies:
		default:
			return
		}
	}
}

// Close sends a close frame and tears down the connection
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		t.writeMu.Unlock()
		err = t.conn.Close()
		<-t.done
	})
	return err
}
