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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mdb/internal/frame"
)

// Transport errors surfaced by the wire codec
var (
	ErrTimeout          = frame.ErrTimeout
	ErrWrongChecksum    = frame.ErrWrongChecksum
	ErrBufferOverrun    = frame.ErrBufferOverrun
	ErrMalformedMessage = frame.ErrMalformedMessage
	ErrUART             = errors.New("uart error")
)

// Peripheral errors
var (
	ErrNotAcknowledged  = errors.New("command not acknowledged")
	ErrUnexpectedStatus = errors.New("status frame where data was expected")
	ErrUnexpectedReply  = errors.New("unexpected reply")
	ErrHandshake        = errors.New("initialization handshake failed")
	ErrUnsupported      = errors.New("not supported by peripheral")
)

// ErrorType categorizes errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away by repeating the exchange
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may clear on the next exchange
	ErrorTypeTransient
	// ErrorTypeTimeout means the peripheral did not answer in time
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError describes a failed bus exchange
type TransportError struct {
	Err       error
	Op        string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mdb %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with the operation that failed
func NewTransportError(op string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// StatusError is returned when a peripheral answers with a status frame to a
// command that expects data
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: got %s", ErrUnexpectedStatus, e.Status)
}

// Is makes StatusError match ErrUnexpectedStatus
func (*StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// IsRetryable reports whether the exchange that produced err may succeed if
// repeated. Retrying is always the caller's decision.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrWrongChecksum),
		errors.Is(err, ErrUART),
		errors.Is(err, ErrNotAcknowledged):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrWrongChecksum), errors.Is(err, ErrUART), errors.Is(err, ErrNotAcknowledged):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

func classifyCodecError(err error) ErrorType {
	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrWrongChecksum):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
