// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "errors"

var (
	// ErrCRC is returned when the stored checksum of a received frame does
	// not match the checksum computed over its bytes.
	ErrCRC = errors.New("modbus: crc validation failed")

	// ErrUnexpectedResponse is returned when a response with a valid
	// checksum does not correlate with the request it answers.
	ErrUnexpectedResponse = errors.New("modbus: unexpected response")

	ErrTooManyRegisters = errors.New("modbus: cannot transfer more than 127 registers in a single request")
)
