// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// HeaderSize covers slave id and function code.
	HeaderSize = 2
	// CRCSize is the trailing checksum, little-endian on the wire.
	CRCSize = 2

	// MaxRegisters bounds a register payload so its byte count fits in one byte.
	MaxRegisters = 127

	// MaxRequestSize is a write multiple registers request carrying
	// MaxRegisters values. It exceeds MaxSize, which bounds responses.
	MaxRequestSize = RequestHeaderSize + 2*MaxRegisters + CRCSize
)
