// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"
	"os"

	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/grid-x/serial"
)

var (
	// ErrUnexpectedEOF is returned when the transport is closed or times
	// out before the whole response was read.
	ErrUnexpectedEOF = errors.New("modbus: unexpected end of file")

	ErrCRC                = rtupacket.ErrCRC
	ErrUnexpectedResponse = rtupacket.ErrUnexpectedResponse
	ErrTooManyRegisters   = rtupacket.ErrTooManyRegisters
)

// IOError is a transport failure. The underlying error is opaque to the
// protocol layer.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("modbus: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// readError classifies an error from a read of the response.
func readError(err error) error {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, serial.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrUnexpectedEOF, err)
	}
	return &IOError{Op: "read", Err: err}
}
