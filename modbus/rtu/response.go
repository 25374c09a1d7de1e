// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
)

// Responses carry no validity of their own: a frame filled by a read is
// trusted only after Validate succeeds against the request it answers.

// ReadHoldingsResponse answers a ReadHoldingsRequest.
type ReadHoldingsResponse struct {
	Frame
}

// Validate checks r against req and returns the register values.
func (r *ReadHoldingsResponse) Validate(req *ReadHoldingsRequest) ([]uint16, error) {
	return validateRead(&r.Frame, &req.readRequest)
}

// ReadInputsResponse answers a ReadInputsRequest.
type ReadInputsResponse struct {
	Frame
}

// Validate checks r against req and returns the register values.
func (r *ReadInputsResponse) Validate(req *ReadInputsRequest) ([]uint16, error) {
	return validateRead(&r.Frame, &req.readRequest)
}

// WriteHoldingResponse answers a WriteHoldingRequest by echoing it.
type WriteHoldingResponse struct {
	Frame
}

func (r *WriteHoldingResponse) Register() uint16 {
	return r.u16(fieldRegister)
}

func (r *WriteHoldingResponse) Value() uint16 {
	return r.u16(fieldValue)
}

// Validate checks that r echoes the register and value of req.
func (r *WriteHoldingResponse) Validate(req *WriteHoldingRequest) error {
	if err := validateHeader(&r.Frame, &req.Frame); err != nil {
		return err
	}
	if r.Register() != req.Register() {
		return fmt.Errorf("%w: response register '%v' does not match request '%v'", ErrUnexpectedResponse, r.Register(), req.Register())
	}
	if r.Value() != req.Value() {
		return fmt.Errorf("%w: response value '%v' does not match request '%v'", ErrUnexpectedResponse, r.Value(), req.Value())
	}
	return nil
}

// WriteHoldingsResponse answers a WriteHoldingsRequest.
type WriteHoldingsResponse struct {
	Frame
}

func (r *WriteHoldingsResponse) StartingRegister() uint16 {
	return r.u16(fieldStartingRegister)
}

func (r *WriteHoldingsResponse) Count() uint16 {
	return r.u16(fieldRegisterCount)
}

// Validate checks that r echoes the starting register and count of req.
func (r *WriteHoldingsResponse) Validate(req *WriteHoldingsRequest) error {
	if err := validateHeader(&r.Frame, &req.Frame); err != nil {
		return err
	}
	if r.StartingRegister() != req.StartingRegister() {
		return fmt.Errorf("%w: response starting register '%v' does not match request '%v'", ErrUnexpectedResponse, r.StartingRegister(), req.StartingRegister())
	}
	if r.Count() != req.Count() {
		return fmt.Errorf("%w: response quantity '%v' does not match request '%v'", ErrUnexpectedResponse, r.Count(), req.Count())
	}
	return nil
}

// validateHeader verifies the checksum first, so a garbled frame never
// reaches field comparison, then slave id and function code.
func validateHeader(resp, req *Frame) error {
	if err := resp.ValidateCRC(); err != nil {
		return err
	}
	if resp.Address() != req.Address() {
		return fmt.Errorf("%w: response slave id '%v' does not match request '%v'", ErrUnexpectedResponse, resp.Address(), req.Address())
	}
	if resp.Function() != req.Function() {
		return fmt.Errorf("%w: response function '%v' does not match request '%v'", ErrUnexpectedResponse, resp.Function(), req.Function())
	}
	return nil
}

func validateRead(resp *Frame, req *readRequest) ([]uint16, error) {
	if err := validateHeader(resp, &req.Frame); err != nil {
		return nil, err
	}
	want := 2 * int(req.Count())
	if got := int(resp.u8(fieldDataBytes)); got != want {
		return nil, fmt.Errorf("%w: response byte count '%v' does not match expected '%v'", ErrUnexpectedResponse, got, want)
	}
	return resp.registerValues(fieldData), nil
}

// ValidateException interprets raw as an exception reply to req. It always
// returns an error: ErrCRC when the frame is garbled, otherwise an error
// matching ErrUnexpectedResponse that also unwraps to *modbus.ExceptionError.
func ValidateException(raw []byte, req Request) error {
	l := exceptionLayout(req.Function())
	f, err := parseFrame(l, 0, raw)
	if err != nil {
		return err
	}
	if err := f.ValidateCRC(); err != nil {
		return err
	}
	if f.Address() != req.Address() || f.Function() != l.Function {
		return fmt.Errorf("%w: exception reply slave id '%v' function '%v' does not match request '%v' function '%v'",
			ErrUnexpectedResponse, f.Address(), f.Function(), req.Address(), req.Function())
	}
	return fmt.Errorf("%w: %w", ErrUnexpectedResponse, &modbus.ExceptionError{
		FunctionCode:  f.Function(),
		ExceptionCode: f.u8(fieldExceptionCode),
	})
}

// IsExceptionHeader reports whether header, the first HeaderSize bytes of a
// reply, starts an exception reply to req.
func IsExceptionHeader(header []byte, req Request) bool {
	return len(header) >= HeaderSize &&
		header[0] == req.Address() &&
		header[1] == req.Function()|modbus.ExceptionFlag
}
