// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "fmt"

// Request is a fully built, checksummed request frame.
type Request interface {
	Address() byte
	Function() byte
	Bytes() []byte
	// ResponseLength is the size of the normal reply, known before the
	// request is sent.
	ResponseLength() int
}

// readRequest is the body shared by read holding and read input requests.
type readRequest struct {
	Frame
}

func (r *readRequest) StartingRegister() uint16 {
	return r.u16(fieldStartingRegister)
}

func (r *readRequest) Count() uint16 {
	return r.u16(fieldRegisterCount)
}

// ReadHoldingsRequest reads a block of holding registers (0x03).
type ReadHoldingsRequest struct {
	readRequest
}

// NewReadHoldings builds a read holding registers request.
func NewReadHoldings(addr byte, startingRegister, count uint16) *ReadHoldingsRequest {
	return &ReadHoldingsRequest{readRequest{newFrame(readHoldingsRequestLayout, addr, startingRegister, count)}}
}

func (r *ReadHoldingsRequest) ResponseLength() int {
	return readHoldingsResponseLayout.Size(int(r.Count()))
}

// NewResponse allocates the zero-filled response matching r.
func (r *ReadHoldingsRequest) NewResponse() *ReadHoldingsResponse {
	return &ReadHoldingsResponse{zeroFrame(readHoldingsResponseLayout, int(r.Count()))}
}

// ParseResponse wraps a received frame as the response to r.
func (r *ReadHoldingsRequest) ParseResponse(raw []byte) (*ReadHoldingsResponse, error) {
	f, err := parseFrame(readHoldingsResponseLayout, int(r.Count()), raw)
	if err != nil {
		return nil, err
	}
	return &ReadHoldingsResponse{f}, nil
}

// ReadInputsRequest reads a block of input registers (0x04).
type ReadInputsRequest struct {
	readRequest
}

// NewReadInputs builds a read input registers request.
func NewReadInputs(addr byte, startingRegister, count uint16) *ReadInputsRequest {
	return &ReadInputsRequest{readRequest{newFrame(readInputsRequestLayout, addr, startingRegister, count)}}
}

func (r *ReadInputsRequest) ResponseLength() int {
	return readInputsResponseLayout.Size(int(r.Count()))
}

// NewResponse allocates the zero-filled response matching r.
func (r *ReadInputsRequest) NewResponse() *ReadInputsResponse {
	return &ReadInputsResponse{zeroFrame(readInputsResponseLayout, int(r.Count()))}
}

// ParseResponse wraps a received frame as the response to r.
func (r *ReadInputsRequest) ParseResponse(raw []byte) (*ReadInputsResponse, error) {
	f, err := parseFrame(readInputsResponseLayout, int(r.Count()), raw)
	if err != nil {
		return nil, err
	}
	return &ReadInputsResponse{f}, nil
}

// WriteHoldingRequest writes a single holding register (0x06).
type WriteHoldingRequest struct {
	Frame
}

// NewWriteHolding builds a write single holding register request.
func NewWriteHolding(addr byte, register, value uint16) *WriteHoldingRequest {
	return &WriteHoldingRequest{newFrame(writeHoldingRequestLayout, addr, register, value)}
}

func (r *WriteHoldingRequest) Register() uint16 {
	return r.u16(fieldRegister)
}

func (r *WriteHoldingRequest) Value() uint16 {
	return r.u16(fieldValue)
}

func (r *WriteHoldingRequest) ResponseLength() int {
	return writeHoldingResponseLayout.Size(0)
}

// NewResponse allocates the zero-filled response matching r.
func (r *WriteHoldingRequest) NewResponse() *WriteHoldingResponse {
	return &WriteHoldingResponse{zeroFrame(writeHoldingResponseLayout, 0)}
}

// ParseResponse wraps a received frame as the response to r.
func (r *WriteHoldingRequest) ParseResponse(raw []byte) (*WriteHoldingResponse, error) {
	f, err := parseFrame(writeHoldingResponseLayout, 0, raw)
	if err != nil {
		return nil, err
	}
	return &WriteHoldingResponse{f}, nil
}

// WriteHoldingsRequest writes a block of holding registers (0x10).
type WriteHoldingsRequest struct {
	Frame
}

// NewWriteHoldings builds a write multiple holding registers request. At
// most MaxRegisters values fit in one request; larger payloads are
// rejected before any byte is produced.
func NewWriteHoldings(addr byte, startingRegister uint16, values []uint16) (*WriteHoldingsRequest, error) {
	if len(values) > MaxRegisters {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyRegisters, len(values))
	}
	data := make([]uint16, len(values))
	copy(data, values)

	f := newFrame(writeHoldingsRequestLayout, addr,
		startingRegister,
		uint16(len(data)),
		byte(2*len(data)),
		data,
	)
	return &WriteHoldingsRequest{f}, nil
}

func (r *WriteHoldingsRequest) StartingRegister() uint16 {
	return r.u16(fieldStartingRegister)
}

func (r *WriteHoldingsRequest) Count() uint16 {
	return r.u16(fieldRegisterCount)
}

// Values returns a copy of the register payload.
func (r *WriteHoldingsRequest) Values() []uint16 {
	return r.registerValues(fieldData)
}

func (r *WriteHoldingsRequest) ResponseLength() int {
	return writeHoldingsResponseLayout.Size(0)
}

// NewResponse allocates the zero-filled response matching r.
func (r *WriteHoldingsRequest) NewResponse() *WriteHoldingsResponse {
	return &WriteHoldingsResponse{zeroFrame(writeHoldingsResponseLayout, 0)}
}

// ParseResponse wraps a received frame as the response to r.
func (r *WriteHoldingsRequest) ParseResponse(raw []byte) (*WriteHoldingsResponse, error) {
	f, err := parseFrame(writeHoldingsResponseLayout, 0, raw)
	if err != nil {
		return nil, err
	}
	return &WriteHoldingsResponse{f}, nil
}
