// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// FieldKind is the wire encoding of a body field.
type FieldKind int

const (
	// FieldU8 is a single byte.
	FieldU8 FieldKind = iota
	// FieldU16 is a big-endian 16-bit integer.
	FieldU16
	// FieldRegisters is a run of big-endian 16-bit registers whose length
	// is fixed per frame.
	FieldRegisters
)

// Field is one body field of a frame.
type Field struct {
	Name string
	Kind FieldKind
}

func (f Field) width(registers int) int {
	switch f.Kind {
	case FieldU8:
		return 1
	case FieldU16:
		return 2
	case FieldRegisters:
		return 2 * registers
	}
	return 0
}

// Layout is the physical byte layout of one message type:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Fields          : in declaration order, no padding
//	CRC             : 2 bytes, little-endian
//
// The same layout is used to build outgoing frames and to read fields of
// received ones.
type Layout struct {
	Name     string
	Function byte
	Fields   []Field
}

// Size returns the total frame length, where registers is the length of the
// FieldRegisters field (ignored when the layout has none).
func (l *Layout) Size(registers int) int {
	size := HeaderSize + CRCSize
	for _, f := range l.Fields {
		size += f.width(registers)
	}
	return size
}

// offset returns the byte offset of the named field.
func (l *Layout) offset(name string, registers int) (int, Field) {
	off := HeaderSize
	for _, f := range l.Fields {
		if f.Name == name {
			return off, f
		}
		off += f.width(registers)
	}
	panic(fmt.Sprintf("modbus: layout %s has no field %q", l.Name, name))
}

const (
	fieldStartingRegister = "starting_register"
	fieldRegisterCount    = "n_registers"
	fieldRegister         = "register"
	fieldValue            = "value"
	fieldDataBytes        = "data_bytes"
	fieldData             = "data"
	fieldExceptionCode    = "exception_code"
)

var (
	readHoldingsRequestLayout = &Layout{
		Name:     "ReadHoldingsRequest",
		Function: modbus.FuncCodeReadHoldingRegisters,
		Fields: []Field{
			{fieldStartingRegister, FieldU16},
			{fieldRegisterCount, FieldU16},
		},
	}
	readHoldingsResponseLayout = &Layout{
		Name:     "ReadHoldingsResponse",
		Function: modbus.FuncCodeReadHoldingRegisters,
		Fields: []Field{
			{fieldDataBytes, FieldU8},
			{fieldData, FieldRegisters},
		},
	}

	writeHoldingRequestLayout = &Layout{
		Name:     "WriteHoldingRequest",
		Function: modbus.FuncCodeWriteSingleRegister,
		Fields: []Field{
			{fieldRegister, FieldU16},
			{fieldValue, FieldU16},
		},
	}
	writeHoldingResponseLayout = &Layout{
		Name:     "WriteHoldingResponse",
		Function: modbus.FuncCodeWriteSingleRegister,
		Fields: []Field{
			{fieldRegister, FieldU16},
			{fieldValue, FieldU16},
		},
	}

	writeHoldingsRequestLayout = &Layout{
		Name:     "WriteHoldingsRequest",
		Function: modbus.FuncCodeWriteMultipleRegisters,
		Fields: []Field{
			{fieldStartingRegister, FieldU16},
			{fieldRegisterCount, FieldU16},
			{fieldDataBytes, FieldU8},
			{fieldData, FieldRegisters},
		},
	}
	writeHoldingsResponseLayout = &Layout{
		Name:     "WriteHoldingsResponse",
		Function: modbus.FuncCodeWriteMultipleRegisters,
		Fields: []Field{
			{fieldStartingRegister, FieldU16},
			{fieldRegisterCount, FieldU16},
		},
	}

	readInputsRequestLayout = &Layout{
		Name:     "ReadInputsRequest",
		Function: modbus.FuncCodeReadInputRegisters,
		Fields: []Field{
			{fieldStartingRegister, FieldU16},
			{fieldRegisterCount, FieldU16},
		},
	}
	readInputsResponseLayout = &Layout{
		Name:     "ReadInputsResponse",
		Function: modbus.FuncCodeReadInputRegisters,
		Fields: []Field{
			{fieldDataBytes, FieldU8},
			{fieldData, FieldRegisters},
		},
	}
)

// exceptionLayout is the reply a device sends instead of the normal
// response for function.
func exceptionLayout(function byte) *Layout {
	return &Layout{
		Name:     "Exception",
		Function: function | modbus.ExceptionFlag,
		Fields: []Field{
			{fieldExceptionCode, FieldU8},
		},
	}
}

// Frame is the raw bytes of one message together with its layout.
type Frame struct {
	layout    *Layout
	registers int
	raw       []byte
}

// newFrame fills address, function code and the body fields in layout
// order, then computes the checksum over everything but the trailing two
// bytes and stores it. values must match the layout: byte for FieldU8,
// uint16 for FieldU16 and []uint16 for FieldRegisters.
func newFrame(l *Layout, addr byte, values ...any) Frame {
	if len(values) != len(l.Fields) {
		panic(fmt.Sprintf("modbus: layout %s takes %d fields, got %d", l.Name, len(l.Fields), len(values)))
	}
	registers := 0
	for _, v := range values {
		if data, ok := v.([]uint16); ok {
			registers = len(data)
		}
	}

	f := zeroFrame(l, registers)
	f.raw[0] = addr
	f.raw[1] = l.Function

	off := HeaderSize
	for i, field := range l.Fields {
		switch field.Kind {
		case FieldU8:
			f.raw[off] = values[i].(byte)
		case FieldU16:
			binary.BigEndian.PutUint16(f.raw[off:], values[i].(uint16))
		case FieldRegisters:
			for j, v := range values[i].([]uint16) {
				binary.BigEndian.PutUint16(f.raw[off+2*j:], v)
			}
		}
		off += field.width(registers)
	}

	binary.LittleEndian.PutUint16(f.raw[len(f.raw)-CRCSize:], f.CalculateCRC())
	return f
}

// zeroFrame allocates a zero-filled frame of the exact size of l.
func zeroFrame(l *Layout, registers int) Frame {
	return Frame{
		layout:    l,
		registers: registers,
		raw:       make([]byte, l.Size(registers)),
	}
}

// parseFrame wraps raw as a frame of layout l. Only the length is checked.
func parseFrame(l *Layout, registers int, raw []byte) (Frame, error) {
	if want := l.Size(registers); len(raw) != want {
		return Frame{}, fmt.Errorf("%w: %s length '%v' does not match expected '%v'", ErrUnexpectedResponse, l.Name, len(raw), want)
	}
	return Frame{layout: l, registers: registers, raw: raw}, nil
}

// Address returns the device address.
func (f *Frame) Address() byte {
	return f.raw[0]
}

// Function returns the function code.
func (f *Frame) Function() byte {
	return f.raw[1]
}

// Bytes returns the frame as sent on the wire. The slice aliases the frame.
func (f *Frame) Bytes() []byte {
	return f.raw
}

// Len returns the frame length in bytes.
func (f *Frame) Len() int {
	return len(f.raw)
}

// CRC returns the stored checksum.
func (f *Frame) CRC() uint16 {
	return binary.LittleEndian.Uint16(f.raw[len(f.raw)-CRCSize:])
}

// CalculateCRC computes the checksum over the current bytes, excluding the
// trailing checksum field.
func (f *Frame) CalculateCRC() uint16 {
	return crc.Checksum(f.raw[:len(f.raw)-CRCSize])
}

// ValidateCRC fails with ErrCRC if the stored checksum differs from the
// computed one.
func (f *Frame) ValidateCRC() error {
	if stored, computed := f.CRC(), f.CalculateCRC(); stored != computed {
		return fmt.Errorf("%w: %s crc '%v' does not match expected '%v'", ErrCRC, f.layout.Name, stored, computed)
	}
	return nil
}

func (f *Frame) u8(name string) byte {
	off, _ := f.layout.offset(name, f.registers)
	return f.raw[off]
}

func (f *Frame) u16(name string) uint16 {
	off, _ := f.layout.offset(name, f.registers)
	return binary.BigEndian.Uint16(f.raw[off:])
}

func (f *Frame) registerValues(name string) []uint16 {
	off, _ := f.layout.offset(name, f.registers)
	values := make([]uint16, f.registers)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(f.raw[off+2*i:])
	}
	return values
}
