// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// ApplicationDataUnit is an untyped RTU frame: a slave id and a PDU. The
// slave side works on it because it must accept any function code before
// it knows which layout applies.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks the length and checksum of raw and splits it into slave id
// and PDU. The PDU data aliases raw.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		return nil, fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
	}

	checksum := binary.LittleEndian.Uint16(raw[length-CRCSize:])
	if expected := crc.Checksum(raw[:length-CRCSize]); checksum != expected {
		return nil, fmt.Errorf("%w: frame crc '%v' does not match expected '%v'", ErrCRC, checksum, expected)
	}
	return &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         raw[HeaderSize : length-CRCSize],
		},
	}, nil
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + HeaderSize + CRCSize
	if length > MaxSize {
		return nil, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
	}
	raw := make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[HeaderSize:], adu.Pdu.Data)

	binary.LittleEndian.PutUint16(raw[length-CRCSize:], crc.Checksum(raw[:length-CRCSize]))
	return raw, nil
}
