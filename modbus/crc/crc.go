// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

const polynomial = 0xA001

// CRC is the Modbus CRC16 accumulator: initial value 0xFFFF, reflected
// polynomial 0xA001, bits processed LSB first, no final XOR.
type CRC struct {
	value uint16
}

// Reset sets the accumulator back to its initial value.
func (crc *CRC) Reset() *CRC {
	crc.value = 0xFFFF
	return crc
}

// PushBytes folds data into the accumulator.
func (crc *CRC) PushBytes(data []byte) *CRC {
	for _, b := range data {
		crc.value ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc.value&0x0001 != 0 {
				crc.value >>= 1
				crc.value ^= polynomial
			} else {
				crc.value >>= 1
			}
		}
	}
	return crc
}

// Value returns the checksum of the bytes pushed since Reset.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum returns the CRC16 of data.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}
