// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
)

// RequestHeaderSize is enough of a request to know its total length:
// [SlaveID, Func, Addr(2), Quant(2), ByteCount].
const RequestHeaderSize = 7

// CalculateRequestLength returns the expected total length of the request
// ADU based on its header. It is what a slave uses to delimit frames on a
// byte stream.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters:
		return readHoldingsRequestLayout.Size(0), nil
	case modbus.FuncCodeWriteSingleRegister:
		return writeHoldingRequestLayout.Size(0), nil
	case modbus.FuncCodeWriteMultipleRegisters:
		// ByteCount is at offset 6
		if len(header) < RequestHeaderSize {
			return 0, fmt.Errorf("need %d bytes to determine length for 0x%02X, got %d", RequestHeaderSize, funcCode, len(header))
		}
		byteCount := int(header[6])
		if byteCount%2 != 0 {
			return 0, fmt.Errorf("odd byte count %d for 0x%02X", byteCount, funcCode)
		}
		return writeHoldingsRequestLayout.Size(byteCount / 2), nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}
