// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"

	"github.com/sigurn/crc16"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"Empty", nil, 0xFFFF},
		{"WriteSingleRegister", []byte{0x00, 0x06, 0x00, 0x00, 0x00, 0x17}, 0x15C8},
		{"ReadHoldingRegisters", []byte{0x01, 0x03, 0x10, 0x01, 0x03, 0xE8}, 0x7410},
		{"WriteHoldingRegister", []byte{0x01, 0x06, 0x10, 0x01, 0x03, 0xE8}, 0x74DC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = %#04x, want %#04x", got, tt.want)
			}
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("second Checksum() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestChecksum_Incremental(t *testing.T) {
	data := []byte{0x01, 0x10, 0x00, 0x06, 0x00, 0x01, 0x02, 0x00, 0x3B}

	var crc CRC
	crc.Reset().PushBytes(data[:3]).PushBytes(data[3:])
	if crc.Value() != Checksum(data) {
		t.Errorf("incremental crc %#04x, one-shot %#04x", crc.Value(), Checksum(data))
	}
}

func TestChecksum_MatchesCRC16Modbus(t *testing.T) {
	table := crc16.MakeTable(crc16.CRC16_MODBUS)

	data := make([]byte, 0, 256)
	for i := 0; i < 256; i++ {
		data = append(data, byte(i*31+7))
		if got, want := Checksum(data), crc16.Checksum(data, table); got != want {
			t.Fatalf("length %d: Checksum() = %#04x, crc16 = %#04x", len(data), got, want)
		}
	}
}
