// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableHoldingRegisters TableType = iota
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableHoldingRegisters:
		return "holding"
	case TableInputRegisters:
		return "input"
	}
	return fmt.Sprintf("TableType(%d)", int(t))
}

// DataModel holds the register tables of a simulated device.
// The backing slices always cover the full 16-bit address space; Limit
// narrows the addressable window to emulate small devices.
type DataModel struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only).
	InputRegisters []uint16

	size int
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// Limit makes only the first n registers of each table addressable.
func (m *DataModel) Limit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > MaxAddress+1 {
		n = 0
	}
	m.size = n
}

// Size returns the number of addressable registers per table.
func (m *DataModel) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.window()
}

// window is Size for callers holding the lock.
func (m *DataModel) window() int {
	if m.size == 0 {
		return MaxAddress + 1
	}
	return m.size
}

// ReadHoldingRegisters reads a range of holding registers and returns them as BigEndian bytes.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.read(m.HoldingRegisters, address, quantity)
}

// ReadInputRegisters reads a range of input registers and returns them as BigEndian bytes.
func (m *DataModel) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.read(m.InputRegisters, address, quantity)
}

func (m *DataModel) read(table []uint16, address, quantity uint16) ([]byte, error) {
	if err := m.validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], table[int(address)+i])
	}
	return result, nil
}

// WriteSingleRegister writes a single holding register.
func (m *DataModel) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateRange(address, 1); err != nil {
		return err
	}

	m.HoldingRegisters[address] = value
	return nil
}

// WriteMultipleRegisters writes a range of holding registers from BigEndian bytes.
func (m *DataModel) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateRange(address, quantity); err != nil {
		return err
	}

	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length")
	}

	for i := 0; i < int(quantity); i++ {
		m.HoldingRegisters[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// SetInputRegisters loads values into the read-only input table, the way
// a device's sensors would.
func (m *DataModel) SetInputRegisters(address uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(address)+len(values) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	copy(m.InputRegisters[address:], values)
	return nil
}

// SetHoldingRegisters loads initial values into the holding table.
func (m *DataModel) SetHoldingRegisters(address uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(address)+len(values) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	copy(m.HoldingRegisters[address:], values)
	return nil
}

// Value returns a single register without range checks against Limit.
func (m *DataModel) Value(table TableType, address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if table == TableInputRegisters {
		return m.InputRegisters[address]
	}
	return m.HoldingRegisters[address]
}

func (m *DataModel) validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > m.window() {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
