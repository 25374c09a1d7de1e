// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"encoding/binary"
	"sync"

	"github.com/ffutop/modbus-rtu/internal/simulator/model"
	"github.com/ffutop/modbus-rtu/internal/simulator/persistence"
	"github.com/ffutop/modbus-rtu/modbus"
)

// Register quantity limits of the slave side, from the Modbus application
// protocol. The master side allows up to 127 per request; a slave answers
// larger requests with an illegal data value exception.
const (
	maxReadQuantity  = 125
	maxWriteQuantity = 123
)

// Slave implements the Modbus protocol logic on top of a DataModel.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage

	// writeMu holds a register write and its OnWrite together. File and
	// mmap storage read the same memory the model writes.
	writeMu sync.Mutex
}

// NewSlave creates a new Slave. storage may be nil.
func NewSlave(m *model.DataModel, storage persistence.Storage) *Slave {
	return &Slave{model: m, storage: storage}
}

// Model returns the register tables the slave serves.
func (s *Slave) Model() *model.DataModel {
	return s.model
}

// Process executes the Modbus Function Code against the memory model.
// Protocol violations are answered with an exception PDU, never an error.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, s.model.ReadHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, s.model.ReadInputRegisters)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *Slave) handleRead(req modbus.ProtocolDataUnit, read func(address, quantity uint16) ([]byte, error)) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > maxReadQuantity {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := read(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	err := s.write(address, 1, func() error {
		return s.model.WriteSingleRegister(address, value)
	})
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	return echo(req)
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 5 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > maxWriteQuantity {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if byteCount != int(quantity)*2 || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	err := s.write(address, quantity, func() error {
		return s.model.WriteMultipleRegisters(address, quantity, req.Data[5:])
	})
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

// write runs fn and, if it succeeded, persists the written range before
// another write can start.
func (s *Slave) write(address, quantity uint16, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	if s.storage != nil {
		s.storage.OnWrite(model.TableHoldingRegisters, address, quantity)
	}
	return nil
}

// echo copies req so the response does not alias the receive buffer.
func echo(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: data}
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionFlag,
		Data:         []byte{code},
	}
}
