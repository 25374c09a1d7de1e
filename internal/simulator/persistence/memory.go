// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/modbus-rtu/internal/simulator/model"

// MemoryStorage keeps the registers for the life of the process only.
// Repeated Loads return the same tables.
type MemoryStorage struct {
	m *model.DataModel
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.DataModel, error) {
	if ms.m == nil {
		ms.m = model.NewDataModel()
	}
	return ms.m, nil
}

// Save and OnWrite have nothing to write back to.
func (ms *MemoryStorage) Save(*model.DataModel) error { return nil }

func (ms *MemoryStorage) OnWrite(model.TableType, uint16, uint16) {}

// Close drops the tables; the next Load starts from zero.
func (ms *MemoryStorage) Close() error {
	ms.m = nil
	return nil
}
