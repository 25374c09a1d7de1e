// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-rtu/internal/simulator/model"
)

// MmapStorage maps the register image file into memory. The tables returned
// by Load alias the mapping, so a register write is already in the page
// cache and OnWrite only asks the kernel to write dirty pages back.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage returns a storage for the image at path. Nothing is opened
// before Load.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load opens (creating if missing) and maps the image.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: map %s: %w", ms.path, err)
	}
	ms.file, ms.data = f, data
	return mapBytesToModel(data), nil
}

// Save flushes the whole mapping.
func (ms *MmapStorage) Save(*model.DataModel) error {
	if ms.data == nil {
		return errors.New("persistence: mmap storage not loaded")
	}
	return ms.data.Flush()
}

func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

// Close unmaps the image and closes the file. The tables from Load must not
// be used afterwards.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}

// openImage opens the image file at path and sizes it to hold both tables.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: stat %s: %w", path, err)
	}
	if fi.Size() != totalSize {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: resize %s: %w", path, err)
		}
	}
	return f, nil
}
