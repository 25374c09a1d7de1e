// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-rtu/internal/simulator/model"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"", false},
		{"memory", false},
		{"file", false},
		{"mmap", false},
		{"sql", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := New(tt.kind, filepath.Join(dir, tt.kind+".bin"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Fatalf("New(%q) returned nil storage", tt.kind)
			}
		})
	}
}

func TestStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		open func() Storage
	}{
		{"file", func() Storage { return NewFileStorage(filepath.Join(dir, "regs.bin")) }},
		{"mmap", func() Storage { return NewMmapStorage(filepath.Join(dir, "regs.mmap")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.open()
			m, err := s.Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(m.HoldingRegisters) != model.MaxAddress+1 || len(m.InputRegisters) != model.MaxAddress+1 {
				t.Fatalf("unexpected table sizes %d/%d", len(m.HoldingRegisters), len(m.InputRegisters))
			}

			if err := m.WriteSingleRegister(10, 0xBEEF); err != nil {
				t.Fatalf("WriteSingleRegister failed: %v", err)
			}
			s.OnWrite(model.TableHoldingRegisters, 10, 1)
			if err := m.SetInputRegisters(65535, []uint16{0x1234}); err != nil {
				t.Fatalf("SetInputRegisters failed: %v", err)
			}
			if err := s.Save(m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			s = tt.open()
			defer s.Close()
			m, err = s.Load()
			if err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			if got := m.Value(model.TableHoldingRegisters, 10); got != 0xBEEF {
				t.Errorf("holding[10] = %#04x, want 0xbeef", got)
			}
			if got := m.Value(model.TableInputRegisters, 65535); got != 0x1234 {
				t.Errorf("input[65535] = %#04x, want 0x1234", got)
			}
			if got := m.Value(model.TableInputRegisters, 10); got != 0 {
				t.Errorf("input[10] = %#04x, want 0", got)
			}
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Size() != model.MaxAddress+1 {
		t.Errorf("Size = %d", m.Size())
	}
	s.OnWrite(model.TableHoldingRegisters, 0, 1)
	if err := s.Save(m); err != nil {
		t.Errorf("Save failed: %v", err)
	}
	if again, _ := s.Load(); again != m {
		t.Error("second Load returned different tables")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if fresh, _ := s.Load(); fresh == m {
		t.Error("Load after Close returned the old tables")
	}
}

func TestMmapStorage_SaveBeforeLoad(t *testing.T) {
	s := NewMmapStorage(filepath.Join(t.TempDir(), "regs.mmap"))
	if err := s.Save(nil); err == nil {
		t.Error("expected error saving an unloaded mmap storage")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close of unloaded storage = %v", err)
	}
}
