// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

func mutate(m *model.Model) {
	m.Update(func(s *model.State) {
		s.AxisState = 8
		s.ControlMode = 3
		s.PosSetpoint = 1.234
		s.PosEstimate = 1.25
		s.VelLimit = 42.5
		s.AxisError = 0x40
	})
	m.WriteRegister(300, [4]byte{0xB6, 0xF3, 0x9D, 0x3F})
}

func verify(t *testing.T, m *model.Model) {
	t.Helper()
	m.View(func(s *model.State) {
		if s.AxisState != 8 || s.ControlMode != 3 {
			t.Errorf("state/mode = %d/%d", s.AxisState, s.ControlMode)
		}
		if s.PosSetpoint != 1.234 || s.VelLimit != 42.5 {
			t.Errorf("pos/limit = %v/%v", s.PosSetpoint, s.VelLimit)
		}
		if s.AxisError != 0x40 {
			t.Errorf("error = 0x%x", s.AxisError)
		}
	})
	reg, ok := m.ReadRegister(300)
	if !ok || reg != [4]byte{0xB6, 0xF3, 0x9D, 0x3F} {
		t.Errorf("register 300 = %x ok=%v", reg, ok)
	}
}

func TestStateRoundTrip(t *testing.T) {
	m := model.New()
	mutate(m)

	buf := make([]byte, TotalSize)
	state := m.Snapshot()
	encodeState(&state, buf)
	back, err := decodeState(buf)
	if err != nil {
		t.Fatalf("decodeState failed: %v", err)
	}
	verify(t, model.FromState(back))
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axis.bin")

	fs := NewFileStorage(path)
	m, err := fs.Load()
	if err != nil {
		t.Fatalf("initial Load failed: %v", err)
	}
	mutate(m)
	if err := fs.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	fs.Close()

	fs2 := NewFileStorage(path)
	m2, err := fs2.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer fs2.Close()
	verify(t, m2)
}

func TestFileStorageTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axis.bin")
	if err := os.WriteFile(path, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStorage(path)
	if _, err := fs.Load(); err == nil {
		t.Error("Load of truncated file succeeded, want error")
	}
}

func TestMmapStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axis.mmap")

	ms := NewMmapStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("initial Load failed: %v", err)
	}
	mutate(m)
	ms.OnWrite(m)
	if err := ms.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ms2 := NewMmapStorage(path)
	m2, err := ms2.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer ms2.Close()
	verify(t, m2)
}

func TestMmapStorageWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axis.mmap")
	if err := os.WriteFile(path, make([]byte, TotalSize+1), 0644); err != nil {
		t.Fatal(err)
	}

	ms := NewMmapStorage(path)
	if _, err := ms.Load(); err == nil {
		t.Error("Load of oversized file succeeded, want error")
	}
}

func TestMemoryStorageIsVolatile(t *testing.T) {
	ms := NewMemoryStorage()
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	mutate(m)
	if err := ms.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	m2, err := ms.Load()
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	m2.View(func(s *model.State) {
		if s.AxisState != 1 {
			t.Errorf("memory storage persisted state %d across Load", s.AxisState)
		}
	})
}
