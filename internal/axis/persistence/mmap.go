// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

// MmapStorage keeps the encoded axis state in a memory-mapped file.
// Saves encode into the mapping and msync it, so a write costs a page
// flush instead of a full file rewrite.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a MmapStorage at path.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the file and decodes the state out of it.
func (ms *MmapStorage) Load() (*model.Model, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", ms.path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	fresh := fi.Size() == 0
	if fresh {
		if err := f.Truncate(int64(TotalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: resize %s: %w", ms.path, err)
		}
	} else if fi.Size() != int64(TotalSize) {
		f.Close()
		return nil, fmt.Errorf("persistence: %s is %d bytes, want %d", ms.path, fi.Size(), TotalSize)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: mmap %s: %w", ms.path, err)
	}
	ms.file = f
	ms.data = data

	if fresh {
		m := model.New()
		if err := ms.Save(m); err != nil {
			ms.Close()
			return nil, err
		}
		return m, nil
	}

	state, err := decodeState(data)
	if err != nil {
		ms.Close()
		return nil, err
	}
	return model.FromState(state), nil
}

// Save encodes into the mapping and flushes it to disk.
func (ms *MmapStorage) Save(m *model.Model) error {
	if ms.data == nil {
		return fmt.Errorf("persistence: storage not loaded")
	}
	state := m.Snapshot()
	encodeState(&state, ms.data)
	if err := ms.data.Flush(); err != nil {
		return fmt.Errorf("persistence: flush %s: %w", ms.path, err)
	}
	return nil
}

// OnWrite flushes the state for real-time durability.
func (ms *MmapStorage) OnWrite(m *model.Model) {
	if err := ms.Save(m); err != nil {
		slog.Error("Failed to persist axis state", "path", ms.path, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
