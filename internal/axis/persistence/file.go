// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

// FileStorage keeps the axis state in a plain binary file and rewrites
// it after every protocol write. Sizes other than the fixed layout fail
// Load rather than being silently reinterpreted.
type FileStorage struct {
	path string
	file *os.File
	buf  []byte
}

// NewFileStorage creates a FileStorage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load opens (creating if necessary) and decodes the state file.
func (fs *FileStorage) Load() (*model.Model, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", fs.path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	fs.file = f
	fs.buf = make([]byte, TotalSize)

	if fi.Size() == 0 {
		// Fresh file: start from power-on defaults and lay the file out.
		m := model.New()
		if err := fs.Save(m); err != nil {
			f.Close()
			return nil, err
		}
		return m, nil
	}

	if fi.Size() != int64(TotalSize) {
		f.Close()
		return nil, fmt.Errorf("persistence: %s is %d bytes, want %d", fs.path, fi.Size(), TotalSize)
	}

	if _, err := io.ReadFull(f, fs.buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: read %s: %w", fs.path, err)
	}
	state, err := decodeState(fs.buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return model.FromState(state), nil
}

// Save encodes and rewrites the whole file.
func (fs *FileStorage) Save(m *model.Model) error {
	if fs.file == nil {
		return fmt.Errorf("persistence: storage not loaded")
	}
	state := m.Snapshot()
	encodeState(&state, fs.buf)
	if _, err := fs.file.WriteAt(fs.buf, 0); err != nil {
		return fmt.Errorf("persistence: write %s: %w", fs.path, err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("persistence: sync %s: %w", fs.path, err)
	}
	return nil
}

// OnWrite saves through to disk so a power cut loses at most the write
// in flight.
func (fs *FileStorage) OnWrite(m *model.Model) {
	if err := fs.Save(m); err != nil {
		slog.Error("Failed to persist axis state", "path", fs.path, "err", err)
	}
}

// Close closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
