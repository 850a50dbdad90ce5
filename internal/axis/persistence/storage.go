// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence stores an emulated axis's state across restarts.
// Four backends exist: volatile memory, a write-through binary file, a
// memory-mapped file, and a SQL table.
package persistence

import (
	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

// Storage persists one axis's model.
type Storage interface {
	// Load restores the model, creating a fresh one when nothing was
	// stored yet. A present but unreadable store is an error, not a
	// silent reset.
	Load() (*model.Model, error)

	// Save writes the full model state.
	Save(m *model.Model) error

	// OnWrite is called after every protocol-driven mutation. Backends
	// with real-time durability sync here; others may ignore it.
	OnWrite(m *model.Model)

	Close() error
}
