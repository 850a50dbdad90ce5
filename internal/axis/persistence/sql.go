// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

// SQLStorage keeps the encoded axis state as a single blob row. The
// driver (e.g. sqlite3) must be imported by the embedding binary.
type SQLStorage struct {
	driver string
	dsn    string
	key    string
	db     *sql.DB
	buf    []byte
}

// NewSQLStorage creates an SQLStorage. key distinguishes multiple axes
// sharing one database.
func NewSQLStorage(driver, dsn, key string) *SQLStorage {
	if key == "" {
		key = "axis0"
	}
	return &SQLStorage{driver: driver, dsn: dsn, key: key}
}

// Load connects, creates the table if needed, and decodes the stored
// blob. No row yet means a fresh model.
func (s *SQLStorage) Load() (*model.Model, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	s.db = db
	s.buf = make([]byte, TotalSize)

	const schema = `
	CREATE TABLE IF NOT EXISTS axis_state (
		axis TEXT PRIMARY KEY,
		state BLOB NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}

	var blob []byte
	err = db.QueryRow("SELECT state FROM axis_state WHERE axis = ?", s.key).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		m := model.New()
		if err := s.Save(m); err != nil {
			db.Close()
			return nil, err
		}
		return m, nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("persistence: query state: %w", err)
	}

	state, err := decodeState(blob)
	if err != nil {
		db.Close()
		return nil, err
	}
	return model.FromState(state), nil
}

// Save upserts the encoded state blob.
func (s *SQLStorage) Save(m *model.Model) error {
	if s.db == nil {
		return fmt.Errorf("persistence: storage not loaded")
	}
	state := m.Snapshot()
	encodeState(&state, s.buf)

	const upsert = `
	INSERT INTO axis_state (axis, state) VALUES (?, ?)
	ON CONFLICT(axis) DO UPDATE SET state = excluded.state;
	`
	if _, err := s.db.Exec(upsert, s.key, s.buf); err != nil {
		return fmt.Errorf("persistence: upsert state: %w", err)
	}
	return nil
}

// OnWrite saves through to the database.
func (s *SQLStorage) OnWrite(m *model.Model) {
	if err := s.Save(m); err != nil {
		slog.Error("Failed to persist axis state", "axis", s.key, "err", err)
	}
}

// Close closes the database handle.
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
