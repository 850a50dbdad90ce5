// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the state of one emulated axis: everything the
// protocol can read or write, guarded by a single RWMutex so the frame
// processor and the telemetry tickers can share it.
package model

import (
	"sync"
)

// RegisterCount is the size of the SDO register file: 4096 endpoints of
// 4 bytes each. Firmware endpoint ids above the file are rejected by
// the axis, not silently wrapped.
const RegisterCount = 4096

// State is the persisted portion of the model. All fields are plain
// values so the persistence layer can encode them with a fixed layout.
type State struct {
	// GetVersion reply fields.
	HwVersion [4]uint8 // protocol, major, minor, variant
	FwVersion [4]uint8 // major, minor, revision, unreleased

	// Error and state words.
	AxisError       uint32
	DisarmReason    uint32
	AxisState       uint8
	ProcedureResult uint8
	TrajectoryDone  bool
	ControlMode     uint8
	InputMode       uint8

	// Setpoints and estimates.
	PosSetpoint    float32
	VelSetpoint    float32
	TorqueSetpoint float32
	PosEstimate    float32
	VelEstimate    float32

	// Limits, trajectory, gains.
	VelLimit          float32
	CurrentLimit      float32
	TrajVelLimit      float32
	TrajAccelLimit    float32
	TrajDecelLimit    float32
	TrajInertia       float32
	PosGain           float32
	VelGain           float32
	VelIntegratorGain float32

	// Measurements the getters report.
	FetTemp    float32
	MotorTemp  float32
	BusVoltage float32
	BusCurrent float32
	IqSetpoint float32
	IqMeasured float32

	// SDO register file, 4 little-endian bytes per endpoint.
	Registers [RegisterCount][4]byte
}

// Model is a State behind a lock.
type Model struct {
	mu    sync.RWMutex
	state State
}

// New returns a model with plausible power-on values: idle, no errors,
// nominal bus voltage.
func New() *Model {
	return &Model{
		state: State{
			HwVersion:      [4]uint8{2, 4, 4, 1},
			FwVersion:      [4]uint8{0, 6, 8, 0},
			AxisState:      1, // idle
			VelLimit:       10,
			CurrentLimit:   10,
			TrajVelLimit:   2,
			TrajAccelLimit: 5,
			TrajDecelLimit: 5,
			PosGain:        20,
			VelGain:        0.16,
			FetTemp:        24.5,
			MotorTemp:      24.5,
			BusVoltage:     24.0,
		},
	}
}

// FromState wraps a loaded state.
func FromState(s State) *Model {
	return &Model{state: s}
}

// View runs f with read access to the state.
func (m *Model) View(f func(*State)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f(&m.state)
}

// Update runs f with write access to the state.
func (m *Model) Update(f func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.state)
}

// Snapshot returns a copy of the state for persistence.
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReadRegister returns the 4-byte value of one SDO endpoint.
func (m *Model) ReadRegister(endpoint uint16) ([4]byte, bool) {
	if int(endpoint) >= RegisterCount {
		return [4]byte{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Registers[endpoint], true
}

// WriteRegister stores the 4-byte value of one SDO endpoint.
func (m *Model) WriteRegister(endpoint uint16, value [4]byte) bool {
	if int(endpoint) >= RegisterCount {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Registers[endpoint] = value
	return true
}
