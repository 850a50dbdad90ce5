// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ffutop/cansimple-gateway/internal/axis/model"
)

// Fixed binary layout of one persisted axis state. Scalars occupy a
// 128-byte header, the SDO register file follows. Everything is
// little-endian, matching the wire.
const (
	offHwVersion   = 0  // 4 bytes
	offFwVersion   = 4  // 4 bytes
	offAxisError   = 8  // uint32
	offDisarm      = 12 // uint32
	offAxisState   = 16
	offProcResult  = 17
	offTrajDone    = 18
	offControlMode = 19
	offInputMode   = 20
	// bytes 21..23 reserved

	offFloats = 24 // 20 float32 fields, see floatFields
	headerLen = 128

	offRegisters = headerLen
	registersLen = model.RegisterCount * 4

	// TotalSize is the exact size of a persisted state file.
	TotalSize = headerLen + registersLen
)

// floatFields orders the State float32 fields in the header. Appending
// new fields keeps old files readable; reordering does not.
func floatFields(s *model.State) []*float32 {
	return []*float32{
		&s.PosSetpoint, &s.VelSetpoint, &s.TorqueSetpoint,
		&s.PosEstimate, &s.VelEstimate,
		&s.VelLimit, &s.CurrentLimit,
		&s.TrajVelLimit, &s.TrajAccelLimit, &s.TrajDecelLimit, &s.TrajInertia,
		&s.PosGain, &s.VelGain, &s.VelIntegratorGain,
		&s.FetTemp, &s.MotorTemp,
		&s.BusVoltage, &s.BusCurrent,
		&s.IqSetpoint, &s.IqMeasured,
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// encodeState writes the state into buf, which must be TotalSize long.
func encodeState(s *model.State, buf []byte) {
	copy(buf[offHwVersion:], s.HwVersion[:])
	copy(buf[offFwVersion:], s.FwVersion[:])
	binary.LittleEndian.PutUint32(buf[offAxisError:], s.AxisError)
	binary.LittleEndian.PutUint32(buf[offDisarm:], s.DisarmReason)
	buf[offAxisState] = s.AxisState
	buf[offProcResult] = s.ProcedureResult
	buf[offTrajDone] = boolByte(s.TrajectoryDone)
	buf[offControlMode] = s.ControlMode
	buf[offInputMode] = s.InputMode

	for i, f := range floatFields(s) {
		binary.LittleEndian.PutUint32(buf[offFloats+i*4:], math.Float32bits(*f))
	}

	for i := range s.Registers {
		copy(buf[offRegisters+i*4:], s.Registers[i][:])
	}
}

// decodeState reads a state back from buf.
func decodeState(buf []byte) (model.State, error) {
	if len(buf) < TotalSize {
		return model.State{}, fmt.Errorf("persistence: state is %d bytes, need %d", len(buf), TotalSize)
	}

	var s model.State
	copy(s.HwVersion[:], buf[offHwVersion:])
	copy(s.FwVersion[:], buf[offFwVersion:])
	s.AxisError = binary.LittleEndian.Uint32(buf[offAxisError:])
	s.DisarmReason = binary.LittleEndian.Uint32(buf[offDisarm:])
	s.AxisState = buf[offAxisState]
	s.ProcedureResult = buf[offProcResult]
	s.TrajectoryDone = buf[offTrajDone] != 0
	s.ControlMode = buf[offControlMode]
	s.InputMode = buf[offInputMode]

	for i, f := range floatFields(&s) {
		*f = math.Float32frombits(binary.LittleEndian.Uint32(buf[offFloats+i*4:]))
	}

	for i := range s.Registers {
		copy(s.Registers[i][:], buf[offRegisters+i*4:])
	}
	return s, nil
}
