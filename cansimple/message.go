// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"encoding/binary"
	"math"

	"github.com/ffutop/cansimple-gateway/can"
)

// Message is the decoded payload of one command. Each command id has its
// own concrete type carrying the fixed field layout both ends of the link
// agree on statelessly; there is no negotiation.
type Message interface {
	// Command returns the command id this payload belongs to.
	Command() Command
	// MarshalPayload encodes the fields little-endian into at most 8 bytes.
	MarshalPayload() []byte
}

// SDO opcodes carried in the first byte of an SdoRequest.
const (
	SdoOpcodeRead  uint8 = 0x00
	SdoOpcodeWrite uint8 = 0x01
)

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Version is the GetVersion reply: hardware and firmware revision of a
// node.
type Version struct {
	Protocol     uint8
	HwMajor      uint8
	HwMinor      uint8
	HwVariant    uint8
	FwMajor      uint8
	FwMinor      uint8
	FwRevision   uint8
	FwUnreleased bool
}

func (Version) Command() Command { return CmdGetVersion }

func (m Version) MarshalPayload() []byte {
	return []byte{
		m.Protocol,
		m.HwMajor, m.HwMinor, m.HwVariant,
		m.FwMajor, m.FwMinor, m.FwRevision,
		boolByte(m.FwUnreleased),
	}
}

// Heartbeat is the periodic status word every node emits. The state and
// result bytes are raw protocol values; symbolic names live with the
// device driver.
type Heartbeat struct {
	AxisError       uint32
	AxisState       uint8
	ProcedureResult uint8
	TrajectoryDone  bool
}

func (Heartbeat) Command() Command { return CmdHeartbeat }

func (m Heartbeat) MarshalPayload() []byte {
	b := make([]byte, 7)
	binary.LittleEndian.PutUint32(b[0:4], m.AxisError)
	b[4] = m.AxisState
	b[5] = m.ProcedureResult
	b[6] = boolByte(m.TrajectoryDone)
	return b
}

// Estop is the emergency stop command. It carries no payload.
type Estop struct{}

func (Estop) Command() Command       { return CmdEstop }
func (Estop) MarshalPayload() []byte { return nil }

// ErrorState is the GetError reply.
type ErrorState struct {
	ActiveErrors uint32
	DisarmReason uint32
}

func (ErrorState) Command() Command { return CmdGetError }

func (m ErrorState) MarshalPayload() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], m.ActiveErrors)
	binary.LittleEndian.PutUint32(b[4:8], m.DisarmReason)
	return b
}

// SdoRequest addresses an arbitrary parameter by endpoint index
// (RxSdo). Reads leave Value zero; writes carry the new value.
type SdoRequest struct {
	Opcode   uint8
	Endpoint uint16
	Value    [4]byte
}

func (SdoRequest) Command() Command { return CmdRxSdo }

func (m SdoRequest) MarshalPayload() []byte {
	b := make([]byte, 8)
	b[0] = m.Opcode
	binary.LittleEndian.PutUint16(b[1:3], m.Endpoint)
	copy(b[4:8], m.Value[:])
	return b
}

// SdoResponse answers an SdoRequest read (TxSdo).
type SdoResponse struct {
	Endpoint uint16
	Value    [4]byte
}

func (SdoResponse) Command() Command { return CmdTxSdo }

func (m SdoResponse) MarshalPayload() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[1:3], m.Endpoint)
	copy(b[4:8], m.Value[:])
	return b
}

// AxisStateRequest commands a state transition (SetAxisState).
type AxisStateRequest struct {
	State uint32
}

func (AxisStateRequest) Command() Command { return CmdSetAxisState }

func (m AxisStateRequest) MarshalPayload() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.State)
	return b
}

// EncoderEstimates is the GetEncoderEstimates reply: position in turns,
// velocity in turns per second.
type EncoderEstimates struct {
	Pos float32
	Vel float32
}

func (EncoderEstimates) Command() Command { return CmdGetEncoderEstimates }

func (m EncoderEstimates) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Pos)
	putF32(b[4:8], m.Vel)
	return b
}

// ControllerMode selects the control and input mode (SetControllerMode).
type ControllerMode struct {
	Control uint8
	Input   uint8
}

func (ControllerMode) Command() Command { return CmdSetControllerMode }

func (m ControllerMode) MarshalPayload() []byte {
	return []byte{m.Control, m.Input}
}

// InputPos is the position setpoint (SetInputPos). Feed-forward terms
// are scaled by 1000 on the wire: VelFF in 0.001 turns/s, TorqueFF in
// 0.001 Nm.
type InputPos struct {
	Pos      float32
	VelFF    int16
	TorqueFF int16
}

func (InputPos) Command() Command { return CmdSetInputPos }

func (m InputPos) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Pos)
	binary.LittleEndian.PutUint16(b[4:6], uint16(m.VelFF))
	binary.LittleEndian.PutUint16(b[6:8], uint16(m.TorqueFF))
	return b
}

// InputVel is the velocity setpoint (SetInputVel).
type InputVel struct {
	Vel      float32
	TorqueFF float32
}

func (InputVel) Command() Command { return CmdSetInputVel }

func (m InputVel) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Vel)
	putF32(b[4:8], m.TorqueFF)
	return b
}

// InputTorque is the torque setpoint in Nm (SetInputTorque).
type InputTorque struct {
	Torque float32
}

func (InputTorque) Command() Command { return CmdSetInputTorque }

func (m InputTorque) MarshalPayload() []byte {
	b := make([]byte, 4)
	putF32(b, m.Torque)
	return b
}

// Limits carries the velocity and current limit (SetLimits).
type Limits struct {
	VelocityLimit float32
	CurrentLimit  float32
}

func (Limits) Command() Command { return CmdSetLimits }

func (m Limits) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.VelocityLimit)
	putF32(b[4:8], m.CurrentLimit)
	return b
}

// TrajVelLimit is the trajectory velocity limit (SetTrajVelLimit).
type TrajVelLimit struct {
	Limit float32
}

func (TrajVelLimit) Command() Command { return CmdSetTrajVelLimit }

func (m TrajVelLimit) MarshalPayload() []byte {
	b := make([]byte, 4)
	putF32(b, m.Limit)
	return b
}

// TrajAccelLimits carries the trajectory acceleration and deceleration
// limits (SetTrajAccelLimits).
type TrajAccelLimits struct {
	Accel float32
	Decel float32
}

func (TrajAccelLimits) Command() Command { return CmdSetTrajAccelLimits }

func (m TrajAccelLimits) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Accel)
	putF32(b[4:8], m.Decel)
	return b
}

// TrajInertia is the trajectory inertia (SetTrajInertia).
type TrajInertia struct {
	Inertia float32
}

func (TrajInertia) Command() Command { return CmdSetTrajInertia }

func (m TrajInertia) MarshalPayload() []byte {
	b := make([]byte, 4)
	putF32(b, m.Inertia)
	return b
}

// Iq is the GetIq reply: quadrature current setpoint and measurement.
type Iq struct {
	Setpoint float32
	Measured float32
}

func (Iq) Command() Command { return CmdGetIq }

func (m Iq) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Setpoint)
	putF32(b[4:8], m.Measured)
	return b
}

// Temperature is the GetTemperature reply in degrees Celsius.
type Temperature struct {
	FET   float32
	Motor float32
}

func (Temperature) Command() Command { return CmdGetTemperature }

func (m Temperature) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.FET)
	putF32(b[4:8], m.Motor)
	return b
}

// Reboot requests a reboot or configuration action. Action values are
// defined by the device: 0 reboot, 1 save configuration, 2 erase
// configuration, 3 enter DFU mode.
type Reboot struct {
	Action uint8
}

func (Reboot) Command() Command { return CmdReboot }

func (m Reboot) MarshalPayload() []byte {
	return []byte{m.Action}
}

// BusVoltageCurrent is the GetBusVoltageCurrent reply.
type BusVoltageCurrent struct {
	Voltage float32
	Current float32
}

func (BusVoltageCurrent) Command() Command { return CmdGetBusVoltageCurrent }

func (m BusVoltageCurrent) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Voltage)
	putF32(b[4:8], m.Current)
	return b
}

// ClearErrors clears the error state; a nonzero Identify makes the node
// blink its status LED instead.
type ClearErrors struct {
	Identify uint8
}

func (ClearErrors) Command() Command { return CmdClearErrors }

func (m ClearErrors) MarshalPayload() []byte {
	return []byte{m.Identify}
}

// AbsolutePosition sets the current encoder position (SetAbsolutePosition).
type AbsolutePosition struct {
	Pos float32
}

func (AbsolutePosition) Command() Command { return CmdSetAbsolutePosition }

func (m AbsolutePosition) MarshalPayload() []byte {
	b := make([]byte, 4)
	putF32(b, m.Pos)
	return b
}

// PosGain is the position controller gain (SetPosGain).
type PosGain struct {
	Gain float32
}

func (PosGain) Command() Command { return CmdSetPosGain }

func (m PosGain) MarshalPayload() []byte {
	b := make([]byte, 4)
	putF32(b, m.Gain)
	return b
}

// VelGains carries the velocity controller gains (SetVelGains).
type VelGains struct {
	Gain           float32
	IntegratorGain float32
}

func (VelGains) Command() Command { return CmdSetVelGains }

func (m VelGains) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Gain)
	putF32(b[4:8], m.IntegratorGain)
	return b
}

// Torques is the GetTorques reply in Nm.
type Torques struct {
	Target   float32
	Estimate float32
}

func (Torques) Command() Command { return CmdGetTorques }

func (m Torques) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Target)
	putF32(b[4:8], m.Estimate)
	return b
}

// Powers is the GetPowers reply in watts.
type Powers struct {
	Electrical float32
	Mechanical float32
}

func (Powers) Command() Command { return CmdGetPowers }

func (m Powers) MarshalPayload() []byte {
	b := make([]byte, 8)
	putF32(b[0:4], m.Electrical)
	putF32(b[4:8], m.Mechanical)
	return b
}

// DecodeMessage decodes a payload per its command's fixed layout. It
// fails with UnknownCommandError for ids outside the table and with
// PayloadError when the payload is shorter than the command requires.
// Extra trailing bytes are ignored.
func DecodeMessage(cmd Command, payload []byte) (Message, error) {
	need, ok := cmd.PayloadSize()
	if !ok {
		return nil, &UnknownCommandError{Command: cmd}
	}
	if len(payload) < need {
		return nil, &PayloadError{Command: cmd, Len: len(payload), Need: need}
	}

	switch cmd {
	case CmdGetVersion:
		return Version{
			Protocol:     payload[0],
			HwMajor:      payload[1],
			HwMinor:      payload[2],
			HwVariant:    payload[3],
			FwMajor:      payload[4],
			FwMinor:      payload[5],
			FwRevision:   payload[6],
			FwUnreleased: payload[7] != 0,
		}, nil
	case CmdHeartbeat:
		return Heartbeat{
			AxisError:       binary.LittleEndian.Uint32(payload[0:4]),
			AxisState:       payload[4],
			ProcedureResult: payload[5],
			TrajectoryDone:  payload[6] != 0,
		}, nil
	case CmdEstop:
		return Estop{}, nil
	case CmdGetError:
		return ErrorState{
			ActiveErrors: binary.LittleEndian.Uint32(payload[0:4]),
			DisarmReason: binary.LittleEndian.Uint32(payload[4:8]),
		}, nil
	case CmdRxSdo:
		m := SdoRequest{
			Opcode:   payload[0],
			Endpoint: binary.LittleEndian.Uint16(payload[1:3]),
		}
		copy(m.Value[:], payload[4:8])
		return m, nil
	case CmdTxSdo:
		m := SdoResponse{
			Endpoint: binary.LittleEndian.Uint16(payload[1:3]),
		}
		copy(m.Value[:], payload[4:8])
		return m, nil
	case CmdSetAxisState:
		return AxisStateRequest{State: binary.LittleEndian.Uint32(payload[0:4])}, nil
	case CmdGetEncoderEstimates:
		return EncoderEstimates{Pos: getF32(payload[0:4]), Vel: getF32(payload[4:8])}, nil
	case CmdSetControllerMode:
		return ControllerMode{Control: payload[0], Input: payload[1]}, nil
	case CmdSetInputPos:
		return InputPos{
			Pos:      getF32(payload[0:4]),
			VelFF:    int16(binary.LittleEndian.Uint16(payload[4:6])),
			TorqueFF: int16(binary.LittleEndian.Uint16(payload[6:8])),
		}, nil
	case CmdSetInputVel:
		return InputVel{Vel: getF32(payload[0:4]), TorqueFF: getF32(payload[4:8])}, nil
	case CmdSetInputTorque:
		return InputTorque{Torque: getF32(payload[0:4])}, nil
	case CmdSetLimits:
		return Limits{VelocityLimit: getF32(payload[0:4]), CurrentLimit: getF32(payload[4:8])}, nil
	case CmdSetTrajVelLimit:
		return TrajVelLimit{Limit: getF32(payload[0:4])}, nil
	case CmdSetTrajAccelLimits:
		return TrajAccelLimits{Accel: getF32(payload[0:4]), Decel: getF32(payload[4:8])}, nil
	case CmdSetTrajInertia:
		return TrajInertia{Inertia: getF32(payload[0:4])}, nil
	case CmdGetIq:
		return Iq{Setpoint: getF32(payload[0:4]), Measured: getF32(payload[4:8])}, nil
	case CmdGetTemperature:
		return Temperature{FET: getF32(payload[0:4]), Motor: getF32(payload[4:8])}, nil
	case CmdReboot:
		return Reboot{Action: payload[0]}, nil
	case CmdGetBusVoltageCurrent:
		return BusVoltageCurrent{Voltage: getF32(payload[0:4]), Current: getF32(payload[4:8])}, nil
	case CmdClearErrors:
		return ClearErrors{Identify: payload[0]}, nil
	case CmdSetAbsolutePosition:
		return AbsolutePosition{Pos: getF32(payload[0:4])}, nil
	case CmdSetPosGain:
		return PosGain{Gain: getF32(payload[0:4])}, nil
	case CmdSetVelGains:
		return VelGains{Gain: getF32(payload[0:4]), IntegratorGain: getF32(payload[4:8])}, nil
	case CmdGetTorques:
		return Torques{Target: getF32(payload[0:4]), Estimate: getF32(payload[4:8])}, nil
	case CmdGetPowers:
		return Powers{Electrical: getF32(payload[0:4]), Mechanical: getF32(payload[4:8])}, nil
	}
	return nil, &UnknownCommandError{Command: cmd}
}

// EncodeFrame builds the data frame for a message addressed to a node.
// An out-of-range node id fails with a RangeError before anything is
// sent; caller-supplied node ids are never truncated silently.
func EncodeFrame(node uint8, msg Message) (can.Frame, error) {
	id, err := NewID(node, msg.Command())
	if err != nil {
		return can.Frame{}, err
	}
	return can.NewFrame(uint32(id.Raw()), msg.MarshalPayload())
}

// RequestFrame builds the RTR frame that solicits a command's reply.
// The frame advertises no length; responders send their fixed payload
// regardless.
func RequestFrame(node uint8, cmd Command) (can.Frame, error) {
	id, err := NewID(node, cmd)
	if err != nil {
		return can.Frame{}, err
	}
	return can.NewRemoteFrame(uint32(id.Raw()), 0)
}
