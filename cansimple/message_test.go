// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"bytes"
	"errors"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	// Every fixed-shape command id, with values that catch swapped or
	// misaligned fields.
	tests := []Message{
		Version{Protocol: 2, HwMajor: 4, HwMinor: 4, HwVariant: 58, FwMajor: 0, FwMinor: 6, FwRevision: 8, FwUnreleased: true},
		Heartbeat{AxisError: 0x1000, AxisState: 8, ProcedureResult: 1, TrajectoryDone: true},
		Estop{},
		ErrorState{ActiveErrors: 0x40, DisarmReason: 0x100},
		SdoRequest{Opcode: SdoOpcodeWrite, Endpoint: 395, Value: [4]byte{0xb6, 0xf3, 0x9d, 0x3f}},
		SdoResponse{Endpoint: 395, Value: [4]byte{1, 2, 3, 4}},
		AxisStateRequest{State: 8},
		EncoderEstimates{Pos: -1.5, Vel: 0.25},
		ControllerMode{Control: 3, Input: 1},
		InputPos{Pos: 2.5, VelFF: -1000, TorqueFF: 250},
		InputVel{Vel: 10, TorqueFF: 0.1},
		InputTorque{Torque: -0.5},
		Limits{VelocityLimit: 20, CurrentLimit: 40},
		TrajVelLimit{Limit: 5},
		TrajAccelLimits{Accel: 2, Decel: 4},
		TrajInertia{Inertia: 0.01},
		Iq{Setpoint: 1.25, Measured: 1.125},
		Temperature{FET: 41.5, Motor: 38.25},
		Reboot{Action: 1},
		BusVoltageCurrent{Voltage: 24.5, Current: 1.75},
		ClearErrors{Identify: 1},
		AbsolutePosition{Pos: 3.5},
		PosGain{Gain: 20},
		VelGains{Gain: 0.16, IntegratorGain: 0.32},
		Torques{Target: 0.5, Estimate: 0.4375},
		Powers{Electrical: 12.5, Mechanical: 11.25},
	}

	for _, msg := range tests {
		t.Run(msg.Command().String(), func(t *testing.T) {
			payload := msg.MarshalPayload()
			need, ok := msg.Command().PayloadSize()
			if !ok {
				t.Fatalf("%v not in payload size table", msg.Command())
			}
			if len(payload) != need {
				t.Fatalf("payload length %d, table says %d", len(payload), need)
			}
			got, err := DecodeMessage(msg.Command(), payload)
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if got != msg {
				t.Errorf("round trip: got %#v, want %#v", got, msg)
			}
		})
	}
}

func TestHeartbeatWireLayout(t *testing.T) {
	hb := Heartbeat{AxisError: 0x01020304, AxisState: 8, ProcedureResult: 3, TrajectoryDone: true}
	want := []byte{0x04, 0x03, 0x02, 0x01, 8, 3, 1}
	if got := hb.MarshalPayload(); !bytes.Equal(got, want) {
		t.Errorf("payload = %x, want %x", got, want)
	}
}

func TestInputPosWireLayout(t *testing.T) {
	// 1.0f32 is 00 00 80 3f little-endian; the feed-forward terms are
	// int16 in thousandths.
	m := InputPos{Pos: 1.0, VelFF: -2, TorqueFF: 1000}
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0xfe, 0xff, 0xe8, 0x03}
	if got := m.MarshalPayload(); !bytes.Equal(got, want) {
		t.Errorf("payload = %x, want %x", got, want)
	}
}

func TestSdoRequestWireLayout(t *testing.T) {
	m := SdoRequest{Opcode: SdoOpcodeWrite, Endpoint: 0x018B, Value: [4]byte{0xb6, 0xf3, 0x9d, 0x3f}}
	want := []byte{0x01, 0x8b, 0x01, 0x00, 0xb6, 0xf3, 0x9d, 0x3f}
	if got := m.MarshalPayload(); !bytes.Equal(got, want) {
		t.Errorf("payload = %x, want %x", got, want)
	}
}

func TestDecodeMessageShortPayload(t *testing.T) {
	tests := []struct {
		cmd  Command
		data []byte
		need int
	}{
		{CmdHeartbeat, []byte{1, 2, 3}, 7},
		{CmdGetBusVoltageCurrent, make([]byte, 7), 8},
		{CmdSetAxisState, nil, 4},
		{CmdRxSdo, make([]byte, 4), 8},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			_, err := DecodeMessage(tt.cmd, tt.data)
			var perr *PayloadError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want PayloadError", err)
			}
			if perr.Need != tt.need || perr.Len != len(tt.data) {
				t.Errorf("PayloadError = %+v, want Need %d Len %d", perr, tt.need, len(tt.data))
			}
		})
	}
}

func TestDecodeMessageUnknownCommand(t *testing.T) {
	for _, cmd := range []Command{0x06, 0x08, 0x0A, 0x10, 0x1E, 0x1F} {
		_, err := DecodeMessage(cmd, make([]byte, 8))
		var uerr *UnknownCommandError
		if !errors.As(err, &uerr) {
			t.Fatalf("DecodeMessage(%#x) err = %v, want UnknownCommandError", uint8(cmd), err)
		}
		if uerr.Command != cmd {
			t.Errorf("UnknownCommandError.Command = %#x, want %#x", uint8(uerr.Command), uint8(cmd))
		}
	}
}

func TestDecodeMessagePaddedPayload(t *testing.T) {
	// Devices pad to 8 bytes; the excess past a command's fixed fields
	// is ignored.
	hb := Heartbeat{AxisError: 1, AxisState: 8}
	padded := append(hb.MarshalPayload(), 0xEE)
	got, err := DecodeMessage(CmdHeartbeat, padded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != hb {
		t.Errorf("got %#v, want %#v", got, hb)
	}
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(5, InputTorque{Torque: 1.0})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if frame.ID != (5<<5 | uint32(CmdSetInputTorque)) {
		t.Errorf("frame id = %#x", frame.ID)
	}
	if frame.RTR || frame.Len != 4 {
		t.Errorf("unexpected frame %+v", frame)
	}

	if _, err := EncodeFrame(64, Estop{}); err == nil {
		t.Error("expected RangeError for node 64")
	}
}

func TestRequestFrame(t *testing.T) {
	frame, err := RequestFrame(5, CmdGetBusVoltageCurrent)
	if err != nil {
		t.Fatalf("RequestFrame: %v", err)
	}
	if !frame.RTR {
		t.Error("request frame is not RTR")
	}
	if frame.ID != (5<<5 | uint32(CmdGetBusVoltageCurrent)) {
		t.Errorf("frame id = %#x", frame.ID)
	}
	if frame.Len != 0 {
		t.Errorf("request frame advertises length %d", frame.Len)
	}
}
