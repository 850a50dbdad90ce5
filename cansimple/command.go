// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import "fmt"

// Command selects one operation or telemetry type on a node. Commands
// occupy 5 bits; ids outside the table below are unknown.
type Command uint8

const (
	CmdGetVersion           Command = 0x00
	CmdHeartbeat            Command = 0x01
	CmdEstop                Command = 0x02
	CmdGetError             Command = 0x03
	CmdRxSdo                Command = 0x04
	CmdTxSdo                Command = 0x05
	CmdSetAxisState         Command = 0x07
	CmdGetEncoderEstimates  Command = 0x09
	CmdSetControllerMode    Command = 0x0B
	CmdSetInputPos          Command = 0x0C
	CmdSetInputVel          Command = 0x0D
	CmdSetInputTorque       Command = 0x0E
	CmdSetLimits            Command = 0x0F
	CmdSetTrajVelLimit      Command = 0x11
	CmdSetTrajAccelLimits   Command = 0x12
	CmdSetTrajInertia       Command = 0x13
	CmdGetIq                Command = 0x14
	CmdGetTemperature       Command = 0x15
	CmdReboot               Command = 0x16
	CmdGetBusVoltageCurrent Command = 0x17
	CmdClearErrors          Command = 0x18
	CmdSetAbsolutePosition  Command = 0x19
	CmdSetPosGain           Command = 0x1A
	CmdSetVelGains          Command = 0x1B
	CmdGetTorques           Command = 0x1C
	CmdGetPowers            Command = 0x1D
)

// payloadSizes holds the minimum payload length of each known command.
// Frames shorter than this are malformed; longer frames are accepted and
// the excess ignored (devices commonly pad to 8 bytes).
var payloadSizes = map[Command]int{
	CmdGetVersion:           8,
	CmdHeartbeat:            7,
	CmdEstop:                0,
	CmdGetError:             8,
	CmdRxSdo:                8,
	CmdTxSdo:                8,
	CmdSetAxisState:         4,
	CmdGetEncoderEstimates:  8,
	CmdSetControllerMode:    2,
	CmdSetInputPos:          8,
	CmdSetInputVel:          8,
	CmdSetInputTorque:       4,
	CmdSetLimits:            8,
	CmdSetTrajVelLimit:      4,
	CmdSetTrajAccelLimits:   8,
	CmdSetTrajInertia:       4,
	CmdGetIq:                8,
	CmdGetTemperature:       8,
	CmdReboot:               1,
	CmdGetBusVoltageCurrent: 8,
	CmdClearErrors:          1,
	CmdSetAbsolutePosition:  4,
	CmdSetPosGain:           4,
	CmdSetVelGains:          8,
	CmdGetTorques:           8,
	CmdGetPowers:            8,
}

// Known reports whether the command id is in the fixed table.
func (c Command) Known() bool {
	_, ok := payloadSizes[c]
	return ok
}

// PayloadSize returns the minimum payload length of a known command and
// false for unknown ids.
func (c Command) PayloadSize() (int, bool) {
	n, ok := payloadSizes[c]
	return n, ok
}

var commandNames = map[Command]string{
	CmdGetVersion:           "GetVersion",
	CmdHeartbeat:            "Heartbeat",
	CmdEstop:                "Estop",
	CmdGetError:             "GetError",
	CmdRxSdo:                "RxSdo",
	CmdTxSdo:                "TxSdo",
	CmdSetAxisState:         "SetAxisState",
	CmdGetEncoderEstimates:  "GetEncoderEstimates",
	CmdSetControllerMode:    "SetControllerMode",
	CmdSetInputPos:          "SetInputPos",
	CmdSetInputVel:          "SetInputVel",
	CmdSetInputTorque:       "SetInputTorque",
	CmdSetLimits:            "SetLimits",
	CmdSetTrajVelLimit:      "SetTrajVelLimit",
	CmdSetTrajAccelLimits:   "SetTrajAccelLimits",
	CmdSetTrajInertia:       "SetTrajInertia",
	CmdGetIq:                "GetIq",
	CmdGetTemperature:       "GetTemperature",
	CmdReboot:               "Reboot",
	CmdGetBusVoltageCurrent: "GetBusVoltageCurrent",
	CmdClearErrors:          "ClearErrors",
	CmdSetAbsolutePosition:  "SetAbsolutePosition",
	CmdSetPosGain:           "SetPosGain",
	CmdSetVelGains:          "SetVelGains",
	CmdGetTorques:           "GetTorques",
	CmdGetPowers:            "GetPowers",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint8(c))
}
