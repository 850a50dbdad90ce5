// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package odrive

import (
	"fmt"
	"strings"
)

// AxisState is the state machine position of one axis, as carried in
// heartbeats and SetAxisState requests.
type AxisState uint32

const (
	AxisStateUndefined                      AxisState = 0
	AxisStateIdle                           AxisState = 1
	AxisStateStartupSequence                AxisState = 2
	AxisStateFullCalibration                AxisState = 3
	AxisStateMotorCalibration               AxisState = 4
	AxisStateEncoderIndexSearch             AxisState = 6
	AxisStateEncoderOffsetCalibration       AxisState = 7
	AxisStateClosedLoopControl              AxisState = 8
	AxisStateLockinSpin                     AxisState = 9
	AxisStateEncoderDirFind                 AxisState = 10
	AxisStateHoming                         AxisState = 11
	AxisStateEncoderHallPolarityCalibration AxisState = 12
	AxisStateEncoderHallPhaseCalibration    AxisState = 13
	AxisStateAnticoggingCalibration         AxisState = 14
	AxisStateHarmonicCalibration            AxisState = 15
	AxisStateHarmonicCalibrationCommutation AxisState = 16
)

var axisStateNames = map[AxisState]string{
	AxisStateUndefined:                      "undefined",
	AxisStateIdle:                           "idle",
	AxisStateStartupSequence:                "startup_sequence",
	AxisStateFullCalibration:                "full_calibration_sequence",
	AxisStateMotorCalibration:               "motor_calibration",
	AxisStateEncoderIndexSearch:             "encoder_index_search",
	AxisStateEncoderOffsetCalibration:       "encoder_offset_calibration",
	AxisStateClosedLoopControl:              "closed_loop_control",
	AxisStateLockinSpin:                     "lockin_spin",
	AxisStateEncoderDirFind:                 "encoder_dir_find",
	AxisStateHoming:                         "homing",
	AxisStateEncoderHallPolarityCalibration: "encoder_hall_polarity_calibration",
	AxisStateEncoderHallPhaseCalibration:    "encoder_hall_phase_calibration",
	AxisStateAnticoggingCalibration:         "anticogging_calibration",
	AxisStateHarmonicCalibration:            "harmonic_calibration",
	AxisStateHarmonicCalibrationCommutation: "harmonic_calibration_commutation",
}

func (s AxisState) String() string {
	if name, ok := axisStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("axis_state(%d)", uint32(s))
}

// ControlMode selects which quantity the controller regulates.
type ControlMode uint8

const (
	ControlModeVoltage  ControlMode = 0
	ControlModeTorque   ControlMode = 1
	ControlModeVelocity ControlMode = 2
	ControlModePosition ControlMode = 3
)

func (m ControlMode) String() string {
	switch m {
	case ControlModeVoltage:
		return "voltage_control"
	case ControlModeTorque:
		return "torque_control"
	case ControlModeVelocity:
		return "velocity_control"
	case ControlModePosition:
		return "position_control"
	}
	return fmt.Sprintf("control_mode(%d)", uint8(m))
}

// InputMode selects how setpoints are filtered before the controller.
type InputMode uint8

const (
	InputModeInactive               InputMode = 0
	InputModePassthrough            InputMode = 1
	InputModeVelocityRamp           InputMode = 2
	InputModePositionFilter         InputMode = 3
	InputModeMixChannels            InputMode = 4
	InputModeTrapezoidalTrajectory  InputMode = 5
	InputModeTorqueRamp             InputMode = 6
	InputModeMirror                 InputMode = 7
	InputModeTuning                 InputMode = 8
)

func (m InputMode) String() string {
	switch m {
	case InputModeInactive:
		return "inactive"
	case InputModePassthrough:
		return "passthrough"
	case InputModeVelocityRamp:
		return "vel_ramp"
	case InputModePositionFilter:
		return "pos_filter"
	case InputModeMixChannels:
		return "mix_channels"
	case InputModeTrapezoidalTrajectory:
		return "trap_traj"
	case InputModeTorqueRamp:
		return "torque_ramp"
	case InputModeMirror:
		return "mirror"
	case InputModeTuning:
		return "tuning"
	}
	return fmt.Sprintf("input_mode(%d)", uint8(m))
}

// ProcedureResult reports the outcome of the last startup procedure, as
// carried in heartbeats.
type ProcedureResult uint8

const (
	ProcedureResultSuccess                  ProcedureResult = 0
	ProcedureResultBusy                     ProcedureResult = 1
	ProcedureResultCancelled                ProcedureResult = 2
	ProcedureResultDisarmed                 ProcedureResult = 3
	ProcedureResultNoResponse               ProcedureResult = 4
	ProcedureResultPolePairCprMismatch      ProcedureResult = 5
	ProcedureResultPhaseResistanceOutOfRange ProcedureResult = 6
	ProcedureResultPhaseInductanceOutOfRange ProcedureResult = 7
	ProcedureResultUnbalancedPhases         ProcedureResult = 8
	ProcedureResultInvalidMotorType         ProcedureResult = 9
	ProcedureResultIllegalHallState         ProcedureResult = 10
	ProcedureResultTimeout                  ProcedureResult = 11
	ProcedureResultHomingWithoutEndstop     ProcedureResult = 12
	ProcedureResultInvalidState             ProcedureResult = 13
	ProcedureResultNotCalibrated            ProcedureResult = 14
	ProcedureResultNotConverging            ProcedureResult = 15
)

var procedureResultNames = map[ProcedureResult]string{
	ProcedureResultSuccess:                   "success",
	ProcedureResultBusy:                      "busy",
	ProcedureResultCancelled:                 "cancelled",
	ProcedureResultDisarmed:                  "disarmed",
	ProcedureResultNoResponse:                "no_response",
	ProcedureResultPolePairCprMismatch:       "pole_pair_cpr_mismatch",
	ProcedureResultPhaseResistanceOutOfRange: "phase_resistance_out_of_range",
	ProcedureResultPhaseInductanceOutOfRange: "phase_inductance_out_of_range",
	ProcedureResultUnbalancedPhases:          "unbalanced_phases",
	ProcedureResultInvalidMotorType:          "invalid_motor_type",
	ProcedureResultIllegalHallState:          "illegal_hall_state",
	ProcedureResultTimeout:                   "timeout",
	ProcedureResultHomingWithoutEndstop:      "homing_without_endstop",
	ProcedureResultInvalidState:              "invalid_state",
	ProcedureResultNotCalibrated:             "not_calibrated",
	ProcedureResultNotConverging:             "not_converging",
}

func (r ProcedureResult) String() string {
	if name, ok := procedureResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("procedure_result(%d)", uint8(r))
}

// AxisError is the error bitmask carried in heartbeats and GetError
// replies.
type AxisError uint32

const (
	AxisErrorInitializing           AxisError = 0x1
	AxisErrorSystemLevel            AxisError = 0x2
	AxisErrorTimingError            AxisError = 0x4
	AxisErrorMissingEstimate        AxisError = 0x8
	AxisErrorBadConfig              AxisError = 0x10
	AxisErrorDrvFault               AxisError = 0x20
	AxisErrorMissingInput           AxisError = 0x40
	AxisErrorDCBusOverVoltage       AxisError = 0x100
	AxisErrorDCBusUnderVoltage      AxisError = 0x200
	AxisErrorDCBusOverCurrent       AxisError = 0x400
	AxisErrorDCBusOverRegenCurrent  AxisError = 0x800
	AxisErrorCurrentLimitViolation  AxisError = 0x1000
	AxisErrorMotorOverTemp          AxisError = 0x2000
	AxisErrorInverterOverTemp       AxisError = 0x4000
	AxisErrorVelocityLimitViolation AxisError = 0x8000
	AxisErrorPositionLimitViolation AxisError = 0x10000
	AxisErrorWatchdogTimerExpired   AxisError = 0x1000000
	AxisErrorEstopRequested         AxisError = 0x2000000
	AxisErrorSpinoutDetected        AxisError = 0x4000000
	AxisErrorBrakeResistorDisarmed  AxisError = 0x8000000
	AxisErrorThermistorDisconnected AxisError = 0x10000000
	AxisErrorCalibrationError       AxisError = 0x40000000
)

var axisErrorNames = []struct {
	bit  AxisError
	name string
}{
	{AxisErrorInitializing, "initializing"},
	{AxisErrorSystemLevel, "system_level"},
	{AxisErrorTimingError, "timing_error"},
	{AxisErrorMissingEstimate, "missing_estimate"},
	{AxisErrorBadConfig, "bad_config"},
	{AxisErrorDrvFault, "drv_fault"},
	{AxisErrorMissingInput, "missing_input"},
	{AxisErrorDCBusOverVoltage, "dc_bus_over_voltage"},
	{AxisErrorDCBusUnderVoltage, "dc_bus_under_voltage"},
	{AxisErrorDCBusOverCurrent, "dc_bus_over_current"},
	{AxisErrorDCBusOverRegenCurrent, "dc_bus_over_regen_current"},
	{AxisErrorCurrentLimitViolation, "current_limit_violation"},
	{AxisErrorMotorOverTemp, "motor_over_temp"},
	{AxisErrorInverterOverTemp, "inverter_over_temp"},
	{AxisErrorVelocityLimitViolation, "velocity_limit_violation"},
	{AxisErrorPositionLimitViolation, "position_limit_violation"},
	{AxisErrorWatchdogTimerExpired, "watchdog_timer_expired"},
	{AxisErrorEstopRequested, "estop_requested"},
	{AxisErrorSpinoutDetected, "spinout_detected"},
	{AxisErrorBrakeResistorDisarmed, "brake_resistor_disarmed"},
	{AxisErrorThermistorDisconnected, "thermistor_disconnected"},
	{AxisErrorCalibrationError, "calibration_error"},
}

// Has reports whether every bit of mask is set.
func (e AxisError) Has(mask AxisError) bool {
	return e&mask == mask
}

// String lists the set bits, e.g. "drv_fault|motor_over_temp". The zero
// value formats as "none".
func (e AxisError) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	rest := e
	for _, entry := range axisErrorNames {
		if e.Has(entry.bit) {
			names = append(names, entry.name)
			rest &^= entry.bit
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// RebootAction selects what Reboot does.
type RebootAction uint8

const (
	RebootActionReboot      RebootAction = 0
	RebootActionSaveConfig  RebootAction = 1
	RebootActionEraseConfig RebootAction = 2
	RebootActionEnterDfu    RebootAction = 3
)

func (a RebootAction) String() string {
	switch a {
	case RebootActionReboot:
		return "reboot"
	case RebootActionSaveConfig:
		return "save_configuration"
	case RebootActionEraseConfig:
		return "erase_configuration"
	case RebootActionEnterDfu:
		return "enter_dfu_mode"
	}
	return fmt.Sprintf("reboot_action(%d)", uint8(a))
}
