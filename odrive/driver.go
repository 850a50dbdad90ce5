// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package odrive drives ODrive motor controllers over CANSimple: one
// typed method per protocol command, symbolic state and error
// enumerations, and name-based access to arbitrary firmware parameters
// through the SDO endpoint table.
package odrive

import (
	"context"
	"fmt"
	"sort"

	"github.com/ffutop/cansimple-gateway/cansimple"
)

// Driver is a client for one axis. Concurrent calls are safe; the
// dispatcher serializes the underlying request slots per command.
type Driver struct {
	disp *cansimple.Dispatcher
	node uint8
}

// NewDriver wraps a dispatcher for the axis at the given node id. The
// dispatcher's Run loop must be active for replies to arrive.
func NewDriver(disp *cansimple.Dispatcher, node uint8) *Driver {
	return &Driver{disp: disp, node: node}
}

// Node returns the axis node id.
func (o *Driver) Node() uint8 { return o.node }

// Heartbeat is one decoded heartbeat with symbolic fields.
type Heartbeat struct {
	Error          AxisError
	State          AxisState
	Result         ProcedureResult
	TrajectoryDone bool
}

func heartbeatFromMessage(m cansimple.Heartbeat) Heartbeat {
	return Heartbeat{
		Error:          AxisError(m.AxisError),
		State:          AxisState(m.AxisState),
		Result:         ProcedureResult(m.ProcedureResult),
		TrajectoryDone: m.TrajectoryDone,
	}
}

// ErrorState is the axis error report returned by Errors.
type ErrorState struct {
	Active       AxisError
	DisarmReason AxisError
}

// Version returns hardware and firmware version information.
func (o *Driver) Version(ctx context.Context) (cansimple.Version, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetVersion)
	if err != nil {
		return cansimple.Version{}, err
	}
	return msg.(cansimple.Version), nil
}

// Errors returns the active error mask and the reason for the last
// disarm.
func (o *Driver) Errors(ctx context.Context) (ErrorState, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetError)
	if err != nil {
		return ErrorState{}, err
	}
	e := msg.(cansimple.ErrorState)
	return ErrorState{
		Active:       AxisError(e.ActiveErrors),
		DisarmReason: AxisError(e.DisarmReason),
	}, nil
}

// EncoderEstimates returns the position and velocity estimate.
func (o *Driver) EncoderEstimates(ctx context.Context) (cansimple.EncoderEstimates, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetEncoderEstimates)
	if err != nil {
		return cansimple.EncoderEstimates{}, err
	}
	return msg.(cansimple.EncoderEstimates), nil
}

// Iq returns the quadrature current setpoint and measurement.
func (o *Driver) Iq(ctx context.Context) (cansimple.Iq, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetIq)
	if err != nil {
		return cansimple.Iq{}, err
	}
	return msg.(cansimple.Iq), nil
}

// Temperature returns the inverter and motor temperature.
func (o *Driver) Temperature(ctx context.Context) (cansimple.Temperature, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetTemperature)
	if err != nil {
		return cansimple.Temperature{}, err
	}
	return msg.(cansimple.Temperature), nil
}

// BusVoltageCurrent returns the DC bus voltage and current.
func (o *Driver) BusVoltageCurrent(ctx context.Context) (cansimple.BusVoltageCurrent, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetBusVoltageCurrent)
	if err != nil {
		return cansimple.BusVoltageCurrent{}, err
	}
	return msg.(cansimple.BusVoltageCurrent), nil
}

// Torques returns the torque target and estimate.
func (o *Driver) Torques(ctx context.Context) (cansimple.Torques, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetTorques)
	if err != nil {
		return cansimple.Torques{}, err
	}
	return msg.(cansimple.Torques), nil
}

// Powers returns the electrical and mechanical power.
func (o *Driver) Powers(ctx context.Context) (cansimple.Powers, error) {
	msg, err := o.disp.Query(ctx, o.node, cansimple.CmdGetPowers)
	if err != nil {
		return cansimple.Powers{}, err
	}
	return msg.(cansimple.Powers), nil
}

// Estop disarms the axis immediately.
func (o *Driver) Estop(ctx context.Context) error {
	return o.disp.Notify(ctx, o.node, cansimple.Estop{})
}

// ClearErrors clears the error and disarm state.
func (o *Driver) ClearErrors(ctx context.Context) error {
	return o.disp.Notify(ctx, o.node, cansimple.ClearErrors{})
}

// Identify makes the axis blink its status LED.
func (o *Driver) Identify(ctx context.Context) error {
	return o.disp.Notify(ctx, o.node, cansimple.ClearErrors{Identify: 1})
}

func (o *Driver) reboot(ctx context.Context, action RebootAction) error {
	return o.disp.Notify(ctx, o.node, cansimple.Reboot{Action: uint8(action)})
}

// Reboot restarts the axis.
func (o *Driver) Reboot(ctx context.Context) error {
	return o.reboot(ctx, RebootActionReboot)
}

// SaveConfiguration persists the configuration to flash and reboots.
func (o *Driver) SaveConfiguration(ctx context.Context) error {
	return o.reboot(ctx, RebootActionSaveConfig)
}

// EraseConfiguration restores factory defaults and reboots.
func (o *Driver) EraseConfiguration(ctx context.Context) error {
	return o.reboot(ctx, RebootActionEraseConfig)
}

// EnterDfuMode reboots the axis into the firmware update mode.
func (o *Driver) EnterDfuMode(ctx context.Context) error {
	return o.reboot(ctx, RebootActionEnterDfu)
}

// SetAxisState requests a state machine transition. Completion is
// reported asynchronously through heartbeats; see WaitForState.
func (o *Driver) SetAxisState(ctx context.Context, state AxisState) error {
	return o.disp.Notify(ctx, o.node, cansimple.AxisStateRequest{State: uint32(state)})
}

// SetControllerMode selects the control loop and input filtering mode.
func (o *Driver) SetControllerMode(ctx context.Context, control ControlMode, input InputMode) error {
	return o.disp.Notify(ctx, o.node, cansimple.ControllerMode{
		Control: uint8(control),
		Input:   uint8(input),
	})
}

// SetInputPosition sets the position setpoint in turns. The
// feed-forward terms are in 0.001 turns/s and 0.001 Nm at the default
// scale.
func (o *Driver) SetInputPosition(ctx context.Context, pos float32, velFF, torqueFF int16) error {
	return o.disp.Notify(ctx, o.node, cansimple.InputPos{Pos: pos, VelFF: velFF, TorqueFF: torqueFF})
}

// SetPosition is SetInputPosition without feed-forward.
func (o *Driver) SetPosition(ctx context.Context, pos float32) error {
	return o.SetInputPosition(ctx, pos, 0, 0)
}

// SetInputVelocity sets the velocity setpoint in turns/s with a torque
// feed-forward in Nm.
func (o *Driver) SetInputVelocity(ctx context.Context, vel, torqueFF float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.InputVel{Vel: vel, TorqueFF: torqueFF})
}

// SetVelocity is SetInputVelocity without feed-forward.
func (o *Driver) SetVelocity(ctx context.Context, vel float32) error {
	return o.SetInputVelocity(ctx, vel, 0)
}

// SetInputTorque sets the torque setpoint in Nm.
func (o *Driver) SetInputTorque(ctx context.Context, torque float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.InputTorque{Torque: torque})
}

// SetLimits sets the velocity limit in turns/s and the current limit in
// amps.
func (o *Driver) SetLimits(ctx context.Context, velocityLimit, currentLimit float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.Limits{
		VelocityLimit: velocityLimit,
		CurrentLimit:  currentLimit,
	})
}

// SetTrajVelLimit sets the trajectory velocity limit.
func (o *Driver) SetTrajVelLimit(ctx context.Context, limit float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.TrajVelLimit{Limit: limit})
}

// SetTrajAccelLimits sets the trajectory acceleration and deceleration
// limits.
func (o *Driver) SetTrajAccelLimits(ctx context.Context, accel, decel float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.TrajAccelLimits{Accel: accel, Decel: decel})
}

// SetTrajInertia sets the trajectory inertia.
func (o *Driver) SetTrajInertia(ctx context.Context, inertia float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.TrajInertia{Inertia: inertia})
}

// SetAbsolutePosition declares the current mechanical position.
func (o *Driver) SetAbsolutePosition(ctx context.Context, pos float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.AbsolutePosition{Pos: pos})
}

// SetPosGain sets the position controller gain.
func (o *Driver) SetPosGain(ctx context.Context, gain float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.PosGain{Gain: gain})
}

// SetVelGains sets the velocity controller gains.
func (o *Driver) SetVelGains(ctx context.Context, gain, integratorGain float32) error {
	return o.disp.Notify(ctx, o.node, cansimple.VelGains{Gain: gain, IntegratorGain: integratorGain})
}

// SdoRead reads an arbitrary parameter by endpoint index.
func (o *Driver) SdoRead(ctx context.Context, endpoint uint16, kind ValueKind) (Value, error) {
	req := cansimple.SdoRequest{Opcode: cansimple.SdoOpcodeRead, Endpoint: endpoint}
	msg, err := o.disp.Exchange(ctx, o.node, req, cansimple.CmdTxSdo)
	if err != nil {
		return Value{}, err
	}
	resp := msg.(cansimple.SdoResponse)
	if resp.Endpoint != endpoint {
		return Value{}, fmt.Errorf("odrive: sdo read answered for endpoint %d, asked %d", resp.Endpoint, endpoint)
	}
	return ValueFromLE(kind, resp.Value), nil
}

// SdoWrite writes an arbitrary parameter by endpoint index. Writes are
// not acknowledged.
func (o *Driver) SdoWrite(ctx context.Context, endpoint uint16, value Value) error {
	return o.disp.Notify(ctx, o.node, cansimple.SdoRequest{
		Opcode:   cansimple.SdoOpcodeWrite,
		Endpoint: endpoint,
		Value:    value.LEBytes(),
	})
}

// ReadEndpoint reads a parameter by its flattened name.
func (o *Driver) ReadEndpoint(ctx context.Context, eps *Endpoints, name string) (Value, error) {
	ep, ok := eps.Get(name)
	if !ok {
		return Value{}, fmt.Errorf("odrive: no endpoint named %q", name)
	}
	return o.SdoRead(ctx, ep.ID, ep.Kind)
}

// WriteEndpoint writes a parameter by its flattened name, coercing the
// value to the endpoint's wire type.
func (o *Driver) WriteEndpoint(ctx context.Context, eps *Endpoints, name string, value float64) error {
	ep, ok := eps.Get(name)
	if !ok {
		return fmt.Errorf("odrive: no endpoint named %q", name)
	}
	return o.SdoWrite(ctx, ep.ID, CoerceValue(ep.Kind, value))
}

// ApplyConfiguration writes a whole name-to-value map through SDO, in
// sorted key order so failures are reproducible. The first failing key
// aborts and is named in the error.
func (o *Driver) ApplyConfiguration(ctx context.Context, eps *Endpoints, config map[string]float64) error {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := o.WriteEndpoint(ctx, eps, k, config[k]); err != nil {
			return fmt.Errorf("applying %q: %w", k, err)
		}
	}
	return nil
}

// AwaitHeartbeat blocks until the next heartbeat from this axis.
func (o *Driver) AwaitHeartbeat(ctx context.Context) (Heartbeat, error) {
	events, cancel := o.disp.Subscribe(o.node, cansimple.CmdHeartbeat, 1)
	defer cancel()
	select {
	case msg := <-events:
		return heartbeatFromMessage(msg.(cansimple.Heartbeat)), nil
	case <-ctx.Done():
		return Heartbeat{}, ctx.Err()
	}
}

// SubscribeHeartbeats delivers this axis's heartbeats until cancelled.
// Heartbeats past the buffer capacity are dropped, never queued
// unboundedly.
func (o *Driver) SubscribeHeartbeats(buffer int) (<-chan Heartbeat, func()) {
	src, cancel := o.disp.Subscribe(o.node, cansimple.CmdHeartbeat, buffer)
	out := make(chan Heartbeat, buffer)
	go func() {
		defer close(out)
		for msg := range src {
			select {
			case out <- heartbeatFromMessage(msg.(cansimple.Heartbeat)):
			default:
			}
		}
	}()
	return out, cancel
}

// WaitForState consumes heartbeats until the axis reports the wanted
// state. Useful after SetAxisState: calibration and homing complete
// asynchronously.
func (o *Driver) WaitForState(ctx context.Context, state AxisState) (Heartbeat, error) {
	events, cancel := o.disp.Subscribe(o.node, cansimple.CmdHeartbeat, 4)
	defer cancel()
	for {
		select {
		case msg := <-events:
			hb := heartbeatFromMessage(msg.(cansimple.Heartbeat))
			if hb.State == state {
				return hb, nil
			}
		case <-ctx.Done():
			return Heartbeat{}, ctx.Err()
		}
	}
}
