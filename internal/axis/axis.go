// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package axis emulates one ODrive axis on the device side of the
// protocol: it answers getters, applies setters, serves SDO endpoint
// transfers out of a register file, and emits periodic heartbeats. The
// gateway hosts axes on its local bus for development and testing
// without hardware.
package axis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/cansimple"
	"github.com/ffutop/cansimple-gateway/internal/axis/model"
	"github.com/ffutop/cansimple-gateway/internal/axis/persistence"
	"github.com/ffutop/cansimple-gateway/odrive"
)

const (
	defaultHeartbeatPeriod = 100 * time.Millisecond

	stateIdle       = 1
	stateClosedLoop = 8

	controlModeTorque   = 1
	controlModeVelocity = 2
	controlModePosition = 3

	procedureResultSuccess = 0
)

// Options tune one emulated axis.
type Options struct {
	// HeartbeatPeriod between heartbeat frames; zero means 100ms.
	HeartbeatPeriod time.Duration
	// EncoderPeriod between cyclic encoder-estimate frames; zero
	// disables them.
	EncoderPeriod time.Duration
	// Endpoints restricts SDO transfers to indices present in the
	// table, as real firmware does. Nil serves the whole register file.
	Endpoints *odrive.Endpoints
}

// Axis is one emulated node.
type Axis struct {
	node    uint8
	model   *model.Model
	storage persistence.Storage
	opts    Options
	log     *slog.Logger
}

// New loads the axis state from storage. The node id must fit the
// identifier's 6-bit field.
func New(node uint8, storage persistence.Storage, opts Options) (*Axis, error) {
	if node > cansimple.MaxNode {
		return nil, fmt.Errorf("axis: node id %d out of range", node)
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = defaultHeartbeatPeriod
	}
	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("axis %d: %w", node, err)
	}
	return &Axis{
		node:    node,
		model:   m,
		storage: storage,
		opts:    opts,
		log:     slog.Default().With("axis", node),
	}, nil
}

// Node returns the axis's node id.
func (a *Axis) Node() uint8 { return a.node }

// Model exposes the state for tests and the local bus host.
func (a *Axis) Model() *model.Model { return a.model }

// Close persists and releases the storage.
func (a *Axis) Close() error {
	if err := a.storage.Save(a.model); err != nil {
		a.log.Error("Failed to save axis state on close", "err", err)
	}
	return a.storage.Close()
}

// Process handles one bus frame and returns the axis's response
// frames, if any. Frames addressed to other nodes return nil.
func (a *Axis) Process(frame can.Frame) []can.Frame {
	if frame.Extended {
		return nil
	}
	id := cansimple.IDFromFrame(frame)
	if id.Node() != a.node {
		return nil
	}

	if frame.RTR {
		return a.processRequest(id.Command())
	}

	msg, err := cansimple.DecodeMessage(id.Command(), frame.Payload())
	if err != nil {
		a.log.Debug("Ignoring undecodable frame", "command", id.Command().String(), "err", err)
		return nil
	}
	return a.processCommand(msg)
}

// processRequest answers an RTR getter from the model.
func (a *Axis) processRequest(cmd cansimple.Command) []can.Frame {
	var msg cansimple.Message
	a.model.View(func(s *model.State) {
		switch cmd {
		case cansimple.CmdGetVersion:
			msg = cansimple.Version{
				Protocol:     s.HwVersion[0],
				HwMajor:      s.HwVersion[1],
				HwMinor:      s.HwVersion[2],
				HwVariant:    s.HwVersion[3],
				FwMajor:      s.FwVersion[0],
				FwMinor:      s.FwVersion[1],
				FwRevision:   s.FwVersion[2],
				FwUnreleased: s.FwVersion[3] != 0,
			}
		case cansimple.CmdHeartbeat:
			msg = heartbeat(s)
		case cansimple.CmdGetError:
			msg = cansimple.ErrorState{ActiveErrors: s.AxisError, DisarmReason: s.DisarmReason}
		case cansimple.CmdGetEncoderEstimates:
			msg = cansimple.EncoderEstimates{Pos: s.PosEstimate, Vel: s.VelEstimate}
		case cansimple.CmdGetIq:
			msg = cansimple.Iq{Setpoint: s.IqSetpoint, Measured: s.IqMeasured}
		case cansimple.CmdGetTemperature:
			msg = cansimple.Temperature{FET: s.FetTemp, Motor: s.MotorTemp}
		case cansimple.CmdGetBusVoltageCurrent:
			msg = cansimple.BusVoltageCurrent{Voltage: s.BusVoltage, Current: s.BusCurrent}
		case cansimple.CmdGetTorques:
			msg = cansimple.Torques{Target: s.TorqueSetpoint, Estimate: s.TorqueSetpoint}
		case cansimple.CmdGetPowers:
			msg = cansimple.Powers{
				Electrical: s.BusVoltage * s.BusCurrent,
				Mechanical: s.TorqueSetpoint * s.VelEstimate,
			}
		}
	})
	if msg == nil {
		return nil
	}
	return a.reply(msg)
}

// processCommand applies a setter or serves an SDO transfer.
func (a *Axis) processCommand(msg cansimple.Message) []can.Frame {
	var responses []can.Frame
	persist := true

	switch m := msg.(type) {
	case cansimple.Estop:
		a.model.Update(func(s *model.State) {
			s.AxisState = stateIdle
			s.AxisError |= uint32(odrive.AxisErrorEstopRequested)
			s.DisarmReason |= uint32(odrive.AxisErrorEstopRequested)
			s.VelEstimate = 0
		})
		a.log.Warn("Emergency stop")

	case cansimple.AxisStateRequest:
		a.model.Update(func(s *model.State) {
			s.AxisState = uint8(m.State)
			s.ProcedureResult = procedureResultSuccess
			s.TrajectoryDone = false
		})

	case cansimple.ControllerMode:
		a.model.Update(func(s *model.State) {
			s.ControlMode = m.Control
			s.InputMode = m.Input
		})

	case cansimple.InputPos:
		a.model.Update(func(s *model.State) {
			s.PosSetpoint = m.Pos
			s.VelSetpoint = float32(m.VelFF) / 1000
			s.TorqueSetpoint = float32(m.TorqueFF) / 1000
			s.TrajectoryDone = false
		})

	case cansimple.InputVel:
		a.model.Update(func(s *model.State) {
			s.VelSetpoint = m.Vel
			s.TorqueSetpoint = m.TorqueFF
		})

	case cansimple.InputTorque:
		a.model.Update(func(s *model.State) { s.TorqueSetpoint = m.Torque })

	case cansimple.Limits:
		a.model.Update(func(s *model.State) {
			s.VelLimit = m.VelocityLimit
			s.CurrentLimit = m.CurrentLimit
		})

	case cansimple.TrajVelLimit:
		a.model.Update(func(s *model.State) { s.TrajVelLimit = m.Limit })

	case cansimple.TrajAccelLimits:
		a.model.Update(func(s *model.State) {
			s.TrajAccelLimit = m.Accel
			s.TrajDecelLimit = m.Decel
		})

	case cansimple.TrajInertia:
		a.model.Update(func(s *model.State) { s.TrajInertia = m.Inertia })

	case cansimple.AbsolutePosition:
		a.model.Update(func(s *model.State) { s.PosEstimate = m.Pos })

	case cansimple.PosGain:
		a.model.Update(func(s *model.State) { s.PosGain = m.Gain })

	case cansimple.VelGains:
		a.model.Update(func(s *model.State) {
			s.VelGain = m.Gain
			s.VelIntegratorGain = m.IntegratorGain
		})

	case cansimple.ClearErrors:
		if m.Identify != 0 {
			a.log.Info("Identify requested")
			persist = false
			break
		}
		a.model.Update(func(s *model.State) {
			s.AxisError = 0
			s.DisarmReason = 0
			s.ProcedureResult = procedureResultSuccess
		})

	case cansimple.Reboot:
		persist = false
		switch m.Action {
		case 1: // save configuration
			if err := a.storage.Save(a.model); err != nil {
				a.log.Error("Failed to save configuration", "err", err)
			}
		case 2: // erase configuration
			fresh := model.New().Snapshot()
			a.model.Update(func(s *model.State) { *s = fresh })
			a.storage.OnWrite(a.model)
		}
		a.log.Info("Reboot requested", "action", m.Action)

	case cansimple.SdoRequest:
		return a.processSdo(m)

	default:
		// Replies (TxSdo, telemetry shapes) addressed at us make no
		// sense on the device side; drop them.
		return nil
	}

	if persist {
		a.storage.OnWrite(a.model)
	}
	return responses
}

// processSdo serves the generic endpoint transfer against the register
// file. Reads answer with a TxSdo frame; writes are unacknowledged.
func (a *Axis) processSdo(req cansimple.SdoRequest) []can.Frame {
	if a.opts.Endpoints != nil {
		if _, ok := a.opts.Endpoints.FindID(req.Endpoint); !ok {
			a.log.Debug("SDO for unknown endpoint", "endpoint", req.Endpoint)
			return nil
		}
	}

	switch req.Opcode {
	case cansimple.SdoOpcodeRead:
		value, ok := a.model.ReadRegister(req.Endpoint)
		if !ok {
			a.log.Debug("SDO read out of register file", "endpoint", req.Endpoint)
			return nil
		}
		return a.reply(cansimple.SdoResponse{Endpoint: req.Endpoint, Value: value})

	case cansimple.SdoOpcodeWrite:
		if !a.model.WriteRegister(req.Endpoint, req.Value) {
			a.log.Debug("SDO write out of register file", "endpoint", req.Endpoint)
			return nil
		}
		a.storage.OnWrite(a.model)
		return nil
	}

	a.log.Debug("SDO with unknown opcode", "opcode", req.Opcode)
	return nil
}

func (a *Axis) reply(msg cansimple.Message) []can.Frame {
	frame, err := cansimple.EncodeFrame(a.node, msg)
	if err != nil {
		a.log.Error("Failed to encode reply", "err", err)
		return nil
	}
	return []can.Frame{frame}
}

func heartbeat(s *model.State) cansimple.Heartbeat {
	return cansimple.Heartbeat{
		AxisError:       s.AxisError,
		AxisState:       s.AxisState,
		ProcedureResult: s.ProcedureResult,
		TrajectoryDone:  s.TrajectoryDone,
	}
}

// Run emits periodic telemetry until the context is done: heartbeats
// always, encoder estimates when configured. Each tick also advances
// the coarse motion model so estimates track setpoints.
func (a *Axis) Run(ctx context.Context, emit func(can.Frame)) {
	hb := time.NewTicker(a.opts.HeartbeatPeriod)
	defer hb.Stop()

	var enc <-chan time.Time
	if a.opts.EncoderPeriod > 0 {
		t := time.NewTicker(a.opts.EncoderPeriod)
		defer t.Stop()
		enc = t.C
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-hb.C:
			a.step(float32(now.Sub(last).Seconds()))
			last = now
			var msg cansimple.Heartbeat
			a.model.View(func(s *model.State) { msg = heartbeat(s) })
			for _, f := range a.reply(msg) {
				emit(f)
			}
		case <-enc:
			var msg cansimple.EncoderEstimates
			a.model.View(func(s *model.State) {
				msg = cansimple.EncoderEstimates{Pos: s.PosEstimate, Vel: s.VelEstimate}
			})
			for _, f := range a.reply(msg) {
				emit(f)
			}
		}
	}
}

// step advances the motion model: in closed loop the estimates chase
// the setpoints, bounded by the velocity limit, so interactive sessions
// see plausible values. Outside closed loop the axis coasts to rest.
func (a *Axis) step(dt float32) {
	if dt <= 0 {
		return
	}
	a.model.Update(func(s *model.State) {
		if s.AxisState != stateClosedLoop {
			s.VelEstimate = 0
			s.IqMeasured = 0
			return
		}
		switch s.ControlMode {
		case controlModePosition:
			delta := s.PosSetpoint - s.PosEstimate
			maxStep := s.VelLimit * dt
			switch {
			case delta > maxStep:
				s.PosEstimate += maxStep
				s.VelEstimate = s.VelLimit
			case delta < -maxStep:
				s.PosEstimate -= maxStep
				s.VelEstimate = -s.VelLimit
			default:
				s.PosEstimate = s.PosSetpoint
				s.VelEstimate = 0
				s.TrajectoryDone = true
			}
		case controlModeVelocity:
			vel := s.VelSetpoint
			if vel > s.VelLimit {
				vel = s.VelLimit
			} else if vel < -s.VelLimit {
				vel = -s.VelLimit
			}
			s.VelEstimate = vel
			s.PosEstimate += vel * dt
		case controlModeTorque:
			s.IqSetpoint = s.TorqueSetpoint
			s.IqMeasured = s.TorqueSetpoint
		}
	})
}
